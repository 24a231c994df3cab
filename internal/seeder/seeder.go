package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"linkpulse/internal/attributes"
	"linkpulse/internal/clicks"
	"linkpulse/internal/links"
	"linkpulse/internal/owners"
)

const (
	DemoUsername = "demo"
	DemoOwnerID  = "demo-owner"

	batchSize = 500
)

// Seeder fills a database with a demo profile, its links and a month of
// synthetic clicks.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	ClickCount int
	Days       int

	now func() time.Time
}

// Report is what Run created.
type Report struct {
	OwnerID string
	APIKey  string
	LinkIDs []string
	Clicks  int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, clickCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		ClickCount: clickCount,
		Days:       30,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var demoLinks = []struct {
	id, title, url string
}{
	{"shop", "Loja", "https://shop.example.com"},
	{"yt", "YouTube", "https://www.youtube.com/@demo"},
	{"promo", "Promo de verão", "https://shop.example.com/sale"},
	{"blog", "Blog", "https://blog.example.com"},
	{"zap", "WhatsApp", "https://wa.me/5511999999999"},
}

// Run seeds the demo owner. It is safe to run twice: the profile and links
// are reused and only new clicks are added.
func (s *Seeder) Run(ctx context.Context) (*Report, error) {
	start := s.now()
	db := s.DBManager.GetConnection()
	s.Logger.Info("Starting database seeding...", slog.Int("clicks", s.ClickCount))

	if err := s.seedProfile(db); err != nil {
		return nil, err
	}

	apiKey, err := owners.IssueAPIKey(db, s.Logger, DemoOwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue api key: %w", err)
	}

	seeded, err := s.seedLinks(db)
	if err != nil {
		return nil, err
	}

	created, err := s.generateClicks(ctx, db, seeded)
	if err != nil {
		return nil, err
	}

	report := &Report{OwnerID: DemoOwnerID, APIKey: apiKey, Clicks: created}
	for _, l := range seeded {
		report.LinkIDs = append(report.LinkIDs, l.ID)
	}

	s.Logger.Info("Seeding completed",
		slog.Int("links", len(seeded)),
		slog.Int("clicks", created),
		slog.Duration("elapsed", s.now().Sub(start)))
	return report, nil
}

func (s *Seeder) seedProfile(db *gorm.DB) error {
	_, err := owners.CreateProfile(db, s.Logger, DemoUsername, DemoOwnerID)
	if err != nil && !errors.Is(err, owners.ErrProfileExists) {
		return fmt.Errorf("failed to create demo profile: %w", err)
	}
	return nil
}

func (s *Seeder) seedLinks(db *gorm.DB) ([]links.Link, error) {
	var seeded []links.Link
	for _, l := range demoLinks {
		link := links.Link{
			ID:             l.id,
			OwnerID:        DemoOwnerID,
			DestinationURL: l.url,
			Title:          l.title,
			CreatedAt:      s.now().AddDate(0, 0, -s.Days),
		}
		err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return tx.Where(links.Link{ID: l.id}).FirstOrCreate(&link).Error
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed link %s: %w", l.id, err)
		}
		seeded = append(seeded, link)
	}
	return seeded, nil
}

func (s *Seeder) generateClicks(ctx context.Context, db *gorm.DB, seeded []links.Link) (int, error) {
	if len(seeded) == 0 || s.ClickCount <= 0 {
		return 0, nil
	}

	visitorPool := make([]string, max(s.ClickCount/3, 1))
	for i := range visitorPool {
		visitorPool[i] = uuid.NewString()
	}
	ipPool := generateIPPool(100)
	userAgents := getUserAgents()
	referrerPool := getReferrers()
	places := getPlaces()
	days := max(s.Days, 1)

	batch := make([]clicks.ClickEvent, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return tx.CreateInBatches(batch, batchSize).Error
		})
		batch = batch[:0]
		return err
	}

	for i := 0; i < s.ClickCount; i++ {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}

		// Early links in the list get most of the traffic.
		link := seeded[min(rand.IntN(len(seeded)), rand.IntN(len(seeded)))]
		userAgent := userAgents[rand.IntN(len(userAgents))]
		attrs := attributes.Normalize(userAgent)
		place := places[rand.IntN(len(places))]

		referrer := referrerPool[rand.IntN(len(referrerPool))]
		if referrer == "" {
			referrer = clicks.DirectReferrer
		}

		batch = append(batch, clicks.ClickEvent{
			LinkID:    link.ID,
			OwnerID:   link.OwnerID,
			VisitorID: visitorPool[rand.IntN(len(visitorPool))],
			Timestamp: s.randomTimestamp(days),
			Country:   &place.country,
			Region:    &place.region,
			City:      &place.city,
			Device:    attrs.Device,
			Browser:   attrs.Browser,
			OS:        attrs.OS,
			Referrer:  referrer,
			UserAgent: userAgent,
			IP:        ipPool[rand.IntN(len(ipPool))],
		})

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return i, fmt.Errorf("failed to insert clicks: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return s.ClickCount, fmt.Errorf("failed to insert clicks: %w", err)
	}
	return s.ClickCount, nil
}

// randomTimestamp favors evening hours in UTC-3, where the demo audience is.
func (s *Seeder) randomTimestamp(days int) time.Time {
	day := s.now().AddDate(0, 0, -rand.IntN(days)).Truncate(24 * time.Hour)
	hour := rand.IntN(24)
	if rand.IntN(2) == 0 {
		hour = 21 + rand.IntN(4) // 18h-21h local
	}
	ts := day.Add(time.Duration(hour)*time.Hour + time.Duration(rand.IntN(3600))*time.Second)
	if ts.After(s.now()) {
		ts = ts.AddDate(0, 0, -1)
	}
	return ts
}

type place struct {
	country, region, city string
}

func getPlaces() []place {
	return []place{
		{"Brazil", "São Paulo", "São Paulo"},
		{"Brazil", "São Paulo", "Campinas"},
		{"Brazil", "Rio de Janeiro", "Rio de Janeiro"},
		{"Brazil", "Minas Gerais", "Belo Horizonte"},
		{"Brazil", "Pernambuco", "Recife"},
		{"Portugal", "Lisbon", "Lisbon"},
		{"United States", "Florida", "Miami"},
		{"Argentina", "Buenos Aires", "Buenos Aires"},
	}
}

func generateIPPool(count int) []string {
	ipPool := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", rand.IntN(223)+1, rand.IntN(256), rand.IntN(256), rand.IntN(254)+1)
		if !ipPool[ip] {
			ipPool[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 Instagram 307.0.0.34.111",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
		"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPad; CPU OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
	}
}

// getReferrers returns a list of common referrers
func getReferrers() []string {
	return []string{
		"", // Direct visit
		"",
		"https://www.instagram.com/",
		"https://l.instagram.com/",
		"https://www.tiktok.com/",
		"https://t.co/abc",
		"https://www.youtube.com/",
		"https://www.google.com/",
		"https://m.facebook.com/",
	}
}
