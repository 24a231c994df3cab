package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"linkpulse/internal"
	"linkpulse/internal/clicks"
	"linkpulse/internal/config"
	"linkpulse/internal/database"
	"linkpulse/internal/geo"
	"linkpulse/internal/links"
	"linkpulse/internal/owners"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// One connection serializes the shared-cache database, which otherwise
	// reports "table is locked" when a write overlaps a read.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// TestConfig returns the shared config switched to the test environment.
func TestConfig() *config.Config {
	cfg := config.GetConfig()
	cfg.Environment = config.Test
	return cfg
}

// CreateTestLink inserts a link owned by ownerID.
func CreateTestLink(t *testing.T, db *gorm.DB, ownerID, id, destination string) links.Link {
	t.Helper()
	link := links.Link{
		ID:             id,
		OwnerID:        ownerID,
		DestinationURL: destination,
		Title:          id,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.Create(&link).Error)
	return link
}

// CreateTestProfile inserts a profile for ownerID.
func CreateTestProfile(t *testing.T, db *gorm.DB, username, ownerID string) owners.Profile {
	t.Helper()
	profile := owners.Profile{Username: username, OwnerID: ownerID}
	require.NoError(t, db.Create(&profile).Error)
	return profile
}

// CreateTestAPIKey issues a key for ownerID and returns the raw token.
func CreateTestAPIKey(t *testing.T, db *gorm.DB, ownerID string) string {
	t.Helper()
	raw, err := owners.IssueAPIKey(db, GetLogger(), ownerID)
	require.NoError(t, err)
	return raw
}

// ClickOption customizes a click inserted by CreateClick.
type ClickOption func(*clicks.ClickEvent)

// WithVisitor sets the visitor id.
func WithVisitor(id string) ClickOption {
	return func(e *clicks.ClickEvent) { e.VisitorID = id }
}

// WithTimestamp sets the event time; it is stored in UTC.
func WithTimestamp(ts time.Time) ClickOption {
	return func(e *clicks.ClickEvent) { e.Timestamp = ts.UTC() }
}

// WithGeo sets country, region and city. Empty values are stored as NULL.
func WithGeo(country, region, city string) ClickOption {
	return func(e *clicks.ClickEvent) {
		e.Country = nullable(country)
		e.Region = nullable(region)
		e.City = nullable(city)
	}
}

// WithReferrer sets the stored referrer.
func WithReferrer(referrer string) ClickOption {
	return func(e *clicks.ClickEvent) { e.Referrer = referrer }
}

// CreateClick inserts a click event directly, bypassing the recorder.
func CreateClick(t *testing.T, db *gorm.DB, ownerID, linkID string, opts ...ClickOption) clicks.ClickEvent {
	t.Helper()
	event := clicks.ClickEvent{
		LinkID:    linkID,
		OwnerID:   ownerID,
		VisitorID: "visitor-" + linkID,
		Timestamp: time.Now().UTC(),
		Device:    "Desktop",
		Browser:   "Chrome",
		OS:        "macOS",
		Referrer:  clicks.DirectReferrer,
	}
	for _, opt := range opts {
		opt(&event)
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

// CountClicks returns how many click events exist for linkID.
func CountClicks(t *testing.T, db *gorm.DB, linkID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&clicks.ClickEvent{}).Where("link_id = ?", linkID).Count(&count).Error)
	return count
}

// CreateMinimalTestApp creates a test Fiber app with all routes. Geo
// resolution has no fallback lookups, so no network is touched.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) (*fiber.App, *internal.Services) {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := TestConfig()

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	services := internal.NewServices(appConfig, db, cfg.Logger, geo.NewResolver(cfg.Logger))
	internal.MountRoutes(srv, services)
	return srv.App(), services
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
