package clicks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"linkpulse/internal/attributes"
	"linkpulse/internal/geo"
	"linkpulse/internal/links"
	"linkpulse/internal/metrics"
	"linkpulse/internal/visitors"
)

// asyncRecordTimeout bounds a detached recording, geo fallback included.
const asyncRecordTimeout = 10 * time.Second

// Locator resolves a visit's location. *geo.Resolver satisfies it.
type Locator interface {
	Resolve(ctx context.Context, hint attributes.Location, ip string) geo.Resolution
}

// Visit is the raw request metadata of one click.
type Visit struct {
	LinkID string
	// Link skips the lookup when the caller already loaded it.
	Link            *links.Link
	UserAgent       string
	Referrer        string
	IP              string
	Hint            attributes.Location
	CookieVisitorID string
	// VisitorID, when set, wins over the cookie.
	VisitorID string
}

// Result describes a recorded click. PersistErr is set when the event could
// not be written; the visit itself still counts as handled.
type Result struct {
	Event      *ClickEvent
	Identity   visitors.Identity
	GeoSource  string
	PersistErr error
}

// Recorder turns visits into ClickEvents.
type Recorder struct {
	db       *gorm.DB
	logger   *slog.Logger
	locator  Locator
	visitors *visitors.Resolver
	inflight sync.WaitGroup
	now      func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(db *gorm.DB, logger *slog.Logger, locator Locator, visitorResolver *visitors.Resolver) *Recorder {
	return &Recorder{
		db:       db,
		logger:   logger,
		locator:  locator,
		visitors: visitorResolver,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record resolves the link, derives the click dimensions and persists the
// event. Only link resolution produces an error.
func (r *Recorder) Record(ctx context.Context, visit Visit) (Result, error) {
	link := visit.Link
	if link == nil {
		var err error
		link, err = links.GetLinkOrNotFound(ctx, r.db, visit.LinkID)
		if err != nil {
			return Result{}, err
		}
	}

	var (
		wg         sync.WaitGroup
		attrs      attributes.Attributes
		identity   visitors.Identity
		resolution geo.Resolution
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		attrs = attributes.Normalize(visit.UserAgent)
	}()
	go func() {
		defer wg.Done()
		identity = r.resolveIdentity(visit)
	}()
	go func() {
		defer wg.Done()
		resolution = r.locator.Resolve(ctx, visit.Hint, visit.IP)
	}()
	wg.Wait()

	if identity.IsNew {
		metrics.VisitorsMinted.Inc()
	}

	referrer := strings.TrimSpace(visit.Referrer)
	if referrer == "" {
		referrer = DirectReferrer
	}

	event := &ClickEvent{
		LinkID:    link.ID,
		OwnerID:   link.OwnerID,
		VisitorID: identity.ID,
		Timestamp: r.now(),
		Country:   optional(resolution.Location.Country),
		Region:    optional(resolution.Location.Region),
		City:      optional(resolution.Location.City),
		Device:    attrs.Device,
		Browser:   attrs.Browser,
		OS:        attrs.OS,
		Referrer:  referrer,
		UserAgent: visit.UserAgent,
		IP:        visit.IP,
	}

	result := Result{Event: event, Identity: identity, GeoSource: resolution.Source}

	err := sqlite.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		metrics.ClicksRecorded.WithLabelValues("failed").Inc()
		result.PersistErr = fmt.Errorf("failed to store click event: %w", err)
		r.logger.Error("Failed to record click",
			slog.String("link_id", link.ID),
			slog.Any("error", err))
		return result, nil
	}

	metrics.ClicksRecorded.WithLabelValues("ok").Inc()
	r.logger.Debug("Click recorded",
		slog.String("link_id", link.ID),
		slog.String("visitor_id", identity.ID),
		slog.String("geo_source", resolution.Source))
	return result, nil
}

// RecordAsync records the visit on its own goroutine, detached from the
// request. The visitor identity must already be fixed on the visit.
func (r *Recorder) RecordAsync(visit Visit) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncRecordTimeout)
		defer cancel()

		if _, err := r.Record(ctx, visit); err != nil {
			var notFound *links.NotFoundError
			if errors.As(err, &notFound) {
				r.logger.Warn("Click dropped for unknown link", slog.String("link_id", visit.LinkID))
				return
			}
			r.logger.Error("Failed to record click", slog.String("link_id", visit.LinkID), slog.Any("error", err))
		}
	}()
}

// Wait blocks until every detached recording has finished.
func (r *Recorder) Wait() {
	r.inflight.Wait()
}

// Start implements cartridge.BackgroundWorker.
func (r *Recorder) Start() error {
	return nil
}

// Stop drains in-flight recordings.
func (r *Recorder) Stop() {
	r.logger.Info("Waiting for in-flight clicks")
	r.Wait()
}

func (r *Recorder) resolveIdentity(visit Visit) visitors.Identity {
	if id := strings.TrimSpace(visit.VisitorID); id != "" {
		return visitors.Identity{ID: id}
	}
	return r.visitors.Resolve(visit.CookieVisitorID)
}
