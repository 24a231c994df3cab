// Package internal contains core application functionality
package internal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"linkpulse/internal/analytics"
	"linkpulse/internal/clicks"
	"linkpulse/internal/config"
	"linkpulse/internal/database"
	"linkpulse/internal/geo"
	"linkpulse/internal/jobs"
	"linkpulse/internal/links"
	"linkpulse/internal/pkg/geoip"
	"linkpulse/internal/visitors"
)

// Application wraps cartridge.Application with linkpulse-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // DB manager with migration methods
	Services  *Services
}

// Services holds the request-scoped collaborators shared by every route.
type Services struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *slog.Logger
	Visitors *visitors.Resolver
	Links    *links.Service
	Recorder *clicks.Recorder
	Engine   *analytics.Engine
}

// NewServices wires the domain services on top of an open connection.
func NewServices(cfg *config.Config, db *gorm.DB, logger *slog.Logger, locator clicks.Locator) *Services {
	visitorResolver := visitors.NewResolver(cfg.VisitorCookieName, cfg.IsProduction())
	return &Services{
		Config:   cfg,
		DB:       db,
		Logger:   logger,
		Visitors: visitorResolver,
		Links:    links.NewService(db, logger),
		Recorder: clicks.NewRecorder(db, logger, locator, visitorResolver),
		Engine:   analytics.NewEngine(db, logger, cfg.DisplayLocation()),
	}
}

// NewGeoResolver builds the lookup chain: the local GeoLite2 file first,
// then the external service when one is configured.
func NewGeoResolver(cfg *config.Config, logger *slog.Logger) (*geo.Resolver, *geoip.Reader) {
	reader := geoip.Open(cfg.GeoDBPath, logger)
	lookups := []geo.Lookup{geo.NewMaxMindLookup(reader)}

	if cfg.GeoFallbackURL != "" {
		lookups = append(lookups, geo.NewIPAPILookup(geo.IPAPIConfig{
			BaseURL:         cfg.GeoFallbackURL,
			Timeout:         cfg.GeoFallbackTimeout(),
			RatePerMinute:   cfg.GeoFallbackRatePerMinute,
			BreakerFailures: cfg.GeoBreakerFailures,
		}, logger))
	}

	return geo.NewResolver(logger, lookups...), reader
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	resolver, reader := NewGeoResolver(cfg, logger)
	services := NewServices(cfg, dbManager.GetConnection(), logger, resolver)

	scheduler := NewScheduler(cfg, dbManager, reader, logger)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		RouteMountFunc: func(srv *cartridge.Server) {
			MountRoutes(srv, services)
		},
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler, services.Recorder},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Services:    services,
	}, nil
}

// NewScheduler registers the maintenance jobs.
func NewScheduler(cfg *config.Config, dbManager *database.DBManager, reader *geoip.Reader, logger *slog.Logger) *jobs.Scheduler {
	interval := time.Duration(cfg.JobIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	return jobs.NewScheduler(logger).
		Every("wal_checkpoint", interval*60, jobs.NewCheckpointJob(dbManager, logger)).
		Every("geoip_reload", 24*time.Hour, jobs.NewGeoReloadJob(reader, logger))
}
