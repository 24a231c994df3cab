// Package geoip wraps an optional local GeoLite2-City database.
package geoip

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when no database file is loaded.
var ErrUnavailable = errors.New("geoip database not loaded")

// Reader holds the currently loaded database and can swap it on reload.
type Reader struct {
	path   string
	logger *slog.Logger

	mu sync.RWMutex
	db *geoip2.Reader
}

// Open loads the database at path. A missing or unreadable file is not an
// error: the Reader is returned empty and lookups report ErrUnavailable.
func Open(path string, logger *slog.Logger) *Reader {
	r := &Reader{path: path, logger: logger}
	r.db = r.load()
	return r
}

func (r *Reader) load() *geoip2.Reader {
	if r.path == "" {
		r.logger.Debug("GeoIP database path not configured - local geo lookups disabled")
		return nil
	}

	fileInfo, err := os.Stat(r.path)
	if os.IsNotExist(err) {
		r.logger.Info("GeoLite2 database not found - local geo lookups disabled",
			slog.String("path", r.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		r.logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(r.path)
	if err != nil {
		r.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}

	r.logger.Info("GeoLite2 database loaded",
		slog.String("path", r.path),
		slog.Int64("size_bytes", fileInfo.Size()),
		slog.Time("mod_time", fileInfo.ModTime()))
	return db
}

// Available reports whether a database is loaded.
func (r *Reader) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

// City looks up ip in the loaded database.
func (r *Reader) City(ip net.IP) (*geoip2.City, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, ErrUnavailable
	}
	return r.db.City(ip)
}

// Reload reopens the database file, picking up a replaced file on disk.
func (r *Reader) Reload() {
	next := r.load()

	r.mu.Lock()
	prev := r.db
	r.db = next
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// Close releases the loaded database.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
