package geo

import (
	"context"
	"log/slog"

	"linkpulse/internal/attributes"
	"linkpulse/internal/metrics"
)

// Sources reported in Resolution.Source.
const (
	SourceEdge  = "edge"
	SourceLocal = "local"
	SourceNone  = "none"
)

// Resolution is a resolved location and the source that produced it.
type Resolution struct {
	Location attributes.Location
	Source   string
}

// Resolver applies the edge hint and fallback chain. It never fails.
type Resolver struct {
	lookups []Lookup
	logger  *slog.Logger
}

// NewResolver builds a resolver that consults lookups in order.
func NewResolver(logger *slog.Logger, lookups ...Lookup) *Resolver {
	return &Resolver{lookups: lookups, logger: logger}
}

// Resolve returns the best-effort location for a visit.
func (r *Resolver) Resolve(ctx context.Context, hint attributes.Location, ip string) Resolution {
	if !attributes.IsGenericGeo(hint) {
		metrics.GeoLookups.WithLabelValues(SourceEdge, "ok").Inc()
		return Resolution{Location: attributes.CanonicalGeo(hint), Source: SourceEdge}
	}

	if IsLocal(ip) {
		metrics.GeoLookups.WithLabelValues(SourceLocal, "ok").Inc()
		return Resolution{
			Location: attributes.Location{
				Country: attributes.LocalDevelopment,
				Region:  attributes.LocalDevelopment,
				City:    attributes.LocalDevelopment,
			},
			Source: SourceLocal,
		}
	}

	// The kept hint is stored canonical ("US" as "United States") so it
	// groups with resolved rows.
	base := attributes.CanonicalGeo(hint)
	for _, lookup := range r.lookups {
		loc, err := lookup.Lookup(ctx, ip)
		if err != nil {
			metrics.GeoLookups.WithLabelValues(lookup.Name(), "failed").Inc()
			r.logger.Debug("Geo fallback failed",
				slog.String("source", lookup.Name()),
				slog.String("ip", ip),
				slog.Any("error", err))
			continue
		}
		if loc.Country == "" {
			metrics.GeoLookups.WithLabelValues(lookup.Name(), "empty").Inc()
			continue
		}
		metrics.GeoLookups.WithLabelValues(lookup.Name(), "ok").Inc()
		return Resolution{
			Location: base.Overlay(attributes.CanonicalGeo(loc)),
			Source:   lookup.Name(),
		}
	}

	metrics.GeoLookups.WithLabelValues(SourceNone, "ok").Inc()
	return Resolution{Location: base, Source: SourceNone}
}
