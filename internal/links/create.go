package links

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"linkpulse/internal/metrics"
)

// CreateInput is a short-link creation request.
type CreateInput struct {
	OwnerID     string
	OriginalURL string
	CustomSlug  string
	Title       string
}

// Service creates links on top of an Allocator.
type Service struct {
	db        *gorm.DB
	logger    *slog.Logger
	allocator *Allocator
}

// NewService creates a Service using the default allocator.
func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return NewServiceWithAllocator(db, logger, NewAllocator(db))
}

// NewServiceWithAllocator creates a Service with a custom allocator.
func NewServiceWithAllocator(db *gorm.DB, logger *slog.Logger, allocator *Allocator) *Service {
	return &Service{db: db, logger: logger, allocator: allocator}
}

// CreateShortLink validates the destination, allocates a slug and inserts
// the link. An insert that hits the unique constraint is a conflict for a
// custom slug and a retry for a generated one, within the same budget.
func (s *Service) CreateShortLink(ctx context.Context, in CreateInput) (*Link, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, &ValidationError{Field: "ownerId", Message: "is required"}
	}
	dest, err := ValidateDestination(in.OriginalURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = TitleFromURL(dest)
	}

	custom := strings.TrimSpace(in.CustomSlug)
	kind := "generated"
	if custom != "" {
		kind = "custom"
	}

	budget := s.allocator.maxAttempts
	for {
		slug, err := s.allocator.allocate(ctx, custom, &budget)
		if err != nil {
			return nil, err
		}

		link := &Link{
			ID:             slug,
			OwnerID:        in.OwnerID,
			DestinationURL: dest.String(),
			Title:          title,
			CreatedAt:      time.Now().UTC(),
		}

		err = sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
			return tx.Create(link).Error
		})
		if err == nil {
			metrics.SlugAllocations.WithLabelValues(kind, "ok").Inc()
			s.logger.Info("Short link created",
				slog.String("link_id", link.ID),
				slog.String("owner_id", link.OwnerID),
				slog.String("kind", kind))
			return link, nil
		}

		if !IsUniqueViolation(err) {
			return nil, err
		}

		if custom != "" {
			metrics.SlugAllocations.WithLabelValues(kind, "conflict").Inc()
			return nil, ErrSlugConflict
		}
		s.logger.Warn("Generated slug lost insert race, retrying", slog.String("slug", slug))
	}
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
