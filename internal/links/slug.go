package links

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"gorm.io/gorm"

	"linkpulse/internal/metrics"
)

const (
	// SlugLength is the length of generated slugs.
	SlugLength = 7
	// MaxAttempts bounds generated-slug collisions per allocation.
	MaxAttempts = 10
	// slugAlphabet drops 0/O/o, 1/l/I and i.
	slugAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
)

var (
	// ErrSlugConflict is returned when a custom slug is already taken.
	ErrSlugConflict = errors.New("slug already taken")
	// ErrAllocationExhausted is returned when every generated slug collided.
	ErrAllocationExhausted = errors.New("could not allocate a unique slug")
)

var customSlugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

// ValidateSlug checks a user-supplied slug.
func ValidateSlug(slug string) error {
	if !customSlugPattern.MatchString(slug) {
		return &ValidationError{Field: "customSlug", Message: "must be 3-64 letters, digits, '-' or '_'"}
	}
	return nil
}

// GenerateSlug returns a random slug drawn from the unambiguous alphabet.
func GenerateSlug() (string, error) {
	buf := make([]byte, SlugLength)
	limit := big.NewInt(int64(len(slugAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		buf[i] = slugAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Allocator hands out unused slugs. The existence check only saves a
// round trip; the primary key on links is what guarantees uniqueness.
type Allocator struct {
	db          *gorm.DB
	maxAttempts int
	generate    func() (string, error)
}

// NewAllocator creates an Allocator backed by the links table.
func NewAllocator(db *gorm.DB) *Allocator {
	return &Allocator{db: db, maxAttempts: MaxAttempts, generate: GenerateSlug}
}

// WithGenerator replaces the slug source.
func (a *Allocator) WithGenerator(fn func() (string, error)) *Allocator {
	a.generate = fn
	return a
}

// Allocate returns customSlug when it is free, or a fresh generated slug
// when customSlug is empty.
func (a *Allocator) Allocate(ctx context.Context, customSlug string) (string, error) {
	budget := a.maxAttempts
	return a.allocate(ctx, customSlug, &budget)
}

func (a *Allocator) allocate(ctx context.Context, customSlug string, budget *int) (string, error) {
	if customSlug != "" {
		if err := ValidateSlug(customSlug); err != nil {
			return "", err
		}
		taken, err := a.exists(ctx, customSlug)
		if err != nil {
			return "", err
		}
		if taken {
			metrics.SlugAllocations.WithLabelValues("custom", "conflict").Inc()
			return "", ErrSlugConflict
		}
		return customSlug, nil
	}

	for *budget > 0 {
		*budget--
		slug, err := a.generate()
		if err != nil {
			return "", err
		}
		taken, err := a.exists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		metrics.SlugAllocations.WithLabelValues("generated", "collision").Inc()
	}
	metrics.SlugAllocations.WithLabelValues("generated", "exhausted").Inc()
	return "", ErrAllocationExhausted
}

func (a *Allocator) exists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := a.db.WithContext(ctx).Model(&Link{}).Where("id = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return count > 0, nil
}
