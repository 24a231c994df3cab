package links

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
)

// NotFoundError represents an error when a link is not found
type NotFoundError struct {
	LinkID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("link not found: %s", e.LinkID)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(linkID string) *NotFoundError {
	return &NotFoundError{LinkID: linkID}
}

// ValidationError reports malformed input for link creation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Link is a tracked destination, addressed by its slug.
type Link struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	OwnerID        string    `gorm:"index;not null" json:"ownerId"`
	DestinationURL string    `gorm:"not null" json:"url"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `gorm:"not null" json:"createdAt"`
}

// GetLinkOrNotFound loads a link by slug.
func GetLinkOrNotFound(ctx context.Context, db *gorm.DB, linkID string) (*Link, error) {
	if strings.TrimSpace(linkID) == "" {
		return nil, NewNotFoundError(linkID)
	}

	var link Link
	if err := db.WithContext(ctx).Where("id = ?", linkID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError(linkID)
		}
		return nil, fmt.Errorf("unexpected error querying link: %w", err)
	}
	return &link, nil
}

// GetOwnedLinkOrNotFound loads a link and checks it belongs to ownerID.
// A link owned by someone else is reported as not found.
func GetOwnedLinkOrNotFound(ctx context.Context, db *gorm.DB, ownerID, linkID string) (*Link, error) {
	link, err := GetLinkOrNotFound(ctx, db, linkID)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		return nil, NewNotFoundError(linkID)
	}
	return link, nil
}

// ListByOwner returns the owner's links, newest first.
func ListByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]Link, error) {
	var result []Link
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return result, nil
}

// ValidateDestination accepts absolute http(s) URLs with a host.
func ValidateDestination(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ValidationError{Field: "originalUrl", Message: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Field: "originalUrl", Message: "is not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ValidationError{Field: "originalUrl", Message: "must use http or https"}
	}
	if u.Hostname() == "" {
		return nil, &ValidationError{Field: "originalUrl", Message: "must include a host"}
	}
	return u, nil
}

// TitleFromURL derives a display title from the destination hostname.
func TitleFromURL(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
