// Package owners maps external identities (profile usernames, API keys)
// to the owner id that click events and links are keyed by.
package owners

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

// Profile is the public link-in-bio page of an owner.
type Profile struct {
	ID        uint      `gorm:"primaryKey"`
	Username  string    `gorm:"uniqueIndex;not null"`
	OwnerID   string    `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// APIKey authenticates summary reads. Only the digest is stored.
type APIKey struct {
	ID        uint      `gorm:"primaryKey"`
	OwnerID   string    `gorm:"index;not null"`
	Digest    string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// ErrProfileExists is returned when a username is already registered.
var ErrProfileExists = errors.New("profile already exists")

// ErrUnknownKey is returned when no owner holds the presented key.
var ErrUnknownKey = errors.New("unknown api key")

// ProfileNotFoundError represents an error when a profile is not found
type ProfileNotFoundError struct {
	Username string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile not found: %s", e.Username)
}

// FindProfile loads a profile by username (case-insensitive).
func FindProfile(ctx context.Context, db *gorm.DB, username string) (*Profile, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, &ProfileNotFoundError{Username: username}
	}

	var profile Profile
	if err := db.WithContext(ctx).Where("username = ?", username).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProfileNotFoundError{Username: username}
		}
		return nil, fmt.Errorf("unexpected error querying profile: %w", err)
	}
	return &profile, nil
}

// CreateProfile registers username for ownerID.
func CreateProfile(db *gorm.DB, logger *slog.Logger, username, ownerID string) (*Profile, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, errors.New("username cannot be empty")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, errors.New("owner id cannot be empty")
	}

	if _, err := FindProfile(context.Background(), db, username); err == nil {
		return nil, ErrProfileExists
	}

	profile := &Profile{Username: username, OwnerID: ownerID}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(profile).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return profile, nil
}

// IssueAPIKey creates a new key for ownerID and returns the raw token.
// The raw token is not recoverable afterwards.
func IssueAPIKey(db *gorm.DB, logger *slog.Logger, ownerID string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", errors.New("owner id cannot be empty")
	}

	raw := "lp_" + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := &APIKey{OwnerID: ownerID, Digest: Digest(raw)}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(key).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to store api key: %w", err)
	}
	return raw, nil
}

// OwnerForKey resolves a raw bearer token to its owner id.
func OwnerForKey(ctx context.Context, db *gorm.DB, raw string) (string, error) {
	if raw == "" {
		return "", ErrUnknownKey
	}
	return OwnerForDigest(ctx, db, Digest(raw))
}

// OwnerForDigest resolves a stored key digest to its owner id.
func OwnerForDigest(ctx context.Context, db *gorm.DB, digest string) (string, error) {
	var key APIKey
	if err := db.WithContext(ctx).Where("digest = ?", digest).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnknownKey
		}
		return "", fmt.Errorf("failed to look up api key: %w", err)
	}
	return key.OwnerID, nil
}

// Digest is the stored form of an API key.
func Digest(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}
