// Package clicks records one immutable event per visit to a tracked link.
package clicks

import (
	"time"
)

// DirectReferrer is stored when a visit carries no referrer.
const DirectReferrer = "Direto"

// ClickEvent is a single recorded visit. Rows are append-only.
type ClickEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LinkID    string    `gorm:"index;not null;size:64" json:"linkId"`
	OwnerID   string    `gorm:"index;not null" json:"ownerId"`
	VisitorID string    `gorm:"index;not null" json:"visitorId"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Country   *string   `json:"country"`
	Region    *string   `json:"region"`
	City      *string   `json:"city"`
	Device    string    `json:"device"`
	Browser   string    `json:"browser"`
	OS        string    `gorm:"column:os" json:"os"`
	Referrer  string    `json:"referrer"`
	UserAgent string    `json:"userAgent"`
	IP        string    `gorm:"column:ip" json:"ip"`
}

// TableName pins the table name.
func (ClickEvent) TableName() string {
	return "click_events"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
