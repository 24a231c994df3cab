package analytics

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Scope selects the events a query runs over: every click of an owner,
// optionally narrowed to one link.
type Scope struct {
	OwnerID string
	LinkID  string
}

func (s Scope) where(db *gorm.DB) *gorm.DB {
	q := db.Table("click_events").Where("owner_id = ?", s.OwnerID)
	if s.LinkID != "" {
		q = q.Where("link_id = ?", s.LinkID)
	}
	return q
}

// CountClicks returns the number of events in scope.
func CountClicks(ctx context.Context, db *gorm.DB, scope Scope) (int64, error) {
	var count int64
	if err := scope.where(db.WithContext(ctx)).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting clicks: %w", err)
	}
	return count, nil
}

// CountUniqueVisitors returns the number of distinct visitor ids in scope.
func CountUniqueVisitors(ctx context.Context, db *gorm.DB, scope Scope) (int64, error) {
	var count int64
	err := scope.where(db.WithContext(ctx)).
		Select("COUNT(DISTINCT visitor_id)").
		Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting unique visitors: %w", err)
	}
	return count, nil
}

// dimensionColumns are the nullable columns GroupByDimension accepts.
var dimensionColumns = map[string]bool{
	"country": true,
	"region":  true,
	"city":    true,
}

// GroupByDimension counts clicks per value of a geo column, NULL values
// grouped as "Unknown". A limit <= 0 returns every group.
func GroupByDimension(ctx context.Context, db *gorm.DB, scope Scope, column string, limit int) ([]MetricCountResult, error) {
	if !dimensionColumns[column] {
		return nil, fmt.Errorf("unsupported dimension %q", column)
	}

	var rows []MetricCountResult
	q := scope.where(db.WithContext(ctx)).
		Select(fmt.Sprintf("COALESCE(NULLIF(%s, ''), 'Unknown') AS name, COUNT(*) AS count", column)).
		Group("name").
		Order("count DESC, name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error grouping clicks by %s: %w", column, err)
	}
	if rows == nil {
		rows = []MetricCountResult{}
	}
	return rows, nil
}

// ReferrerCounts returns the raw stored referrer values with their counts.
func ReferrerCounts(ctx context.Context, db *gorm.DB, scope Scope) ([]MetricCountResult, error) {
	var rows []MetricCountResult
	err := scope.where(db.WithContext(ctx)).
		Select("referrer AS name, COUNT(*) AS count").
		Group("referrer").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching referrers: %w", err)
	}
	return rows, nil
}

// HourlyDistribution counts clicks per hour of day after shifting the UTC
// timestamps by modifier. Only non-empty hours are returned, ascending.
func HourlyDistribution(ctx context.Context, db *gorm.DB, scope Scope, modifier string) ([]HourlyPoint, error) {
	var rows []HourlyPoint
	err := scope.where(db.WithContext(ctx)).
		Select("CAST(strftime('%H', timestamp, ?) AS INTEGER) AS hour_of_day, COUNT(*) AS total_clicks", modifier).
		Group("hour_of_day").
		Order("hour_of_day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching hourly distribution: %w", err)
	}
	if rows == nil {
		rows = []HourlyPoint{}
	}
	return rows, nil
}

// DailySeries returns the most recent days with clicks, up to days of
// them, oldest first. Days are bucketed after shifting by modifier.
func DailySeries(ctx context.Context, db *gorm.DB, scope Scope, modifier string, days int) ([]DailyPoint, error) {
	var rows []DailyPoint
	err := scope.where(db.WithContext(ctx)).
		Select("date(timestamp, ?) AS date, COUNT(*) AS clicks", modifier).
		Group("date").
		Order("date DESC").
		Limit(days).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily series: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if rows == nil {
		rows = []DailyPoint{}
	}
	return rows, nil
}

// TopLinkForOwner returns the owner's most clicked registered link. Events
// whose link no longer exists are skipped.
func TopLinkForOwner(ctx context.Context, db *gorm.DB, ownerID string) (*TopLink, error) {
	var rows []TopLink
	query := `
    SELECT
        l.id AS id,
        l.title AS title,
        COUNT(*) AS clicks
    FROM click_events c
    INNER JOIN links l ON l.id = c.link_id
    WHERE c.owner_id = ?
    GROUP BY l.id, l.title
    ORDER BY clicks DESC, l.id ASC
    LIMIT 1
    `
	if err := db.WithContext(ctx).Raw(query, ownerID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching top link: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
