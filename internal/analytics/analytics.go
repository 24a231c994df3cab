// Package analytics computes read-time rollups over the click event log.
// Nothing here is persisted; every summary is derived from click_events
// (and link titles) when it is requested.
package analytics

import (
	"fmt"
	"time"
)

// MetricCountResult is a grouped count row.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"clicks"`
}

// Breakdown is a grouped count with its share of the link total.
type Breakdown struct {
	Name       string  `json:"name"`
	Clicks     int64   `json:"clicks"`
	Percentage float64 `json:"percentage"`
}

// DailyPoint is one day of the daily series, in the display time zone.
type DailyPoint struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}

// HourlyPoint is one hour-of-day bucket, in the display time zone.
type HourlyPoint struct {
	HourOfDay   int   `json:"hour_of_day"`
	TotalClicks int64 `json:"total_clicks"`
}

// PeakHour is the busiest hour of day.
type PeakHour struct {
	Hour   int   `json:"hour"`
	Clicks int64 `json:"clicks"`
}

// TopLink is the owner's most clicked link.
type TopLink struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Clicks int64  `json:"clicks"`
}

// AccountSummary rolls up every click of one owner.
type AccountSummary struct {
	TotalClicks    int64              `json:"totalClicks"`
	UniqueVisitors int64              `json:"uniqueVisitors"`
	TopReferrer    *MetricCountResult `json:"topReferrer"`
	TopLink        *TopLink           `json:"topLink"`
	PeakHour       *PeakHour          `json:"peakHour"`
	TopCountry     *MetricCountResult `json:"topCountry"`
}

// LinkSummary is the detailed rollup of a single link.
type LinkSummary struct {
	TotalClicks int64         `json:"totalClicks"`
	UniqueUsers int64         `json:"uniqueUsers"`
	CountryData []Breakdown   `json:"countryData"`
	CityData    []Breakdown   `json:"cityData"`
	RegionData  []Breakdown   `json:"regionData"`
	DailyData   []DailyPoint  `json:"dailyData"`
	HourlyData  []HourlyPoint `json:"hourlyData"`
	PeakHour    *PeakHour     `json:"peakHour"`
}

// emptyLinkSummary is the rollup of a link nobody clicked.
func emptyLinkSummary() *LinkSummary {
	return &LinkSummary{
		CountryData: []Breakdown{},
		CityData:    []Breakdown{},
		RegionData:  []Breakdown{},
		DailyData:   []DailyPoint{},
		HourlyData:  []HourlyPoint{},
	}
}

// DerivePeakHour returns the bucket with the most clicks. Ties go to the
// lowest hour. Empty input has no peak.
func DerivePeakHour(hourly []HourlyPoint) *PeakHour {
	var peak *PeakHour
	for _, point := range hourly {
		if point.TotalClicks <= 0 {
			continue
		}
		if peak == nil || point.TotalClicks > peak.Clicks ||
			(point.TotalClicks == peak.Clicks && point.HourOfDay < peak.Hour) {
			peak = &PeakHour{Hour: point.HourOfDay, Clicks: point.TotalClicks}
		}
	}
	return peak
}

// ToBreakdown attaches percentages of total to grouped counts.
func ToBreakdown(rows []MetricCountResult, total int64) []Breakdown {
	result := make([]Breakdown, len(rows))
	for i, row := range rows {
		result[i] = Breakdown{Name: row.Name, Clicks: row.Count}
		if total > 0 {
			result[i].Percentage = float64(row.Count) / float64(total) * 100
		}
	}
	return result
}

// offsetModifier turns the zone's current UTC offset into a SQLite date
// modifier such as "-180 minutes".
func offsetModifier(loc *time.Location, now time.Time) string {
	_, offset := now.In(loc).Zone()
	return fmt.Sprintf("%+d minutes", offset/60)
}
