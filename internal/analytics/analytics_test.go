package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePeakHour(t *testing.T) {
	tests := []struct {
		name     string
		hourly   []HourlyPoint
		expected *PeakHour
	}{
		{"empty", nil, nil},
		{"single", []HourlyPoint{{HourOfDay: 22, TotalClicks: 4}}, &PeakHour{Hour: 22, Clicks: 4}},
		{"argmax", []HourlyPoint{{9, 2}, {14, 1}}, &PeakHour{Hour: 9, Clicks: 2}},
		{"tie goes to lowest hour", []HourlyPoint{{3, 5}, {11, 5}, {18, 5}}, &PeakHour{Hour: 3, Clicks: 5}},
		{"unordered tie", []HourlyPoint{{18, 5}, {3, 5}}, &PeakHour{Hour: 3, Clicks: 5}},
		{"zero buckets ignored", []HourlyPoint{{0, 0}, {1, 0}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DerivePeakHour(tt.hourly))
		})
	}
}

func TestTopReferrerFoldsByDisplayName(t *testing.T) {
	top := TopReferrer([]MetricCountResult{
		{Name: "https://t.co/a", Count: 2},
		{Name: "https://twitter.com/b", Count: 1},
		{Name: "Direto", Count: 2},
		{Name: "", Count: 1},
		{Name: "https://www.google.com/search?q=x", Count: 2},
	})
	require.NotNil(t, top)
	assert.Equal(t, "Direto", top.Name)
	assert.Equal(t, int64(3), top.Count)

	tie := TopReferrer([]MetricCountResult{
		{Name: "https://linktr.ee/someone", Count: 2},
		{Name: "https://l.instagram.com/?u=x", Count: 2},
	})
	require.NotNil(t, tie)
	assert.Equal(t, "Instagram", tie.Name)

	assert.Nil(t, TopReferrer(nil))
}

func TestToBreakdownPercentages(t *testing.T) {
	rows := ToBreakdown([]MetricCountResult{{Name: "Brazil", Count: 3}, {Name: "Chile", Count: 1}}, 8)
	require.Len(t, rows, 2)
	assert.InDelta(t, 37.5, rows[0].Percentage, 1e-9)
	assert.InDelta(t, 12.5, rows[1].Percentage, 1e-9)

	assert.Empty(t, ToBreakdown(nil, 0))
}

func TestOffsetModifier(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "+0 minutes", offsetModifier(time.UTC, now))

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	assert.Equal(t, "-180 minutes", offsetModifier(loc, now))

	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, "+330 minutes", offsetModifier(kolkata, now))
}
