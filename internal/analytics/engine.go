package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"linkpulse/internal/links"
	"linkpulse/internal/metrics"
	"linkpulse/internal/pkg/async"
	"linkpulse/internal/pkg/referrers"
)

const (
	// BreakdownLimit caps each geo breakdown of a link summary.
	BreakdownLimit = 7
	// DailyDays is how many days the daily series covers.
	DailyDays = 30
)

// Engine computes summaries for an owner.
type Engine struct {
	db     *gorm.DB
	logger *slog.Logger
	loc    *time.Location
	pool   *async.Pool
	now    func() time.Time
}

// NewEngine creates an Engine that buckets time in loc.
func NewEngine(db *gorm.DB, logger *slog.Logger, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		db:     db,
		logger: logger,
		loc:    loc,
		pool:   async.NewPool(6),
		now:    time.Now,
	}
}

// SummarizeAccount rolls up every click of ownerID.
func (e *Engine) SummarizeAccount(ctx context.Context, ownerID string) (*AccountSummary, error) {
	defer observe("account", time.Now())

	scope := Scope{OwnerID: ownerID}
	total, err := CountClicks(ctx, e.db, scope)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return &AccountSummary{}, nil
	}

	modifier := offsetModifier(e.loc, e.now())
	tasks := []async.Task{
		{
			Name: "uniqueVisitors",
			Execute: func(ctx context.Context) (any, error) {
				return CountUniqueVisitors(ctx, e.db, scope)
			},
		},
		{
			Name: "referrers",
			Execute: func(ctx context.Context) (any, error) {
				return ReferrerCounts(ctx, e.db, scope)
			},
		},
		{
			Name: "topLink",
			Execute: func(ctx context.Context) (any, error) {
				return TopLinkForOwner(ctx, e.db, ownerID)
			},
		},
		{
			Name: "hourly",
			Execute: func(ctx context.Context) (any, error) {
				return HourlyDistribution(ctx, e.db, scope, modifier)
			},
		},
		{
			Name: "topCountry",
			Execute: func(ctx context.Context) (any, error) {
				return GroupByDimension(ctx, e.db, scope, "country", 1)
			},
		},
	}

	results := e.pool.Execute(ctx, tasks)
	if err := async.FirstError(results); err != nil {
		e.logger.Error("Failed to summarize account", slog.String("owner_id", ownerID), slog.Any("error", err))
		return nil, err
	}

	summary := &AccountSummary{
		TotalClicks:    total,
		UniqueVisitors: results["uniqueVisitors"].Data.(int64),
		TopReferrer:    TopReferrer(results["referrers"].Data.([]MetricCountResult)),
		TopLink:        results["topLink"].Data.(*TopLink),
		PeakHour:       DerivePeakHour(results["hourly"].Data.([]HourlyPoint)),
	}
	if countries := results["topCountry"].Data.([]MetricCountResult); len(countries) > 0 {
		summary.TopCountry = &countries[0]
	}
	return summary, nil
}

// SummarizeLink rolls up the clicks of one link owned by ownerID. A link
// owned by someone else is reported as not found.
func (e *Engine) SummarizeLink(ctx context.Context, ownerID, linkID string) (*LinkSummary, error) {
	defer observe("link", time.Now())

	if _, err := links.GetOwnedLinkOrNotFound(ctx, e.db, ownerID, linkID); err != nil {
		return nil, err
	}

	scope := Scope{OwnerID: ownerID, LinkID: linkID}
	total, err := CountClicks(ctx, e.db, scope)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return emptyLinkSummary(), nil
	}

	modifier := offsetModifier(e.loc, e.now())
	tasks := []async.Task{
		{
			Name: "uniqueUsers",
			Execute: func(ctx context.Context) (any, error) {
				return CountUniqueVisitors(ctx, e.db, scope)
			},
		},
		{
			Name: "countries",
			Execute: func(ctx context.Context) (any, error) {
				return GroupByDimension(ctx, e.db, scope, "country", BreakdownLimit)
			},
		},
		{
			Name: "cities",
			Execute: func(ctx context.Context) (any, error) {
				return GroupByDimension(ctx, e.db, scope, "city", BreakdownLimit)
			},
		},
		{
			Name: "regions",
			Execute: func(ctx context.Context) (any, error) {
				return GroupByDimension(ctx, e.db, scope, "region", BreakdownLimit)
			},
		},
		{
			Name: "daily",
			Execute: func(ctx context.Context) (any, error) {
				return DailySeries(ctx, e.db, scope, modifier, DailyDays)
			},
		},
		{
			Name: "hourly",
			Execute: func(ctx context.Context) (any, error) {
				return HourlyDistribution(ctx, e.db, scope, modifier)
			},
		},
	}

	results := e.pool.Execute(ctx, tasks)
	if err := async.FirstError(results); err != nil {
		e.logger.Error("Failed to summarize link", slog.String("link_id", linkID), slog.Any("error", err))
		return nil, err
	}

	hourly := results["hourly"].Data.([]HourlyPoint)
	return &LinkSummary{
		TotalClicks: total,
		UniqueUsers: results["uniqueUsers"].Data.(int64),
		CountryData: ToBreakdown(results["countries"].Data.([]MetricCountResult), total),
		CityData:    ToBreakdown(results["cities"].Data.([]MetricCountResult), total),
		RegionData:  ToBreakdown(results["regions"].Data.([]MetricCountResult), total),
		DailyData:   results["daily"].Data.([]DailyPoint),
		HourlyData:  hourly,
		PeakHour:    DerivePeakHour(hourly),
	}, nil
}

// TopReferrer folds raw referrer counts by display name and returns the
// largest group. Ties go to the alphabetically first name.
func TopReferrer(rows []MetricCountResult) *MetricCountResult {
	totals := make(map[string]int64)
	for _, row := range rows {
		totals[referrers.Label(row.Name)] += row.Count
	}
	if len(totals) == 0 {
		return nil
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	top := &MetricCountResult{Name: names[0], Count: totals[names[0]]}
	for _, name := range names[1:] {
		if totals[name] > top.Count {
			top = &MetricCountResult{Name: name, Count: totals[name]}
		}
	}
	return top
}

func observe(shape string, start time.Time) {
	metrics.SummaryDuration.WithLabelValues(shape).Observe(time.Since(start).Seconds())
}
