package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"linkpulse/internal/attributes"
)

// errRejected marks a well-formed "fail" answer for one address. It is a
// per-IP verdict, so it does not count against the circuit breaker.
var errRejected = errors.New("lookup rejected")

// IPAPIConfig configures the external IP-geolocation client.
type IPAPIConfig struct {
	BaseURL         string
	Timeout         time.Duration
	RatePerMinute   int
	BreakerFailures uint32
	HTTPClient      *http.Client
}

// IPAPILookup queries an ip-api.com compatible JSON endpoint.
type IPAPILookup struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[attributes.Location]
	logger  *slog.Logger
}

type ipAPIResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// NewIPAPILookup builds the client with its rate limiter and breaker.
func NewIPAPILookup(cfg IPAPIConfig, logger *slog.Logger) *IPAPILookup {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
		burst = max(1, cfg.RatePerMinute/10)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	settings := gobreaker.Settings{
		Name:        "ip-geolocation",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Geo fallback circuit breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &IPAPILookup{
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker[attributes.Location](settings),
		logger:  logger,
	}
}

func (l *IPAPILookup) Name() string { return "ipapi" }

// Lookup performs at most one HTTP request, bounded by the configured timeout.
func (l *IPAPILookup) Lookup(ctx context.Context, ip string) (attributes.Location, error) {
	if !l.limiter.Allow() {
		return attributes.Location{}, fmt.Errorf("%w: local rate limit reached", ErrUpstream)
	}

	loc, err := l.breaker.Execute(func() (attributes.Location, error) {
		return l.fetch(ctx, ip)
	})
	if err != nil {
		return attributes.Location{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return loc, nil
}

func (l *IPAPILookup) fetch(ctx context.Context, ip string) (attributes.Location, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	endpoint := l.baseURL + url.PathEscape(ip) + "?fields=status,message,country,regionName,city"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return attributes.Location{}, fmt.Errorf("error building request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return attributes.Location{}, fmt.Errorf("error calling geo service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return attributes.Location{}, fmt.Errorf("geo service returned status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return attributes.Location{}, fmt.Errorf("error decoding geo response: %w", err)
	}
	if body.Status != "success" {
		return attributes.Location{}, fmt.Errorf("%w: %s", errRejected, body.Message)
	}

	return attributes.Location{
		Country: body.Country,
		Region:  body.RegionName,
		City:    body.City,
	}, nil
}
