package geo_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkpulse/internal/attributes"
	"linkpulse/internal/geo"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGeoService serves ip-api shaped responses and counts calls.
func fakeGeoService(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newIPAPI(url string, timeout time.Duration) *geo.IPAPILookup {
	return geo.NewIPAPILookup(geo.IPAPIConfig{
		BaseURL: url + "/json/",
		Timeout: timeout,
	}, quietLogger())
}

const publicIP = "200.147.67.142"

var genericHint = attributes.Location{Country: "US", Region: "CA", City: "San Francisco"}

func TestResolveUsesTrustedEdgeHint(t *testing.T) {
	srv, calls := fakeGeoService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","country":"Nowhere"}`))
	})
	resolver := geo.NewResolver(quietLogger(), newIPAPI(srv.URL, time.Second))

	res := resolver.Resolve(context.Background(), attributes.Location{Country: "BR", Region: "PE", City: "recife"}, publicIP)

	assert.Equal(t, geo.SourceEdge, res.Source)
	assert.Equal(t, attributes.Location{Country: "Brazil", Region: "PE", City: "Recife"}, res.Location)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestResolveLocalAddressesSkipNetwork(t *testing.T) {
	srv, calls := fakeGeoService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","country":"Nowhere"}`))
	})
	resolver := geo.NewResolver(quietLogger(), newIPAPI(srv.URL, time.Second))

	for _, ip := range []string{"127.0.0.1", "::1", "10.1.2.3", "192.168.0.10", "172.16.5.4", "100.64.0.1", "", "garbage"} {
		t.Run(ip, func(t *testing.T) {
			res := resolver.Resolve(context.Background(), attributes.Location{}, ip)
			assert.Equal(t, geo.SourceLocal, res.Source)
			assert.Equal(t, "Local Development", res.Location.Country)
			assert.Equal(t, "Local Development", res.Location.City)
		})
	}
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestResolveGenericHintEnrichedByFallback(t *testing.T) {
	srv, calls := fakeGeoService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/"+publicIP, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","country":"Brazil","regionName":"São Paulo","city":"Campinas"}`))
	})
	resolver := geo.NewResolver(quietLogger(), newIPAPI(srv.URL, time.Second))

	res := resolver.Resolve(context.Background(), genericHint, publicIP)

	assert.Equal(t, "ipapi", res.Source)
	assert.Equal(t, attributes.Location{Country: "Brazil", Region: "São Paulo", City: "Campinas"}, res.Location)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestResolvePartialOverlay(t *testing.T) {
	srv, _ := fakeGeoService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","country":"Portugal"}`))
	})
	resolver := geo.NewResolver(quietLogger(), newIPAPI(srv.URL, time.Second))

	res := resolver.Resolve(context.Background(), genericHint, publicIP)

	assert.Equal(t, attributes.Location{Country: "Portugal", Region: "CA", City: "San Francisco"}, res.Location)
}

func TestResolveKeepsHintWhenFallbackFails(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}},
		{"explicit failure", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	expected := attributes.Location{Country: "United States", Region: "CA", City: "San Francisco"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeGeoService(t, tt.handler)
			resolver := geo.NewResolver(quietLogger(), newIPAPI(srv.URL, 50*time.Millisecond))

			start := time.Now()
			res := resolver.Resolve(context.Background(), genericHint, publicIP)

			assert.Equal(t, geo.SourceNone, res.Source)
			assert.Equal(t, expected, res.Location)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestResolveFallsThroughLookupsInOrder(t *testing.T) {
	failing := &stubLookup{name: "first", err: errors.New("boom")}
	empty := &stubLookup{name: "second"}
	answering := &stubLookup{name: "third", loc: attributes.Location{Country: "DE", City: "berlin"}}
	resolver := geo.NewResolver(quietLogger(), failing, empty, answering)

	res := resolver.Resolve(context.Background(), attributes.Location{}, publicIP)

	assert.Equal(t, "third", res.Source)
	assert.Equal(t, attributes.Location{Country: "Germany", City: "Berlin"}, res.Location)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 1, answering.calls)
}

func TestIPAPILookupErrorsWrapUpstream(t *testing.T) {
	srv, _ := fakeGeoService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := newIPAPI(srv.URL, time.Second).Lookup(context.Background(), publicIP)
	require.Error(t, err)
	assert.ErrorIs(t, err, geo.ErrUpstream)
}

func TestIPAPILookupBreakerOpens(t *testing.T) {
	srv, calls := fakeGeoService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	lookup := geo.NewIPAPILookup(geo.IPAPIConfig{
		BaseURL:         srv.URL + "/json/",
		Timeout:         time.Second,
		BreakerFailures: 2,
	}, quietLogger())

	for i := 0; i < 5; i++ {
		_, err := lookup.Lookup(context.Background(), publicIP)
		assert.ErrorIs(t, err, geo.ErrUpstream)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestIPAPILookupRateLimited(t *testing.T) {
	srv, calls := fakeGeoService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","country":"Brazil"}`))
	})
	lookup := geo.NewIPAPILookup(geo.IPAPIConfig{
		BaseURL:       srv.URL + "/json/",
		Timeout:       time.Second,
		RatePerMinute: 1,
	}, quietLogger())

	_, err := lookup.Lookup(context.Background(), publicIP)
	require.NoError(t, err)
	_, err = lookup.Lookup(context.Background(), publicIP)
	assert.ErrorIs(t, err, geo.ErrUpstream)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestIsLocal(t *testing.T) {
	assert.True(t, geo.IsLocal("127.0.0.1"))
	assert.True(t, geo.IsLocal("::ffff:192.168.1.1"))
	assert.True(t, geo.IsLocal("fe80::1"))
	assert.False(t, geo.IsLocal("8.8.8.8"))
	assert.False(t, geo.IsLocal("2001:4860:4860::8888"))
}

type stubLookup struct {
	name  string
	loc   attributes.Location
	err   error
	calls int
}

func (s *stubLookup) Name() string { return s.name }

func (s *stubLookup) Lookup(context.Context, string) (attributes.Location, error) {
	s.calls++
	return s.loc, s.err
}
