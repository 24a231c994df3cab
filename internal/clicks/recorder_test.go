package clicks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"linkpulse/internal/attributes"
	"linkpulse/internal/clicks"
	"linkpulse/internal/geo"
	"linkpulse/internal/links"
	"linkpulse/internal/testsupport"
	"linkpulse/internal/visitors"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"

type fixedLocator struct {
	resolution geo.Resolution
	calls      int
}

func (f *fixedLocator) Resolve(context.Context, attributes.Location, string) geo.Resolution {
	f.calls++
	return f.resolution
}

func newRecorder(t *testing.T, db *gorm.DB, locator clicks.Locator) *clicks.Recorder {
	t.Helper()
	return clicks.NewRecorder(db, testsupport.GetLogger(), locator, visitors.NewResolver("lp_vid", false))
}

func TestRecordPersistsClick(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestLink(t, db, "owner-1", "promo", "https://example.com")
	locator := &fixedLocator{resolution: geo.Resolution{
		Location: attributes.Location{Country: "Brazil", Region: "PE", City: "Recife"},
		Source:   geo.SourceEdge,
	}}

	result, err := newRecorder(t, db, locator).Record(context.Background(), clicks.Visit{
		LinkID:    "promo",
		UserAgent: iphoneUA,
		Referrer:  "https://t.co/xyz",
		IP:        "200.147.67.142",
	})
	require.NoError(t, err)
	require.NoError(t, result.PersistErr)
	assert.True(t, result.Identity.IsNew)
	assert.Equal(t, geo.SourceEdge, result.GeoSource)

	var stored clicks.ClickEvent
	require.NoError(t, db.First(&stored, result.Event.ID).Error)
	assert.Equal(t, "promo", stored.LinkID)
	assert.Equal(t, "owner-1", stored.OwnerID)
	assert.Equal(t, result.Identity.ID, stored.VisitorID)
	assert.Equal(t, attributes.DeviceMobile, stored.Device)
	assert.Equal(t, "Safari", stored.Browser)
	assert.Equal(t, "iOS", stored.OS)
	assert.Equal(t, "https://t.co/xyz", stored.Referrer)
	require.NotNil(t, stored.Country)
	assert.Equal(t, "Brazil", *stored.Country)
	assert.Equal(t, "Recife", *stored.City)
	assert.Equal(t, 1, locator.calls)
}

func TestRecordDefaultsToDirectReferrer(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestLink(t, db, "owner-1", "promo", "https://example.com")

	result, err := newRecorder(t, db, &fixedLocator{}).Record(context.Background(), clicks.Visit{LinkID: "promo"})
	require.NoError(t, err)
	assert.Equal(t, clicks.DirectReferrer, result.Event.Referrer)
	assert.Nil(t, result.Event.Country)
	assert.Equal(t, attributes.DeviceDesktop, result.Event.Device)
}

func TestRecordKeepsExistingVisitor(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestLink(t, db, "owner-1", "promo", "https://example.com")
	recorder := newRecorder(t, db, &fixedLocator{})

	first, err := recorder.Record(context.Background(), clicks.Visit{LinkID: "promo", CookieVisitorID: "cookie-abc"})
	require.NoError(t, err)
	assert.False(t, first.Identity.IsNew)
	assert.Equal(t, "cookie-abc", first.Event.VisitorID)

	explicit, err := recorder.Record(context.Background(), clicks.Visit{
		LinkID:          "promo",
		CookieVisitorID: "cookie-abc",
		VisitorID:       "beacon-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "beacon-123", explicit.Event.VisitorID)
}

func TestRecordUnknownLink(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	locator := &fixedLocator{}

	_, err := newRecorder(t, db, locator).Record(context.Background(), clicks.Visit{LinkID: "nope"})

	var notFound *links.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Zero(t, locator.calls)
	assert.Zero(t, testsupport.CountClicks(t, db, "nope"))
}

func TestRecordPersistFailureIsReported(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	link := testsupport.CreateTestLink(t, db, "owner-1", "promo", "https://example.com")
	boom := errors.New("disk full")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*clicks.ClickEvent); ok {
			tx.AddError(boom)
		}
	}))

	result, err := newRecorder(t, db, &fixedLocator{}).Record(context.Background(), clicks.Visit{Link: &link})
	require.NoError(t, err)
	require.Error(t, result.PersistErr)
	assert.Contains(t, result.PersistErr.Error(), "disk full")
	assert.Zero(t, testsupport.CountClicks(t, db, "promo"))
}

func TestRecordAsyncDrainsOnStop(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	link := testsupport.CreateTestLink(t, db, "owner-1", "promo", "https://example.com")
	recorder := newRecorder(t, db, &fixedLocator{})
	require.NoError(t, recorder.Start())

	for i := 0; i < 5; i++ {
		recorder.RecordAsync(clicks.Visit{Link: &link, CookieVisitorID: "same-visitor"})
	}
	recorder.RecordAsync(clicks.Visit{LinkID: "missing"})
	recorder.Stop()

	assert.Equal(t, int64(5), testsupport.CountClicks(t, db, "promo"))
	assert.Zero(t, testsupport.CountClicks(t, db, "missing"))
}
