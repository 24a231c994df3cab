package v1_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	v1 "linkpulse/api/v1"
	"linkpulse/internal"
	"linkpulse/internal/attributes"
	"linkpulse/internal/clicks"
	"linkpulse/internal/testsupport"
)

const ownerID = "owner-1"

func setup(t *testing.T) (*fiber.App, *internal.Services, *gorm.DB) {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	app, services := testsupport.CreateMinimalTestApp(t, db)
	return app, services, db
}

func do(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, target), string(body))
}

func visitorCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "lp_vid" {
			return c
		}
	}
	return nil
}

func TestRedirectRecordsClickAndSetsVisitorCookie(t *testing.T) {
	app, services, db := setup(t)
	testsupport.CreateTestLink(t, db, ownerID, "abc1234", "https://example.com/landing")

	req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	req.Header.Set("Referer", "https://www.instagram.com/")
	resp := do(t, app, req)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/landing", resp.Header.Get("Location"))

	cookie := visitorCookie(resp)
	require.NotNil(t, cookie, "expected a visitor cookie to be minted")
	assert.True(t, cookie.HttpOnly)

	services.Recorder.Wait()

	var event clicks.ClickEvent
	require.NoError(t, db.Where("link_id = ?", "abc1234").First(&event).Error)
	assert.Equal(t, ownerID, event.OwnerID)
	assert.Equal(t, cookie.Value, event.VisitorID)
	assert.Equal(t, "https://www.instagram.com/", event.Referrer)
	assert.Equal(t, attributes.DeviceMobile, event.Device)
}

func TestRedirectKeepsExistingVisitorCookie(t *testing.T) {
	app, services, db := setup(t)
	testsupport.CreateTestLink(t, db, ownerID, "keepme1", "https://example.com")

	req := httptest.NewRequest(http.MethodGet, "/r/keepme1", nil)
	req.AddCookie(&http.Cookie{Name: "lp_vid", Value: "returning-visitor"})
	resp := do(t, app, req)
	services.Recorder.Wait()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Nil(t, visitorCookie(resp))

	var event clicks.ClickEvent
	require.NoError(t, db.Where("link_id = ?", "keepme1").First(&event).Error)
	assert.Equal(t, "returning-visitor", event.VisitorID)
	assert.Equal(t, clicks.DirectReferrer, event.Referrer)
}

func TestRedirectByQueryParameter(t *testing.T) {
	app, services, db := setup(t)
	testsupport.CreateTestLink(t, db, ownerID, "query01", "https://example.com/q")

	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/r?id=query01", nil))
	services.Recorder.Wait()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/q", resp.Header.Get("Location"))
	assert.Equal(t, int64(1), testsupport.CountClicks(t, db, "query01"))
}

func TestRedirectHeadDoesNotRecord(t *testing.T) {
	app, services, db := setup(t)
	testsupport.CreateTestLink(t, db, ownerID, "headonly", "https://example.com")

	resp := do(t, app, httptest.NewRequest(http.MethodHead, "/r/headonly", nil))
	services.Recorder.Wait()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Zero(t, testsupport.CountClicks(t, db, "headonly"))
}

func TestRedirectUnknownLink(t *testing.T) {
	app, services, db := setup(t)

	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/r/nonexistent", nil))
	services.Recorder.Wait()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/404", resp.Header.Get("Location"))

	var count int64
	require.NoError(t, db.Model(&clicks.ClickEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func beaconRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clicks", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	return req
}

func TestBeaconRecordsClick(t *testing.T) {
	app, _, db := setup(t)
	testsupport.CreateTestProfile(t, db, "maria", ownerID)
	testsupport.CreateTestLink(t, db, ownerID, "bio0001", "https://shop.example.com")

	resp := do(t, app, beaconRequest(`{"profileUsername":"@Maria","linkId":"bio0001","visitorId":"v-42","referrer":"https://t.co/x"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, true, body["success"])

	var event clicks.ClickEvent
	require.NoError(t, db.Where("link_id = ?", "bio0001").First(&event).Error)
	assert.Equal(t, "v-42", event.VisitorID)
	assert.Equal(t, "https://t.co/x", event.Referrer)
	assert.Nil(t, visitorCookie(resp))
}

func TestBeaconMintsVisitorWhenAbsent(t *testing.T) {
	app, _, db := setup(t)
	testsupport.CreateTestProfile(t, db, "joao", ownerID)
	testsupport.CreateTestLink(t, db, ownerID, "bio0002", "https://example.com")

	resp := do(t, app, beaconRequest(`{"profileUsername":"joao","linkId":"bio0002"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := visitorCookie(resp)
	require.NotNil(t, cookie)
	var event clicks.ClickEvent
	require.NoError(t, db.Where("link_id = ?", "bio0002").First(&event).Error)
	assert.Equal(t, cookie.Value, event.VisitorID)
}

func TestBeaconSucceedsWhenClickWriteFails(t *testing.T) {
	app, _, db := setup(t)
	testsupport.CreateTestProfile(t, db, "lia", ownerID)
	testsupport.CreateTestLink(t, db, ownerID, "bio0003", "https://example.com")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_clicks", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*clicks.ClickEvent); ok {
			tx.AddError(errors.New("disk full"))
		}
	}))

	resp := do(t, app, beaconRequest(`{"profileUsername":"lia","linkId":"bio0003","visitorId":"v-1"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, true, body["success"])
	assert.Zero(t, testsupport.CountClicks(t, db, "bio0003"))
}

func TestBeaconRejectsBadRequests(t *testing.T) {
	app, _, db := setup(t)
	testsupport.CreateTestProfile(t, db, "ana", ownerID)
	testsupport.CreateTestLink(t, db, ownerID, "owned01", "https://example.com")
	testsupport.CreateTestLink(t, db, "someone-else", "foreign", "https://example.com")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"profileUsername":`, http.StatusBadRequest},
		{"missing link", `{"profileUsername":"ana"}`, http.StatusBadRequest},
		{"missing profile", `{"linkId":"owned01"}`, http.StatusBadRequest},
		{"unknown profile", `{"profileUsername":"nobody","linkId":"owned01"}`, http.StatusNotFound},
		{"unknown link", `{"profileUsername":"ana","linkId":"missing"}`, http.StatusNotFound},
		{"link of another owner", `{"profileUsername":"ana","linkId":"foreign"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, app, beaconRequest(tt.body))
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	var count int64
	require.NoError(t, db.Model(&clicks.ClickEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func createLinkRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/links", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req
}

func TestCreateShortLinkCustomSlugConflict(t *testing.T) {
	app, _, db := setup(t)
	key := testsupport.CreateTestAPIKey(t, db, ownerID)

	resp := do(t, app, createLinkRequest(key, `{"originalUrl":"https://example.com/sale","customSlug":"promo","title":"Sale"}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created v1.ShortLinkResponse
	decode(t, resp, &created)
	assert.Equal(t, "promo", created.ID)
	assert.Equal(t, "https://example.com/sale", created.URL)
	assert.Equal(t, "Sale", created.Title)
	assert.True(t, strings.HasSuffix(created.ShortURL, "/r/promo"))
	assert.Zero(t, created.Clicks)

	resp = do(t, app, createLinkRequest(key, `{"originalUrl":"https://example.com/other","customSlug":"promo"}`))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateShortLinkGeneratesSlug(t *testing.T) {
	app, _, db := setup(t)
	key := testsupport.CreateTestAPIKey(t, db, ownerID)

	resp := do(t, app, createLinkRequest(key, `{"originalUrl":"https://www.example.com/path"}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created v1.ShortLinkResponse
	decode(t, resp, &created)
	assert.Len(t, created.ID, 7)
	assert.Equal(t, "example.com", created.Title)
}

func TestCreateShortLinkValidation(t *testing.T) {
	app, _, db := setup(t)
	key := testsupport.CreateTestAPIKey(t, db, ownerID)

	resp := do(t, app, createLinkRequest(key, `{"originalUrl":"ftp://example.com"}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "originalUrl", body["field"])

	resp = do(t, app, createLinkRequest(key, `{"originalUrl":"https://example.com","customSlug":"a b"}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decode(t, resp, &body)
	assert.Equal(t, "customSlug", body["field"])
}

func TestCreateShortLinkRequiresAPIKey(t *testing.T) {
	app, _, _ := setup(t)

	resp := do(t, app, createLinkRequest("", `{"originalUrl":"https://example.com"}`))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, app, createLinkRequest("lp_not_a_real_key", `{"originalUrl":"https://example.com"}`))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRedirectThenSummary(t *testing.T) {
	app, services, db := setup(t)
	key := testsupport.CreateTestAPIKey(t, db, ownerID)
	testsupport.CreateTestLink(t, db, ownerID, "flow001", "https://example.com")

	for i := 0; i < 3; i++ {
		do(t, app, httptest.NewRequest(http.MethodGet, "/r/flow001", nil))
	}
	services.Recorder.Wait()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/links/flow001", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	resp := do(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		TotalClicks int64 `json:"totalClicks"`
		UniqueUsers int64 `json:"uniqueUsers"`
	}
	decode(t, resp, &summary)
	assert.Equal(t, int64(3), summary.TotalClicks)
	// No cookie was sent back, so every request minted a new visitor.
	assert.Equal(t, int64(3), summary.UniqueUsers)
}
