package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"

	httpH "github.com/yungbote/contentlib/internal/http/handlers"
	httpMW "github.com/yungbote/contentlib/internal/http/middleware"
	"github.com/yungbote/contentlib/internal/modules/itembank"
	"github.com/yungbote/contentlib/internal/modules/search"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/temporalx/rebuild"
)

const (
	testSecret = "test-secret"
	bankKey    = "block-v1:X+Y+Z+type@itembank+block@bank"
)

type fakeBanks struct {
	itembank.Usecases
	lastUser string
	lastKey  string
}

func (f *fakeBanks) Validate(_ context.Context, usageKey string) (*itembank.ValidationReport, error) {
	f.lastKey = usageKey
	return &itembank.ValidationReport{Messages: []itembank.ValidationMessage{
		{Type: itembank.SeverityWarning, Text: "Matching content: 2 of 3 blocks"},
	}}, nil
}

func (f *fakeBanks) GetContentTitles(_ context.Context, userID, usageKey string) ([]string, error) {
	f.lastUser, f.lastKey = userID, usageKey
	return []string{"Sum", "Product"}, nil
}

func (f *fakeBanks) ResetSelectedChildren(context.Context, string, string) (*itembank.ResetReport, error) {
	return nil, apierr.New(http.StatusBadRequest, "reset_not_allowed", errs.ErrResetNotAllowed)
}

func (f *fakeBanks) ExportOLX(_ context.Context, usageKey string, w io.Writer) error {
	_, err := fmt.Fprintf(w, `<library_content display_name="Bank" max_count="1"/>`)
	return err
}

func (f *fakeBanks) Delete(context.Context, string) error {
	return fmt.Errorf("load item-bank: %w", errs.ErrNotFound)
}

type fakeSearch struct {
	global bool
}

func (f *fakeSearch) Token(_ context.Context, userID string) (*search.SearchToken, error) {
	return &search.SearchToken{URL: "http://meili", IndexName: "studio_content", APIKey: "tok-" + userID}, nil
}

func (f *fakeSearch) UserAccess(dbctx.Context, string) (search.Access, error) {
	return search.Access{Global: f.global}, nil
}

type fakeScheduler struct {
	calls int
}

func (f *fakeScheduler) Schedule(_ context.Context, requestedBy string) (*rebuild.Scheduled, error) {
	f.calls++
	return &rebuild.Scheduled{Channel: rebuild.ChannelQueue, Started: f.calls == 1}, nil
}

type testServer struct {
	engine *gin.Engine
	banks  *fakeBanks
	search *fakeSearch
	sched  *fakeScheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	ts := &testServer{banks: &fakeBanks{}, search: &fakeSearch{}, sched: &fakeScheduler{}}
	ts.engine = NewRouter(RouterConfig{
		Log:             log,
		Metrics:         observability.NewMetrics(),
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, httpMW.NewTokenVerifier(testSecret)),
		ItemBankHandler: httpH.NewItemBankHandler(ts.banks),
		SearchHandler:   httpH.NewSearchHandler(ts.search, ts.sched),
		HealthHandler:   httpH.NewHealthHandler(observability.NewMetrics().Handler()),
	})
	return ts
}

func bearer(t *testing.T, subject string, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return "Bearer " + s
}

func (ts *testServer) do(t *testing.T, method, path, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(t, http.MethodGet, "/healthcheck", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: status=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec := ts.do(t, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics: want=200 got=%d", rec.Code)
	}
}

func TestAPIRequiresValidBearer(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/itembanks/" + bankKey + "/titles"
	cases := []struct {
		name string
		auth string
	}{
		{"missing", ""},
		{"wrong secret", bearer(t, "u1", "other")},
		{"no subject", bearer(t, "", testSecret)},
	}
	for _, c := range cases {
		rec := ts.do(t, http.MethodGet, path, c.auth)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: want=401 got=%d", c.name, rec.Code)
		}
	}
	rec := ts.do(t, http.MethodGet, path, bearer(t, "u1", testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("X-Request-Id header missing")
	}
}

func TestItemBankRoutesPassUserAndKey(t *testing.T) {
	ts := newTestServer(t)
	auth := bearer(t, "learner-7", testSecret)

	rec := ts.do(t, http.MethodGet, "/api/itembanks/"+bankKey+"/titles", auth)
	var titles struct {
		Titles []string `json:"titles"`
	}
	decode(t, rec, &titles)
	if diff := cmp.Diff([]string{"Sum", "Product"}, titles.Titles); diff != "" {
		t.Fatalf("titles (-want +got):\n%s", diff)
	}
	if ts.banks.lastUser != "learner-7" || ts.banks.lastKey != bankKey {
		t.Fatalf("titles args: user=%q key=%q", ts.banks.lastUser, ts.banks.lastKey)
	}

	rec = ts.do(t, http.MethodGet, "/api/itembanks/"+bankKey+"/validate", auth)
	var report struct {
		Valid    bool                         `json:"valid"`
		Messages []itembank.ValidationMessage `json:"messages"`
	}
	decode(t, rec, &report)
	if !report.Valid || len(report.Messages) != 1 {
		t.Fatalf("validate: %+v", report)
	}

	rec = ts.do(t, http.MethodGet, "/api/itembanks/"+bankKey+"/olx", auth)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("olx content type: want application/xml got=%q", ct)
	}
	if !strings.Contains(rec.Body.String(), `max_count="1"`) {
		t.Fatalf("olx body: %s", rec.Body.String())
	}
}

func TestErrorsCarryStatusAndCode(t *testing.T) {
	ts := newTestServer(t)
	auth := bearer(t, "u1", testSecret)
	cases := []struct {
		method, path string
		status       int
		code         string
	}{
		{http.MethodPost, "/api/itembanks/" + bankKey + "/reset", http.StatusBadRequest, "reset_not_allowed"},
		{http.MethodDelete, "/api/itembanks/" + bankKey, http.StatusNotFound, "not_found"},
	}
	for _, c := range cases {
		rec := ts.do(t, c.method, c.path, auth)
		if rec.Code != c.status {
			t.Fatalf("%s %s: want=%d got=%d", c.method, c.path, c.status, rec.Code)
		}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		decode(t, rec, &env)
		if env.Error.Code != c.code {
			t.Fatalf("%s %s code: want=%q got=%q", c.method, c.path, c.code, env.Error.Code)
		}
	}
}

func TestSearchRebuildIsGlobalStaffOnly(t *testing.T) {
	ts := newTestServer(t)
	auth := bearer(t, "admin", testSecret)

	if rec := ts.do(t, http.MethodPost, "/api/search/rebuild", auth); rec.Code != http.StatusForbidden {
		t.Fatalf("non-staff rebuild: want=403 got=%d", rec.Code)
	}
	if ts.sched.calls != 0 {
		t.Fatalf("scheduler called for non-staff user")
	}

	ts.search.global = true
	if rec := ts.do(t, http.MethodPost, "/api/search/rebuild", auth); rec.Code != http.StatusAccepted {
		t.Fatalf("first rebuild: want=202 got=%d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/search/rebuild", auth); rec.Code != http.StatusConflict {
		t.Fatalf("second rebuild: want=409 got=%d", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/search/token", auth)
	var tok search.SearchToken
	decode(t, rec, &tok)
	if tok.APIKey != "tok-admin" {
		t.Fatalf("token api key: want=%q got=%q", "tok-admin", tok.APIKey)
	}
}
