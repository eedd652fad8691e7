package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/config"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/ingest"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/normalize"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/storage"
)

type settableClock struct {
	t time.Time
}

func (c *settableClock) Now() time.Time { return c.t }

func (c *settableClock) Set(t time.Time) { c.t = t }

func newTestServer(t *testing.T) (*Server, *settableClock) {
	t.Helper()
	clock := &settableClock{t: time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC)}
	n := normalize.New(time.UTC)
	opts := storage.Options{Normalizer: n, Now: clock.Now}

	hotStore := storage.NewMemoryStore(opts)
	govStore := storage.NewMemoryStore(opts)

	domains := []Domain{
		{
			Name:   "hotjobs",
			Engine: ingest.NewEngine(hotStore, n, ingest.StrategySkipDuplicate, nil),
			Store:  hotStore,
		},
		{
			Name:   "govjobs",
			Engine: ingest.NewEngine(govStore, n, ingest.StrategyOverwrite, nil),
			Store:  govStore,
			Stats:  true,
		},
	}

	srv := New(config.ServerConfig{Port: 0}, domains, time.UTC, clock.Now, nil)
	return srv, clock
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	resp := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestSendData_SingleObjectCreated(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, resp := doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/",
		`{"job_title":"Planning Division Job","job_url":"https://example.com/1","vacancies":"65"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(1), resp["total_created"])
	assert.Equal(t, float64(0), resp["total_updated"])
}

func TestSendData_ResubmitReturnsUpdated(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"job_title":"Job","job_url":"https://example.com/1"}`

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["total_updated"])
}

func TestSendData_ArrayWithInvalidElement(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, resp := doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/", `[
		{"job_title":"Job 1","job_url":"https://example.com/1"},
		{"job_title":42},
		{"job_title":"Job 3","job_url":"https://example.com/3"}
	]`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(2), resp["total_created"])
	assert.Equal(t, float64(1), resp["total_errors"])
	require.Contains(t, resp, "errors")
}

func TestSendData_AllInvalidReturns400(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/", `{"job_title":42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendData_SkipDomainReportsSkipped(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"company_name":"Acme","position":"Analyst","job_url":"https://example.com/1"}`

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/hotjobs/send-data/", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := doJSON(t, srv.Handler(), http.MethodPost, "/hotjobs/send-data/", body)
	// Nothing created or updated: the duplicate was discarded.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	skipped, ok := resp["skipped"].([]any)
	require.True(t, ok)
	assert.Len(t, skipped, 1)
}

func TestGetData_DateRangeBoundary(t *testing.T) {
	srv, clock := newTestServer(t)

	clock.Set(time.Date(2025, 11, 3, 23, 59, 59, 0, time.UTC))
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/",
		`{"job_title":"Inside","job_url":"https://example.com/in"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	clock.Set(time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC))
	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/",
		`{"job_title":"Outside","job_url":"https://example.com/out"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := doJSON(t, srv.Handler(), http.MethodGet,
		"/govjobs/get-data/?start=2025-11-01&end=2025-11-03", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(1), resp["count"])
	jobs := resp["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Inside", jobs[0].(map[string]any)["job_title"])
}

func TestGetData_OrderingNewestFirst(t *testing.T) {
	srv, clock := newTestServer(t)

	base := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"oldest", "middle", "newest"} {
		clock.Set(base.Add(time.Duration(i) * time.Hour))
		rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/",
			`{"job_title":"`+title+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	_, resp := doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/get-data/", "")
	jobs := resp["jobs"].([]any)
	require.Len(t, jobs, 3)
	assert.Equal(t, "newest", jobs[0].(map[string]any)["job_title"])
	assert.Equal(t, "oldest", jobs[2].(map[string]any)["job_title"])
}

func TestGetData_SubstringFilter(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, body := range []string{
		`{"job_title":"Software Engineer","company_name":"Acme"}`,
		`{"job_title":"Accountant","company_name":"Globex"}`,
	} {
		rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/hotjobs/send-data/", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	_, resp := doJSON(t, srv.Handler(), http.MethodGet, "/hotjobs/get-data/?company=acme", "")
	assert.Equal(t, float64(1), resp["count"])

	// Malformed optional filters are ignored, not an error.
	rec, resp := doJSON(t, srv.Handler(), http.MethodGet, "/hotjobs/get-data/?days=bogus", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp["count"])
}

func TestGetData_TodayAndYesterday(t *testing.T) {
	srv, clock := newTestServer(t)

	clock.Set(time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC))
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/",
		`{"job_title":"yesterday job"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	clock.Set(time.Date(2025, 11, 15, 9, 0, 0, 0, time.UTC))
	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/",
		`{"job_title":"today job"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, resp := doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/get-data/today/", "")
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, "2025-11-15", resp["date"])

	_, resp = doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/get-data/yesterday/", "")
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, "2025-11-14", resp["date"])
}

func TestGetData_WeekAndMonth(t *testing.T) {
	srv, clock := newTestServer(t)

	clock.Set(time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC))
	doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/", `{"job_title":"old"}`)

	clock.Set(time.Date(2025, 11, 15, 9, 0, 0, 0, time.UTC))
	doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/", `{"job_title":"recent"}`)

	rec, resp := doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/get-data/week/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, "last_7_days", resp["period"])

	rec, resp = doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/get-data/month/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, "current_month", resp["period"])
	assert.Equal(t, "November 2025", resp["month"])
}

func TestGetData_ExplicitDate(t *testing.T) {
	srv, clock := newTestServer(t)

	clock.Set(time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC))
	doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/", `{"job_title":"on date"}`)

	rec, resp := doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/get-data/date/2025-11-03/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, "2025-11-03", resp["date"])
}

func TestGetData_MalformedExplicitDate(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, resp := doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/get-data/date/2025-13-40/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp, "error")
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/",
		`{"job_title":"Job","vacancies":"65","deadline":"25 November 2025"}`)
	doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/send-data/",
		`{"job_title":"Bare","vacancies":"N/A"}`)

	rec, resp := doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/stats/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp["total_jobs"])
	assert.Equal(t, float64(2), resp["today"])
	assert.Equal(t, float64(1), resp["with_vacancies"])
	assert.Equal(t, float64(1), resp["with_deadlines"])
	assert.NotNil(t, resp["last_updated"])

	// The hotjobs domain does not expose stats.
	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/hotjobs/stats/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodAndPathGuards(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/send-data/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/govjobs/get-data/", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/govjobs/get-data/bogus/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, resp := doJSON(t, srv.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp["status"])
}
