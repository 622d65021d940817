package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/leads"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":        "<h1>בית</h1>",
		"events/index.html": "<h1>אירועים</h1>",
		"images/a.jpg":      "jpegbytes",
		"robots.txt":        "User-agent: *\n",
	}
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func do(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestServer_Static(t *testing.T) {
	s := New(Options{SiteDir: writeSite(t)}, nil, testLogger())
	h := s.Handler()

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantBody string
	}{
		{"root", "/", http.StatusOK, "בית"},
		{"directory index", "/events/", http.StatusOK, "אירועים"},
		{"directory without slash", "/events", http.StatusOK, "אירועים"},
		{"file", "/images/a.jpg", http.StatusOK, "jpegbytes"},
		{"query ignored", "/robots.txt?x=1", http.StatusOK, "User-agent"},
		{"unknown falls back to index", "/no/such/page", http.StatusOK, "בית"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestServer_StaticTraversalRejected(t *testing.T) {
	s := New(Options{SiteDir: writeSite(t)}, nil, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = "/../secret"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StaticNoIndex(t *testing.T) {
	s := New(Options{SiteDir: t.TempDir()}, nil, testLogger())
	rec := do(s.Handler(), http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := New(Options{SiteDir: t.TempDir()}, nil, testLogger())

	rec := do(s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(s.Handler(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitesync_http_requests_total")
}

func TestServer_RequestIDPropagated(t *testing.T) {
	s := New(Options{SiteDir: t.TempDir()}, nil, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_LeadsMounted(t *testing.T) {
	fallback := filepath.Join(t.TempDir(), "leads.jsonl")
	lh := leads.NewHandler(nil, "Leads", config.LeadsConfig{FallbackPath: fallback}, testLogger())
	s := New(Options{SiteDir: writeSite(t)}, lh, testLogger())

	body := `{"fullName":"Dana","email":"d@example.com","phone":"1","eventType":"x","guestCount":"10","eventDate":"2026-01-01"}`
	rec := do(s.Handler(), http.MethodPost, "/api/submit-lead", strings.NewReader(body))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.FileExists(t, fallback)

	rec = do(s.Handler(), http.MethodOptions, "/api/submit-lead", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RecoversFromPanic(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	s := New(Options{SiteDir: t.TempDir()}, panicky, testLogger())

	rec := do(s.Handler(), http.MethodPost, "/api/submit-lead", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestServer_ListenAndServeShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(Options{SiteDir: writeSite(t)}, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
