package obs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRequestIDIsGeneratedAndPropagated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mw := Middleware{Logger: logger, Quiet: []string{"/livez"}}

	r := gin.New()
	r.Use(mw.RequestID(), mw.AccessLog())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusTeapot)
	})
	r.GET("/livez", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if seen == "" || w.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected request id header %q to match context, got %q", w.Header().Get(RequestIDHeader), seen)
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Fatalf("expected client error to log at warn, got %s", buf.String())
	}

	buf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("expected caller request id to be kept, got %q", w.Header().Get(RequestIDHeader))
	}
	if buf.Len() != 0 {
		t.Fatalf("expected quiet path not to be logged, got %s", buf.String())
	}
}

func TestReadyzReportsFailingChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := HealthHandlers{
		Checks: map[string]Check{
			"mongo": func(context.Context) error { return nil },
			"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
		},
		Now: func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	r := gin.New()
	r.GET("/readyz", h.Readyz)
	r.GET("/api/health", h.Status)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "redis") {
		t.Fatalf("expected 503 naming redis, got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if !strings.Contains(w.Body.String(), "2024-01-02T03:04:05Z") {
		t.Fatalf("expected timestamp in body, got %s", w.Body.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("") != slog.LevelInfo || ParseLevel("warning") != slog.LevelWarn {
		t.Fatalf("unexpected level parsing")
	}
}
