package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/ol-advisor-relay/internal/handlers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthProtectsAPIRoutes(t *testing.T) {
	t.Parallel()

	srv := NewServer(handlers.New(handlers.Dependencies{}, handlers.Options{}), Options{APIToken: "secret"})
	engine := srv.Engine()

	if w := serve(engine, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz should be public, got %d", w.Code)
	}
	if w := serve(engine, http.MethodGet, "/notifications?recipient=ops", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(engine, http.MethodGet, "/notifications?recipient=ops", http.Header{"Authorization": {"Bearer wrong"}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	// Authorised but unconfigured services answer 503.
	if w := serve(engine, http.MethodGet, "/notifications?recipient=ops", http.Header{"Authorization": {"Bearer secret"}}); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w := serve(engine, http.MethodGet, "/notifications?recipient=ops", http.Header{"X-Api-Key": {"secret"}}); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("X-API-Key should authenticate, got %d", w.Code)
	}
	if w := serve(engine, http.MethodGet, "/notifications/stream?recipient=ops&access_token=secret", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("query token should authenticate streams, got %d", w.Code)
	}
	if w := serve(engine, http.MethodGet, "/notifications?recipient=ops&access_token=secret", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("query token must not authenticate plain routes, got %d", w.Code)
	}
}

func TestRequestIDAndMeta(t *testing.T) {
	t.Parallel()

	engine := NewServer(handlers.New(handlers.Dependencies{}, handlers.Options{}), Options{}).Engine()

	w := serve(engine, http.MethodGet, "/healthz", http.Header{"X-Request-Id": {"req-42"}})
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("request id not propagated: %q", got)
	}
	if w := serve(engine, http.MethodGet, "/healthz", nil); w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id not generated")
	}

	w = serve(engine, http.MethodGet, "/openapi", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/advisor/stream") {
		t.Fatalf("unexpected openapi response %d", w.Code)
	}
	w = serve(engine, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "advisor_http_requests_total") {
		t.Fatalf("metrics missing http counters")
	}
}
