package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type panicHandler struct{}

func (panicHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/boom", func(echo.Context) error { panic("nil map") })
	g.GET("/gone", func(echo.Context) error { return NotFoundError("no such position") })
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestPanicRendersEnvelopeAndIsCounted(t *testing.T) {
	s := NewServer(panicHandler{}, WithRegistry(prometheus.NewRegistry()))

	rec := serve(s, "/api/boom")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q: %v", rec.Body.String(), err)
	}
	if body.Status != http.StatusInternalServerError {
		t.Fatalf("envelope=%+v", body)
	}

	scrape := serve(s, "/metrics").Body.String()
	want := `tickpilot_http_requests_total{class="5xx",method="GET",route="/api/boom"} 1`
	if !strings.Contains(scrape, want) {
		t.Fatalf("metrics missing %s", want)
	}
}

func TestErrorHandlerKeepsAppErrorCode(t *testing.T) {
	s := NewServer(panicHandler{}, WithRegistry(prometheus.NewRegistry()))

	rec := serve(s, "/api/gone")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"code":"ERR_NOT_FOUND"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = serve(s, "/api/nowhere")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"code":"ERR_NOT_FOUND"`) {
		t.Fatalf("unmatched route status=%d body=%s", rec.Code, rec.Body.String())
	}
}
