package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FIipFIop/perp-prediction/internal/analyses"
	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/shared/config"
)

func newTestRouter() http.Handler {
	svc := analyses.NewService(nil, credits.NewService(1), nil, nil, nil, "")
	return NewRouter(RouterDeps{
		Config:          config.Config{CORSAllowOrigin: []string{"http://localhost:3000"}, RateLimitAnalyzePerMin: 10},
		AnalysisHandler: analyses.NewHandler(svc, "", false),
		CreditsHandler:  credits.NewHandler(credits.NewService(1)),
	})
}

func TestHealthReportsAPIConfigured(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Status        string `json:"status"`
		APIConfigured bool   `json:"apiConfigured"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.APIConfigured {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "analysis_started_total") {
		t.Fatalf("expected analysis counters in metrics output")
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "route not found") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":3000", "8080": ":8080", ":9000": ":9000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
