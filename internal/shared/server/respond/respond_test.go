package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestErrorWritesPlainStringError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fail", func(c *gin.Context) {
		ErrorWithMessage(c, http.StatusInternalServerError, "internal", "Failed to analyze chart", "boom")
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/fail", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Failed to analyze chart" {
		t.Fatalf("unexpected error field: %v", body["error"])
	}
	if body["message"] != "boom" {
		t.Fatalf("unexpected message field: %v", body["message"])
	}
}

func TestErrorOmitsEmptyMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fail", func(c *gin.Context) {
		Error(c, http.StatusBadRequest, "validation_error", "Timeframe is required", nil)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/fail", nil))

	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["message"]; ok {
		t.Fatalf("expected message to be omitted, got %v", body["message"])
	}
	if body["code"] != "validation_error" {
		t.Fatalf("unexpected code: %v", body["code"])
	}
}
