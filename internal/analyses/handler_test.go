package analyses

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/llm"
	"github.com/FIipFIop/perp-prediction/internal/telegram"
)

const testBotToken = "123456:TEST-token"

func setupRouter(t *testing.T, svc *Service, userID string, requireAuth bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if userID != "" {
		r.Use(func(c *gin.Context) { c.Set("userId", userID) })
	}
	NewHandler(svc, testBotToken, requireAuth).RegisterRoutes(r.Group("/api"))
	return r
}

func multipartRequest(t *testing.T, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if file != nil {
		fw, err := writer.CreateFormFile("chart", "chart.png")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(file); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, resp.Body.String())
	}
	return body
}

func TestAnalyzeValidationOrder(t *testing.T) {
	tests := []struct {
		name      string
		svc       *Service
		fields    map[string]string
		file      []byte
		wantCode  int
		wantError string
	}{
		{
			name:      "missing file",
			svc:       NewService(&stubAnalyzer{}, nil, nil, nil, nil, ""),
			fields:    map[string]string{"timeframe": "1h"},
			wantCode:  http.StatusBadRequest,
			wantError: "No chart image provided",
		},
		{
			name:      "unsupported type",
			svc:       NewService(&stubAnalyzer{}, nil, nil, nil, nil, ""),
			fields:    map[string]string{"timeframe": "1h"},
			file:      []byte("%PDF-1.4 not an image"),
			wantCode:  http.StatusBadRequest,
			wantError: "No chart image provided",
		},
		{
			name:      "missing timeframe",
			svc:       NewService(&stubAnalyzer{}, nil, nil, nil, nil, ""),
			file:      pngBytes,
			wantCode:  http.StatusBadRequest,
			wantError: "Timeframe is required",
		},
		{
			name:      "no api key",
			svc:       NewService(nil, nil, nil, nil, nil, ""),
			fields:    map[string]string{"timeframe": "1h"},
			file:      pngBytes,
			wantCode:  http.StatusInternalServerError,
			wantError: "API key not configured",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, tt.svc, "", false)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, multipartRequest(t, tt.fields, tt.file))
			if resp.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tt.wantCode, resp.Code, resp.Body.String())
			}
			if got := decodeBody(t, resp)["error"]; got != tt.wantError {
				t.Fatalf("expected error %q, got %v", tt.wantError, got)
			}
		})
	}
}

func TestAnalyzeReturnsNormalizedResult(t *testing.T) {
	svc := NewService(&stubAnalyzer{out: structuredReply}, nil, nil, nil, nil, "")
	r := setupRouter(t, svc, "", false)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "4h"}, pngBytes))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	if body["recommendation"] != "LONG" || body["certainty"] != float64(85) || body["source"] != "structured" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["riskRewardRatio"] != "2:1" || body["report"] != "Breakout" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAnalyzePassesThroughUpstreamStatus(t *testing.T) {
	svc := NewService(&stubAnalyzer{err: &llm.UpstreamError{StatusCode: http.StatusTooManyRequests}}, nil, nil, nil, nil, "")
	r := setupRouter(t, svc, "", false)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "4h"}, pngBytes))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if got := decodeBody(t, resp)["error"]; got != "Failed to analyze chart" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestAnalyzeEmptyModelResponse(t *testing.T) {
	svc := NewService(&stubAnalyzer{err: llm.ErrEmptyResponse}, nil, nil, nil, nil, "")
	r := setupRouter(t, svc, "", false)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "4h"}, pngBytes))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := decodeBody(t, resp)["error"]; got != "No response from AI" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestAnalyzeRequiresCreditsForUsers(t *testing.T) {
	svc := NewService(&stubAnalyzer{out: structuredReply}, credits.NewService(0), nil, nil, nil, "")
	r := setupRouter(t, svc, "user-1", false)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "4h"}, pngBytes))
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.Code)
	}
}

func TestAnalyzeRequireAuthRejectsAnonymous(t *testing.T) {
	svc := NewService(&stubAnalyzer{out: structuredReply}, nil, nil, nil, nil, "")
	r := setupRouter(t, svc, "", true)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "4h"}, pngBytes))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAnalyzeInitDataVerifiedAndTampered(t *testing.T) {
	notifier := &stubNotifier{}
	svc := NewService(&stubAnalyzer{out: structuredReply}, nil, nil, nil, notifier, "")
	r := setupRouter(t, svc, "", false)

	signed := telegram.SignInitData(url.Values{
		"auth_date": {"1700000000"},
		"user":      {`{"id":7,"first_name":"Ana"}`},
	}, testBotToken)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "4h", "initData": signed}, pngBytes))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	svc.Wait()
	if len(notifier.chatIDs) != 1 || notifier.chatIDs[0] != 7 {
		t.Fatalf("expected notification for verified user, got %v", notifier.chatIDs)
	}

	tampered := telegram.SignInitData(url.Values{"user": {`{"id":8}`}}, "other-token")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "4h", "initData": tampered}, pngBytes))
	if resp.Code != http.StatusOK {
		t.Fatalf("unverified initData should continue anonymously, got %d", resp.Code)
	}
	svc.Wait()
	if len(notifier.chatIDs) != 1 {
		t.Fatalf("unverified user must not be notified, got %v", notifier.chatIDs)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		svc  *Service
		want bool
	}{
		{name: "configured", svc: NewService(&stubAnalyzer{}, nil, nil, nil, nil, ""), want: true},
		{name: "missing key", svc: NewService(nil, nil, nil, nil, nil, ""), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, tt.svc, "", false)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			body := decodeBody(t, resp)
			if body["status"] != "ok" || body["apiConfigured"] != tt.want {
				t.Fatalf("unexpected health body %v", body)
			}
		})
	}
}

func TestHistoryRequiresLogin(t *testing.T) {
	r := setupRouter(t, NewService(nil, nil, nil, nil, nil, ""), "", false)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/analyses", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestHistoryListsOwnAnalyses(t *testing.T) {
	svc := NewService(&stubAnalyzer{out: structuredReply}, credits.NewService(5), nil, nil, nil, "")
	r := setupRouter(t, svc, "user-1", false)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "4h"}, pngBytes))
	if resp.Code != http.StatusOK {
		t.Fatalf("analyze: expected 200, got %d", resp.Code)
	}
	id, _ := decodeBody(t, resp)["analysisId"].(string)
	if id == "" {
		t.Fatalf("expected analysisId in response")
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/analyses", nil))
	var list struct {
		Items []Analysis `json:"items"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != id {
		t.Fatalf("unexpected history %+v", list.Items)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/analyses/"+id, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.Code)
	}
}

func TestAnalyzeUploadSizeLimit(t *testing.T) {
	chartOfSize := func(n int) []byte {
		b := make([]byte, n)
		copy(b, pngBytes)
		return b
	}
	tests := []struct {
		name     string
		size     int
		wantCode int
	}{
		{name: "exactly 10MB", size: maxUploadSize, wantCode: http.StatusOK},
		{name: "one byte over", size: maxUploadSize + 1, wantCode: http.StatusRequestEntityTooLarge},
		{name: "10.5MB", size: maxUploadSize + maxUploadSize/20, wantCode: http.StatusRequestEntityTooLarge},
		{name: "12MB", size: 12 << 20, wantCode: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&stubAnalyzer{out: structuredReply}, nil, nil, nil, nil, "")
			r := setupRouter(t, svc, "", false)

			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, multipartRequest(t, map[string]string{"timeframe": "1h"}, chartOfSize(tt.size)))
			if resp.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, resp.Code)
			}
			if tt.wantCode == http.StatusRequestEntityTooLarge {
				if got := decodeBody(t, resp)["error"]; got != "Chart image exceeds 10MB" {
					t.Fatalf("unexpected error %v", got)
				}
			}
		})
	}
}
