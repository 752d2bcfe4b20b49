package payments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FIipFIop/perp-prediction/internal/indexer/helius"
)

func newTestRouter(svc *Service, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if userID != "" {
		r.Use(func(c *gin.Context) { c.Set("userId", userID) })
	}
	NewHandler(svc).RegisterRoutes(r.Group("/api"))
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestPaymentRoutesRequireUser(t *testing.T) {
	svc, _ := newTestService(&fakeIndexer{balance: 1_000_000_000})
	r := newTestRouter(svc, "")

	resp := doJSON(r, http.MethodPost, "/api/payment/init", `{"senderAddress":"`+testSender+`","credits":1}`)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPaymentInitAndVerify(t *testing.T) {
	idx := &fakeIndexer{balance: 1_000_000_000}
	svc, _ := newTestService(idx)
	r := newTestRouter(svc, "user-1")

	resp := doJSON(r, http.MethodPost, "/api/payment/init", `{"senderAddress":"`+testSender+`","credits":1}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var created struct {
		ID              string `json:"id"`
		Status          string `json:"status"`
		ReceiverAddress string `json:"receiverAddress"`
		ExpectedAmount  string `json:"expectedAmount"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, testReceiver, created.ReceiverAddress)
	assert.Equal(t, "0.01", created.ExpectedAmount)

	idx.txs = append(idx.txs, transfer("sig-1", 10_000_000, testNow))
	resp = doJSON(r, http.MethodPost, "/api/payment/verify", `{"paymentId":"`+created.ID+`"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var verified struct {
		Status    string `json:"status"`
		Signature string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &verified))
	assert.Equal(t, StatusVerified, verified.Status)
	assert.Equal(t, "sig-1", verified.Signature)
}

func TestPaymentInitInsufficientBalance(t *testing.T) {
	svc, _ := newTestService(&fakeIndexer{balance: 1_000})
	r := newTestRouter(svc, "user-1")

	resp := doJSON(r, http.MethodPost, "/api/payment/init", `{"senderAddress":"`+testSender+`","credits":1}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "Insufficient balance", body.Error)
	assert.NotEmpty(t, body.Message)
}

func TestPaymentVerifyUnknownID(t *testing.T) {
	svc, _ := newTestService(&fakeIndexer{})
	r := newTestRouter(svc, "user-1")

	resp := doJSON(r, http.MethodPost, "/api/payment/verify", `{"paymentId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doJSON(r, http.MethodPost, "/api/payment/verify", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPaymentRequestBindingRules(t *testing.T) {
	svc, _ := newTestService(&fakeIndexer{balance: 1_000_000_000})
	r := newTestRouter(svc, "user-1")

	cases := []struct {
		name  string
		body  string
		field string
		rule  string
	}{
		{"missing sender", `{"credits":1}`, "senderAddress", "required"},
		{"zero credits", `{"senderAddress":"` + testSender + `","credits":0}`, "credits", "required"},
		{"too many credits", `{"senderAddress":"` + testSender + `","credits":1001}`, "credits", "max"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(r, http.MethodPost, "/api/payment/init", tc.body)
			require.Equal(t, http.StatusBadRequest, resp.Code)
			var body struct {
				Code    string `json:"code"`
				Details []struct {
					Field string `json:"field"`
					Rule  string `json:"rule"`
				} `json:"details"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.Equal(t, "validation_error", body.Code)
			require.Len(t, body.Details, 1)
			assert.Equal(t, tc.field, body.Details[0].Field)
			assert.Equal(t, tc.rule, body.Details[0].Rule)
		})
	}

	resp := doJSON(r, http.MethodPost, "/api/payment/init", `{"senderAddress":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPaymentIndexerStatusPassesThrough(t *testing.T) {
	cases := []struct {
		upstream int
		want     int
	}{
		{http.StatusTooManyRequests, http.StatusTooManyRequests},
		{http.StatusServiceUnavailable, http.StatusServiceUnavailable},
		{http.StatusFound, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		idx := &fakeIndexer{balanceErr: &helius.StatusError{StatusCode: tc.upstream, Body: "upstream said no"}}
		svc, _ := newTestService(idx)
		r := newTestRouter(svc, "user-1")

		resp := doJSON(r, http.MethodPost, "/api/payment/init", `{"senderAddress":"`+testSender+`","credits":1}`)
		assert.Equal(t, tc.want, resp.Code, "indexer status %d", tc.upstream)
	}
}
