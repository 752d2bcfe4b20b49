package helius

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.URL.Query().Get("api-key"))
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getBalance", req.Method)
		assert.Equal(t, []any{"Sender111"}, req.Params)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":250000000}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{APIKey: "key", RPCURL: srv.URL})
	require.NoError(t, err)

	lamports, err := c.GetBalance(context.Background(), "Sender111")
	require.NoError(t, err)
	assert.Equal(t, uint64(250000000), lamports)
}

func TestGetBalanceRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid param"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{APIKey: "key", RPCURL: srv.URL})
	require.NoError(t, err)
	_, err = c.GetBalance(context.Background(), "bad")
	assert.ErrorContains(t, err, "Invalid param")
}

func TestRecentTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/addresses/Receiver111/transactions", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"signature":"sig1","timestamp":1700000000,"type":"TRANSFER","feePayer":"Sender111",
			"nativeTransfers":[{"fromUserAccount":"Sender111","toUserAccount":"Receiver111","amount":100000000}],
			"accountData":[{"account":"Sender111","nativeBalanceChange":-100005000},{"account":"Receiver111","nativeBalanceChange":100000000}],
			"transactionError":null}]`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{APIKey: "key", APIURL: srv.URL})
	require.NoError(t, err)

	txs, err := c.RecentTransactions(context.Background(), "Receiver111", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, "sig1", tx.Signature)
	assert.False(t, tx.Failed())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), tx.Time())
	assert.Contains(t, tx.Participants(), "Receiver111")
	assert.Equal(t, int64(100000000), tx.NativeTransfers[0].Amount)
}

func TestStatusErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{APIKey: "key", APIURL: srv.URL})
	require.NoError(t, err)
	_, err = c.RecentTransactions(context.Background(), "Receiver111", 5)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFailedTransaction(t *testing.T) {
	tx := Transaction{TransactionErr: json.RawMessage(`{"InstructionError":[0,"Custom"]}`)}
	assert.True(t, tx.Failed())
}
