// Package helius reads wallet balances and parsed transaction history from the Helius indexer.
package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

const (
	DefaultAPIURL = "https://api.helius.xyz"
	DefaultRPCURL = "https://mainnet.helius-rpc.com"

	// DefaultHistoryLimit bounds how far back receiver history is scanned.
	DefaultHistoryLimit = 20
)

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("HELIUS_API_KEY is required")

// StatusError carries a non-2xx response from the indexer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("helius status %d: %s", e.StatusCode, e.Body)
}

// NativeTransfer is a SOL movement inside a transaction, in lamports.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// AccountData lists every account touched by a transaction.
type AccountData struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"`
}

// Transaction is the subset of an enhanced transaction used for payment matching.
type Transaction struct {
	Signature       string           `json:"signature"`
	Timestamp       int64            `json:"timestamp"`
	Type            string           `json:"type"`
	FeePayer        string           `json:"feePayer"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	AccountData     []AccountData    `json:"accountData"`
	TransactionErr  json.RawMessage  `json:"transactionError,omitempty"`
}

// Time returns the block time.
func (t Transaction) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

// Failed reports whether the chain recorded an execution error.
func (t Transaction) Failed() bool {
	s := strings.TrimSpace(string(t.TransactionErr))
	return s != "" && s != "null"
}

// Participants returns every address that appears in the transaction.
func (t Transaction) Participants() map[string]struct{} {
	out := make(map[string]struct{}, len(t.AccountData)+2*len(t.NativeTransfers)+1)
	if t.FeePayer != "" {
		out[t.FeePayer] = struct{}{}
	}
	for _, a := range t.AccountData {
		out[a.Account] = struct{}{}
	}
	for _, nt := range t.NativeTransfers {
		out[nt.FromUserAccount] = struct{}{}
		out[nt.ToUserAccount] = struct{}{}
	}
	return out
}

// Options configures the client.
type Options struct {
	APIKey         string
	APIURL         string
	RPCURL         string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// Client calls the Helius REST and JSON-RPC endpoints with outbound pacing.
type Client struct {
	apiKey     string
	apiURL     string
	rpcURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a Client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.RPCURL == "" {
		opts.RPCURL = DefaultRPCURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		rpcURL:     strings.TrimRight(opts.RPCURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Burst),
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type balanceResponse struct {
	Result *struct {
		Value uint64 `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// GetBalance returns the wallet balance in lamports.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getBalance", Params: []any{address}})
	if err != nil {
		return 0, err
	}
	endpoint := c.rpcURL + "/?api-key=" + url.QueryEscape(c.apiKey)

	var out balanceResponse
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &out); err != nil {
		return 0, fmt.Errorf("getBalance: %w", err)
	}
	if out.Error != nil {
		return 0, fmt.Errorf("getBalance rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	if out.Result == nil {
		return 0, errors.New("getBalance: empty result")
	}
	return out.Result.Value, nil
}

// RecentTransactions returns up to limit parsed transactions for address, newest first.
func (c *Client) RecentTransactions(ctx context.Context, address string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	q := url.Values{}
	q.Set("api-key", c.apiKey)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.apiURL + "/v0/addresses/" + url.PathEscape(address) + "/transactions?" + q.Encode()

	var out []Transaction
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.Warn("helius.request.failed", map[string]any{
			"status":      resp.StatusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
