package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retrying struct {
	base  ChartAnalyzer
	delay time.Duration
}

// WithRetry wraps base so one transient failure is retried after a short delay.
func WithRetry(base ChartAnalyzer) ChartAnalyzer {
	if base == nil {
		return nil
	}
	return retrying{base: base, delay: retryBaseDelay}
}

func (r retrying) AnalyzeChart(ctx context.Context, input ChartInput) (string, error) {
	out, err := r.base.AnalyzeChart(ctx, input)
	if err == nil || !ShouldRetry(err) {
		return out, err
	}

	telemetry.Warn("llm.retry", map[string]any{"attempt": 1, "error": err.Error()})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return r.base.AnalyzeChart(ctx, input)
}

// ShouldRetry reports whether err looks transient.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= 500 || upstream.StatusCode == 429
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"connection closed",
		"broken pipe",
		"tls handshake timeout",
		"eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
