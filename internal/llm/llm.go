package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ChartAnalyzer abstracts vision-capable inference providers.
type ChartAnalyzer interface {
	AnalyzeChart(ctx context.Context, input ChartInput) (string, error)
}

// ChartInput is one chart image plus the requested timeframe.
type ChartInput struct {
	Image     []byte
	MimeType  string
	Timeframe string
}

// AutoTimeframe asks the model to detect the timeframe itself.
const AutoTimeframe = "auto"

// ErrEmptyResponse is returned when the provider answers without content.
var ErrEmptyResponse = errors.New("no response from AI")

// UpstreamError carries a non-2xx status returned by the provider.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm upstream status %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the status to surface to callers, defaulting to 502.
func (e *UpstreamError) HTTPStatus() int {
	if e.StatusCode < 400 || e.StatusCode > 599 {
		return http.StatusBadGateway
	}
	return e.StatusCode
}
