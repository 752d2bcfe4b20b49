package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

type counter struct {
	name string
	help string
	v    atomic.Uint64
}

var (
	AnalysisStarted   = &counter{name: "analysis_started_total", help: "Chart analyses started"}
	AnalysisCompleted = &counter{name: "analysis_completed_total", help: "Chart analyses that returned a result"}
	AnalysisFailed    = &counter{name: "analysis_failed_total", help: "Chart analyses that failed upstream"}
	AnalysisHeuristic = &counter{name: "analysis_heuristic_total", help: "Results produced by the keyword fallback"}
	InitDataRejected  = &counter{name: "telegram_initdata_rejected_total", help: "Telegram initData payloads that failed verification"}
	PaymentsInitiated = &counter{name: "payments_initiated_total", help: "Payment intents created"}
	PaymentsVerified  = &counter{name: "payments_verified_total", help: "Payments matched on chain"}
	PaymentsCancelled = &counter{name: "payments_cancelled_total", help: "Payments expired before a match"}

	counters = []*counter{
		AnalysisStarted, AnalysisCompleted, AnalysisFailed, AnalysisHeuristic,
		InitDataRejected, PaymentsInitiated, PaymentsVerified, PaymentsCancelled,
	}

	analysisDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// Inc adds one to the counter.
func (c *counter) Inc() {
	c.v.Add(1)
}

// Value returns the current count.
func (c *counter) Value() uint64 {
	return c.v.Load()
}

// ObserveAnalysisDurationMs records an inference round trip in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	for _, c := range counters {
		writeCounter(&buf, c.name, c.help, c.Value())
	}
	writeHistogram(&buf, "analysis_duration_ms", "Inference round trip in milliseconds", analysisDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records value in the first bucket whose bound is >= value.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
