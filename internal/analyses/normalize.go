package analyses

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultRecommendation = "N/A"
	defaultPrice          = "Not specified"
	defaultRatio          = "N/A"

	heuristicCertainty = 75
	heuristicRatio     = "2:1"
	heuristicPrice     = "See report"
)

var (
	fencedJSON = regexp.MustCompile("```json\\n?([\\s\\S]*?)\\n?```")
	bareObject = regexp.MustCompile(`\{[\s\S]*\}`)
)

// Normalize turns free-form model output into an AnalysisResult. It never fails:
// text that does not contain a parseable JSON object falls back to keyword heuristics.
func Normalize(raw string) Normalized {
	fields, ok := parseObject(extractCandidate(raw))
	if !ok {
		return Normalized{Result: heuristic(raw), Source: SourceHeuristic}
	}
	return Normalized{Result: fromFields(fields, raw), Source: SourceStructured}
}

// extractCandidate picks the text to parse: a fenced json block, else the widest
// brace-delimited span, else the whole input.
func extractCandidate(raw string) string {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[0]
	}
	if m := bareObject.FindString(raw); m != "" {
		return m
	}
	return raw
}

func parseObject(candidate string) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func heuristic(raw string) AnalysisResult {
	rec := "SHORT"
	if strings.Contains(strings.ToUpper(raw), "LONG") {
		rec = "LONG"
	}
	return AnalysisResult{
		Recommendation:  rec,
		Certainty:       heuristicCertainty,
		EntryPrice:      heuristicPrice,
		StopLoss:        heuristicPrice,
		TakeProfit:      heuristicPrice,
		RiskRewardRatio: heuristicRatio,
		Report:          raw,
	}
}

func fromFields(fields map[string]json.RawMessage, raw string) AnalysisResult {
	res := AnalysisResult{
		Recommendation:  strings.ToUpper(strings.TrimSpace(textField(fields, "recommendation", defaultRecommendation))),
		Certainty:       certaintyField(fields),
		EntryPrice:      textField(fields, "entryPrice", defaultPrice),
		StopLoss:        textField(fields, "stopLoss", defaultPrice),
		TakeProfit:      textField(fields, "takeProfit", defaultPrice),
		RiskRewardRatio: textField(fields, "riskRewardRatio", defaultRatio),
		Report:          textField(fields, "report", raw),
	}
	res.DetectedTimeframe = detectedTimeframe(fields)
	if chartType := strings.ToLower(strings.TrimSpace(textField(fields, "chartType", ""))); isChartType(chartType) {
		res.ChartType = chartType
	}
	return res
}

// textField returns the value for key as sent, or def when it is absent, falsy or blank.
func textField(fields map[string]json.RawMessage, key, def string) string {
	msg, ok := fields[key]
	if !ok {
		return def
	}
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return def
	}
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) != "" {
			return val
		}
	case float64:
		if val != 0 && !math.IsNaN(val) {
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
	case bool:
		if val {
			return "true"
		}
	case map[string]any, []any:
		return string(msg)
	}
	return def
}

// certaintyField accepts a number or numeric string, rounded and clamped to 0..100.
func certaintyField(fields map[string]json.RawMessage) int {
	msg, ok := fields["certainty"]
	if !ok {
		return 0
	}
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return 0
	}
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(val), "%"), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(f))))
}

// detectedTimeframe reads either {"detectedTimeframe":{"value","confidence"}} or the flat
// detectedTimeframe/timeframeConfidence pair.
func detectedTimeframe(fields map[string]json.RawMessage) *DetectedTimeframe {
	msg, ok := fields["detectedTimeframe"]
	if !ok {
		return nil
	}
	var nested struct {
		Value      string `json:"value"`
		Confidence string `json:"confidence"`
	}
	var value, confidence string
	if err := json.Unmarshal(msg, &nested); err == nil {
		value, confidence = nested.Value, nested.Confidence
	} else {
		value = textField(fields, "detectedTimeframe", "")
		confidence = textField(fields, "timeframeConfidence", "")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	confidence = strings.ToLower(strings.TrimSpace(confidence))
	switch confidence {
	case "high", "medium", "low":
	default:
		confidence = "low"
	}
	return &DetectedTimeframe{Value: value, Confidence: confidence}
}

func isChartType(s string) bool {
	switch s {
	case "candlestick", "line", "area":
		return true
	}
	return false
}
