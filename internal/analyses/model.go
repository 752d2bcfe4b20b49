package analyses

import "time"

// Source records which normalization branch produced a result.
type Source string

const (
	SourceStructured Source = "structured"
	SourceHeuristic  Source = "heuristic"
)

// DetectedTimeframe is the model's own reading of the chart timeframe.
type DetectedTimeframe struct {
	Value      string `json:"value"`
	Confidence string `json:"confidence"`
}

// AnalysisResult is the trading recommendation returned to clients.
type AnalysisResult struct {
	Recommendation    string             `json:"recommendation"`
	Certainty         int                `json:"certainty"`
	EntryPrice        string             `json:"entryPrice"`
	StopLoss          string             `json:"stopLoss"`
	TakeProfit        string             `json:"takeProfit"`
	RiskRewardRatio   string             `json:"riskRewardRatio"`
	Report            string             `json:"report"`
	DetectedTimeframe *DetectedTimeframe `json:"detectedTimeframe,omitempty"`
	ChartType         string             `json:"chartType,omitempty"`
}

// Normalized pairs a result with the branch that produced it.
type Normalized struct {
	Result AnalysisResult
	Source Source
}

// Analysis is a stored history entry for an authenticated user.
type Analysis struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	Timeframe      string         `json:"timeframe"`
	Source         Source         `json:"source"`
	Result         AnalysisResult `json:"result"`
	ChartKey       string         `json:"chartKey,omitempty"`
	Model          string         `json:"model,omitempty"`
	TelegramUserID int64          `json:"telegramUserId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}
