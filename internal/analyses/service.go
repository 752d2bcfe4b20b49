package analyses

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/llm"
	"github.com/FIipFIop/perp-prediction/internal/shared/metrics"
	"github.com/FIipFIop/perp-prediction/internal/shared/storage/object"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
	"github.com/FIipFIop/perp-prediction/internal/telegram"
)

const notifyTimeout = 5 * time.Second

// Notifier delivers a summary to a Telegram chat.
type Notifier interface {
	NotifyAnalysis(ctx context.Context, chatID int64, s telegram.Summary) error
}

// Service runs chart analyses and keeps per-user history.
type Service struct {
	LLM      llm.ChartAnalyzer
	Credits  *credits.Service
	Repo     Repo
	Store    object.ObjectStore
	Notifier Notifier
	Model    string

	now           func() time.Time
	notifications sync.WaitGroup
}

// NewService constructs a Service. store and notifier may be nil.
func NewService(client llm.ChartAnalyzer, creditSvc *credits.Service, repo Repo, store object.ObjectStore, notifier Notifier, model string) *Service {
	if repo == nil {
		repo = NewMemoryRepo()
	}
	return &Service{
		LLM:      client,
		Credits:  creditSvc,
		Repo:     repo,
		Store:    store,
		Notifier: notifier,
		Model:    model,
		now:      time.Now,
	}
}

// Configured reports whether an inference client is wired.
func (s *Service) Configured() bool {
	return s != nil && s.LLM != nil
}

// AnalyzeRequest is one uploaded chart.
type AnalyzeRequest struct {
	UserID    string
	Image     []byte
	MimeType  string
	FileName  string
	Timeframe string
	Telegram  *telegram.WebAppUser
}

// AnalyzeOutcome is the normalized result plus bookkeeping for authenticated callers.
type AnalyzeOutcome struct {
	Normalized
	AnalysisID       string
	CreditsRemaining *int
}

// Analyze checks credits, calls the model, normalizes its answer and records the result.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeOutcome, error) {
	if !s.Configured() {
		return AnalyzeOutcome{}, ErrNotConfigured
	}
	req.Timeframe = strings.TrimSpace(req.Timeframe)
	if len(req.Image) == 0 || req.Timeframe == "" {
		return AnalyzeOutcome{}, ErrInvalidInput
	}

	if req.UserID != "" && s.Credits != nil {
		ok, _, err := s.Credits.CanConsume(ctx, req.UserID, 1)
		if err != nil {
			return AnalyzeOutcome{}, fmt.Errorf("check credits: %w", err)
		}
		if !ok {
			return AnalyzeOutcome{}, credits.ErrInsufficientCredits
		}
	}

	metrics.AnalysisStarted.Inc()
	start := s.now()
	raw, err := s.LLM.AnalyzeChart(ctx, llm.ChartInput{Image: req.Image, MimeType: req.MimeType, Timeframe: req.Timeframe})
	metrics.ObserveAnalysisDurationMs(float64(s.now().Sub(start).Milliseconds()))
	if err != nil {
		metrics.AnalysisFailed.Inc()
		telemetry.Error("analysis.llm.failed", map[string]any{
			"user_id":   req.UserID,
			"timeframe": req.Timeframe,
			"error":     err.Error(),
		})
		return AnalyzeOutcome{}, err
	}

	normalized := Normalize(raw)
	metrics.AnalysisCompleted.Inc()
	if normalized.Source == SourceHeuristic {
		metrics.AnalysisHeuristic.Inc()
		telemetry.Warn("analysis.normalize.heuristic", map[string]any{"user_id": req.UserID, "raw_len": len(raw)})
	}

	out := AnalyzeOutcome{Normalized: normalized}
	if req.UserID != "" {
		if err := s.record(ctx, req, &out); err != nil {
			return AnalyzeOutcome{}, err
		}
	}
	s.notify(ctx, req, normalized.Result)

	telemetry.Info("analysis.completed", map[string]any{
		"analysis_id":    out.AnalysisID,
		"user_id":        req.UserID,
		"timeframe":      req.Timeframe,
		"source":         string(normalized.Source),
		"recommendation": normalized.Result.Recommendation,
		"certainty":      normalized.Result.Certainty,
	})
	return out, nil
}

// record debits one credit, archives the chart and stores the history entry.
// Only the debit can fail the request; archive and history writes are best-effort.
func (s *Service) record(ctx context.Context, req AnalyzeRequest, out *AnalyzeOutcome) error {
	if s.Credits != nil {
		b, err := s.Credits.Consume(ctx, req.UserID, 1)
		if err != nil {
			return err
		}
		remaining := b.Credits
		out.CreditsRemaining = &remaining
	}

	analysis := Analysis{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Timeframe: req.Timeframe,
		Source:    out.Source,
		Result:    out.Result,
		Model:     s.Model,
		CreatedAt: s.now().UTC(),
	}
	if req.Telegram != nil {
		analysis.TelegramUserID = req.Telegram.ID
	}

	if s.Store != nil {
		key, _, err := s.Store.Save(ctx, req.UserID, chartFileName(req), req.MimeType, bytes.NewReader(req.Image))
		if err != nil {
			telemetry.Warn("analysis.chart.archive_failed", map[string]any{"user_id": req.UserID, "error": err.Error()})
		} else {
			analysis.ChartKey = key
		}
	}

	if err := s.Repo.Create(ctx, analysis); err != nil {
		telemetry.Error("analysis.record.failed", map[string]any{"user_id": req.UserID, "error": err.Error()})
		return nil
	}
	out.AnalysisID = analysis.ID
	return nil
}

// notify sends the summary off the request path. It outlives a disconnecting client.
func (s *Service) notify(ctx context.Context, req AnalyzeRequest, res AnalysisResult) {
	if s.Notifier == nil || req.Telegram == nil {
		return
	}
	chatID := req.Telegram.ID
	summary := telegram.Summary{
		Timeframe:       req.Timeframe,
		Recommendation:  res.Recommendation,
		Certainty:       res.Certainty,
		EntryPrice:      res.EntryPrice,
		StopLoss:        res.StopLoss,
		TakeProfit:      res.TakeProfit,
		RiskRewardRatio: res.RiskRewardRatio,
	}
	detached := context.WithoutCancel(ctx)

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		ctx, cancel := context.WithTimeout(detached, notifyTimeout)
		defer cancel()
		if err := s.Notifier.NotifyAnalysis(ctx, chatID, summary); err != nil {
			telemetry.Warn("analysis.notify.failed", map[string]any{
				"chat_id": chatID,
				"error":   err.Error(),
			})
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.notifications.Wait()
}

// Get returns one stored analysis owned by userID.
func (s *Service) Get(ctx context.Context, userID, analysisID string) (Analysis, error) {
	return s.Repo.GetByID(ctx, userID, analysisID)
}

// List returns the user's history, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// IsUpstream reports whether err came from the inference provider with an HTTP status.
func IsUpstream(err error) (*llm.UpstreamError, bool) {
	var upstream *llm.UpstreamError
	if errors.As(err, &upstream) {
		return upstream, true
	}
	return nil, false
}

func chartFileName(req AnalyzeRequest) string {
	if name := strings.TrimSpace(req.FileName); name != "" {
		return name
	}
	switch req.MimeType {
	case "image/jpeg", "image/jpg":
		return "chart.jpg"
	case "image/webp":
		return "chart.webp"
	default:
		return "chart.png"
	}
}
