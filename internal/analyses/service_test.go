package analyses

import (
	"context"
	"errors"
	"testing"

	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/llm"
	local "github.com/FIipFIop/perp-prediction/internal/shared/storage/object/local"
	"github.com/FIipFIop/perp-prediction/internal/telegram"
)

func TestAnalyzeAnonymousDoesNotTouchCredits(t *testing.T) {
	analyzer := &stubAnalyzer{out: structuredReply}
	creditSvc := credits.NewService(0)
	repo := NewMemoryRepo()
	svc := NewService(analyzer, creditSvc, repo, nil, nil, "model")

	out, err := svc.Analyze(context.Background(), AnalyzeRequest{Image: pngBytes, MimeType: "image/png", Timeframe: "4h"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Result.Recommendation != "LONG" || out.Source != SourceStructured {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.AnalysisID != "" || out.CreditsRemaining != nil {
		t.Fatalf("anonymous analyses should not be recorded: %+v", out)
	}
	if got := analyzer.inputs[0]; got.Timeframe != "4h" || got.MimeType != "image/png" {
		t.Fatalf("unexpected chart input: %+v", got)
	}
}

func TestAnalyzeAuthenticatedConsumesOneCreditAndRecords(t *testing.T) {
	analyzer := &stubAnalyzer{out: structuredReply}
	creditSvc := credits.NewService(2)
	repo := NewMemoryRepo()
	store := local.New(t.TempDir())
	svc := NewService(analyzer, creditSvc, repo, store, nil, "model")
	ctx := context.Background()

	out, err := svc.Analyze(ctx, AnalyzeRequest{UserID: "user-1", Image: pngBytes, MimeType: "image/png", Timeframe: "1h"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.CreditsRemaining == nil || *out.CreditsRemaining != 1 {
		t.Fatalf("expected 1 credit remaining, got %v", out.CreditsRemaining)
	}
	stored, err := repo.GetByID(ctx, "user-1", out.AnalysisID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.ChartKey == "" || stored.Result.Certainty != 85 || stored.Model != "model" {
		t.Fatalf("unexpected stored analysis: %+v", stored)
	}
}

func TestAnalyzeRejectsWithoutCredits(t *testing.T) {
	analyzer := &stubAnalyzer{out: structuredReply}
	svc := NewService(analyzer, credits.NewService(0), nil, nil, nil, "model")

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{UserID: "user-1", Image: pngBytes, MimeType: "image/png", Timeframe: "1h"})
	if !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if analyzer.calls() != 0 {
		t.Fatalf("model should not be called without credits")
	}
}

func TestAnalyzeUpstreamFailureKeepsCredits(t *testing.T) {
	analyzer := &stubAnalyzer{err: &llm.UpstreamError{StatusCode: 429}}
	creditSvc := credits.NewService(1)
	svc := NewService(analyzer, creditSvc, nil, nil, nil, "model")
	ctx := context.Background()

	_, err := svc.Analyze(ctx, AnalyzeRequest{UserID: "user-1", Image: pngBytes, MimeType: "image/png", Timeframe: "1h"})
	if upstream, ok := IsUpstream(err); !ok || upstream.StatusCode != 429 {
		t.Fatalf("expected upstream 429, got %v", err)
	}
	b, _ := creditSvc.Balance(ctx, "user-1")
	if b.Credits != 1 {
		t.Fatalf("failed analysis must not consume credits, balance %d", b.Credits)
	}
}

func TestAnalyzeNotifiesVerifiedTelegramUser(t *testing.T) {
	analyzer := &stubAnalyzer{out: "looks like a long setup"}
	notifier := &stubNotifier{}
	svc := NewService(analyzer, nil, nil, nil, notifier, "model")

	out, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Image:     pngBytes,
		MimeType:  "image/png",
		Timeframe: "auto",
		Telegram:  &telegram.WebAppUser{ID: 99, FirstName: "Ana"},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Source != SourceHeuristic {
		t.Fatalf("expected heuristic source, got %q", out.Source)
	}
	svc.Wait()
	if len(notifier.chatIDs) != 1 || notifier.chatIDs[0] != 99 {
		t.Fatalf("expected notification to chat 99, got %v", notifier.chatIDs)
	}
	if notifier.sent[0].Recommendation != "LONG" || notifier.sent[0].Timeframe != "auto" {
		t.Fatalf("unexpected summary: %+v", notifier.sent[0])
	}
}

func TestAnalyzeWithoutClient(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, "")
	if _, err := svc.Analyze(context.Background(), AnalyzeRequest{Image: pngBytes, Timeframe: "1h"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAnalyzeNotificationSurvivesRequestCancel(t *testing.T) {
	notifier := &stubNotifier{release: make(chan struct{})}
	svc := NewService(&stubAnalyzer{out: structuredReply}, nil, nil, nil, notifier, "model")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Analyze(ctx, AnalyzeRequest{
		Image:     pngBytes,
		MimeType:  "image/png",
		Timeframe: "1h",
		Telegram:  &telegram.WebAppUser{ID: 42},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	cancel()
	close(notifier.release)
	svc.Wait()

	if len(notifier.chatIDs) != 1 || notifier.chatIDs[0] != 42 {
		t.Fatalf("expected notification to chat 42, got %v", notifier.chatIDs)
	}
	if notifier.ctxErrs[0] != nil {
		t.Fatalf("notification context was cancelled with the request: %v", notifier.ctxErrs[0])
	}
}
