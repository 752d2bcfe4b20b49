package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type fakeSender struct {
	params []*bot.SendMessageParams
	err    error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: 1}, nil
}

func TestNotifyAnalysisSendsHTMLMessage(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender)

	err := n.NotifyAnalysis(context.Background(), 42, Summary{
		Timeframe:       "4h",
		Recommendation:  "LONG",
		Certainty:       85,
		EntryPrice:      "$100 <breakout>",
		StopLoss:        "$95 (-5%)",
		TakeProfit:      "$110 (+10%)",
		RiskRewardRatio: "2:1",
	})
	if err != nil {
		t.Fatalf("NotifyAnalysis: %v", err)
	}
	if len(sender.params) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.params))
	}
	p := sender.params[0]
	if p.ChatID != int64(42) {
		t.Fatalf("unexpected chat id %v", p.ChatID)
	}
	if p.ParseMode != models.ParseModeHTML {
		t.Fatalf("unexpected parse mode %q", p.ParseMode)
	}
	if !strings.Contains(p.Text, "<b>LONG</b>") || !strings.Contains(p.Text, "&lt;breakout&gt;") {
		t.Fatalf("unexpected text %q", p.Text)
	}
}

func TestNotifyAnalysisSkipsWithoutChat(t *testing.T) {
	sender := &fakeSender{}
	if err := NewNotifier(sender).NotifyAnalysis(context.Background(), 0, Summary{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(sender.params) != 0 {
		t.Fatalf("expected no message")
	}
}

func TestNotifyAnalysisReturnsSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("forbidden: bot was blocked by the user")}
	if err := NewNotifier(sender).NotifyAnalysis(context.Background(), 7, Summary{Recommendation: "SHORT"}); err == nil {
		t.Fatalf("expected error")
	}
}
