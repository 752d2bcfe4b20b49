package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// MessageSender is the subset of *bot.Bot used for notifications.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier pushes analysis summaries to the user's private chat.
type Notifier struct {
	sender  MessageSender
	timeout time.Duration
}

// NewBotNotifier builds a Notifier backed by the Telegram Bot API.
func NewBotNotifier(botToken string) (*Notifier, error) {
	b, err := bot.New(botToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewNotifier(b), nil
}

// NewNotifier wraps an existing sender.
func NewNotifier(sender MessageSender) *Notifier {
	return &Notifier{sender: sender, timeout: 5 * time.Second}
}

// Summary is the subset of an analysis shown in chat.
type Summary struct {
	Timeframe       string
	Recommendation  string
	Certainty       int
	EntryPrice      string
	StopLoss        string
	TakeProfit      string
	RiskRewardRatio string
}

// NotifyAnalysis sends the summary to chatID. Failures are logged and returned.
func (n *Notifier) NotifyAnalysis(ctx context.Context, chatID int64, s Summary) error {
	if n == nil || n.sender == nil || chatID == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      FormatSummary(s),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		telemetry.Warn("telegram.notify.failed", map[string]any{"chat_id": chatID, "error": err.Error()})
		return err
	}
	telemetry.Info("telegram.notify.sent", map[string]any{"chat_id": chatID})
	return nil
}

// FormatSummary renders the HTML message body.
func FormatSummary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> · %d%% certainty\n", html.EscapeString(s.Recommendation), s.Certainty)
	if s.Timeframe != "" {
		fmt.Fprintf(&b, "Timeframe: %s\n", html.EscapeString(s.Timeframe))
	}
	fmt.Fprintf(&b, "Entry: %s\n", html.EscapeString(s.EntryPrice))
	fmt.Fprintf(&b, "Stop loss: %s\n", html.EscapeString(s.StopLoss))
	fmt.Fprintf(&b, "Take profit: %s\n", html.EscapeString(s.TakeProfit))
	fmt.Fprintf(&b, "R:R %s", html.EscapeString(s.RiskRewardRatio))
	return b.String()
}
