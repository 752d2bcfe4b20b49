package analyses

import (
	"context"
	"sync"

	"github.com/FIipFIop/perp-prediction/internal/llm"
	"github.com/FIipFIop/perp-prediction/internal/telegram"
)

type stubAnalyzer struct {
	mu     sync.Mutex
	out    string
	err    error
	inputs []llm.ChartInput
}

func (s *stubAnalyzer) AnalyzeChart(ctx context.Context, input llm.ChartInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return "", s.err
	}
	return s.out, nil
}

func (s *stubAnalyzer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

type stubNotifier struct {
	mu      sync.Mutex
	chatIDs []int64
	sent    []telegram.Summary
	ctxErrs []error
	release chan struct{}
}

func (n *stubNotifier) NotifyAnalysis(ctx context.Context, chatID int64, s telegram.Summary) error {
	if n.release != nil {
		<-n.release
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chatIDs = append(n.chatIDs, chatID)
	n.sent = append(n.sent, s)
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	return nil
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

const structuredReply = "```json\n{\"recommendation\":\"LONG\",\"certainty\":85,\"entryPrice\":\"$100\",\"stopLoss\":\"$95 (-5%)\",\"takeProfit\":\"$110 (+10%)\",\"riskRewardRatio\":\"2:1\",\"report\":\"Breakout\"}\n```"
