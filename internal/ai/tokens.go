package ai

import (
	"context"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter estimates prompt sizes and warns when a chunk exceeds the budget
type TokenCounter struct {
	Oracle
	max    int
	logger *zap.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter wraps o. maxTokens <= 0 disables the warning.
func NewTokenCounter(o Oracle, maxTokens int, logger *zap.Logger) *TokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCounter{Oracle: o, max: maxTokens, logger: logger.Named("tokens")}
}

// Count returns the number of tokens in text. Without an encoding it falls back to
// four bytes per token.
func (t *TokenCounter) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(t.Model())
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			t.logger.Debug("token encoding unavailable, estimating", zap.Error(err))
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TokenCounter) check(kind, dom string) {
	if t.max <= 0 || dom == "" {
		return
	}
	if n := t.Count(dom); n > t.max {
		t.logger.Warn("chunk exceeds token budget",
			zap.String("request", kind),
			zap.Int("tokens", n),
			zap.Int("max", t.max))
	}
}

func (t *TokenCounter) Act(ctx context.Context, req ActRequest) (*ActResponse, error) {
	t.check("act", req.DOM)
	return t.Oracle.Act(ctx, req)
}

func (t *TokenCounter) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	t.check("extract", req.DOM)
	return t.Oracle.Extract(ctx, req)
}

func (t *TokenCounter) Observe(ctx context.Context, req ObserveRequest) ([]Observation, error) {
	t.check("observe", req.DOM)
	return t.Oracle.Observe(ctx, req)
}
