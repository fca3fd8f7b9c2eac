package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited paces every request of the wrapped oracle
type RateLimited struct {
	Oracle
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute requests per minute with a burst of one.
// perMinute <= 0 disables pacing.
func NewRateLimited(o Oracle, perMinute int) *RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimited{Oracle: o, limiter: rate.NewLimiter(limit, 1)}
}

func (r *RateLimited) Act(ctx context.Context, req ActRequest) (*ActResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Oracle.Act(ctx, req)
}

func (r *RateLimited) Verify(ctx context.Context, req VerifyRequest) (bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return r.Oracle.Verify(ctx, req)
}

func (r *RateLimited) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Oracle.Extract(ctx, req)
}

func (r *RateLimited) Observe(ctx context.Context, req ObserveRequest) ([]Observation, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Oracle.Observe(ctx, req)
}

func (r *RateLimited) Ask(ctx context.Context, question string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.Oracle.Ask(ctx, question)
}
