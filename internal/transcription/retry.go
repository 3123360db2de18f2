package transcription

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// RetryPolicy bounds retries of transient provider errors
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff returns the wait before the given retry (1-based): BaseDelay doubled
// per retry and capped at MaxDelay.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

type retrying struct {
	Provider
	policy  RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// WithRetry retries transient failures of p with exponential backoff. Fatal
// errors and cancellation are returned immediately.
func WithRetry(p Provider, policy RetryPolicy) Provider {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &retrying{
		Provider: p,
		policy:   policy,
		sleep:    sleepCtx,
		metrics:  metrics.DefaultMetrics,
		log:      logging.WithComponent("transcription"),
	}
}

func (r *retrying) Transcribe(ctx context.Context, artifact types.ChunkArtifact, vocabulary string) ([]types.Utterance, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			r.metrics.RecordProviderRetry(r.Name())
			wait := r.policy.Backoff(attempt - 1)
			r.log.Warn().
				Err(lastErr).
				Int("chunk", artifact.Window.Index).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Retrying transient provider error")
			if err := r.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		started := time.Now()
		utterances, err := r.Provider.Transcribe(ctx, artifact, vocabulary)
		r.metrics.RecordProviderCall(r.Name(), err, time.Since(started).Seconds())
		if err == nil {
			return utterances, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !failure.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
