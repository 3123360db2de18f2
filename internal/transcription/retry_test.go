package transcription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// scripted returns the queued errors before succeeding
type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Close() error { return nil }
func (s *scripted) Transcribe(context.Context, types.ChunkArtifact, string) ([]types.Utterance, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return []types.Utterance{{Start: 1, Text: "ok"}}, nil
}

func newTestRetry(p Provider, attempts int) (*retrying, *[]time.Duration) {
	r := WithRetry(p, RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Second, MaxDelay: 5 * time.Second}).(*retrying)
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return r, &waits
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	p := &scripted{errs: []error{
		failure.Transient(errors.New("429")),
		failure.Transient(errors.New("503")),
	}}
	r, waits := newTestRetry(p, 4)

	utterances, err := r.Transcribe(context.Background(), types.ChunkArtifact{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(utterances) != 1 || p.calls != 3 {
		t.Errorf("expected success on third call, got %d calls", p.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Errorf("unexpected backoff sequence %v", *waits)
	}
}

func TestWithRetry_FatalNotRetried(t *testing.T) {
	p := &scripted{errs: []error{failure.Fatal(errors.New("401"))}}
	r, waits := newTestRetry(p, 4)

	_, err := r.Transcribe(context.Background(), types.ChunkArtifact{}, "")
	if !errors.Is(err, failure.ErrFatalProvider) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if p.calls != 1 || len(*waits) != 0 {
		t.Errorf("fatal error was retried: %d calls", p.calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	transient := failure.Transient(errors.New("timeout"))
	p := &scripted{errs: []error{transient, transient, transient}}
	r, _ := newTestRetry(p, 3)

	_, err := r.Transcribe(context.Background(), types.ChunkArtifact{}, "")
	if !errors.Is(err, failure.ErrTransientProvider) {
		t.Fatalf("expected transient error after exhausting attempts, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
}

func TestWithRetry_CancelledDuringBackoff(t *testing.T) {
	p := &scripted{errs: []error{failure.Transient(errors.New("503"))}}
	ctx, cancel := context.WithCancel(context.Background())
	r, _ := newTestRetry(p, 3)
	r.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	if _, err := r.Transcribe(ctx, types.ChunkArtifact{}, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected no call after cancellation, got %d", p.calls)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second}
	want := []time.Duration{0, 500 * time.Millisecond, time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for retry, w := range want {
		if got := p.Backoff(retry); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", retry, got, w)
		}
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
