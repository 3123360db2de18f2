// Package mock provides a deterministic transcription provider for offline
// runs and tests. It never touches the network.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// Provider returns PerChunk utterances spread evenly over each artifact's window
type Provider struct {
	PerChunk int
	Delay    time.Duration

	mu     sync.Mutex
	errors map[int][]error
	calls  atomic.Int64
	seen   []int
}

// New creates a mock provider
func New(perChunk int) *Provider {
	if perChunk < 1 {
		perChunk = 1
	}
	return &Provider{PerChunk: perChunk, errors: map[int][]error{}}
}

// FailOnce queues err to be returned on the next call for chunk index
func (p *Provider) FailOnce(index int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errors == nil {
		p.errors = map[int][]error{}
	}
	p.errors[index] = append(p.errors[index], err)
}

// Name returns the provider label used in metrics
func (p *Provider) Name() string { return "mock" }

// Close is a no-op
func (p *Provider) Close() error { return nil }

// Calls returns how many Transcribe calls were made
func (p *Provider) Calls() int { return int(p.calls.Load()) }

// Seen returns the chunk indexes transcribed, in call order
func (p *Provider) Seen() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.seen))
	copy(out, p.seen)
	return out
}

// Transcribe returns utterances "chunk <i> line <k>" at local offsets
// k*duration/PerChunk.
func (p *Provider) Transcribe(ctx context.Context, artifact types.ChunkArtifact, _ string) ([]types.Utterance, error) {
	p.calls.Add(1)
	idx := artifact.Window.Index

	p.mu.Lock()
	p.seen = append(p.seen, idx)
	var err error
	if queued := p.errors[idx]; len(queued) > 0 {
		err, p.errors[idx] = queued[0], queued[1:]
	}
	p.mu.Unlock()

	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	step := artifact.Window.Duration() / float64(p.PerChunk)
	utterances := make([]types.Utterance, p.PerChunk)
	for k := range utterances {
		utterances[k] = types.Utterance{
			Start: float64(k) * step,
			End:   float64(k+1) * step,
			Text:  fmt.Sprintf("chunk %d line %d", idx, k),
		}
	}
	return utterances, nil
}
