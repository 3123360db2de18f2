// Package transcription wraps the remote speech-to-text providers. Every
// provider returns utterances with offsets relative to the submitted artifact.
package transcription

import (
	"context"
	"fmt"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/config"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/transcription/mock"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// Provider transcribes one exported chunk. vocabulary is passed to the
// provider unchanged to bias recognition of domain terms.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, artifact types.ChunkArtifact, vocabulary string) ([]types.Utterance, error)
	Close() error
}

// New builds the configured provider wrapped with retry of transient errors
func New(ctx context.Context, cfg config.TranscriptionConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch cfg.Provider {
	case "openai":
		p, err = NewOpenAI(OpenAIConfig{
			BaseURL:  cfg.OpenAI.BaseURL,
			APIKey:   cfg.OpenAI.APIKey,
			Model:    cfg.OpenAI.Model,
			Language: cfg.Language,
			Timeout:  time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
		})
	case "google":
		p, err = NewGoogle(ctx, GoogleConfig{
			CredentialsFile: cfg.Google.CredentialsFile,
			Language:        cfg.Language,
			Encoding:        cfg.Google.Encoding,
			SampleRateHertz: cfg.Google.SampleRateHertz,
		})
	case "mock":
		p = mock.New(3)
	default:
		return nil, failure.Invalid("unknown transcription provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}

	return WithRetry(p, RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay(),
		MaxDelay:    cfg.Retry.MaxDelay(),
	}), nil
}
