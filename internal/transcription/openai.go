package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// OpenAIConfig configures the Whisper transcription endpoint
type OpenAIConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// OpenAIProvider calls POST {base}/audio/transcriptions with verbose_json output
type OpenAIProvider struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAI creates a Whisper API provider. The API key is required.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, failure.Invalid("openai api key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAIProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider label used in metrics
func (p *OpenAIProvider) Name() string { return "openai" }

// Close is a no-op; the HTTP client holds no per-run resources
func (p *OpenAIProvider) Close() error { return nil }

// verboseResponse is the verbose_json body of the transcription endpoint
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Transcribe uploads the artifact and returns its segments
func (p *OpenAIProvider) Transcribe(ctx context.Context, artifact types.ChunkArtifact, vocabulary string) ([]types.Utterance, error) {
	body, contentType, err := p.multipartBody(artifact.Path, vocabulary)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, failure.Fatal(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var out verboseResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, failure.Fatal(fmt.Errorf("parse response: %w", err))
	}

	utterances := make([]types.Utterance, 0, len(out.Segments))
	for _, s := range out.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		utterances = append(utterances, types.Utterance{Start: s.Start, End: s.End, Text: text})
	}
	// some models omit segments and only return the full text
	if len(out.Segments) == 0 && strings.TrimSpace(out.Text) != "" {
		utterances = append(utterances, types.Utterance{Start: 0, End: out.Duration, Text: strings.TrimSpace(out.Text)})
	}
	return utterances, nil
}

func (p *OpenAIProvider) multipartBody(path, vocabulary string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", failure.IO("open chunk", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", failure.Fatal(fmt.Errorf("create form file: %w", err))
	}
	if _, err := io.Copy(fileWriter, f); err != nil {
		return nil, "", failure.IO("read chunk", err)
	}

	fields := [][2]string{
		{"model", p.cfg.Model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if p.cfg.Language != "" {
		fields = append(fields, [2]string{"language", p.cfg.Language})
	}
	if vocabulary != "" {
		fields = append(fields, [2]string{"prompt", vocabulary})
	}
	for _, kv := range fields {
		if err := writer.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", failure.Fatal(fmt.Errorf("write field %s: %w", kv[0], err))
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", failure.Fatal(fmt.Errorf("close multipart writer: %w", err))
	}
	return &buf, writer.FormDataContentType(), nil
}

// classifyStatus maps an HTTP error status to a provider error kind.
// 408, 429 and 5xx are transient.
func classifyStatus(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	err := fmt.Errorf("HTTP %d: %s", code, msg)

	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return failure.Transient(err)
	default:
		return failure.Fatal(err)
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failure.Transient(err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return failure.Transient(err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return failure.Transient(err)
	}
	return failure.Fatal(err)
}
