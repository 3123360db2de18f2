package transcription

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// GoogleConfig configures Google Cloud Speech-to-Text
type GoogleConfig struct {
	CredentialsFile string
	Language        string
	Encoding        string
	SampleRateHertz int32
}

type recognizeFunc func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)

// GoogleProvider uses LongRunningRecognize with inline audio content
type GoogleProvider struct {
	cfg       GoogleConfig
	client    *speech.Client
	recognize recognizeFunc
}

// NewGoogle creates a Google Speech provider. Without a credentials file the
// client falls back to GOOGLE_APPLICATION_CREDENTIALS.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	p := &GoogleProvider{cfg: cfg, client: c}
	p.recognize = func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := c.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	}
	return p, nil
}

// Name returns the provider label used in metrics
func (p *GoogleProvider) Name() string { return "google" }

// Close releases the gRPC connection
func (p *GoogleProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Transcribe sends the chunk inline and maps each result to one utterance
func (p *GoogleProvider) Transcribe(ctx context.Context, artifact types.ChunkArtifact, vocabulary string) ([]types.Utterance, error) {
	audio, err := os.ReadFile(artifact.Path)
	if err != nil {
		return nil, failure.IO("read chunk", err)
	}

	resp, err := p.recognize(ctx, p.request(audio, vocabulary))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyGRPC(err)
	}
	return utterancesFromResults(resp.GetResults()), nil
}

func (p *GoogleProvider) request(audio []byte, vocabulary string) *speechpb.LongRunningRecognizeRequest {
	encoding := speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[strings.ToUpper(p.cfg.Encoding)]; ok {
		encoding = speechpb.RecognitionConfig_AudioEncoding(v)
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            p.cfg.SampleRateHertz,
		LanguageCode:               languageCode(p.cfg.Language),
		EnableWordTimeOffsets:      true,
		EnableAutomaticPunctuation: true,
	}
	if phrases := vocabularyPhrases(vocabulary); len(phrases) > 0 {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: phrases}}
	}

	return &speechpb.LongRunningRecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
}

// utterancesFromResults turns each final result into an utterance starting at
// its first word. Results without word offsets start where the previous
// result ended.
func utterancesFromResults(results []*speechpb.SpeechRecognitionResult) []types.Utterance {
	utterances := make([]types.Utterance, 0, len(results))
	var prevEnd float64
	for _, r := range results {
		end := r.GetResultEndTime().AsDuration().Seconds()
		if len(r.GetAlternatives()) == 0 {
			prevEnd = end
			continue
		}
		alt := r.GetAlternatives()[0]
		text := strings.TrimSpace(alt.GetTranscript())

		start := prevEnd
		if words := alt.GetWords(); len(words) > 0 {
			start = words[0].GetStartTime().AsDuration().Seconds()
		}
		prevEnd = end

		if text == "" {
			continue
		}
		utterances = append(utterances, types.Utterance{Start: start, End: end, Text: text})
	}
	return utterances
}

// vocabularyPhrases splits a hint on commas and newlines
func vocabularyPhrases(vocabulary string) []string {
	fields := strings.FieldsFunc(vocabulary, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	phrases := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			phrases = append(phrases, f)
		}
	}
	return phrases
}

// languageCode defaults English to en-US; other codes pass through
func languageCode(lang string) string {
	if lang == "" || lang == "en" {
		return "en-US"
	}
	return lang
}

// classifyGRPC maps gRPC status codes to provider error kinds
func classifyGRPC(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return failure.Fatal(err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return failure.Transient(fmt.Errorf("google speech %s: %s", st.Code(), st.Message()))
	default:
		return failure.Fatal(fmt.Errorf("google speech %s: %s", st.Code(), st.Message()))
	}
}
