package transcription

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

func chunkFile(t *testing.T) types.ChunkArtifact {
	t.Helper()
	p := filepath.Join(t.TempDir(), "lecture_part001.mp3")
	if err := os.WriteFile(p, []byte("ID3fake-audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return types.ChunkArtifact{Window: types.Window{Index: 1, Start: 900, End: 1800}, Path: p, Size: 13}
}

func TestOpenAI_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		want := map[string]string{
			"model":                     "whisper-1",
			"language":                  "en",
			"response_format":           "verbose_json",
			"timestamp_granularities[]": "segment",
			"prompt":                    "Kubernetes, etcd",
		}
		for k, v := range want {
			if got := r.FormValue(k); got != v {
				t.Errorf("field %s: expected %q, got %q", k, v, got)
			}
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		if header.Filename != "lecture_part001.mp3" || string(data) != "ID3fake-audio" {
			t.Errorf("unexpected upload %s %q", header.Filename, data)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"hi there","duration":900,"segments":[
			{"id":0,"start":0.0,"end":2.5,"text":" Hello everyone."},
			{"id":1,"start":2.5,"end":3.0,"text":"   "},
			{"id":2,"start":4.2,"end":7.9,"text":" Today we cover etcd. "}]}`)
	}))
	defer server.Close()

	p, err := NewOpenAI(OpenAIConfig{BaseURL: server.URL + "/v1/", APIKey: "sk-test", Language: "en"})
	if err != nil {
		t.Fatal(err)
	}
	utterances, err := p.Transcribe(context.Background(), chunkFile(t), "Kubernetes, etcd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []types.Utterance{
		{Start: 0, End: 2.5, Text: "Hello everyone."},
		{Start: 4.2, End: 7.9, Text: "Today we cover etcd."},
	}
	if len(utterances) != len(want) {
		t.Fatalf("expected %d utterances, got %+v", len(want), utterances)
	}
	for i := range want {
		if utterances[i] != want[i] {
			t.Errorf("utterance %d: expected %+v, got %+v", i, want[i], utterances[i])
		}
	}
}

func TestOpenAI_TextOnlyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":" only text ","duration":12}`)
	}))
	defer server.Close()

	p, _ := NewOpenAI(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	utterances, err := p.Transcribe(context.Background(), chunkFile(t), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(utterances) != 1 || utterances[0].Text != "only text" || utterances[0].Start != 0 {
		t.Errorf("unexpected utterances %+v", utterances)
	}
}

func TestOpenAI_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, failure.ErrTransientProvider},
		{http.StatusRequestTimeout, failure.ErrTransientProvider},
		{http.StatusBadGateway, failure.ErrTransientProvider},
		{http.StatusServiceUnavailable, failure.ErrTransientProvider},
		{http.StatusUnauthorized, failure.ErrFatalProvider},
		{http.StatusBadRequest, failure.ErrFatalProvider},
		{http.StatusRequestEntityTooLarge, failure.ErrFatalProvider},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
			}))
			defer server.Close()

			p, _ := NewOpenAI(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
			_, err := p.Transcribe(context.Background(), chunkFile(t), "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOpenAI_ConnectionRefusedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p, _ := NewOpenAI(OpenAIConfig{BaseURL: url, APIKey: "k"})
	_, err := p.Transcribe(context.Background(), chunkFile(t), "")
	if !errors.Is(err, failure.ErrTransientProvider) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestOpenAI_MalformedBodyIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>`)
	}))
	defer server.Close()

	p, _ := NewOpenAI(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if _, err := p.Transcribe(context.Background(), chunkFile(t), ""); !errors.Is(err, failure.ErrFatalProvider) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); !errors.Is(err, failure.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
