package failure

import (
	"errors"
	"io"
	"testing"
)

func TestStageError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"chunk", At(StageTranscription, "chunk", 3, io.EOF), "transcription failed for chunk 3: EOF"},
		{"slide", At(StageExport, "slide", 2, io.EOF), "export failed for slide 2: EOF"},
		{"default section", At(StageExport, "", 0, io.EOF), "export failed for chunk 0: EOF"},
		{"no index", At(StageExtraction, "", -1, io.EOF), "extraction failed: EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAt_Nil(t *testing.T) {
	if err := At(StageMerge, "chunk", 0, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestKinds_Unwrap(t *testing.T) {
	wrapped := At(StageTranscription, "chunk", 1, Transient(errors.New("429")))
	if !errors.Is(wrapped, ErrTransientProvider) {
		t.Error("expected transient kind through StageError")
	}
	if !IsRetryable(wrapped) {
		t.Error("expected retryable")
	}
	if IsRetryable(Fatal(errors.New("401"))) {
		t.Error("fatal errors must not be retryable")
	}
	if !errors.Is(ErrPayloadTooLarge, ErrIOFailure) || errors.Is(ErrPayloadTooLarge, ErrInvalidArgument) {
		t.Error("payload too large must be an io failure, not an invalid argument")
	}
	if !errors.Is(IO("clip", io.ErrShortWrite), ErrIOFailure) {
		t.Error("expected io failure kind")
	}
	var se *StageError
	if !errors.As(wrapped, &se) || se.Index != 1 {
		t.Errorf("expected StageError with index 1, got %+v", se)
	}
}
