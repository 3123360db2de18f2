package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/chunking"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/media"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/timeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// TranscribeVideo transcribes the audio track of a video file
func (p *Pipeline) TranscribeVideo(ctx context.Context, req Request) (*Result, error) {
	return p.continuous(ctx, types.SourceVideo, req)
}

// TranscribeAudio transcribes a standalone audio file. The source is
// re-encoded through the same extraction step as video.
func (p *Pipeline) TranscribeAudio(ctx context.Context, req Request) (*Result, error) {
	if !media.ValidateAudioFormat(req.Source) {
		return nil, failure.Invalid("unsupported audio format: %s", filepath.Ext(req.Source))
	}
	return p.continuous(ctx, types.SourceAudio, req)
}

// Transcribe dispatches on kind
func (p *Pipeline) Transcribe(ctx context.Context, kind types.SourceKind, req Request) (*Result, error) {
	switch kind {
	case types.SourceVideo:
		return p.TranscribeVideo(ctx, req)
	case types.SourceAudio:
		return p.TranscribeAudio(ctx, req)
	case types.SourcePresentation:
		return p.TranscribePresentation(ctx, req)
	}
	return nil, failure.Invalid("unknown source kind %q", kind)
}

func (p *Pipeline) continuous(ctx context.Context, kind types.SourceKind, req Request) (res *Result, err error) {
	r, err := p.begin(kind, req)
	if err != nil {
		return nil, err
	}
	defer p.end(r)

	started := time.Now()
	p.metrics.RecordRunStart()
	defer func() { p.observe(r, started, res, err) }()

	r.log.Info().Float64("chunk_duration", r.chunk).Str("output", r.output).Msg("Starting transcription")

	audio := filepath.Join(r.workDir, media.Stem(r.source)+"_audio"+p.opts.AudioExtension)
	if err := p.probe.ExtractAudio(ctx, r.source, audio); err != nil {
		return nil, failure.At(failure.StageExtraction, "", -1, err)
	}

	total, err := p.probe.Duration(ctx, audio)
	if err != nil {
		return nil, failure.At(failure.StageExtraction, "", -1, err)
	}

	windows, err := chunking.Segment(total, r.chunk)
	if err != nil {
		return nil, failure.At(failure.StageSegmentation, "", -1, err)
	}
	r.log.Info().Float64("duration", total).Int("chunks", len(windows)).Msg("Audio segmented")

	chunkDir := filepath.Join(r.workDir, "chunks")
	if err := os.Mkdir(chunkDir, 0755); err != nil {
		return nil, failure.At(failure.StageExport, "", -1, failure.IO("create chunk dir", err))
	}
	if err := chunking.CheckDestination(chunkDir); err != nil {
		return nil, failure.At(failure.StageExport, "", -1, err)
	}

	sections, restored, err := p.transcribeSections(ctx, r, len(windows), func(ctx context.Context, i int) (types.Section, error) {
		w := windows[i]
		artifact, err := p.exporter.ExportWindow(ctx, audio, w, len(windows), chunkDir)
		if err != nil {
			return types.Section{}, err
		}
		utterances, err := p.transcribe(ctx, r, "chunk", artifact)
		if err != nil {
			return types.Section{}, err
		}
		if !p.opts.KeepArtifacts {
			os.Remove(artifact.Path)
		}
		return types.Section{Index: i, Window: w, Duration: w.Duration(), Utterances: utterances}, nil
	})
	if err != nil {
		return nil, err
	}

	return p.finish(ctx, r, timeline.Continuous, sections, restored, total)
}
