package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/archive"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/chunking"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/timeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// PresentationExt is the only accepted presentation archive format
const PresentationExt = ".pptx"

// TranscribePresentation transcribes the narration embedded in a .pptx, one
// section per slide audio in numeric media order. Slide timestamps accumulate
// across slides.
func (p *Pipeline) TranscribePresentation(ctx context.Context, req Request) (res *Result, err error) {
	if !strings.EqualFold(filepath.Ext(req.Source), PresentationExt) {
		return nil, failure.Invalid("presentation must be a %s file, got %s", PresentationExt, filepath.Base(req.Source))
	}

	r, err := p.begin(types.SourcePresentation, req)
	if err != nil {
		return nil, err
	}
	defer p.end(r)

	started := time.Now()
	p.metrics.RecordRunStart()
	defer func() { p.observe(r, started, res, err) }()

	r.log.Info().Str("output", r.output).Msg("Starting presentation transcription")

	mediaDir := filepath.Join(r.workDir, "media")
	slideDir := filepath.Join(r.workDir, "slides")
	for _, dir := range []string{mediaDir, slideDir} {
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, failure.At(failure.StageExtraction, "", -1, failure.IO("create work dir", err))
		}
	}

	files, err := archive.ExtractAudio(r.source, mediaDir, p.opts.PresentationExts)
	if err != nil {
		return nil, failure.At(failure.StageExtraction, "", -1, err)
	}
	if len(files) == 0 {
		return nil, failure.Invalid("presentation %s has no embedded audio", filepath.Base(r.source))
	}
	r.log.Info().Int("slides", len(files)).Msg("Extracted slide audio")

	sections, restored, err := p.transcribeSections(ctx, r, len(files), func(ctx context.Context, i int) (types.Section, error) {
		return p.slide(ctx, r, files[i], i, len(files), slideDir)
	})
	if err != nil {
		return nil, err
	}

	var total float64
	for _, s := range sections {
		total += s.Duration
	}
	return p.finish(ctx, r, timeline.Slides, sections, restored, total)
}

// slide normalizes one media entry to the provider codec, measures it and
// transcribes it as a single artifact.
func (p *Pipeline) slide(ctx context.Context, r *run, file archive.MediaFile, i, count int, dir string) (types.Section, error) {
	path := filepath.Join(dir, chunking.ArtifactName(r.source, i, count, p.opts.AudioExtension))
	if err := p.probe.ExtractAudio(ctx, file.Path, path); err != nil {
		return types.Section{}, failure.At(failure.StageExtraction, "slide", i, err)
	}

	duration, err := p.probe.Duration(ctx, path)
	if err != nil {
		return types.Section{}, failure.At(failure.StageExtraction, "slide", i, err)
	}

	size, err := chunking.CheckPayload(path, p.opts.MaxChunkBytes)
	if err != nil {
		return types.Section{}, failure.At(failure.StageExport, "slide", i, err)
	}

	w := types.Window{Index: i, Start: 0, End: duration}
	utterances, err := p.transcribe(ctx, r, "slide", types.ChunkArtifact{Window: w, Path: path, Size: size})
	if err != nil {
		return types.Section{}, err
	}
	if !p.opts.KeepArtifacts {
		os.Remove(path)
	}

	r.log.Debug().Int("section", i).Str("media", file.Name).Float64("duration", duration).Msg("Slide transcribed")
	return types.Section{Index: i, Window: w, Duration: duration, Utterances: utterances}, nil
}
