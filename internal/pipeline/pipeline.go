// Package pipeline orchestrates one transcription run per source kind: it
// extracts audio, splits it into bounded sections, transcribes the sections
// concurrently and merges the results in section order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/chunking"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/cleanup"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/media"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/storage"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/timeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// DefaultChunkDuration is the window length used when a request sets none
const DefaultChunkDuration = 900.0

// Checkpointer persists completed sections so a failed run can resume
type Checkpointer interface {
	LoadSections(ctx context.Context, runKey string) (map[int]types.Section, error)
	SaveSection(ctx context.Context, runKey string, section types.Section) error
	ClearSections(ctx context.Context, runKey string) error
}

// Options are the per-process pipeline settings
type Options struct {
	ChunkDuration    float64
	Concurrency      int
	MaxChunkBytes    int64
	WorkDir          string
	KeepArtifacts    bool
	AudioExtension   string
	Language         string
	PresentationExts []string
}

// Request describes one run
type Request struct {
	RunID         string
	Source        string
	Output        string  // empty: <source dir>/<stem>_transcript.txt
	ChunkDuration float64 // 0: Options.ChunkDuration
	Vocabulary    string
	Progress      func(Progress)
}

// Progress is reported after every completed section
type Progress struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Index     int    `json:"index"`
	Restored  bool   `json:"restored,omitempty"`
}

// Result summarizes a finished run
type Result struct {
	RunID      string
	RunKey     string
	Kind       types.SourceKind
	Source     string
	Output     string
	Sections   int
	Restored   int
	Duration   float64
	WordCount  int
	Transcript timeline.Transcript
}

// Pipeline runs transcriptions. It is safe for concurrent use.
type Pipeline struct {
	probe       media.Probe
	provider    transcription.Provider
	exporter    *chunking.Exporter
	checkpoints Checkpointer
	opts        Options
	metrics     *metrics.Metrics
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCheckpoints enables resume from a checkpoint store
func WithCheckpoints(c Checkpointer) Option {
	return func(p *Pipeline) {
		p.checkpoints = c
	}
}

// New creates a pipeline over a media probe and a transcription provider
func New(probe media.Probe, provider transcription.Provider, opts Options, options ...Option) *Pipeline {
	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = DefaultChunkDuration
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.AudioExtension == "" {
		opts.AudioExtension = ".mp3"
	}
	if !strings.HasPrefix(opts.AudioExtension, ".") {
		opts.AudioExtension = "." + opts.AudioExtension
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "lecture-transcriber")
	}
	if len(opts.PresentationExts) == 0 {
		opts.PresentationExts = []string{".m4a", ".mp3", ".wav", ".wma", ".aac"}
	}

	p := &Pipeline{
		probe:    probe,
		provider: provider,
		exporter: chunking.NewExporter(probe, opts.AudioExtension, opts.MaxChunkBytes),
		opts:     opts,
		metrics:  metrics.DefaultMetrics,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// run is the state of one request while it executes
type run struct {
	id      string
	key     string
	kind    types.SourceKind
	source  string
	output  string
	chunk   float64
	vocab   string
	workDir string
	report  func(Progress)
	log     zerolog.Logger
}

// begin validates the request, derives the run key and creates the work dir.
// No media is touched before validation passes.
func (p *Pipeline) begin(kind types.SourceKind, req Request) (*run, error) {
	info, err := os.Stat(req.Source)
	if err != nil {
		return nil, failure.Invalid("source %s: %v", req.Source, err)
	}
	if !info.Mode().IsRegular() {
		return nil, failure.Invalid("source %s is not a regular file", req.Source)
	}

	chunk := req.ChunkDuration
	if chunk == 0 {
		chunk = p.opts.ChunkDuration
	}
	if chunk <= 0 {
		return nil, failure.Invalid("chunk duration must be positive, got %v", chunk)
	}

	output, err := resolveOutput(req.Source, req.Output)
	if err != nil {
		return nil, err
	}

	id := req.RunID
	if id == "" {
		id = uuid.NewString()
	}

	if err := os.MkdirAll(p.opts.WorkDir, 0755); err != nil {
		return nil, failure.IO("create work dir", err)
	}
	workDir, err := os.MkdirTemp(p.opts.WorkDir, cleanup.RunDirPrefix+"*")
	if err != nil {
		return nil, failure.IO("create work dir", err)
	}

	r := &run{
		id:      id,
		key:     RunKey(kind, req.Source, info, chunk, p.provider.Name(), p.opts.Language, req.Vocabulary),
		kind:    kind,
		source:  req.Source,
		output:  output,
		chunk:   chunk,
		vocab:   req.Vocabulary,
		workDir: workDir,
		report:  req.Progress,
		log:     logging.WithRun(id, string(kind), req.Source),
	}
	return r, nil
}

// end removes the work dir unless artifacts are kept
func (p *Pipeline) end(r *run) {
	if p.opts.KeepArtifacts {
		r.log.Info().Str("work_dir", r.workDir).Msg("Keeping run artifacts")
		return
	}
	if err := os.RemoveAll(r.workDir); err != nil {
		r.log.Warn().Err(err).Str("work_dir", r.workDir).Msg("Failed to remove work dir")
	}
}

func resolveOutput(source, output string) (string, error) {
	if output == "" {
		output = storage.DefaultOutputPath(source)
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		return "", failure.Invalid("output %s: %v", output, err)
	}
	if srcAbs, _ := filepath.Abs(source); srcAbs == abs {
		return "", failure.Invalid("output %s would overwrite the source", output)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return "", failure.Invalid("output %s is a directory", output)
	}
	parent, err := os.Stat(filepath.Dir(abs))
	if err != nil {
		return "", failure.Invalid("output directory %s: %v", filepath.Dir(abs), err)
	}
	if !parent.IsDir() {
		return "", failure.Invalid("output parent %s is not a directory", filepath.Dir(abs))
	}
	return abs, nil
}

var runKeyNamespace = uuid.MustParse("6f1c9a52-4a53-4c1e-9d43-2b1f8e0d7a10")

// RunKey identifies a run by everything that changes its transcript. Reruns
// of the same source with the same settings share checkpoints.
func RunKey(kind types.SourceKind, source string, info os.FileInfo, chunk float64, provider, language, vocabulary string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}
	name := fmt.Sprintf("%s|%s|%d|%d|%g|%s|%s|%s",
		kind, abs, info.Size(), info.ModTime().UnixNano(), chunk, provider, language, vocabulary)
	return uuid.NewSHA1(runKeyNamespace, []byte(name)).String()
}

// sectionFunc produces the section at index i
type sectionFunc func(ctx context.Context, i int) (types.Section, error)

// transcribeSections runs produce for every index in [0, total) with bounded
// concurrency. Results land in their index slot, so completion order never
// affects output order. Checkpointed sections are restored instead of run.
func (p *Pipeline) transcribeSections(ctx context.Context, r *run, total int, produce sectionFunc) ([]types.Section, int, error) {
	restored := map[int]types.Section{}
	if p.checkpoints != nil {
		loaded, err := p.checkpoints.LoadSections(ctx, r.key)
		if err != nil {
			r.log.Warn().Err(err).Msg("Ignoring unreadable checkpoints")
		} else {
			restored = loaded
		}
	}

	results := make([]types.Section, total)
	var (
		mu        sync.Mutex
		completed int
		reused    int
	)
	done := func(i int, fromCheckpoint bool) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if fromCheckpoint {
			reused++
		}
		if r.report != nil {
			r.report(Progress{RunID: r.id, Stage: "transcribe", Completed: completed, Total: total, Index: i, Restored: fromCheckpoint})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i := 0; i < total; i++ {
		if s, ok := restored[i]; ok && s.Index == i {
			results[i] = s
			p.metrics.RecordCheckpointHit()
			r.log.Debug().Int("section", i).Msg("Restored section from checkpoint")
			done(i, true)
			continue
		}
		if gctx.Err() != nil {
			break
		}

		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := produce(gctx, i)
			if err != nil {
				return err
			}
			results[i] = s

			if p.checkpoints != nil {
				// a lost checkpoint only costs a re-transcription on resume
				if err := p.checkpoints.SaveSection(gctx, r.key, s); err != nil {
					r.log.Warn().Err(err).Int("section", i).Msg("Failed to save checkpoint")
				}
			}
			r.log.Info().Int("section", i).Int("utterances", len(s.Utterances)).Msg("Section transcribed")
			done(i, false)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	// the loop stops early when the parent context is cancelled
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return results, reused, nil
}

// transcribe calls the provider for one artifact and wraps failures with the section index
func (p *Pipeline) transcribe(ctx context.Context, r *run, section string, artifact types.ChunkArtifact) ([]types.Utterance, error) {
	utterances, err := p.provider.Transcribe(ctx, artifact, r.vocab)
	if err != nil {
		return nil, failure.At(failure.StageTranscription, section, artifact.Window.Index, err)
	}
	return utterances, nil
}

// finish merges the sections, writes the transcript atomically and clears
// checkpoints. Nothing is written unless every section succeeded.
func (p *Pipeline) finish(ctx context.Context, r *run, mode timeline.Mode, sections []types.Section, restored int, duration float64) (*Result, error) {
	transcript := timeline.Merge(mode, sections)
	p.metrics.RecordSectionsMerged(len(sections))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storage.WriteFileAtomic(r.output, transcript.Render(), 0644); err != nil {
		return nil, failure.At(failure.StageOutput, "", -1, failure.IO("write transcript", err))
	}

	if p.checkpoints != nil {
		if err := p.checkpoints.ClearSections(context.WithoutCancel(ctx), r.key); err != nil {
			r.log.Warn().Err(err).Msg("Failed to clear checkpoints")
		}
	}

	return &Result{
		RunID:      r.id,
		RunKey:     r.key,
		Kind:       r.kind,
		Source:     r.source,
		Output:     r.output,
		Sections:   len(sections),
		Restored:   restored,
		Duration:   duration,
		WordCount:  transcript.WordCount(),
		Transcript: transcript,
	}, nil
}

// observe records run metrics and the final log line
func (p *Pipeline) observe(r *run, started time.Time, res *Result, err error) {
	status := types.StatusCompleted
	if err != nil {
		status = types.StatusFailed
		if errors.Is(err, context.Canceled) {
			status = types.StatusCancelled
		}
	}
	p.metrics.RecordRunEnd(string(r.kind), status, time.Since(started).Seconds())

	if err != nil {
		r.log.Error().Err(err).Str("status", status).Msg("Transcription failed")
		return
	}
	r.log.Info().
		Str("output", res.Output).
		Int("sections", res.Sections).
		Int("restored", res.Restored).
		Int("words", res.WordCount).
		Dur("elapsed", time.Since(started)).
		Msg("Transcription complete")
}
