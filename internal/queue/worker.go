package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/pipeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/storage"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

var (
	// ErrQueueFull is returned when the job buffer is full
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned when submitting to a stopped pool
	ErrStopped = errors.New("worker pool stopped")
)

const driveAttempts = 3

// DefaultRetention is how long finished jobs stay in memory. Lookups after
// that are served from the run store.
const DefaultRetention = 10 * time.Minute

// Transcriber runs one pipeline request
type Transcriber interface {
	Transcribe(ctx context.Context, kind types.SourceKind, req pipeline.Request) (*pipeline.Result, error)
}

// RunStore records run state
type RunStore interface {
	SaveRun(ctx context.Context, rec types.RunRecord) error
}

// Uploader publishes a finished transcript and returns a link to it
type Uploader interface {
	Upload(ctx context.Context, transcriptPath, metaPath string) (string, error)
}

// Publisher announces finished runs
type Publisher interface {
	PublishRun(ctx context.Context, rec types.RunRecord) error
}

// WorkerPool manages a pool of workers processing transcription jobs
type WorkerPool struct {
	jobQueue     chan *Job
	workerCount  int
	transcriber  Transcriber
	localStorage *storage.LocalStorage
	store        RunStore
	uploader     Uploader
	publisher    Publisher
	sleep        func(ctx context.Context, d time.Duration) error
	retention    time.Duration
	log          zerolog.Logger

	mu      sync.RWMutex
	jobs    map[string]*Job
	stopped bool
	wg      sync.WaitGroup
}

// Option configures a WorkerPool
type Option func(*WorkerPool)

// WithLocalStorage sets where transcripts go when a request names no output
func WithLocalStorage(ls *storage.LocalStorage) Option {
	return func(wp *WorkerPool) { wp.localStorage = ls }
}

// WithRunStore records every run
func WithRunStore(s RunStore) Option {
	return func(wp *WorkerPool) { wp.store = s }
}

// WithUploader uploads finished transcripts
func WithUploader(u Uploader) Option {
	return func(wp *WorkerPool) { wp.uploader = u }
}

// WithPublisher announces finished runs
func WithPublisher(p Publisher) Option {
	return func(wp *WorkerPool) { wp.publisher = p }
}

// WithRetention sets how long finished jobs stay visible through Get
func WithRetention(d time.Duration) Option {
	return func(wp *WorkerPool) { wp.retention = d }
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount, queueSize int, transcriber Transcriber, opts ...Option) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	wp := &WorkerPool{
		jobQueue:     make(chan *Job, queueSize),
		workerCount:  workerCount,
		transcriber:  transcriber,
		localStorage: storage.NewLocalStorage(""),
		sleep:        sleepCtx,
		retention:    DefaultRetention,
		log:          logging.WithComponent("queue"),
		jobs:         map[string]*Job{},
	}
	for _, o := range opts {
		o(wp)
	}
	return wp
}

// Start launches the workers. Cancelling ctx aborts running jobs.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("workers", wp.workerCount).Msg("Starting worker pool")
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop stops accepting jobs and waits for queued jobs to drain
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.jobQueue)
	}
	wp.mu.Unlock()
	wp.wg.Wait()
}

// Submit queues a job and returns it immediately
func (wp *WorkerPool) Submit(kind types.SourceKind, req pipeline.Request) (*Job, error) {
	job := NewJob(uuid.NewString(), kind, req)

	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return nil, ErrStopped
	}

	select {
	case wp.jobQueue <- job:
	default:
		return nil, ErrQueueFull
	}
	wp.jobs[job.ID] = job

	wp.log.Info().
		Str("job_id", job.ID).
		Str("kind", string(kind)).
		Str("source", req.Source).
		Msg("Job enqueued")
	return job, nil
}

// Get looks up a job by ID
func (wp *WorkerPool) Get(id string) (*Job, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	job, ok := wp.jobs[id]
	return job, ok
}

// Wait blocks until job finishes or ctx is done and returns the job error
func Wait(ctx context.Context, job *Job) (*pipeline.Result, error) {
	select {
	case <-job.Done():
		return job.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()
	log.Debug().Msg("Worker started")

	for job := range wp.jobQueue {
		// Panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("job_id", job.ID).
						Str("stack", string(debug.Stack())).
						Msgf("PANIC processing job: %v", r)
					wp.complete(ctx, job, job.Request.Output, nil, fmt.Errorf("worker panic: %v", r))
				}
			}()

			wp.processJob(ctx, log, job)
		}()
	}
}

// processJob runs the pipeline and the publishing steps for one job
func (wp *WorkerPool) processJob(ctx context.Context, log zerolog.Logger, job *Job) {
	log = log.With().Str("job_id", job.ID).Logger()
	log.Info().Msg("Processing job")
	job.setStatus(types.StatusProcessing)

	req := job.Request
	if req.Output == "" {
		out, err := wp.localStorage.OutputPath(req.Source)
		if err != nil {
			wp.complete(ctx, job, "", nil, err)
			return
		}
		req.Output = out
	}
	req.Progress = job.setProgress

	wp.saveRun(ctx, log, types.RunRecord{
		RunID:      job.ID,
		Kind:       job.Kind,
		SourcePath: req.Source,
		OutputPath: req.Output,
		Status:     types.StatusProcessing,
		CreatedAt:  job.CreatedAt,
	})

	res, err := wp.transcriber.Transcribe(ctx, job.Kind, req)
	wp.complete(ctx, job, req.Output, res, err)
}

// complete records the outcome, uploads and publishes, then releases waiters
func (wp *WorkerPool) complete(ctx context.Context, job *Job, output string, res *pipeline.Result, err error) {
	log := wp.log.With().Str("job_id", job.ID).Logger()
	// bookkeeping must survive pool shutdown
	bg := context.WithoutCancel(ctx)

	rec := types.RunRecord{
		RunID:      job.ID,
		Kind:       job.Kind,
		SourcePath: job.Request.Source,
		OutputPath: output,
		Status:     types.StatusCompleted,
		CreatedAt:  job.CreatedAt,
		FinishedAt: time.Now(),
	}

	switch {
	case err != nil:
		rec.Status = types.StatusFailed
		if errors.Is(err, context.Canceled) {
			rec.Status = types.StatusCancelled
		}
		rec.Error = err.Error()
		log.Error().Err(err).Msg("Job failed")
	case res != nil:
		rec.OutputPath = res.Output
		rec.Sections = res.Sections
		rec.Duration = res.Duration
		rec.WordCount = res.WordCount

		metaPath, merr := wp.localStorage.SaveMeta(rec)
		if merr != nil {
			log.Warn().Err(merr).Msg("Failed to write metadata sidecar")
			metaPath = ""
		}
		if wp.uploader != nil {
			rec.DriveURL = wp.upload(ctx, log, res.Output, metaPath)
			job.setDriveURL(rec.DriveURL)
		}
	}

	wp.saveRun(bg, log, rec)
	if wp.publisher != nil {
		if perr := wp.publisher.PublishRun(bg, rec); perr != nil {
			log.Warn().Err(perr).Msg("Failed to publish run event")
		}
	}

	job.finish(rec.Status, res, err)
	wp.evictAfter(job.ID, wp.retention)
	if err == nil {
		log.Info().
			Str("output", rec.OutputPath).
			Str("gdrive", rec.DriveURL).
			Msg("Job completed successfully")
	}
}

// upload tries the Drive upload three times with quadratic backoff. Failure
// leaves the local transcript as the only copy.
func (wp *WorkerPool) upload(ctx context.Context, log zerolog.Logger, transcriptPath, metaPath string) string {
	var err error
	for attempt := 1; attempt <= driveAttempts; attempt++ {
		var url string
		url, err = wp.uploader.Upload(ctx, transcriptPath, metaPath)
		if err == nil {
			return url
		}
		log.Warn().Err(err).Msgf("Google Drive upload attempt %d/%d failed", attempt, driveAttempts)
		if attempt < driveAttempts {
			if serr := wp.sleep(ctx, time.Duration(attempt*attempt)*time.Second); serr != nil {
				break
			}
		}
	}
	log.Warn().Err(err).Msg("Google Drive upload failed, continuing with local save only")
	return ""
}

// evictAfter drops a finished job from the in-memory index once d elapses
func (wp *WorkerPool) evictAfter(id string, d time.Duration) {
	evict := func() {
		wp.mu.Lock()
		delete(wp.jobs, id)
		wp.mu.Unlock()
	}
	if d <= 0 {
		evict()
		return
	}
	time.AfterFunc(d, evict)
}

func (wp *WorkerPool) saveRun(ctx context.Context, log zerolog.Logger, rec types.RunRecord) {
	if wp.store == nil {
		return
	}
	if err := wp.store.SaveRun(ctx, rec); err != nil {
		log.Error().Err(err).Msg("Database save failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
