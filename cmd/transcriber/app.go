package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/cleanup"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/config"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/events"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/media"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/pipeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/queue"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/storage"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/transcription"
)

// app holds the components shared by the transcribe commands and the server
type app struct {
	cfg       *config.Config
	db        *storage.MetadataDB
	provider  transcription.Provider
	pipeline  *pipeline.Pipeline
	publisher *events.Publisher
	drive     *storage.DriveClient
	log       zerolog.Logger
}

func initLogging(cfg *config.Config, w io.Writer) {
	logging.InitTo(w, cfg.Logging)
}

// newApp opens the database, builds the provider and the pipeline. The
// caller must call close.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, log: logging.WithComponent("app")}

	if err := cleanup.EnsureDir(cfg.Pipeline.WorkDir); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	provider, err := transcription.New(ctx, cfg.Transcription)
	if err != nil {
		a.close()
		return nil, err
	}
	a.provider = provider

	ff := media.NewFFmpeg(cfg.Media)
	var opts []pipeline.Option
	if cfg.Pipeline.Checkpoints {
		opts = append(opts, pipeline.WithCheckpoints(db))
	}
	a.pipeline = pipeline.New(ff, provider, pipeline.Options{
		ChunkDuration:    cfg.Pipeline.ChunkDurationSeconds,
		Concurrency:      cfg.Pipeline.Concurrency,
		MaxChunkBytes:    cfg.Pipeline.MaxChunkBytes,
		WorkDir:          cfg.Pipeline.WorkDir,
		KeepArtifacts:    cfg.Pipeline.KeepArtifacts,
		AudioExtension:   ff.Extension(),
		Language:         cfg.Transcription.Language,
		PresentationExts: cfg.Presentation.AudioExtensions,
	}, opts...)

	a.publisher = events.New(cfg.Kafka)

	// Google Drive is optional; a missing token only disables uploads
	if cfg.GoogleDrive.Enabled {
		drive, err := storage.NewDriveClient(ctx, cfg.GoogleDrive.CredentialsFile, cfg.GoogleDrive.TokenFile, cfg.GoogleDrive.FolderName)
		switch {
		case errors.Is(err, storage.ErrNoDriveToken):
			a.log.Warn().Msg("Google Drive enabled but not authorized, run drive-login; saving locally only")
		case err != nil:
			a.log.Warn().Err(err).Msg("Google Drive not available, saving locally only")
		default:
			a.drive = drive
			a.log.Info().Str("folder", cfg.GoogleDrive.FolderName).Msg("Google Drive integration enabled")
		}
	}

	a.log.Info().
		Str("provider", provider.Name()).
		Str("work_dir", cfg.Pipeline.WorkDir).
		Int("concurrency", cfg.Pipeline.Concurrency).
		Msg("Components initialized")
	return a, nil
}

// workerPool builds a pool wired to the run store, Drive and Kafka. Transcripts
// without an explicit output go to outputDir, or next to the source when empty.
func (a *app) workerPool(workers, queueSize int, outputDir string) *queue.WorkerPool {
	opts := []queue.Option{
		queue.WithLocalStorage(storage.NewLocalStorage(outputDir)),
		queue.WithRunStore(a.db),
		queue.WithPublisher(a.publisher),
	}
	if a.drive != nil {
		opts = append(opts, queue.WithUploader(a.drive))
	}
	return queue.NewWorkerPool(workers, queueSize, a.pipeline, opts...)
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing Kafka publisher")
		}
	}
	if a.provider != nil {
		a.provider.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func loadConfig(path string, offline bool) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath
	}
	// the default path may be absent; an explicit one must exist
	allowMissing := path == config.DefaultPath
	if offline {
		return config.LoadOffline(path, allowMissing)
	}
	return config.Load(path, allowMissing)
}
