package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/pipeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/queue"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/storage"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/timeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// JobQueue accepts and tracks jobs
type JobQueue interface {
	Submit(kind types.SourceKind, req pipeline.Request) (*queue.Job, error)
	Get(id string) (*queue.Job, bool)
}

// RunStore reads recorded runs
type RunStore interface {
	GetRun(ctx context.Context, runID string) (types.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]types.RunRecord, error)
}

// CreateRequest is the body of POST /transcriptions
type CreateRequest struct {
	Source        string  `json:"source" validate:"required"`
	Kind          string  `json:"kind" validate:"required,oneof=video audio presentation"`
	ChunkDuration float64 `json:"chunk_duration" validate:"gte=0"`
	Output        string  `json:"output"`
	Vocabulary    string  `json:"vocabulary" validate:"max=4096"`
}

// TranscriptionHandler serves the transcription job API
type TranscriptionHandler struct {
	jobs     JobQueue
	runs     RunStore
	paths    PathPolicy
	validate *validator.Validate
	log      zerolog.Logger
}

// NewTranscriptionHandler creates a new transcription handler. Client source
// and output paths are confined by paths.
func NewTranscriptionHandler(jobs JobQueue, runs RunStore, paths PathPolicy) *TranscriptionHandler {
	return &TranscriptionHandler{
		jobs:     jobs,
		runs:     runs,
		paths:    paths,
		validate: validator.New(),
		log:      logging.WithComponent("http"),
	}
}

// Register mounts the routes on router
func (h *TranscriptionHandler) Register(router fiber.Router) {
	router.Post("/transcriptions", h.Create)
	router.Get("/transcriptions", h.List)
	router.Get("/transcriptions/:id", h.Get)
	router.Get("/transcriptions/:id/text", h.Text)
}

func errorJSON(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}

// Create queues a transcription of a local file
func (h *TranscriptionHandler) Create(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "ERR_INVALID_BODY", "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "ERR_VALIDATION", validationMessage(err))
	}

	source, err := h.paths.Source(req.Source)
	if err != nil {
		h.log.Warn().Err(err).Msg("Rejected source path")
		return errorJSON(c, fiber.StatusForbidden, "ERR_PATH_NOT_ALLOWED", err.Error())
	}
	output, err := h.paths.Output(req.Output)
	if err != nil {
		h.log.Warn().Err(err).Msg("Rejected output path")
		return errorJSON(c, fiber.StatusForbidden, "ERR_PATH_NOT_ALLOWED", err.Error())
	}

	job, err := h.jobs.Submit(types.SourceKind(req.Kind), pipeline.Request{
		Source:        source,
		Output:        output,
		ChunkDuration: req.ChunkDuration,
		Vocabulary:    req.Vocabulary,
	})
	switch {
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrStopped):
		return errorJSON(c, fiber.StatusServiceUnavailable, "ERR_QUEUE_FULL", err.Error())
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to submit job")
		return errorJSON(c, fiber.StatusInternalServerError, "ERR_SUBMIT_FAILED", "Failed to queue job")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  job.ID,
		"status":  types.StatusQueued,
		"message": "Transcription queued",
	})
}

// List returns recent runs, newest first
func (h *TranscriptionHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		return errorJSON(c, fiber.StatusBadRequest, "ERR_VALIDATION", "limit must be between 1 and 500")
	}
	runs, err := h.runs.ListRuns(c.UserContext(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		return errorJSON(c, fiber.StatusInternalServerError, "ERR_DATABASE", "Failed to list runs")
	}
	return c.JSON(runs)
}

// Get returns the live status of a queued job, or the recorded run
func (h *TranscriptionHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if job, ok := h.jobs.Get(id); ok {
		return c.JSON(job.Status())
	}

	rec, err := h.runs.GetRun(c.UserContext(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "ERR_NOT_FOUND", "Transcription not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "ERR_DATABASE", "Failed to load run")
	}
	return c.JSON(rec)
}

// Text returns the transcript as text, or as parsed sections with ?format=json
func (h *TranscriptionHandler) Text(c *fiber.Ctx) error {
	path, status, err := h.transcriptPath(c.UserContext(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "ERR_NOT_FOUND", "Transcription not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "ERR_DATABASE", "Failed to load run")
	}
	if status != types.StatusCompleted {
		return errorJSON(c, fiber.StatusConflict, "ERR_NOT_READY", fmt.Sprintf("Transcription is %s", status))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		h.log.Error().Err(err).Str("path", path).Msg("Failed to read transcript")
		return errorJSON(c, fiber.StatusInternalServerError, "ERR_READ_FAILED", "Failed to read transcript file")
	}

	if c.Query("format") == "json" {
		transcript, err := timeline.Parse(strings.NewReader(string(content)))
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, "ERR_PARSE_FAILED", err.Error())
		}
		return c.JSON(transcript)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Send(content)
}

func (h *TranscriptionHandler) transcriptPath(ctx context.Context, id string) (string, string, error) {
	if job, ok := h.jobs.Get(id); ok {
		st := job.Status()
		return st.Output, st.Status, nil
	}
	rec, err := h.runs.GetRun(ctx, id)
	if err != nil {
		return "", "", err
	}
	return rec.OutputPath, rec.Status, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
