package handlers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/media"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/pipeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/queue"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// UploadHandler accepts media files over multipart form and queues them
type UploadHandler struct {
	jobs      JobQueue
	uploadDir string
	maxSizeMB int
	log       zerolog.Logger
}

// NewUploadHandler creates a new upload handler. Files are stored under
// uploadDir; maxSizeMB of 0 disables the route.
func NewUploadHandler(jobs JobQueue, uploadDir string, maxSizeMB int) *UploadHandler {
	return &UploadHandler{
		jobs:      jobs,
		uploadDir: uploadDir,
		maxSizeMB: maxSizeMB,
		log:       logging.WithComponent("upload"),
	}
}

// Register mounts POST /transcriptions/upload
func (h *UploadHandler) Register(router fiber.Router) {
	if h.maxSizeMB <= 0 {
		return
	}
	router.Post("/transcriptions/upload", h.Handle)
}

// InferKind picks the source kind from a file name
func InferKind(filename string) types.SourceKind {
	switch {
	case strings.EqualFold(filepath.Ext(filename), pipeline.PresentationExt):
		return types.SourcePresentation
	case media.ValidateAudioFormat(filename):
		return types.SourceAudio
	}
	return types.SourceVideo
}

// Handle processes the upload request. Form fields: file (required), kind,
// chunk_duration, vocabulary.
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "ERR_NO_FILE", "No file uploaded")
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return errorJSON(c, fiber.StatusRequestEntityTooLarge, "ERR_FILE_TOO_LARGE",
			fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB))
	}

	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) || filepath.Ext(name) == "" {
		return errorJSON(c, fiber.StatusBadRequest, "ERR_INVALID_FORMAT", "File name needs an extension")
	}

	kind := InferKind(name)
	if k := c.FormValue("kind"); k != "" {
		kind = types.SourceKind(k)
	}
	if !kind.Valid() {
		return errorJSON(c, fiber.StatusBadRequest, "ERR_VALIDATION", fmt.Sprintf("Unknown kind %q", kind))
	}

	var chunk float64
	if v := c.FormValue("chunk_duration"); v != "" {
		chunk, err = strconv.ParseFloat(v, 64)
		if err != nil || chunk < 0 {
			return errorJSON(c, fiber.StatusBadRequest, "ERR_VALIDATION", "chunk_duration must be a non-negative number")
		}
	}

	// one directory per upload keeps the original stem for the transcript name
	dir := filepath.Join(h.uploadDir, uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.log.Error().Err(err).Msg("Failed to create upload directory")
		return errorJSON(c, fiber.StatusInternalServerError, "ERR_SAVE_FAILED", "Failed to save file")
	}
	path := filepath.Join(dir, name)
	if err := c.SaveFile(file, path); err != nil {
		h.log.Error().Err(err).Msg("Failed to save uploaded file")
		os.RemoveAll(dir)
		return errorJSON(c, fiber.StatusInternalServerError, "ERR_SAVE_FAILED", "Failed to save file")
	}

	job, err := h.jobs.Submit(kind, pipeline.Request{
		Source:        path,
		ChunkDuration: chunk,
		Vocabulary:    c.FormValue("vocabulary"),
	})
	if err != nil {
		os.RemoveAll(dir)
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrStopped) {
			return errorJSON(c, fiber.StatusServiceUnavailable, "ERR_QUEUE_FULL", err.Error())
		}
		h.log.Error().Err(err).Msg("Failed to submit job")
		return errorJSON(c, fiber.StatusInternalServerError, "ERR_SUBMIT_FAILED", "Failed to queue job")
	}

	h.log.Info().
		Str("job_id", job.ID).
		Str("file", name).
		Int64("size_kb", file.Size/1024).
		Msg("Upload queued")

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  job.ID,
		"kind":    kind,
		"status":  types.StatusQueued,
		"message": "File uploaded successfully, processing started",
	})
}
