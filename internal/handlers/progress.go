package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
)

// ProgressHandler streams job progress over WebSocket
type ProgressHandler struct {
	jobs JobQueue
	log  zerolog.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(jobs JobQueue) *ProgressHandler {
	return &ProgressHandler{
		jobs: jobs,
		log:  logging.WithComponent("ws"),
	}
}

// Register mounts GET /ws/transcriptions/:id
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws/transcriptions/:id", websocket.New(h.Handle))
}

// Handle sends every progress update of the job as a JSON message, then the
// final job status, then closes.
func (h *ProgressHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	id := c.Params("id")
	job, ok := h.jobs.Get(id)
	if !ok {
		c.WriteJSON(fiber.Map{"error": "Job not found", "code": "ERR_NOT_FOUND"})
		return
	}

	log := h.log.With().Str("job_id", id).Logger()
	log.Debug().Msg("WebSocket connection established")

	updates, unsubscribe := job.Subscribe()
	defer unsubscribe()

	for p := range updates {
		if err := c.WriteJSON(p); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	if err := c.WriteJSON(job.Status()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
	}
}
