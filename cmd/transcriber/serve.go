package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/cleanup"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/handlers"
)

const logBufferLines = 1000

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := newFlagSet("serve", stderr)
	configPath := fs.String("config", "", "path to config file")
	port := fs.Int("port", 0, "override server.port")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return usageErrorf("%v", err)
	}
	if fs.NArg() != 0 {
		return usageErrorf("serve takes no arguments")
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		return err
	}
	if *port != 0 {
		if *port < 1 || *port > 65535 {
			return usageErrorf("-port out of range: %d", *port)
		}
		cfg.Server.Port = *port
	}

	logBuffer := NewLogBuffer(logBufferLines)
	initLogging(cfg, io.MultiWriter(stderr, logBuffer))

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	pool := a.workerPool(cfg.Workers.Count, cfg.Workers.QueueSize, cfg.Storage.OutputDir)
	pool.Start(ctx)
	defer pool.Stop()

	scheduler := cleanup.NewScheduler(cfg.Pipeline.WorkDir, cfg.Cleanup.IntervalMinutes, cfg.Cleanup.MaxAgeHours,
		cleanup.WithUploadDir(cfg.Storage.UploadDir))
	scheduler.Start()
	defer scheduler.Stop()

	bodyLimit := max(cfg.Server.BodyLimitKB*1024, cfg.Server.MaxUploadMB*1024*1024)
	app := newServer(bodyLimit, logBuffer)
	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	paths := handlers.PathPolicy{
		SourceDirs: append([]string{cfg.Storage.UploadDir}, cfg.Server.SourceDirs...),
		OutputDir:  cfg.Storage.OutputDir,
	}
	handlers.NewTranscriptionHandler(pool, a.db, paths).Register(app)
	handlers.NewUploadHandler(pool, cfg.Storage.UploadDir, cfg.Server.MaxUploadMB).Register(app)
	handlers.NewProgressHandler(pool).Register(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("Server starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully...")
	grace := time.Duration(cfg.Server.ShutdownGrace) * time.Second
	if err := app.ShutdownWithTimeout(grace); err != nil {
		log.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	return nil
}

// newServer builds the Fiber app with middleware and the operational routes
func newServer(bodyLimit int, logs *LogBuffer) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: logs}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logs.GetLogs(),
		})
	})
	return app
}

// LogBuffer keeps the most recent log lines in memory
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewLogBuffer creates a buffer holding at most max lines
func NewLogBuffer(max int) *LogBuffer {
	return &LogBuffer{lines: make([]string, 0, max), max: max}
}

func (lb *LogBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			lb.lines = append(lb.lines, line)
		}
	}
	if len(lb.lines) > lb.max {
		lb.lines = append(lb.lines[:0:0], lb.lines[len(lb.lines)-lb.max:]...)
	}
	return len(p), nil
}

// GetLogs returns a copy of the buffered lines, oldest first
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
