// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/sygefi/ocr-mandats/internal/common"
	"github.com/sygefi/ocr-mandats/internal/engine"
	"github.com/sygefi/ocr-mandats/internal/pipeline"
	"github.com/sygefi/ocr-mandats/internal/repository"
	"github.com/sygefi/ocr-mandats/internal/validation"
)

// Processor runs documents through the extraction pipeline.
type Processor interface {
	Process(ctx context.Context, data []byte, ext string, opts pipeline.Options) (*pipeline.Result, error)
}

// ResultsStore reads and deletes persisted results. Nil disables the
// result endpoints.
type ResultsStore interface {
	GetByID(ctx context.Context, id string) (*repository.ResultRecord, error)
	List(ctx context.Context, limit, offset int) ([]*repository.ResultRecord, error)
	Delete(ctx context.Context, id string) error
}

// Exporter renders stored results as a workbook.
type Exporter interface {
	ExportResultsXLSX(ctx context.Context, limit int) ([]byte, error)
}

// Config holds the HTTP surface settings.
type Config struct {
	APIKey      string
	MaxFileSize int64
}

// Server wires the fiber app.
type Server struct {
	app       *fiber.App
	proc      Processor
	engines   *engine.Registry
	validator *validation.Service
	store     ResultsStore
	exporter  Exporter
	cfg       Config
	log       *slog.Logger
}

// New builds the app and its routes. store and exporter may be nil.
func New(
	proc Processor,
	engines *engine.Registry,
	validator *validation.Service,
	store ResultsStore,
	exporter Exporter,
	cfg Config,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 50 << 20
	}

	s := &Server{
		proc: proc, engines: engines, validator: validator,
		store: store, exporter: exporter, cfg: cfg, log: log,
	}

	app := fiber.New(fiber.Config{
		AppName:               "ocr-mandats",
		DisableStartupMessage: true,
		BodyLimit:             int(cfg.MaxFileSize),
		ErrorHandler:          s.errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Key, X-Request-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${method} ${path}\n",
	}))

	app.Get("/health", s.handleHealth)

	api := app.Group("/api/v1", s.requireAPIKey)
	api.Get("/engines", s.handleEngines)
	api.Post("/ocr/extract", s.handleExtract)
	api.Get("/ocr/results", s.handleListResults)
	api.Get("/ocr/results/export", s.handleExportResults)
	api.Get("/ocr/results/:id", s.handleGetResult)
	api.Delete("/ocr/results/:id", s.handleDeleteResult)
	api.Get("/validation/rules", s.handleValidationRules)
	api.Post("/validation/mandat", s.handleValidateMandat)
	api.Post("/validation/bordereau", s.handleValidateBordereau)

	s.app = app
	return s
}

// App exposes the fiber app for testing.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() error { return s.app.Shutdown() }

// requireAPIKey rejects API requests without the configured key. An empty
// configured key disables the check.
func (s *Server) requireAPIKey(c *fiber.Ctx) error {
	if s.cfg.APIKey != "" && c.Get("X-API-Key") != s.cfg.APIKey {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid API key")
	}
	return c.Next()
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"

	var fe *fiber.Error
	var appErr *common.AppError
	switch {
	case errors.As(err, &fe):
		code = fe.Code
		msg = fe.Message
	case errors.Is(err, common.ErrNotFound):
		code = fiber.StatusNotFound
		msg = "not found"
	case errors.Is(err, common.ErrUnsupportedFile):
		code = fiber.StatusUnsupportedMediaType
		msg = err.Error()
	case errors.Is(err, common.ErrFileTooLarge):
		code = fiber.StatusRequestEntityTooLarge
		msg = err.Error()
	case errors.Is(err, common.ErrInvalidInput):
		code = fiber.StatusBadRequest
		msg = err.Error()
	case errors.As(err, &appErr):
		code = fiber.StatusUnprocessableEntity
		msg = appErr.Message
	}

	if code >= 500 {
		s.log.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
