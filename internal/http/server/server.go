// Package server assembles the Fiber application.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"pdfmerge/internal/config"
	"pdfmerge/internal/http/handlers"
	"pdfmerge/internal/http/middleware"
	"pdfmerge/internal/infra/logging"
	"pdfmerge/internal/merge"
	"pdfmerge/internal/pdfcodec"
	"pdfmerge/internal/sessions"
	"pdfmerge/internal/tokens"
)

// Deps are the collaborators of the HTTP layer. Only Config is required.
type Deps struct {
	Config  config.Config
	Redis   *redis.Client
	Tokens  *tokens.Cache
	Store   *sessions.Store
	Codec   merge.Codec
	Storage fiber.Storage
}

// New creates and configures the Fiber app.
func New(deps Deps) *fiber.App {
	cfg := deps.Config
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Server.BodyLimitBytes,
		ErrorHandler:          errorHandler,
	})

	codec := deps.Codec
	if codec == nil {
		codec = pdfcodec.New(pdfcodec.Options{
			ValidationMode: cfg.Merge.ValidationMode,
			DividerPage:    cfg.Merge.DividerPage,
		})
	}
	store := deps.Store
	if store == nil {
		store = sessions.NewStore(codec, cfg.Merge.SessionTTL)
	}

	mwDeps := middleware.Deps{Storage: deps.Storage}
	var limits handlers.DocumentLimits
	if deps.Tokens != nil {
		mwDeps.Tokens = deps.Tokens
		limits = deps.Tokens
	}
	middleware.Register(app, cfg, mwDeps)

	v1 := app.Group("/v1")
	handlers.NewMergeService(cfg, deps.Redis, store, codec, limits).Routes(v1)
	v1.Get("/monitor", monitor.New())

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		msg = e.Message
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}
