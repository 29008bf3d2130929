package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"pdfmerge/internal/config"
	"pdfmerge/internal/http/server"
	"pdfmerge/internal/infra/logging"
	"pdfmerge/internal/infra/postgres"
	"pdfmerge/internal/pdfcodec"
	"pdfmerge/internal/sessions"
	"pdfmerge/internal/tokens"
)

func main() {
	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.MergeCacheDB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	codec := pdfcodec.New(pdfcodec.Options{
		ValidationMode: cfg.Merge.ValidationMode,
		DividerPage:    cfg.Merge.DividerPage,
	})
	store := sessions.NewStore(codec, cfg.Merge.SessionTTL)
	defer store.Close()
	if cfg.Merge.SessionTTL > 0 && cfg.Merge.SessionSweepInterval > 0 {
		go store.Run(ctx, cfg.Merge.SessionSweepInterval)
	}

	var tokenCache *tokens.Cache
	if cfg.Auth.Postgres.Enabled() {
		db := postgres.NewDB()
		defer db.Close()
		tokenCache = startTokenReloader(ctx, cfg, db)
	} else {
		logging.Warn("No token database configured, API keys are not checked")
	}

	app := server.New(server.Deps{
		Config: cfg,
		Redis:  rdb,
		Tokens: tokenCache,
		Store:  store,
		Codec:  codec,
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// startTokenReloader loads API tokens once and keeps them fresh. The returned
// cache stays unready while the database is unreachable.
func startTokenReloader(ctx context.Context, cfg config.Config, db *postgres.DB) *tokens.Cache {
	cache := tokens.NewCache()
	dsn, err := postgres.DSN(cfg.Auth.Postgres)
	if err != nil {
		logging.Error("Invalid token database settings", "error", err)
		return cache
	}
	if conn, err := db.Get(dsn); err != nil {
		logging.Warn("Token database unavailable", "error", err)
	} else if err := postgres.Ping(conn); err != nil {
		logging.Warn("Token database unreachable", "error", err)
	}

	reloader := tokens.NewReloader(postgres.NewTokenRepository(db, dsn), cache, cfg.Auth.TokenReloadInterval)
	if err := reloader.LoadOnce(ctx); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	reloader.Start(ctx)
	return cache
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	signal.Stop(sigint)

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
