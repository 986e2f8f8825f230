package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/geocoder89/faceauth/internal/blob"
	"github.com/geocoder89/faceauth/internal/config"
	"github.com/geocoder89/faceauth/internal/db"
	"github.com/geocoder89/faceauth/internal/face"
	httpx "github.com/geocoder89/faceauth/internal/http"
	"github.com/geocoder89/faceauth/internal/observability"
	"github.com/geocoder89/faceauth/internal/queue/deleter"
	"github.com/geocoder89/faceauth/internal/ratelimit"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load the local env file when present; real deployments set env directly
	_ = godotenv.Load()

	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// tracing is opt-in by endpoint
	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, "faceauth", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}

		defer func() {
			sctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()

			if err := shutdown(sctx); err != nil {
				log.Error("tracer shutdown failed", "err", err)
			}
		}()
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	// pick the limiter backend
	var limiter ratelimit.Limiter

	if cfg.RateLimitBackend == "redis" {
		rl := ratelimit.NewRedisLimiter(
			ratelimit.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
			cfg.RateLimitMax, cfg.RateLimitWindow, log,
		)

		if err := rl.Ping(ctx); err != nil {
			log.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}

		defer rl.Close()
		limiter = rl
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	// pick the blob backend: a local store for dev, the media host otherwise
	var blobs blob.Store

	if cfg.BlobBaseURL != "" {
		blobs = blob.NewHTTPStore(cfg.BlobBaseURL, cfg.BlobAPIKey, cfg.UpstreamTimeout)
	} else {
		fs, err := blob.NewFSStore(filepath.Join(cfg.UploadDir, "blobs"))

		if err != nil {
			log.Error("blob store init failed", "err", err)
			os.Exit(1)
		}

		blobs = fs
		log.Warn("no blob host configured, storing reference images on local disk")
	}

	comparator := face.NewHTTPClient(cfg.ComparatorURL, cfg.UpstreamTimeout)

	// background deletion of superseded reference blobs
	deletions := deleter.New(deleter.Config{}, blobs, log, prom)

	deleterDone := make(chan struct{})

	go func() {
		defer close(deleterDone)
		deletions.Run(ctx)
	}()

	router, err := httpx.NewRouter(cfg, log, httpx.Deps{
		Pool:       pool,
		Limiter:    limiter,
		Blobs:      blobs,
		Comparator: comparator,
		Deletions:  deletions,
		Prom:       prom,
	})

	if err != nil {
		log.Error("router init failed", "err", err)
		os.Exit(1)
	}

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		sctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}

	// let the deleter drain in-flight work before exiting
	select {
	case <-deleterDone:
	case <-time.After(5 * time.Second):
		log.Warn("deletion queue did not drain in time")
	}
}
