package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/faceauth/internal/auth"
	"github.com/geocoder89/faceauth/internal/blob"
	"github.com/geocoder89/faceauth/internal/config"
	"github.com/geocoder89/faceauth/internal/face"
	"github.com/geocoder89/faceauth/internal/http/handlers"
	"github.com/geocoder89/faceauth/internal/http/middlewares"
	"github.com/geocoder89/faceauth/internal/imaging"
	"github.com/geocoder89/faceauth/internal/observability"
	"github.com/geocoder89/faceauth/internal/queue/deleter"
	"github.com/geocoder89/faceauth/internal/ratelimit"
	"github.com/geocoder89/faceauth/internal/repo/postgres"
	"github.com/geocoder89/faceauth/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps carries the long-lived collaborators main builds before the router.
type Deps struct {
	Pool       *pgxpool.Pool
	Limiter    ratelimit.Limiter
	Blobs      blob.Store
	Comparator face.Comparator
	Deletions  *deleter.Deleter
	Prom       *observability.Prom
}

func NewRouter(cfg config.Config, log *slog.Logger, deps Deps) (*gin.Engine, error) {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("faceauth"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))

	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health
	ping := func() error {
		if deps.Pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return deps.Pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// image staging for multipart uploads
	staging, err := imaging.NewManager(cfg.UploadDir, cfg.MaxImageWidth, log)

	if err != nil {
		return nil, err
	}

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(deps.Pool, deps.Prom)
	verificationsRepo := postgres.NewVerificationsRepo(deps.Pool, deps.Prom)

	// wire up the service layer
	tokens := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL)

	registration := service.NewRegistration(
		service.RegistrationConfig{BlobFolder: cfg.BlobFolder, UpstreamTimeout: cfg.UpstreamTimeout},
		usersRepo, deps.Blobs, deps.Comparator, deps.Deletions, log,
	)
	admission := service.NewAdmission(
		service.AdmissionConfig{MatchThreshold: cfg.MatchThreshold, BlobFolder: cfg.BlobFolder, UpstreamTimeout: cfg.UpstreamTimeout},
		usersRepo, verificationsRepo, deps.Blobs, deps.Comparator, tokens, deps.Deletions, deps.Prom, log,
	)
	lifecycle := service.NewLifecycle(
		service.LifecycleConfig{BlobFolder: cfg.BlobFolder, UpstreamTimeout: cfg.UpstreamTimeout},
		usersRepo, verificationsRepo, deps.Blobs, deps.Deletions, log,
	)

	authHandler := handlers.NewAuthHandler(registration, admission, staging)
	verificationsHandler := handlers.NewVerificationsHandler(lifecycle, staging, cfg.AdminSecret)

	// every image-carrying endpoint sits behind the limiter
	limited := middlewares.RateLimit(deps.Limiter, middlewares.KeyByIP)

	r.POST("/register", limited, authHandler.Register)
	r.POST("/login", limited, authHandler.Login)

	r.POST("/verifications", limited, verificationsHandler.Submit)
	r.POST("/verifications/:id/approve", verificationsHandler.Approve)
	r.POST("/verifications/reset", limited, verificationsHandler.Reset)

	return r, nil
}
