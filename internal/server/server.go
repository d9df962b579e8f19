// Package server exposes the marketplace over HTTP. Handlers stay thin:
// bind, call the domain service, translate errors.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	commercedomain "github.com/fabworks/cbbstore/internal/commerce/domain"
	"github.com/fabworks/cbbstore/internal/config"
	deliverydomain "github.com/fabworks/cbbstore/internal/delivery/domain"
	obsmetrics "github.com/fabworks/cbbstore/internal/observability/metrics"
	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	"github.com/fabworks/cbbstore/internal/ratelimit"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"github.com/fabworks/cbbstore/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the HTTP surface.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {}),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	registrySvc     registrydomain.Service
	commerceSvc     commercedomain.Service
	poolSvc         pooldomain.Service
	deliverySvc     deliverydomain.Service
	scheduler       *scheduler.Scheduler
	checkoutLimiter *ratelimit.CheckoutLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	RegistrySvc registrydomain.Service
	CommerceSvc commercedomain.Service
	PoolSvc     pooldomain.Service
	DeliverySvc deliverydomain.Service
	Scheduler   *scheduler.Scheduler

	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		registrySvc:     p.RegistrySvc,
		commerceSvc:     p.CommerceSvc,
		poolSvc:         p.PoolSvc,
		deliverySvc:     p.DeliverySvc,
		scheduler:       p.Scheduler,
		checkoutLimiter: p.CheckoutLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerRegistryRoutes()
	svc.registerUserRoutes()
	svc.registerCollaboratorRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRegistryRoutes() {
	registry := s.engine.Group("/v1/registry")

	registry.POST("/resolve", s.ResolveCBB)
	registry.GET("/search", s.SearchCBBs)
	registry.GET("/popular", s.GetPopularCBBs)
}

func (s *Server) registerUserRoutes() {
	v1 := s.engine.Group("/v1", s.UserRequired())

	v1.POST("/checkout", s.CheckoutRateLimit(), s.Checkout)
	v1.GET("/receipts", s.ListReceipts)
	v1.GET("/receipts/:id", s.GetReceipt)
	v1.POST("/receipts/:id/deliver", s.DeliverReceipt)

	v1.GET("/pool", s.GetPoolStatus)
	v1.GET("/pool/ledger", s.ListLedgerEntries)
	v1.PUT("/pool/on-demand-limit", s.SetOnDemandLimit)
}

// registerCollaboratorRoutes exposes the trigger endpoints for the external
// scheduler and the billing-event collaborator. Both authenticate with the
// shared scheduler token.
func (s *Server) registerCollaboratorRoutes() {
	v1 := s.engine.Group("/v1", s.SchedulerTokenRequired())

	v1.POST("/billing/allocate", s.AllocateCredits)
	v1.POST("/jobs/reset", s.TriggerResetPeriod)
	v1.POST("/jobs/threshold-check", s.TriggerThresholdCheck)
}
