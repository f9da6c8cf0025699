package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/emecf/refdata"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"github.com/smallbiznis/sygmef/internal/invoice/render"
	"github.com/smallbiznis/sygmef/internal/observability"
	obsmiddleware "github.com/smallbiznis/sygmef/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sygmef/internal/observability/metrics"
	obstracing "github.com/smallbiznis/sygmef/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(classifyErrorForLog))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// referenceData is the cached reference-data lookup used by the info
// endpoints.
type referenceData interface {
	Info(ctx context.Context, kind domain.InfoKind) (domain.ReferenceData, error)
	Taxpayer(ctx context.Context) (domain.ReferenceData, error)
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	invoiceSvc domain.Service
	refData    referenceData
	renderer   render.Renderer
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	InvoiceSvc domain.Service
	RefData    *refdata.Service
	Renderer   render.Renderer
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		invoiceSvc: p.InvoiceSvc,
		refData:    p.RefData,
		renderer:   p.Renderer,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/invoices", s.SubmitInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.GET("/invoices/:id/receipt.pdf", s.GetInvoiceReceipt)

	byUID := api.Group("/invoices/uid/:uid")
	{
		byUID.GET("", s.GetInvoiceByUID)
		byUID.GET("/remote", s.GetPendingInvoice)
		byUID.PUT("/:action", s.FinalizeInvoice)
		byUID.POST("/:action/retry", s.RetryFinalizeInvoice)
	}

	api.GET("/info/:kind", s.GetReferenceData)
	api.GET("/taxpayer", s.GetTaxpayer)
	api.GET("/error-codes", s.ListErrorCodes)

	api.GET("/dashboard/stats", s.GetDashboardStats)

	api.GET("/reconciliation-tasks", s.ListReconciliationTasks)
	api.POST("/reconciliation-tasks/:id/resolve", s.ResolveReconciliationTask)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
