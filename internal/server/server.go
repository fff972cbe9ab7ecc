package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/coursepay/internal/audit"
	auditdomain "github.com/smallbiznis/coursepay/internal/audit/domain"
	"github.com/smallbiznis/coursepay/internal/authorization"
	"github.com/smallbiznis/coursepay/internal/catalog"
	catalogdomain "github.com/smallbiznis/coursepay/internal/catalog/domain"
	"github.com/smallbiznis/coursepay/internal/checkout"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
	"github.com/smallbiznis/coursepay/internal/identity"
	"github.com/smallbiznis/coursepay/internal/notification"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	"github.com/smallbiznis/coursepay/internal/observability"
	obsmiddleware "github.com/smallbiznis/coursepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/coursepay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/coursepay/internal/observability/tracing"
	"github.com/smallbiznis/coursepay/internal/providers/pdf"
	"github.com/smallbiznis/coursepay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	identity.Module,
	authorization.Module,
	ratelimit.Module,
	gateway.Module,
	pdf.Module,
	audit.Module,
	notification.Module,
	catalog.Module,
	entitlement.Module,
	checkout.Module,
	fx.Provide(func(v *identity.Verifier) CallerVerifier { return v }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// CallerVerifier resolves a bearer token to the calling user.
type CallerVerifier interface {
	VerifyCallerIdentity(token string) (identity.Caller, error)
}

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
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

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	verifier        CallerVerifier
	authzSvc        authorization.Service
	checkoutSvc     checkoutdomain.Service
	entitlementSvc  entitlementdomain.Service
	notificationSvc notificationdomain.Service
	catalogSvc      catalogdomain.Service
	auditSvc        auditdomain.Service
	limiter         *ratelimit.CheckoutLimiter
	metrics         *obsmetrics.CheckoutMetrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Verifier        CallerVerifier
	AuthzSvc        authorization.Service
	CheckoutSvc     checkoutdomain.Service
	EntitlementSvc  entitlementdomain.Service
	NotificationSvc notificationdomain.Service
	CatalogSvc      catalogdomain.Service
	AuditSvc        auditdomain.Service
	Limiter         *ratelimit.CheckoutLimiter  `optional:"true"`
	Metrics         *obsmetrics.CheckoutMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		verifier:        p.Verifier,
		authzSvc:        p.AuthzSvc,
		checkoutSvc:     p.CheckoutSvc,
		entitlementSvc:  p.EntitlementSvc,
		notificationSvc: p.NotificationSvc,
		catalogSvc:      p.CatalogSvc,
		auditSvc:        p.AuditSvc,
		limiter:         p.Limiter,
		metrics:         p.Metrics,
	}

	svc.registerCheckoutRoutes()
	svc.registerMeRoutes()
	svc.registerCatalogRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerCheckoutRoutes() {
	co := s.engine.Group("/checkout")

	co.POST("/create", s.AuthRequired(), s.CreateRateLimit(), s.CreateInvoice)
	co.POST("/check", s.AuthRequired(), s.CheckInvoice)
	co.GET("/invoices/:id", s.AuthRequired(), s.GetInvoice)
	co.GET("/invoices/:id/receipt", s.AuthRequired(), s.GetReceipt)

	// Gateway callbacks carry no user identity.
	co.GET("/callback", s.HandleCallback)
	co.POST("/callback", s.HandleCallback)
}

func (s *Server) registerMeRoutes() {
	me := s.engine.Group("/me", s.AuthRequired())

	me.GET("/entitlements", s.ListEntitlements)
	me.GET("/notifications", s.ListNotifications)
	me.POST("/notifications/:id/read", s.MarkNotificationRead)
}

func (s *Server) registerCatalogRoutes() {
	cat := s.engine.Group("/catalog", s.AuthRequired())

	cat.POST("/courses/:id/publish",
		s.authorizeAction(authorization.ObjectCatalog, authorization.ActionCatalogPublish),
		s.PublishCourse,
	)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired())

	admin.GET("/audit-logs",
		s.authorizeAction(authorization.ObjectAudit, authorization.ActionAuditRead),
		s.ListAuditLogs,
	)
}
