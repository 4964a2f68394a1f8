package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/paygate/internal/archive"
	"github.com/smallbiznis/paygate/internal/clock"
	"github.com/smallbiznis/paygate/internal/config"
	"github.com/smallbiznis/paygate/internal/facilitator"
	"github.com/smallbiznis/paygate/internal/gateway"
	"github.com/smallbiznis/paygate/internal/meter"
	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
	"github.com/smallbiznis/paygate/internal/observability"
	obsmiddleware "github.com/smallbiznis/paygate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paygate/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paygate/internal/observability/tracing"
	"github.com/smallbiznis/paygate/internal/payment"
	paymentdomain "github.com/smallbiznis/paygate/internal/payment/domain"
	"github.com/smallbiznis/paygate/internal/payoutrail"
	"github.com/smallbiznis/paygate/internal/payroll"
	payrolldomain "github.com/smallbiznis/paygate/internal/payroll/domain"
	"github.com/smallbiznis/paygate/internal/proof"
	"github.com/smallbiznis/paygate/internal/ratelimit"
	"github.com/smallbiznis/paygate/internal/treasury"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	fx.Provide(registerGin),
	meter.Module,
	facilitator.Module,
	proof.Module,
	gateway.Module,
	treasury.Module,
	payoutrail.Module,
	payroll.Module,
	payment.Module,
	archive.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(registerConfirmationListener),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

// registerConfirmationListener wires the on-chain confirmation poller to the
// payment reconciler. Events are delivered at least once; the reconciler's
// idempotency absorbs duplicates.
func registerConfirmationListener(lc fx.Lifecycle, cfg config.Config, paymentSvc paymentdomain.Service, log *zap.Logger) {
	if !cfg.Treasury.ListenerEnabled || cfg.Treasury.URL == "" {
		return
	}

	source := treasury.NewHTTPEventSource(cfg.Treasury.URL, cfg.Treasury.Timeout)
	handler := func(ctx context.Context, ev treasury.ConfirmationEvent) error {
		_, err := paymentSvc.ConfirmPayment(ctx, paymentdomain.ConfirmRequest{
			PaymentIntentID: ev.PaymentIntentID,
			TxHash:          ev.TxHash,
			Token:           ev.Token,
			Amount:          ev.Amount,
		})
		return err
	}
	listener := treasury.NewListener(source, handler, cfg.Treasury.ListenerInterval, log)

	lc.Append(fx.Hook{
		OnStart: listener.Start,
		OnStop:  listener.Stop,
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	interceptor     *gateway.Interceptor
	meterSvc        meterdomain.Service
	payrollSvc      payrolldomain.Service
	paymentSvc      paymentdomain.Service
	facilitator     *facilitator.Client
	validator       proof.Strategy
	callbackLimiter *ratelimit.CallbackLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Interceptor     *gateway.Interceptor
	MeterSvc        meterdomain.Service
	PayrollSvc      payrolldomain.Service
	PaymentSvc      paymentdomain.Service
	Facilitator     *facilitator.Client
	Validator       proof.Strategy
	CallbackLimiter *ratelimit.CallbackLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		genID:           p.GenID,
		interceptor:     p.Interceptor,
		meterSvc:        p.MeterSvc,
		payrollSvc:      p.PayrollSvc,
		paymentSvc:      p.PaymentSvc,
		facilitator:     p.Facilitator,
		validator:       p.Validator,
		callbackLimiter: p.CallbackLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.Health)

	v1 := s.engine.Group("/v1")

	v1.GET("/meters", s.ListMeters)

	// The execution route is the metered operation: no valid proof, no run.
	v1.POST("/payrolls", s.interceptor.RequirePayment("payroll_execute"), s.ExecutePayroll)
	v1.GET("/payrolls/:id", s.GetPayroll)

	v1.POST("/payments/intents", s.CreatePaymentIntent)
	v1.POST("/payments/callback", s.CallbackAuthRequired(), s.CallbackRateLimit(), s.ConfirmPaymentCallback)
	v1.GET("/companies/:companyId/balances/:token", s.GetCompanyBalance)

	v1.POST("/agent/messages", s.HandleAgentMessage)
}
