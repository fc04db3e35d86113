// Package httpapi exposes the bankroll, access and webhook services over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/internal/checkout"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/webhook"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	userContextKey   = "bankroll_user"
)

// CheckoutCreator starts a hosted payment session and returns its URL.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, request checkout.Request) (string, error)
}

// Dependencies are the services the router dispatches to.
type Dependencies struct {
	Bankroll *bankroll.Service
	Access   *access.Service
	Webhooks *webhook.Processor
	Checkout CheckoutCreator
	Logger   *zap.Logger
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Now     func() time.Time
}

func (dependencies Dependencies) validate() error {
	if dependencies.Bankroll == nil {
		return errors.New("httpapi: bankroll service is required")
	}
	if dependencies.Access == nil {
		return errors.New("httpapi: access service is required")
	}
	if dependencies.Webhooks == nil {
		return errors.New("httpapi: webhook processor is required")
	}
	if dependencies.Checkout == nil {
		return errors.New("httpapi: checkout client is required")
	}
	return nil
}

// NewRouter validates cfg and builds the gin engine serving every route.
func NewRouter(cfg Config, dependencies Dependencies) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := dependencies.validate(); err != nil {
		return nil, err
	}
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.Now == nil {
		dependencies.Now = time.Now
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	handler := &httpHandler{
		cfg:      cfg,
		logger:   dependencies.Logger,
		bankroll: dependencies.Bankroll,
		access:   dependencies.Access,
		webhooks: dependencies.Webhooks,
		checkout: dependencies.Checkout,
		nowFn:    dependencies.Now,
	}
	return setupRouter(cfg, handler, validator, dependencies.Metrics), nil
}

// Run serves the router on cfg.ListenAddr until ctx is cancelled.
func Run(ctx context.Context, cfg Config, dependencies Dependencies) error {
	router, err := NewRouter(cfg, dependencies)
	if err != nil {
		return err
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator, metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	router.POST("/webhooks/payments", handler.handlePaymentWebhook)

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))
	api.POST("/session", handler.handleSession)

	member := api.Group("")
	member.Use(handler.loadUser)
	member.GET("/me", handler.handleMe)
	member.POST("/checkout", handler.handleCheckout)
	member.GET("/bankroll", handler.handleBankroll)
	member.GET("/history", handler.handleHistory)
	member.GET("/statistics", handler.handleStatistics)

	paid := member.Group("")
	paid.Use(handler.requireAccess)
	paid.POST("/bankroll/initial", handler.handleInitialBalance)
	paid.POST("/bankroll/deposit", handler.handleDeposit)
	paid.POST("/bankroll/withdraw", handler.handleWithdraw)
	paid.POST("/bankroll/reset", handler.handleReset)
	paid.POST("/bets", handler.handlePlaceBet)
	paid.POST("/bets/:id/settle", handler.handleSettleBet)
	paid.PATCH("/bets/:id", handler.handleEditBet)
	paid.DELETE("/bets/:id", handler.handleDeleteBet)

	admin := member.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.POST("/grants", handler.handleGrants)
	admin.GET("/revenue", handler.handleRevenue)

	return router
}

type httpHandler struct {
	cfg      Config
	logger   *zap.Logger
	bankroll *bankroll.Service
	access   *access.Service
	webhooks *webhook.Processor
	checkout CheckoutCreator
	nowFn    func() time.Time
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}
