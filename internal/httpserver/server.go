package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pideas/creditd/internal/metrics"
	"github.com/pideas/creditd/pkg/credit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the balance engine over HTTP.
type Server struct {
	engine *credit.Engine
	logger *zap.Logger
	cfg    Config
}

// New wires a Server.
func New(engine *credit.Engine, logger *zap.Logger, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{engine: engine, logger: logger, cfg: cfg}, nil
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Router builds the gin engine with all routes attached.
func (server *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(authMiddleware(server.cfg))

	api.POST("/bootstrap", server.handleBootstrap)
	api.GET("/wallet", server.handleWallet)
	api.GET("/balance", server.handleBalance)
	api.GET("/balance/check", server.handleBalanceCheck)
	api.POST("/deduct", server.handleDeduct)
	api.GET("/history", server.handleHistory)
	api.GET("/packages", server.handlePackages)
	api.POST("/purchases", server.handlePurchase)

	admin := api.Group("/admin")
	admin.Use(adminMiddleware())
	admin.POST("/credits", server.handleAdminCredit)
	admin.POST("/role", server.handleAdminRole)
	admin.POST("/status", server.handleAdminStatus)
	admin.GET("/users", server.handleAdminUsers)
	admin.GET("/analytics", server.handleAdminAnalytics)

	return router
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("creditd listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(
			ctx.Request.Method,
			path,
			strconv.Itoa(ctx.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
