// internal/devapi/server.go
package devapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/devapi/middleware"
	"github.com/your-org/eid-storefront/internal/domain/order"
	"github.com/your-org/eid-storefront/internal/pkg/auth"
)

// Server is an in-memory stand-in for the storefront backend
type Server struct {
	config     *config.Config
	gin        *gin.Engine
	httpServer *http.Server
	log        logrus.FieldLogger
	state      *state
	handler    *handler
}

// NewServer creates a server and seeds the admin account
func NewServer(cfg *config.Config, log logrus.FieldLogger) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.TestMode)
	}

	s := &Server{
		config: cfg,
		gin:    gin.New(),
		log:    log.WithField("component", "devapi"),
		state:  newState(),
	}
	s.handler = &handler{
		state:     s.state,
		jwt:       auth.NewJWTManager(cfg),
		passwords: auth.NewPasswordManager(cfg.DevAPI.BcryptCost),
		rule: order.DeliveryRule{
			FreeThreshold: cfg.Store.FreeDeliveryThreshold,
			FlatCharge:    cfg.Store.DeliveryCharge,
		},
		log: s.log,
	}

	if err := s.seedAdmin(); err != nil {
		return nil, err
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) seedAdmin() error {
	if s.config.DevAPI.AdminEmail == "" {
		return nil
	}
	hash, err := s.handler.passwords.HashPassword(s.config.DevAPI.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	_, err = s.state.createAccount(account{
		Name:         "Store Admin",
		Email:        s.config.DevAPI.AdminEmail,
		Role:         "ADMIN",
		PasswordHash: hash,
	})
	return err
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              ":" + s.config.DevAPI.Port,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithFields(logrus.Fields{
		"port":     s.config.DevAPI.Port,
		"base_url": fmt.Sprintf("http://localhost:%s/api/v1", s.config.DevAPI.Port),
	}).Info("Dev API starting")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("Shutting down dev API")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) setupMiddleware() {
	s.gin.Use(gin.Recovery())
	s.gin.Use(middleware.RequestID())
	s.gin.Use(middleware.Logger(s.log))
	s.gin.Use(middleware.SecurityHeaders())
	s.gin.Use(middleware.CORS(s.config.DevAPI.CORSAllowedOrigins))
}

func (s *Server) setupRoutes() {
	h := s.handler
	requireAuth := middleware.AuthMiddleware(h.jwt, s.state)
	optionalAuth := middleware.OptionalAuthMiddleware(h.jwt, s.state)

	s.gin.GET("/health", h.Health)

	v1 := s.gin.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/logout", h.Logout)
		authGroup.GET("/profile", requireAuth, h.Profile)
	}

	v1.GET("/products", h.Products)

	cartGroup := v1.Group("/cart", requireAuth)
	{
		cartGroup.GET("", h.GetCart)
		cartGroup.POST("", h.AddToCart)
		cartGroup.PUT("", h.UpdateCart)
		cartGroup.DELETE("", h.ClearCart)
	}

	v1.POST("/orders", optionalAuth, h.CreateOrder)
	orders := v1.Group("/orders", requireAuth)
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PATCH("/:id/status", middleware.AdminMiddleware(), h.UpdateOrderStatus)
	}

	v1.POST("/uploads", requireAuth, h.Upload)
	v1.GET("/uploads/:name", h.GetUpload)
}
