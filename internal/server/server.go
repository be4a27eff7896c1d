// Package server is the HTTP wrapper around the decision engine. The engine
// itself defines no transport; this is the external collaborator surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/engine"
	"github.com/banking/fraud-engine/internal/pkg/logger"
)

// Server hosts the decision API.
type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	cfg    *config.Config
	log    *logger.Logger
}

// New builds the echo instance, middleware and routes.
func New(eng *engine.Engine, cfg *config.Config, log *logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Security.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))

	s := &Server{
		echo:   e,
		engine: eng,
		cfg:    cfg,
		log:    log.Named("http_server"),
	}

	e.GET("/health", s.health)

	v1 := e.Group("/v1")
	if cfg.Security.JWTSecret != "" {
		v1.Use(s.requireJWT)
	}
	v1.POST("/decisions", s.decide)
	v1.GET("/users/:id/ring", s.ring)
	v1.POST("/audit/verify", s.verifyChain)

	return s
}

// Start begins serving on the configured port. Blocks until shutdown.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type decideRequest struct {
	TransactionID uuid.UUID      `json:"transaction_id"`
	UserID        uuid.UUID      `json:"user_id"`
	Amount        float64        `json:"amount"`
	DeviceContext map[string]any `json:"device_context"`
	Embedding     []float32      `json:"embedding"`
}

func (s *Server) decide(c echo.Context) error {
	var req decideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	result, err := s.engine.Evaluate(c.Request().Context(),
		req.TransactionID, req.UserID, req.Amount, req.DeviceContext, req.Embedding)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) ring(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	report, err := s.engine.DiscoverFraudRing(c.Request().Context(), userID)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) verifyChain(c echo.Context) error {
	corrupted, entries, err := s.engine.VerifyAuditChain(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries":   entries,
		"intact":    len(corrupted) == 0,
		"corrupted": corrupted,
	})
}

// mapError translates the engine's error taxonomy onto HTTP statuses.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrCancelled):
		return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
	case errors.Is(err, engine.ErrSignalUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// requireJWT validates a Bearer token signed with the shared HS256 secret.
func (s *Server) requireJWT(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.Security.JWTSecret), nil
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return next(c)
	}
}
