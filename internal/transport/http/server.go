// Package http provides the HTTP server implementation for the planner.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/planner/internal/config"
	"github.com/xiaot623/gogo/planner/internal/hub"
	"github.com/xiaot623/gogo/planner/internal/service"
	v1 "github.com/xiaot623/gogo/planner/internal/transport/http/v1"
)

// NewServer creates and configures the public HTTP server.
func NewServer(svc *service.Service, h *hub.Hub, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1.NewHandler(svc, h, cfg).RegisterRoutes(e)

	return e
}
