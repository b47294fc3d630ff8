// Package v1 provides the public HTTP handlers of the planner.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/planner/internal/config"
	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/hub"
	"github.com/xiaot623/gogo/planner/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	hub     *hub.Hub
	config  *config.Config

	// subscribed runs after a stream joins the hub and before the
	// snapshot is read. Tests use it to interleave run completion.
	subscribed func(runID string)
}

// NewHandler creates a new handler. Without a hub the stream endpoint
// answers 503.
func NewHandler(service *service.Service, h *hub.Hub, cfg *config.Config) *Handler {
	return &Handler{
		service: service,
		hub:     h,
		config:  cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/itineraries", h.SubmitItinerary)
	e.GET("/v1/jobs/:job_id", h.GetJob)

	e.GET("/v1/runs", h.ListRuns)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.GET("/v1/runs/:run_id/decisions", h.GetRunDecisions)
	e.GET("/v1/runs/:run_id/stream", h.StreamRun)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	pending, processing := h.service.QueueStats()
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "healthy",
		"version":    "0.1.0",
		"pending":    pending,
		"processing": processing,
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
}
