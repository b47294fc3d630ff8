package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// SubmitItinerary queues an itinerary run.
// POST /v1/itineraries
func (h *Handler) SubmitItinerary(c echo.Context) error {
	var req domain.ItineraryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.SubmitItinerary(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusAccepted, resp)
}

// GetJob returns the queue status of a job.
// GET /v1/jobs/:job_id
func (h *Handler) GetJob(c echo.Context) error {
	job, err := h.service.GetJobStatus(c.Param("job_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, job)
}
