package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

func queryInt(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func queryInt64(c echo.Context, name string) int64 {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// GetRun returns a run with its progress, result and metrics.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// ListRuns lists recent runs, optionally for one user.
// GET /v1/runs?user_id=&limit=
func (h *Handler) ListRuns(c echo.Context) error {
	runs, err := h.service.ListRuns(c.Request().Context(), c.QueryParam("user_id"), queryInt(c, "limit", 20))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}

// GetRunEvents retrieves events for a run.
// GET /v1/runs/:run_id/events?after=&types=&limit=
func (h *Handler) GetRunEvents(c echo.Context) error {
	var types []string
	if t := c.QueryParam("types"); t != "" {
		types = strings.Split(t, ",")
	}
	after := queryInt64(c, "after")
	if after == 0 {
		after = queryInt64(c, "after_ts")
	}

	events, err := h.service.GetRunEvents(c.Request().Context(), c.Param("run_id"), after, types, queryInt(c, "limit", 100))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// GetRunDecisions returns the decision audit log of a run.
// GET /v1/runs/:run_id/decisions?after_id=&limit=
func (h *Handler) GetRunDecisions(c echo.Context) error {
	decisions, err := h.service.GetRunDecisions(c.Request().Context(), c.Param("run_id"), queryInt64(c, "after_id"), queryInt(c, "limit", 0))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"decisions": decisions})
}
