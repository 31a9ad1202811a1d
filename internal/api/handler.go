package api

import (
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/reporting"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/services"
)

// RefreshScheduler runs background refreshes and reports their status.
type RefreshScheduler interface {
	GetStatus() map[string]interface{}
	ForceRun()
}

type Handler struct {
	dashboard *services.Dashboard
	scheduler RefreshScheduler
	logger    *zap.Logger
}

// NewHandler builds the handler; scheduler may be nil when refreshes only
// happen on demand.
func NewHandler(dashboard *services.Dashboard, scheduler RefreshScheduler, logger *zap.Logger) *Handler {
	return &Handler{
		dashboard: dashboard,
		scheduler: scheduler,
		logger:    logger,
	}
}

// load returns the current dashboard, rebuilding it when ?refresh=true.
func (h *Handler) load(c *fiber.Ctx) (*models.Dashboard, error) {
	if c.QueryBool("refresh", false) {
		return h.dashboard.Refresh(c.Context(), true)
	}
	return h.dashboard.Current(c.Context())
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Failed to build dashboard"

	switch {
	case errors.Is(err, services.ErrAllSourcesFailed), errors.Is(err, services.ErrNoSources):
		code = fiber.StatusServiceUnavailable
		message = "Record sources unavailable"
	case errors.Is(err, services.ErrRunnerNotFound):
		code = fiber.StatusNotFound
		message = "Runner not found"
	}

	if code >= fiber.StatusInternalServerError {
		h.logger.Error(message, zap.String("path", c.Path()), zap.Error(err))
		reporting.CaptureException(err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"status": code,
		})
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   message,
		"details": err.Error(),
	})
}

// GetDashboard handles GET /api/v1/dashboard
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	dashboard, err := h.load(c)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dashboard)
}

// GetCrew handles GET /api/v1/crew
func (h *Handler) GetCrew(c *fiber.Ctx) error {
	dashboard, err := h.load(c)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"reference_date": dashboard.ReferenceDate,
		"summary":        dashboard.Crew,
		"weekly_totals":  dashboard.WeeklyTotals,
	})
}

// GetRunners handles GET /api/v1/runners
func (h *Handler) GetRunners(c *fiber.Ctx) error {
	dashboard, err := h.load(c)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"reference_date": dashboard.ReferenceDate,
		"runners":        dashboard.Runners,
	})
}

// GetRunner handles GET /api/v1/runners/:runner
func (h *Handler) GetRunner(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("runner"))
	if err != nil || name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid runner name",
		})
	}

	if _, err := h.load(c); err != nil {
		return h.fail(c, err)
	}
	summary, err := h.dashboard.Runner(c.Context(), name)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(summary)
}

// GetActivities handles GET /api/v1/activities
func (h *Handler) GetActivities(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "0"))
	if err != nil || limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Limit parameter must be a non-negative integer",
		})
	}

	if _, err := h.load(c); err != nil {
		return h.fail(c, err)
	}
	activities, err := h.dashboard.Activities(c.Context(), c.Query("runner"), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"count":      len(activities),
		"activities": activities,
	})
}

// GetLeaderboard handles GET /api/v1/leaderboard
func (h *Handler) GetLeaderboard(c *fiber.Ctx) error {
	dashboard, err := h.load(c)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"week_start":  dashboard.Crew.WeekStart,
		"leaderboard": dashboard.Leaderboard,
	})
}

// GetWeather handles GET /api/v1/weather
func (h *Handler) GetWeather(c *fiber.Ctx) error {
	dashboard, err := h.load(c)
	if err != nil {
		return h.fail(c, err)
	}
	if dashboard.Weather == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Weather data not available",
		})
	}
	return c.JSON(dashboard.Weather)
}

// PostRefresh handles POST /api/v1/refresh. With ?async=true the refresh is
// handed to the scheduler and the request returns immediately.
func (h *Handler) PostRefresh(c *fiber.Ctx) error {
	h.logger.Info("Manual dashboard refresh requested")

	if c.QueryBool("async", false) && h.scheduler != nil {
		h.scheduler.ForceRun()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status":       "refresh scheduled",
			"last_refresh": h.dashboard.GetLastRefreshTime(),
		})
	}

	dashboard, err := h.dashboard.Refresh(c.Context(), true)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"refresh_id":   dashboard.RefreshID,
		"generated_at": dashboard.GeneratedAt,
		"diagnostics":  dashboard.Diagnostics,
	})
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "healthy",
		"timestamp":    time.Now(),
		"last_refresh": h.dashboard.GetLastRefreshTime(),
		"uptime":       time.Since(startTime).String(),
	})
}

// GetMetrics handles GET /api/v1/metrics
func (h *Handler) GetMetrics(c *fiber.Ctx) error {
	metrics := fiber.Map{
		"dashboard": h.dashboard.GetStats(),
		"timestamp": time.Now(),
	}
	if h.scheduler != nil {
		metrics["scheduler"] = h.scheduler.GetStatus()
	}
	return c.JSON(metrics)
}

var startTime = time.Now()
