package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stomacrm/clinic/internal/api/metrics"
	"github.com/stomacrm/clinic/internal/core/ports"
)

type ReminderHandler struct {
	service ports.ReminderService
}

func NewReminderHandler(service ports.ReminderService) *ReminderHandler {
	return &ReminderHandler{service: service}
}

// Dispatch handles POST /reminders/dispatch: one run outside the schedule.
//
// @Summary      Send due reminders now
// @Tags         reminders
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ports.DispatchResult
// @Failure      403  {object}  errorResponse
// @Router       /reminders/dispatch [post]
func (h *ReminderHandler) Dispatch(c echo.Context) error {
	start := time.Now()
	res, err := h.service.DispatchDue(c.Request().Context())
	metrics.ReminderRunDuration.WithLabelValues("manual").Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
