package handlers

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type ScanEnqueuer interface {
	EnqueueScan(ctx context.Context) error
}

type SchedulerHandler struct {
	q ScanEnqueuer
}

func NewSchedulerHandler(q ScanEnqueuer) *SchedulerHandler {
	return &SchedulerHandler{q: q}
}

// Tick asks the workers for an immediate scan instead of waiting for cron.
func (h *SchedulerHandler) Tick(c *fiber.Ctx) error {
	if err := h.q.EnqueueScan(c.UserContext()); err != nil {
		slog.Error(err.Error(), "user_id", GetUserID(c))
		return errorJSON(c, fiber.StatusServiceUnavailable, "unable to enqueue scan")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "scan enqueued",
	})
}
