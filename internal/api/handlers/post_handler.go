package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
)

type PostHandler struct {
	s service.StatusService
}

func NewPostHandler(service service.StatusService) *PostHandler {
	return &PostHandler{s: service}
}

// PublishStatus serves GET /api/posts/:id/publish-status for the workspace
// of the caller's token.
func (h *PostHandler) PublishStatus(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)
	if workspaceID <= 0 {
		return errorJSON(c, fiber.StatusForbidden, "token is not scoped to a workspace")
	}
	postID, err := c.ParamsInt("id")
	if err != nil || postID <= 0 {
		return errorJSON(c, fiber.StatusBadRequest, "invalid post id")
	}

	status, err := h.s.PublishStatus(c.UserContext(), int64(postID), workspaceID)
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "post not found")
		}
		slog.Error(err.Error(), "post_id", postID, "user_id", GetUserID(c))
		return errorJSON(c, fiber.StatusInternalServerError, "unable to load publish status")
	}

	return c.JSON(status)
}
