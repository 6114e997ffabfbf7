package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

// GetWorkspaceID is the workspace the caller's token is scoped to, or 0.
func GetWorkspaceID(c *fiber.Ctx) int64 {
	workspaceID, _ := c.Locals("workspace_id").(int64)
	return workspaceID
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
