package handler

import (
	"license-server/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// HandleGetLogs lists administrative operations of every user, or of one
// when user_id is given.
func (h *Handler) HandleGetLogs(c *fiber.Ctx) error {
	page, size := pageParams(c)
	userID := c.QueryInt("user_id", 0)
	if userID < 0 {
		userID = 0
	}

	logs, err := h.audit.List(c.UserContext(), uint(userID), page, size)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"logs":  logs.Items,
		"total": logs.Total,
		"page":  logs.Page,
	})
}

// HandleGetUserLogs lists the caller's own operations.
func (h *Handler) HandleGetUserLogs(c *fiber.Ctx) error {
	page, size := pageParams(c)
	logs, err := h.audit.List(c.UserContext(), middleware.CurrentUserID(c), page, size)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"logs":  logs.Items,
		"total": logs.Total,
		"page":  logs.Page,
	})
}
