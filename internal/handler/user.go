package handler

import (
	"license-server/internal/middleware"
	"license-server/internal/model"
	"license-server/internal/service"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) HandleUserLogin(c *fiber.Ctx) error {
	input := new(model.LoginInput)
	if err := c.BodyParser(input); err != nil {
		return h.fail(c, errBadBody)
	}

	res, err := h.auth.Login(c.UserContext(), input, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"user":       res.User,
	})
}

// HandleUserInfo returns the authenticated account.
func (h *Handler) HandleUserInfo(c *fiber.Ctx) error {
	user, err := h.auth.User(c.UserContext(), middleware.CurrentUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

func (h *Handler) HandleChangePassword(c *fiber.Ctx) error {
	input := new(model.ChangePasswordInput)
	if err := c.BodyParser(input); err != nil {
		return h.fail(c, errBadBody)
	}

	userID := middleware.CurrentUserID(c)
	if err := h.auth.ChangePassword(c.UserContext(), userID, input); err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), userID, service.OpChangePassword, "user", "", nil)

	return c.JSON(fiber.Map{
		"message": "password changed",
	})
}

// HandleValidateToken reports whether the bearer token is still accepted.
// It always answers 200 so clients can probe without handling errors.
func (h *Handler) HandleValidateToken(c *fiber.Ctx) error {
	token, found := middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !found {
		return c.JSON(fiber.Map{"valid": false})
	}
	user, err := h.auth.Authenticate(c.UserContext(), token)
	if err != nil {
		return c.JSON(fiber.Map{"valid": false})
	}
	return c.JSON(fiber.Map{
		"valid": true,
		"user":  user,
	})
}

func (h *Handler) HandleGetLoginLogs(c *fiber.Ctx) error {
	page, size := pageParams(c)
	logs, err := h.auth.LoginLogs(c.UserContext(), middleware.CurrentUserID(c), page, size)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"logs":  logs.Items,
		"total": logs.Total,
		"page":  logs.Page,
	})
}
