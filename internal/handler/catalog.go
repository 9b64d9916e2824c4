package handler

import (
	"strconv"

	"license-server/internal/apperror"
	"license-server/internal/middleware"
	"license-server/internal/model"
	"license-server/internal/service"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) HandleAdminModules(c *fiber.Ctx) error {
	mods, err := h.catalog.Modules(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, mods, "")
}

func (h *Handler) HandleCreateModule(c *fiber.Ctx) error {
	input := new(model.ModuleInput)
	if err := c.BodyParser(input); err != nil {
		return h.fail(c, errBadBody)
	}

	mod, err := h.catalog.CreateModule(c.UserContext(), input)
	if err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), middleware.CurrentUserID(c), service.OpCreateModule, "module", mod.Name, input)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    mod,
		"message": "module created",
	})
}

// HandleUpdateModule changes only the fields present in the body.
func (h *Handler) HandleUpdateModule(c *fiber.Ctx) error {
	id, err := moduleID(c)
	if err != nil {
		return h.fail(c, err)
	}
	input := new(model.ModuleUpdate)
	if err := c.BodyParser(input); err != nil {
		return h.fail(c, errBadBody)
	}

	mod, err := h.catalog.UpdateModule(c.UserContext(), id, input)
	if err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), middleware.CurrentUserID(c), service.OpUpdateModule, "module", mod.Name, input)
	return ok(c, mod, "module updated")
}

func (h *Handler) HandleDeleteModule(c *fiber.Ctx) error {
	id, err := moduleID(c)
	if err != nil {
		return h.fail(c, err)
	}

	mod, err := h.catalog.DeleteModule(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), middleware.CurrentUserID(c), service.OpDeleteModule, "module", mod.Name, nil)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "module " + mod.Name + " deleted",
	})
}

func (h *Handler) HandleAdminLicenseTypes(c *fiber.Ctx) error {
	types, err := h.catalog.LicenseTypes(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, types, "")
}

func (h *Handler) HandleCreateLicenseType(c *fiber.Ctx) error {
	input := new(model.LicenseTypeInput)
	if err := c.BodyParser(input); err != nil {
		return h.fail(c, errBadBody)
	}

	lt, err := h.catalog.CreateLicenseType(c.UserContext(), input)
	if err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), middleware.CurrentUserID(c), service.OpCreateLicenseType, "license_type", lt.Name, input)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    lt,
		"message": "license type created",
	})
}

func moduleID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Invalid("invalid module id")
	}
	return uint(id), nil
}
