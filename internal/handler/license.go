package handler

import (
	"license-server/internal/middleware"
	"license-server/internal/model"
	"license-server/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HandleLicenseTypes lists the license catalog.
func (h *Handler) HandleLicenseTypes(c *fiber.Ctx) error {
	types, err := h.catalog.LicenseTypes(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(types)
}

// HandleModules lists the licensable modules.
func (h *Handler) HandleModules(c *fiber.Ctx) error {
	mods, err := h.catalog.Modules(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(mods)
}

// HandleLicenseRequest issues a license bound to the caller's hardware.
func (h *Handler) HandleLicenseRequest(c *fiber.Ctx) error {
	input := new(model.IssueRequest)
	if err := c.BodyParser(input); err != nil {
		return h.fail(c, errBadBody)
	}

	lic, err := h.licenses.Issue(c.UserContext(), input)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"license_key":     lic.LicenseKey,
		"client_name":     lic.ClientName,
		"license_type":    lic.LicenseType,
		"expires_at":      lic.ExpiryDate,
		"max_users":       lic.MaxUsers,
		"allowed_modules": lic.AllowedModules,
		"message":         "license issued",
	})
}

// HandleLicenseValidate answers 200 for every well-formed request, valid or
// not. Only an unparseable body or a failed audit write changes the status.
func (h *Handler) HandleLicenseValidate(c *fiber.Ctx) error {
	input := new(model.ValidateRequest)
	if err := c.BodyParser(input); err != nil {
		input = new(model.ValidateRequest)
	}

	meta := service.RequestMeta{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent, "Unknown"),
		RequestID: requestID(c),
	}
	out, err := h.licenses.Validate(c.UserContext(), input, meta)
	if err != nil {
		return h.fail(c, err)
	}

	if out.Valid {
		lic := out.License
		return c.JSON(fiber.Map{
			"valid":           true,
			"license_key":     out.LicenseKey,
			"module_name":     out.ModuleName,
			"client_name":     lic.ClientName,
			"license_type":    lic.LicenseType,
			"expires_at":      lic.ExpiryDate,
			"max_users":       lic.MaxUsers,
			"current_users":   lic.CurrentUsers,
			"allowed_modules": lic.AllowedModules,
			"message":         "license valid",
		})
	}

	status := fiber.StatusOK
	if out.Malformed {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{
		"valid":       false,
		"license_key": out.LicenseKey,
		"module_name": out.ModuleName,
		"reason":      out.Reason,
		"error":       out.Error,
		"message":     "license validation failed",
	})
}

// HandleLicenseInfo returns a license with its validation activity.
func (h *Handler) HandleLicenseInfo(c *fiber.Ctx) error {
	info, err := h.licenses.Info(c.UserContext(), c.Params("key"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(info)
}

// HandleLicenseRenew extends a license by renewal_days, the configured
// default when absent.
func (h *Handler) HandleLicenseRenew(c *fiber.Ctx) error {
	key := c.Params("key")
	days := c.QueryInt("renewal_days", h.licenses.RenewalDays())

	lic, err := h.licenses.Renew(c.UserContext(), key, days)
	if err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), middleware.CurrentUserID(c), service.OpRenew, "license", key, fiber.Map{"days": days})

	return c.JSON(fiber.Map{
		"success":         true,
		"license_key":     lic.LicenseKey,
		"new_expiry_date": lic.ExpiryDate,
		"days_added":      days,
		"message":         "license renewed",
	})
}

func (h *Handler) HandleLicenseDeactivate(c *fiber.Ctx) error {
	key := c.Params("key")
	if _, err := h.licenses.Deactivate(c.UserContext(), key); err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), middleware.CurrentUserID(c), service.OpDeactivate, "license", key, nil)

	return c.JSON(fiber.Map{
		"success":     true,
		"license_key": key,
		"message":     "license deactivated",
	})
}

// HandleGetAllLicenses lists every license for administrators.
func (h *Handler) HandleGetAllLicenses(c *fiber.Ctx) error {
	licenses, err := h.licenses.List(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, licenses, "")
}

func (h *Handler) HandleLicenseToggle(c *fiber.Ctx) error {
	key := c.Params("key")
	lic, err := h.licenses.Toggle(c.UserContext(), key)
	if err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), middleware.CurrentUserID(c), service.OpToggle, "license", key, fiber.Map{"is_active": lic.IsActive})

	state := "deactivated"
	if lic.IsActive {
		state = "activated"
	}
	return ok(c, lic, "license "+state)
}

// HandleBlockModule removes module_name from the license.
func (h *Handler) HandleBlockModule(c *fiber.Ctx) error {
	key := c.Params("key")
	module := c.Query("module_name")

	lic, err := h.licenses.BlockModule(c.UserContext(), key, module)
	if err != nil {
		return h.fail(c, err)
	}
	h.audit.Record(c.UserContext(), middleware.CurrentUserID(c), service.OpBlockModule, "license", key, fiber.Map{"module": module})
	h.log.Info("module blocked by admin", zap.String("license_key", key), zap.String("module", module))

	return ok(c, lic, "module "+module+" blocked")
}

func (h *Handler) HandlePurchases(c *fiber.Ctx) error {
	purchases, err := h.licenses.Purchases(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, purchases, "")
}

// HandleValidations pages through the validation audit log, optionally for
// one license_key.
func (h *Handler) HandleValidations(c *fiber.Ctx) error {
	page, size := pageParams(c)
	logs, err := h.licenses.Validations(c.UserContext(), c.Query("license_key"), page, size)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, logs, "")
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
