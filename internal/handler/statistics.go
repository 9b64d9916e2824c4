package handler

import (
	"github.com/gofiber/fiber/v2"
)

// HandleDashboard summarises license state.
func (h *Handler) HandleDashboard(c *fiber.Ctx) error {
	st, err := h.licenses.Dashboard(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, st, "")
}

// HandleAdminStats describes the module catalog.
func (h *Handler) HandleAdminStats(c *fiber.Ctx) error {
	st, err := h.catalog.Stats(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, st, "")
}

func (h *Handler) HandleCategories(c *fiber.Ctx) error {
	cats, err := h.catalog.Categories(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, cats, "")
}

// HandleLicenseStatistics reports daily validation counts between
// start_date and end_date (YYYY-MM-DD, both optional; the last thirty days by
// default).
func (h *Handler) HandleLicenseStatistics(c *fiber.Ctx) error {
	st, err := h.licenses.ValidationStatistics(c.UserContext(), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, st, "")
}
