package handler

import (
	"license-server/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// Register mounts the API on api. auth must authenticate bearer tokens;
// limit returns the rate limiter for a named public route.
func (h *Handler) Register(api fiber.Router, auth fiber.Handler, limit func(route string) fiber.Handler) {
	admin := []fiber.Handler{auth, middleware.AdminOnly()}
	withAdmin := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, admin...), handler)
	}

	// Public license routes.
	license := api.Group("/license")
	license.Get("/types", h.HandleLicenseTypes)
	license.Get("/modules", h.HandleModules)
	license.Post("/request", limit("request"), h.HandleLicenseRequest)
	license.Post("/validate", limit("validate"), h.HandleLicenseValidate)
	license.Get("/info/:key", h.HandleLicenseInfo)
	license.Post("/renew/:key", withAdmin(h.HandleLicenseRenew)...)
	license.Post("/deactivate/:key", withAdmin(h.HandleLicenseDeactivate)...)

	authGroup := api.Group("/auth")
	authGroup.Post("/login", limit("login"), h.HandleUserLogin)
	authGroup.Post("/validate-token", h.HandleValidateToken)
	authGroup.Get("/me", auth, h.HandleUserInfo)
	authGroup.Post("/change-password", auth, h.HandleChangePassword)
	authGroup.Get("/login-logs", auth, h.HandleGetLoginLogs)
	authGroup.Get("/operations", auth, h.HandleGetUserLogs)

	adm := api.Group("/admin", admin...)
	adm.Get("/modules", h.HandleAdminModules)
	adm.Post("/modules", h.HandleCreateModule)
	adm.Put("/modules/:id", h.HandleUpdateModule)
	adm.Delete("/modules/:id", h.HandleDeleteModule)
	adm.Get("/stats", h.HandleAdminStats)
	adm.Get("/categories", h.HandleCategories)
	adm.Get("/license-types", h.HandleAdminLicenseTypes)
	adm.Post("/license-types", h.HandleCreateLicenseType)
	adm.Get("/dashboard", h.HandleDashboard)
	adm.Get("/statistics", h.HandleLicenseStatistics)
	adm.Get("/licenses", h.HandleGetAllLicenses)
	adm.Post("/licenses/:key/toggle", h.HandleLicenseToggle)
	adm.Post("/licenses/:key/block-module", h.HandleBlockModule)
	adm.Get("/purchases", h.HandlePurchases)
	adm.Get("/validations", h.HandleValidations)
	adm.Get("/operations", h.HandleGetLogs)
}
