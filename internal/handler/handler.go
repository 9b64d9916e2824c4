// Package handler maps HTTP requests onto the license, catalog and account
// services.
package handler

import (
	"errors"

	"license-server/internal/apperror"
	"license-server/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler serves every API route. Construct it with New.
type Handler struct {
	licenses *service.LicenseManager
	catalog  *service.Catalog
	auth     *service.AuthService
	audit    *service.Auditor
	log      *zap.Logger
}

func New(licenses *service.LicenseManager, catalog *service.Catalog, auth *service.AuthService, audit *service.Auditor, log *zap.Logger) *Handler {
	return &Handler{
		licenses: licenses,
		catalog:  catalog,
		auth:     auth,
		audit:    audit,
		log:      log.Named("http"),
	}
}

var errBadBody = apperror.Invalid("invalid request body")

// statusOf maps an error kind onto an HTTP status.
func statusOf(kind apperror.Kind) int {
	switch kind {
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	case apperror.KindConflict:
		return fiber.StatusConflict
	case apperror.KindLimitExceeded, apperror.KindInvalid:
		return fiber.StatusBadRequest
	case apperror.KindUnauthorized:
		return fiber.StatusUnauthorized
	case apperror.KindForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	return c.Status(statusOf(apperror.KindOf(err))).JSON(fiber.Map{
		"error": apperror.MessageOf(err),
	})
}

func ok(c *fiber.Ctx, data interface{}, message string) error {
	body := fiber.Map{"success": true, "data": data}
	if message != "" {
		body["message"] = message
	}
	return c.JSON(body)
}

// ErrorHandler renders errors that escape a handler, including fiber's own
// routing errors, in the API's error shape.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		if apperror.KindOf(err) == apperror.KindInternal {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(statusOf(apperror.KindOf(err))).JSON(fiber.Map{
			"error": apperror.MessageOf(err),
		})
	}
}

func pageParams(c *fiber.Ctx) (int, int) {
	return c.QueryInt("page", 1), c.QueryInt("page_size", 10)
}
