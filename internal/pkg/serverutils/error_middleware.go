package serverutils

import (
	"errors"

	"surgical-review-be/pkg/conversation"
	"surgical-review-be/pkg/mediaparse"
	"surgical-review-be/pkg/report"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware converts domain errors escaping the controllers into
// JSON envelopes. Every error maps to a response; nothing is fatal.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var validationErr *ValidationError
		var uploadErr *mediaparse.UploadError
		var renderErr *report.RenderError

		switch {
		case errors.As(err, &validationErr):
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse(validationErr.Message))

		case errors.Is(err, conversation.ErrEmptyQuestion):
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse(err.Error()))

		case errors.Is(err, report.ErrNoTranscript):
			return ctx.Status(fiber.StatusConflict).JSON(ErrorResponse(err.Error()))

		case errors.As(err, &uploadErr):
			return ctx.Status(fiber.StatusBadGateway).JSON(ErrorResponse(uploadErr.Error()))

		case errors.As(err, &renderErr):
			return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(renderErr.Error()))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(err.Error()))
	}
}
