package httpapi

import (
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	userkit "github.com/goliatone/go-userkit"
)

const TextCodeInvalidCredentials = "INVALID_CREDENTIALS"

// ErrInvalidCredentials hides whether the email or the password was wrong
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// DefaultErrorHandler renders rich errors as JSON. The HTTP status comes
// from the error code, falling back to its category.
func DefaultErrorHandler(logger userkit.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = userkit.DefaultLogger()
	}

	return func(c *fiber.Ctx, err error) error {
		status, body := renderError(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request %s %s failed: %v", c.Method(), c.Path(), err)
		}
		return c.Status(status).JSON(body)
	}
}

// renderError resolves the response status and body for err
func renderError(err error) (int, map[string]any) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		if fe, ok := err.(*fiber.Error); ok {
			return fe.Code, map[string]any{"error": fe.Message}
		}
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "an unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = statusForCategory(richErr.Category)
	}

	body := map[string]any{"error": richErr.Message}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}
	if fields, ok := richErr.Metadata["fields"]; ok {
		body["fields"] = fields
	}

	return status, body
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
