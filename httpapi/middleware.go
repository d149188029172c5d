package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	userkit "github.com/goliatone/go-userkit"
)

// ClaimsKey is the fiber Locals key holding validated claims
const ClaimsKey = "claims"

const TextCodeMissingToken = "MISSING_TOKEN"

const bearerScheme = "bearer"

// ErrMissingOrMalformedToken is returned when no bearer token is present
var ErrMissingOrMalformedToken = goerrors.New("missing or malformed bearer token", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// Protected rejects requests without a valid bearer token. Claims are
// stored in Locals under ClaimsKey and in the user context.
func Protected(validator userkit.TokenValidator, errorHandler fiber.ErrorHandler) fiber.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler(nil)
	}

	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return errorHandler(c, ErrMissingOrMalformedToken.Clone())
		}

		claims := validator.Validate(token)
		if claims == nil {
			return errorHandler(c, userkit.ErrInvalidToken.Clone())
		}

		c.Locals(ClaimsKey, claims)
		c.SetUserContext(userkit.WithClaimsContext(c.UserContext(), claims))

		return c.Next()
	}
}

// GetClaims returns the claims set by Protected
func GetClaims(c *fiber.Ctx) (userkit.Claims, bool) {
	raw := c.Locals(ClaimsKey)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(userkit.Claims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
