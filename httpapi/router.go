package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	userkit "github.com/goliatone/go-userkit"
)

// RouteRegistrar captures the router methods used by the controller
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// RegisterRouterRoutes mounts the session endpoint on a go-router group,
// guarded by ProtectedRoute.
func (a *Controller) RegisterRouterRoutes(group RouteRegistrar) {
	group.Get(a.Routes.Me, a.SessionGet, ProtectedRoute(a.Tokens, a.RouterErrorHandler))
}

// SessionGet returns the current user and the claims of the bearer token
func (a *Controller) SessionGet(ctx router.Context) error {
	claims, ok := RouterClaims(ctx)
	if !ok {
		return a.RouterErrorHandler(ctx, ErrMissingOrMalformedToken.Clone())
	}

	finder, err := finderFromClaims(claims)
	if err != nil {
		return a.RouterErrorHandler(ctx, err)
	}

	result, err := a.manager.FindUser(ctx.Context(), finder)
	if err != nil {
		return a.RouterErrorHandler(ctx, err)
	}
	if !result.OK() {
		return a.RouterErrorHandler(ctx, result.Err())
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":   result.User(),
		"claims": claims,
	})
}

// ProtectedRoute is Protected for go-router. Claims are stored in Locals
// under ClaimsKey.
func ProtectedRoute(validator userkit.TokenValidator, errorHandler router.ErrorHandler) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = RouterErrorHandler(nil)
	}

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			token, ok := bearerToken(ctx.GetString(router.HeaderAuthorization, ""))
			if !ok {
				return errorHandler(ctx, ErrMissingOrMalformedToken.Clone())
			}

			claims := validator.Validate(token)
			if claims == nil {
				return errorHandler(ctx, userkit.ErrInvalidToken.Clone())
			}

			ctx.Locals(ClaimsKey, claims)
			return hf(ctx)
		}
	}
}

// RouterClaims returns the claims set by ProtectedRoute
func RouterClaims(ctx router.Context) (userkit.Claims, bool) {
	claims, ok := ctx.Locals(ClaimsKey).(userkit.Claims)
	return claims, ok
}

// RouterErrorHandler renders errors like DefaultErrorHandler
func RouterErrorHandler(logger userkit.Logger) router.ErrorHandler {
	if logger == nil {
		logger = userkit.DefaultLogger()
	}

	return func(ctx router.Context, err error) error {
		status, body := renderError(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("route request failed: %v", err)
		}
		return ctx.JSON(status, body)
	}
}
