package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequirePermission returns middleware that rejects requests whose token does
// not carry the given permission.
func RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			perms := PermissionsFromContext(c.Request().Context())
			if HasPermission(perms, perm) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required permission: %s", perm))
		}
	}
}
