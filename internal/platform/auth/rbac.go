package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole admits a request whose caller holds any of roles. RoleAdmin is
// always admitted. The roles are fixed when the middleware is built.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles)+1)
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	allowed[RoleAdmin] = struct{}{}
	denied := fmt.Sprintf("intake access requires one of the roles: %s", strings.Join(roles, ", "))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(RolesFromContext(c.Request().Context()), allowed) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, denied)
		}
	}
}

// HasAnyRole reports whether any of held is in allowed.
func HasAnyRole(held []string, allowed map[string]struct{}) bool {
	for _, r := range held {
		if _, ok := allowed[r]; ok {
			return true
		}
	}
	return false
}
