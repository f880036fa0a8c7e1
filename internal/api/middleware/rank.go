package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRank enforces a minimum global permission rank. Every check is a >=
// comparison: higher ranks hold every capability of the ranks below them.
func RequireRank(minimum int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rank, _ := c.Get("permissions").(int)
			if rank < minimum {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
