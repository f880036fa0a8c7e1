package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classpoint/classroom-system/internal/api/metrics"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

// RateLimit intercepts every request before business logic runs. Identity is
// resolved from the "api" header first, then the session token, then the
// caller's network address; a failure anywhere degrades the caller to a
// guest rather than blocking the request.
func RateLimit(limiter ports.RateLimiter, jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := c.Request().Header.Get("api")

			sessionEmail := ""
			if apiKey == "" {
				// Lenient parse: an absent or invalid token just means the
				// caller is classified as a guest.
				if claims, err := ParseSessionToken(c.Request(), jwtSecret); err == nil {
					sessionEmail, _ = claims["email"].(string)
				}
			}

			decision := limiter.Check(c.Request().Context(), apiKey, sessionEmail, c.RealIP(), c.Path())
			if !decision.Allowed {
				metrics.RateLimitRejectionsTotal.WithLabelValues("http").Inc()
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": fmt.Sprintf(
						"You are being rate limited. Please try again in %d seconds.",
						int(decision.RetryAfter.Seconds()),
					),
				})
			}
			return next(c)
		}
	}
}
