package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Auth validates the session JWT and injects the caller's identity into the
// request context.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := ParseSessionToken(c.Request(), jwtSecret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			c.Set("user_id", claims["user_id"])
			c.Set("email", claims["email"])
			c.Set("display_name", claims["display_name"])
			if rank, ok := claims["permissions"].(float64); ok {
				c.Set("permissions", int(rank))
			}

			return next(c)
		}
	}
}

// ParseSessionToken extracts and verifies the bearer JWT from a request.
// Shared with the websocket handshake, which runs before echo middleware.
func ParseSessionToken(r *http.Request, jwtSecret string) (jwt.MapClaims, error) {
	authHeader := r.Header.Get("Authorization")
	raw := ""
	switch {
	case authHeader != "":
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return nil, errInvalidAuthHeader
		}
		raw = parts[1]
	case r.URL.Query().Get("token") != "":
		// websocket clients cannot set headers from browsers
		raw = r.URL.Query().Get("token")
	default:
		return nil, errMissingAuthHeader
	}

	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !tkn.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

var (
	errMissingAuthHeader = echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	errInvalidAuthHeader = echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	errInvalidToken      = echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
)
