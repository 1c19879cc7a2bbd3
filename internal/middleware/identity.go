package middleware

// identity.go holds the helpers that read the authenticated caller back out
// of the Echo context once JWTAuth has run.

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's id. It accepts the numeric forms
// a decoded "sub" claim can take.
func UserID(c echo.Context) (uint64, bool) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, t != 0
	case int:
		return uint64(t), t > 0
	case int64:
		return uint64(t), t > 0
	case float64:
		return uint64(t), t > 0
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, n != 0
		}
	}
	return 0, false
}

// Role returns the authenticated user's account role, or "".
func Role(c echo.Context) string {
	r, _ := c.Get("role").(string)
	return r
}

// subject extracts the user id from the "sub" claim. JSON numbers decode
// as float64.
func subject(claims jwt.MapClaims) (uint64, bool) {
	switch v := claims["sub"].(type) {
	case float64:
		return uint64(v), v > 0
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n, n != 0
		}
	}
	return 0, false
}
