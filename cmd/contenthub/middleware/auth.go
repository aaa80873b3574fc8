package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user id
	UserIDKey ContextKey = "user_id"

	// OrgIDKey is the context key for the caller's organization id
	OrgIDKey ContextKey = "org_id"
)

// ExtractIdentity extracts the X-User-ID and X-Org-ID headers into the
// request context. Identity comes from the gateway in front of this
// service; the engine itself does not authenticate.
//
// Usage:
//
//	e := echo.New()
//	e.Use(middleware.ExtractIdentity())
//
// Accessing in handlers:
//
//	userID := middleware.GetUserID(c)
func ExtractIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if userID := c.Request().Header.Get("X-User-ID"); userID != "" {
				c.Set(string(UserIDKey), userID)
			}
			if orgID := c.Request().Header.Get("X-Org-ID"); orgID != "" {
				c.Set(string(OrgIDKey), orgID)
			}
			return next(c)
		}
	}
}

// GetUserID retrieves the user id from the request context.
// Returns empty string if not set.
func GetUserID(c echo.Context) string {
	userID := c.Get(string(UserIDKey))
	if userID == nil {
		return ""
	}
	return userID.(string)
}

// GetOrgID retrieves the organization id from the request context.
// Returns empty string if not set.
func GetOrgID(c echo.Context) string {
	orgID := c.Get(string(OrgIDKey))
	if orgID == nil {
		return ""
	}
	return orgID.(string)
}

// RequireUserID ensures a user id exists in context. The returned error
// is an echo.HTTPError, so callers return it directly and stop handling
// the request.
func RequireUserID(c echo.Context) (string, error) {
	userID := GetUserID(c)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required (X-User-ID header missing)")
	}
	return userID, nil
}
