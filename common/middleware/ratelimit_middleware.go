package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/common/ratelimit"
)

// UserRateLimitMiddleware checks per-user rate limits on mutation routes.
// Requires the user id to be set in context by the identity middleware.
func UserRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := c.Get("user_id").(string)
			if !ok || userID == "" {
				// Identity middleware rejects unauthenticated mutations
				// before this point; nothing to meter here.
				return next(c)
			}

			result, err := rateLimiter.CheckUserLimit(c.Request().Context(), userID, limit, 60)
			if err != nil {
				// Fail open for availability
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "user_rate_limit_exceeded",
					"message": "You have exceeded your request quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window":              "60 seconds",
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
