package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
)

// domainError translates the service error taxonomy into HTTP status
// codes. Conflicts are retryable by re-resolving state; 422 means the
// request can never succeed against the current revision.
func domainError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidContents):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConflictingDraft),
		errors.Is(err, models.ErrConstraintViolation),
		errors.Is(err, models.ErrStaleRevision),
		errors.Is(err, models.ErrIdempotentReplay):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNotPromotable),
		errors.Is(err, models.ErrGuardRejected):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
