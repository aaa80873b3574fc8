package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
)

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{models.ErrInvalidContents, http.StatusBadRequest},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrConflictingDraft, http.StatusConflict},
		{models.ErrConstraintViolation, http.StatusConflict},
		{models.ErrStaleRevision, http.StatusConflict},
		{models.ErrIdempotentReplay, http.StatusConflict},
		{models.ErrNotPromotable, http.StatusUnprocessableEntity},
		{models.ErrGuardRejected, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		var httpErr *echo.HTTPError
		if !errors.As(domainError(fmt.Errorf("op failed: %w", tc.err)), &httpErr) {
			t.Fatalf("expected *echo.HTTPError for %v", tc.err)
		}
		if httpErr.Code != tc.code {
			t.Errorf("%v: expected status %d, got %d", tc.err, tc.code, httpErr.Code)
		}
	}
}
