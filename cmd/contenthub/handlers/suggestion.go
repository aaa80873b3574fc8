package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/cmd/contenthub/middleware"
	"github.com/lyzr/contenthub/cmd/contenthub/service"
	"github.com/lyzr/contenthub/common/bootstrap"
)

// SuggestionHandler handles the propose/review flow
type SuggestionHandler struct {
	components  *bootstrap.Components
	suggestions *service.SuggestionService
}

// NewSuggestionHandler creates a new suggestion handler
func NewSuggestionHandler(components *bootstrap.Components, suggestions *service.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{
		components:  components,
		suggestions: suggestions,
	}
}

// ProposeRequest is the payload for opening a suggestion
type ProposeRequest struct {
	StaticID       uuid.UUID              `json:"static_id"`
	Contents       json.RawMessage        `json:"contents"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IdempotencyKey *string                `json:"idempotency_key,omitempty"`
}

// Propose opens a suggestion against an item's published head
// POST /api/v1/suggestions
func (h *SuggestionHandler) Propose(c echo.Context) error {
	actor, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	var req ProposeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.StaticID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "static_id is required")
	}
	if len(req.Contents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "contents are required")
	}

	record, err := h.suggestions.Propose(c.Request().Context(), service.ProposeRequest{
		StaticID:       req.StaticID,
		Actor:          actor,
		OrgID:          middleware.GetOrgID(c),
		Contents:       req.Contents,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.components.Logger.Error("failed to propose suggestion", "static_id", req.StaticID, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, record)
}

// Preview shows the suggestion's diff applied to the current published
// head
// GET /api/v1/suggestions/:id/preview
func (h *SuggestionHandler) Preview(c echo.Context) error {
	suggestionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid suggestion id format")
	}

	result, err := h.suggestions.Preview(c.Request().Context(), suggestionID)
	if err != nil {
		h.components.Logger.Error("failed to preview suggestion", "suggestion_id", suggestionID, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// AcceptRequest is the payload for accepting a suggestion
type AcceptRequest struct {
	MajorChangeDescription *string `json:"major_change_description,omitempty"`
}

// Accept promotes a suggestion to the published head
// POST /api/v1/suggestions/:id/accept
func (h *SuggestionHandler) Accept(c echo.Context) error {
	suggestionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid suggestion id format")
	}

	reviewer, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	var req AcceptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.suggestions.Accept(c.Request().Context(), suggestionID, reviewer, req.MajorChangeDescription)
	if err != nil {
		h.components.Logger.Error("failed to accept suggestion", "suggestion_id", suggestionID, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// RejectRequest is the payload for rejecting a suggestion
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Reject closes a suggestion without publishing
// POST /api/v1/suggestions/:id/reject
func (h *SuggestionHandler) Reject(c echo.Context) error {
	suggestionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid suggestion id format")
	}

	reviewer, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.suggestions.Reject(c.Request().Context(), suggestionID, reviewer, req.Reason); err != nil {
		h.components.Logger.Error("failed to reject suggestion", "suggestion_id", suggestionID, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"suggestion_id": suggestionID,
		"rejected":      true,
	})
}
