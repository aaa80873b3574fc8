package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lyzr/contenthub/cmd/contenthub/middleware"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/cmd/contenthub/service"
	"github.com/lyzr/contenthub/common/bootstrap"
)

// DraftHandler handles the write surface of the lifecycle: draft
// creation, publish, discard and remix
type DraftHandler struct {
	components *bootstrap.Components
	lifecycle  *service.LifecycleService
}

// NewDraftHandler creates a new draft handler
func NewDraftHandler(components *bootstrap.Components, lifecycle *service.LifecycleService) *DraftHandler {
	return &DraftHandler{
		components: components,
		lifecycle:  lifecycle,
	}
}

// CreateDraftRequest is the payload for opening a draft
type CreateDraftRequest struct {
	// Omit for a brand-new item; set to fork an existing item's
	// published head
	StaticID *uuid.UUID `json:"static_id,omitempty"`

	// Required for new items; ignored when forking
	Kind models.ContentKind `json:"kind,omitempty"`

	Contents       json.RawMessage        `json:"contents,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IdempotencyKey *string                `json:"idempotency_key,omitempty"`
}

// CreateDraft opens a draft for the caller
// POST /api/v1/drafts
func (h *DraftHandler) CreateDraft(c echo.Context) error {
	actor, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	var req CreateDraftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.StaticID == nil && !req.Kind.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be one of tool, workflow, widget")
	}

	record, err := h.lifecycle.CreateDraft(c.Request().Context(), service.CreateDraftRequest{
		StaticID:       req.StaticID,
		Kind:           req.Kind,
		Actor:          actor,
		OrgID:          middleware.GetOrgID(c),
		Contents:       req.Contents,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.components.Logger.Error("failed to create draft", "created_by", actor, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, record)
}

// PublishRequest is the payload for promoting a draft or suggestion
type PublishRequest struct {
	MajorChangeDescription *string `json:"major_change_description,omitempty"`
}

// Publish promotes the caller's working branch to the published head
// POST /api/v1/drafts/:id/publish
func (h *DraftHandler) Publish(c echo.Context) error {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version id format")
	}

	actor, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.lifecycle.Publish(c.Request().Context(), service.PublishRequest{
		VersionID:              versionID,
		Actor:                  actor,
		MajorChangeDescription: req.MajorChangeDescription,
	})
	if err != nil {
		h.components.Logger.Error("failed to publish version", "version_id", versionID, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// Discard closes the caller's draft without publishing
// POST /api/v1/drafts/:id/discard
func (h *DraftHandler) Discard(c echo.Context) error {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version id format")
	}

	actor, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	if err := h.lifecycle.DiscardDraft(c.Request().Context(), versionID, actor); err != nil {
		h.components.Logger.Error("failed to discard draft", "version_id", versionID, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version_id": versionID,
		"discarded":  true,
	})
}

// RemixRequest is the payload for forking an item into a new one
type RemixRequest struct {
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IdempotencyKey *string                `json:"idempotency_key,omitempty"`
}

// Remix forks an item's published head into a new item owned by the
// caller
// POST /api/v1/content/:static_id/remix
func (h *DraftHandler) Remix(c echo.Context) error {
	staticID, err := uuid.Parse(c.Param("static_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid static_id format")
	}

	actor, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	var req RemixRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	record, err := h.lifecycle.Remix(c.Request().Context(), service.RemixRequest{
		StaticID:       staticID,
		Actor:          actor,
		OrgID:          middleware.GetOrgID(c),
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.components.Logger.Error("failed to remix item", "static_id", staticID, "error", err)
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, record)
}
