package overrides

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/shared/server/middleware"
	"assessment-backend/internal/shared/server/respond"
)

// QuestionAuthorizer checks that a question belongs to the caller.
type QuestionAuthorizer interface {
	AuthorizeQuestion(ctx context.Context, customerUUID, questionID string) error
}

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc    *Service
	Access QuestionAuthorizer
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, access QuestionAuthorizer) *Handler {
	return &Handler{Svc: svc, Access: access}
}

// RegisterRoutes attaches override routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/questions/:questionId/override", h.create)
	rg.POST("/questions/:questionId/revert", h.revert)
	rg.GET("/questions/:questionId/override", h.active)
	rg.GET("/questions/:questionId/override/history", h.history)
}

type overrideRequest struct {
	Standards       []string `json:"standards"`
	RigorLevel      string   `json:"rigorLevel"`
	Justification   string   `json:"justification"`
	ConfidenceLevel float64  `json:"confidenceLevel"`
}

// overrideResponse keeps the TeacherOverride shape the frontend already reads.
type overrideResponse struct {
	ID                  string        `json:"id"`
	QuestionID          string        `json:"questionId"`
	CustomerUUID        string        `json:"customerUuid"`
	Kind                string        `json:"kind"`
	Standards           []string      `json:"standards"`
	RigorLevel          string        `json:"rigorLevel,omitempty"`
	Justification       string        `json:"justification,omitempty"`
	ConfidenceLevel     float64       `json:"confidenceLevel"`
	IsActive            bool          `json:"isActive"`
	IsRevertedToAI      bool          `json:"isRevertedToAi"`
	HasDomainChange     bool          `json:"hasDomainChange"`
	DomainChangeDetails *DomainChange `json:"domainChangeDetails,omitempty"`
	RevertsOverrideID   string        `json:"revertsOverrideId,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
}

func toResponse(ev Event) overrideResponse {
	standards := ev.Standards
	if standards == nil {
		standards = []string{}
	}
	return overrideResponse{
		ID:                  ev.ID,
		QuestionID:          ev.QuestionID,
		CustomerUUID:        ev.CustomerUUID,
		Kind:                string(ev.Kind),
		Standards:           standards,
		RigorLevel:          string(ev.RigorLevel),
		Justification:       ev.Justification,
		ConfidenceLevel:     ev.ConfidenceLevel,
		IsActive:            ev.IsActive,
		IsRevertedToAI:      ev.IsRevertedToAI,
		HasDomainChange:     ev.HasDomainChange,
		DomainChangeDetails: ev.DomainChangeDetails,
		RevertsOverrideID:   ev.RevertsEventID,
		CreatedAt:           ev.CreatedAt,
	}
}

// authorize resolves the question id and rejects callers who do not own it.
func (h *Handler) authorize(c *gin.Context) (string, string, bool) {
	questionID := c.Param("questionId")
	customerID := middleware.CustomerIDFromContext(c)
	c.Set(middleware.LogQuestionIDKey, questionID)
	if h.Access != nil {
		if err := h.Access.AuthorizeQuestion(c.Request.Context(), customerID, questionID); err != nil {
			h.fail(c, err)
			return "", "", false
		}
	}
	return questionID, customerID, true
}

func (h *Handler) create(c *gin.Context) {
	questionID, customerID, ok := h.authorize(c)
	if !ok {
		return
	}
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	ev, err := h.Svc.CreateOverride(c.Request.Context(), questionID, customerID, OverrideInput{
		Standards:       req.Standards,
		RigorLevel:      documents.RigorLevel(req.RigorLevel),
		Justification:   req.Justification,
		ConfidenceLevel: req.ConfidenceLevel,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.Created(c, toResponse(ev))
}

func (h *Handler) revert(c *gin.Context) {
	questionID, customerID, ok := h.authorize(c)
	if !ok {
		return
	}
	ev, err := h.Svc.RevertToAI(c.Request.Context(), questionID, customerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, toResponse(ev))
}

func (h *Handler) active(c *gin.Context) {
	questionID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	ev, found, err := h.Svc.GetActiveOverride(c.Request.Context(), questionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		respond.OK(c, gin.H{"override": nil})
		return
	}
	respond.OK(c, gin.H{"override": toResponse(ev)})
}

func (h *Handler) history(c *gin.Context) {
	questionID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	events, err := h.Svc.GetHistory(c.Request.Context(), questionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]overrideResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toResponse(ev))
	}
	respond.OK(c, gin.H{"history": out})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		details := map[string]any{"field": verr.Field}
		if len(verr.Invalid) > 0 {
			details["invalid"] = verr.Invalid
		}
		if len(verr.Suggestions) > 0 {
			details["suggestions"] = verr.Suggestions
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", verr.Error(), details)
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, documents.ErrQuestionNotFound), errors.Is(err, documents.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "question not found", nil)
	case errors.Is(err, ErrNoActiveOverride):
		respond.Error(c, http.StatusConflict, "no_active_override", "question has no active override", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "override request failed", nil)
	}
}
