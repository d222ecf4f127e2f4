package confirmations

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

// DocumentAuthorizer checks that a document belongs to the caller.
type DocumentAuthorizer interface {
	AuthorizeDocument(ctx context.Context, customerUUID, documentID string) error
}

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc    *Service
	Access DocumentAuthorizer
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, access DocumentAuthorizer) *Handler {
	return &Handler{Svc: svc, Access: access}
}

// RegisterRoutes attaches confirmation routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:documentId/accept", h.accept)
	rg.GET("/documents/:documentId/confirmed-analysis", h.get)
	rg.GET("/documents/:documentId/effective", h.effective)
}

type analysisResponse struct {
	DocumentID    string               `json:"documentId"`
	ReviewStatus  string               `json:"reviewStatus"`
	OverrideCount int                  `json:"overrideCount"`
	AcceptedBy    string               `json:"acceptedBy"`
	CreatedAt     time.Time            `json:"createdAt"`
	Questions     []QuestionResolution `json:"questions"`
}

func toResponse(a ConfirmedAnalysis) analysisResponse {
	return analysisResponse{
		DocumentID:    a.DocumentID,
		ReviewStatus:  string(a.ReviewStatus()),
		OverrideCount: a.OverrideCount,
		AcceptedBy:    a.AcceptedBy,
		CreatedAt:     a.CreatedAt,
		Questions:     a.Ordered(),
	}
}

func (h *Handler) authorize(c *gin.Context) (string, string, bool) {
	documentID := c.Param("documentId")
	customerID := middleware.CustomerIDFromContext(c)
	c.Set(middleware.LogDocumentIDKey, documentID)
	if h.Access != nil {
		if err := h.Access.AuthorizeDocument(c.Request.Context(), customerID, documentID); err != nil {
			h.fail(c, err)
			return "", "", false
		}
	}
	return documentID, customerID, true
}

func (h *Handler) accept(c *gin.Context) {
	documentID, customerID, ok := h.authorize(c)
	if !ok {
		return
	}
	analysis, err := h.Svc.AcceptDocument(c.Request.Context(), documentID, Actor{
		CustomerUUID: customerID,
		RequestID:    middleware.RequestIDFromContext(c),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, toResponse(analysis))
}

func (h *Handler) get(c *gin.Context) {
	documentID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	analysis, err := h.Svc.Get(c.Request.Context(), documentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, toResponse(analysis))
}

func (h *Handler) effective(c *gin.Context) {
	documentID, _, ok := h.authorize(c)
	if !ok {
		return
	}
	values, err := h.Svc.EffectiveValues(c.Request.Context(), documentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, gin.H{"documentId": documentID, "questions": values})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, documents.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document has not been accepted", nil)
	case errors.Is(err, ErrNoAnalysisAvailable):
		respond.Error(c, http.StatusConflict, "no_analysis_available", "no question has an override or AI result", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "confirmation request failed", nil)
	}
}
