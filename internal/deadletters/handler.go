package deadletters

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/shared/server/middleware"
	"assessment-backend/internal/shared/server/respond"
)

// Handler exposes the caller's dead-lettered exports.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches dead letter routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dead-letters", h.list)
}

type entryResponse struct {
	ID               string     `json:"id"`
	ExportID         string     `json:"exportId"`
	DocumentID       string     `json:"documentId"`
	ExportType       string     `json:"exportType"`
	ErrorMessage     string     `json:"errorMessage"`
	FailureKind      string     `json:"failureKind"`
	Attempts         int        `json:"attempts"`
	MovedAt          time.Time  `json:"movedAt"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
	RequeuedExportID string     `json:"requeuedExportId,omitempty"`
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	includeResolved, _ := strconv.ParseBool(c.Query("includeResolved"))

	entries, err := h.Svc.List(c.Request.Context(), ListFilter{
		CustomerUUID:    middleware.CustomerIDFromContext(c),
		DocumentID:      c.Query("documentId"),
		IncludeResolved: includeResolved,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list dead letters", nil)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:               e.ID,
			ExportID:         e.ExportID,
			DocumentID:       e.DocumentID,
			ExportType:       e.ExportType,
			ErrorMessage:     e.ErrorMessage,
			FailureKind:      e.FailureKind,
			Attempts:         e.Attempts,
			MovedAt:          e.MovedAt,
			ResolvedAt:       e.ResolvedAt,
			RequeuedExportID: e.RequeuedExportID,
		})
	}
	respond.OK(c, gin.H{"items": out})
}
