package exports

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/generateddocs"
	"assessment-backend/internal/shared/server/middleware"
	"assessment-backend/internal/shared/server/respond"
	"assessment-backend/internal/shared/telemetry"
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

// RegisterRoutes attaches export routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:documentId/exports", h.request)
	rg.GET("/documents/:documentId/exports", h.list)
	rg.GET("/documents/:documentId/exports/:exportType/download", h.download)
	rg.GET("/exports/:exportId", h.get)
	rg.DELETE("/exports/:exportId", h.cancel)
}

type itemResponse struct {
	ID          string     `json:"id"`
	DocumentID  string     `json:"documentId"`
	ExportType  string     `json:"exportType"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	LastError   string     `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type generatedResponse struct {
	ID          string    `json:"id"`
	ExportType  string    `json:"exportType"`
	FileName    string    `json:"fileName"`
	MimeType    string    `json:"mimeType"`
	SizeBytes   int64     `json:"sizeBytes"`
	Tags        []string  `json:"tags"`
	SnapshotAt  time.Time `json:"snapshotAt"`
	CreatedAt   time.Time `json:"createdAt"`
	DownloadURL string    `json:"downloadUrl"`
}

func toItem(it exportqueue.Item) itemResponse {
	return itemResponse{
		ID:          it.ID,
		DocumentID:  it.DocumentID,
		ExportType:  string(it.ExportType),
		Status:      string(it.Status),
		Attempts:    it.Attempts,
		MaxAttempts: it.MaxAttempts,
		ScheduledAt: it.ScheduledAt,
		LastError:   it.LastError,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
		CompletedAt: it.CompletedAt,
	}
}

func toGenerated(g generateddocs.GeneratedDocument) generatedResponse {
	tags := g.Tags
	if tags == nil {
		tags = []string{}
	}
	return generatedResponse{
		ID:          g.ID,
		ExportType:  g.ExportType,
		FileName:    g.FileName,
		MimeType:    g.MimeType,
		SizeBytes:   g.SizeBytes,
		Tags:        tags,
		SnapshotAt:  g.SnapshotAt,
		CreatedAt:   g.CreatedAt,
		DownloadURL: "/api/v1/documents/" + g.ParentDocumentID + "/exports/" + g.ExportType + "/download",
	}
}

func (h *Handler) authorizeDocument(c *gin.Context, documentID string) bool {
	c.Set(middleware.LogDocumentIDKey, documentID)
	if h.Access == nil {
		return true
	}
	if err := h.Access.AuthorizeDocument(c.Request.Context(), middleware.CustomerIDFromContext(c), documentID); err != nil {
		h.fail(c, err)
		return false
	}
	return true
}

type requestBody struct {
	Types []string `json:"types"`
}

func (h *Handler) request(c *gin.Context) {
	documentID := c.Param("documentId")
	if !h.authorizeDocument(c, documentID) {
		return
	}
	var body requestBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	types := make([]exportqueue.ExportType, 0, len(body.Types))
	for _, raw := range body.Types {
		t, err := exportqueue.ParseExportType(raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}
		types = append(types, t)
	}

	items, err := h.Svc.RequestExports(c.Request.Context(), documentID, types, Requester{
		CustomerUUID: middleware.CustomerIDFromContext(c),
		RequestID:    middleware.RequestIDFromContext(c),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItem(it))
	}
	respond.Accepted(c, gin.H{"items": out})
}

func (h *Handler) list(c *gin.Context) {
	documentID := c.Param("documentId")
	if !h.authorizeDocument(c, documentID) {
		return
	}
	state, err := h.Svc.ForDocument(c.Request.Context(), documentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]itemResponse, 0, len(state.Items))
	for _, it := range state.Items {
		items = append(items, toItem(it))
	}
	generated := make([]generatedResponse, 0, len(state.Generated))
	for _, g := range state.Generated {
		generated = append(generated, toGenerated(g))
	}
	respond.OK(c, gin.H{"items": items, "generated": generated})
}

func (h *Handler) download(c *gin.Context) {
	documentID := c.Param("documentId")
	if !h.authorizeDocument(c, documentID) {
		return
	}
	t, err := exportqueue.ParseExportType(c.Param("exportType"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	doc, body, err := h.Svc.Download(c.Request.Context(), documentID, t)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Type", doc.MimeType)
	c.Header("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	if doc.SizeBytes > 0 {
		c.Header("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		telemetry.Warn("export.download_interrupted", map[string]any{"document_id": documentID, "error": err})
	}
}

// loadOwned fetches an item and hides items of other customers.
func (h *Handler) loadOwned(c *gin.Context) (exportqueue.Item, bool) {
	exportID := c.Param("exportId")
	c.Set(middleware.LogExportIDKey, exportID)
	item, err := h.Svc.Get(c.Request.Context(), exportID)
	if err != nil {
		h.fail(c, err)
		return exportqueue.Item{}, false
	}
	if !h.authorizeDocument(c, item.DocumentID) {
		return exportqueue.Item{}, false
	}
	return item, true
}

func (h *Handler) get(c *gin.Context) {
	item, ok := h.loadOwned(c)
	if !ok {
		return
	}
	respond.OK(c, toItem(item))
}

func (h *Handler) cancel(c *gin.Context) {
	item, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := h.Svc.Cancel(c.Request.Context(), item.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, documents.ErrNotFound), errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, ErrNotAccepted):
		respond.Error(c, http.StatusConflict, "not_accepted", "document has not been accepted", nil)
	case errors.Is(err, ErrNotGenerated):
		respond.Error(c, http.StatusNotFound, "not_generated", "export has not been generated yet", nil)
	case errors.Is(err, exportqueue.ErrNotPending):
		respond.Error(c, http.StatusConflict, "conflict", "export is no longer pending", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "export request failed", nil)
	}
}
