package documents

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/shared/server/middleware"
	"assessment-backend/internal/shared/server/respond"
)

const maxUploadSize = 20 << 20 // 20MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:documentId", h.get)
	rg.POST("/documents/:documentId/questions", h.ingestQuestions)
	rg.GET("/documents/:documentId/questions", h.questions)
}

type documentResponse struct {
	DocumentID   string    `json:"documentId"`
	FileName     string    `json:"fileName"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	ReviewStatus string    `json:"reviewStatus"`
	UploadedAt   time.Time `json:"uploadedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type consensusResponse struct {
	Standards       []string `json:"standards"`
	RigorLevel      string   `json:"rigorLevel"`
	ConfidenceScore float64  `json:"confidenceScore"`
	Justification   string   `json:"justification,omitempty"`
}

type questionResponse struct {
	QuestionID     string             `json:"questionId"`
	QuestionNumber int                `json:"questionNumber"`
	Text           string             `json:"text"`
	Context        string             `json:"context,omitempty"`
	Consensus      *consensusResponse `json:"aiConsensus,omitempty"`
}

func toResponse(doc Document) documentResponse {
	return documentResponse{
		DocumentID:   doc.ID,
		FileName:     doc.FileName,
		MimeType:     doc.MimeType,
		SizeBytes:    doc.SizeBytes,
		ReviewStatus: string(doc.ReviewStatus),
		UploadedAt:   doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func toQuestionResponses(views []QuestionView) []questionResponse {
	out := make([]questionResponse, 0, len(views))
	for _, v := range views {
		qr := questionResponse{
			QuestionID:     v.Question.ID,
			QuestionNumber: v.Question.QuestionNumber,
			Text:           v.Question.Text,
			Context:        v.Question.Context,
		}
		if c := v.Consensus; c != nil {
			qr.Consensus = &consensusResponse{
				Standards:       c.Standards,
				RigorLevel:      string(c.RigorLevel),
				ConfidenceScore: c.ConfidenceScore,
				Justification:   c.Justification,
			}
		}
		out = append(out, qr)
	}
	return out
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.Upload(c.Request.Context(), middleware.CustomerIDFromContext(c), fileHeader.Filename, file)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(middleware.LogDocumentIDKey, doc.ID)
	respond.Created(c, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	docs, err := h.Svc.List(c.Request.Context(), middleware.CustomerIDFromContext(c), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toResponse(d))
	}
	respond.OK(c, out)
}

func (h *Handler) get(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.LogDocumentIDKey, documentID)
	doc, err := h.Svc.Get(c.Request.Context(), middleware.CustomerIDFromContext(c), documentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, toResponse(doc))
}

type ingestRequest struct {
	Questions []QuestionInput `json:"questions"`
}

func (h *Handler) ingestQuestions(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.LogDocumentIDKey, documentID)

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	views, err := h.Svc.IngestQuestions(c.Request.Context(), middleware.CustomerIDFromContext(c), documentID, req.Questions)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.Created(c, gin.H{"questions": toQuestionResponses(views)})
}

func (h *Handler) questions(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.LogDocumentIDKey, documentID)
	views, err := h.Svc.Questions(c.Request.Context(), middleware.CustomerIDFromContext(c), documentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.OK(c, gin.H{"questions": toQuestionResponses(views)})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrQuestionNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrQuestionsExist):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "document request failed", nil)
	}
}
