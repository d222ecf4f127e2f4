package overrides_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/overrides"
	"assessment-backend/internal/shared/server/middleware"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	repo := documents.NewMemoryRepo()
	now := time.Now().UTC()
	if err := repo.Create(ctx, documents.Document{ID: "doc-1", CustomerUUID: "owner", ReviewStatus: documents.StatusPendingReview, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.AddQuestions(ctx, []documents.Question{{ID: "q-1", DocumentID: "doc-1", QuestionNumber: 1, Text: "Q", CreatedAt: now}}, nil); err != nil {
		t.Fatalf("add questions: %v", err)
	}
	docSvc := &documents.Service{Repo: repo}
	svc := &overrides.Service{Repo: overrides.NewMemoryRepo(repo), Questions: repo, Standards: overrides.BasicStandards{}}

	r := gin.New()
	api := r.Group("/api/v1", middleware.Auth(nil, true))
	overrides.NewHandler(svc, docSvc).RegisterRoutes(api)
	return r
}

func call(r *gin.Engine, method, path, customer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.DevIdentityHeader, customer)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestOverrideLifecycleOverHTTP(t *testing.T) {
	r := newRouter(t)

	resp := call(r, http.MethodPost, "/api/v1/questions/q-1/override", "owner",
		`{"standards":["MS-LS1-2"],"rigorLevel":"spicy","justification":"multi-step","confidenceLevel":0.8}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		ID       string `json:"id"`
		IsActive bool   `json:"isActive"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !created.IsActive {
		t.Fatalf("expected active override")
	}

	resp = call(r, http.MethodPost, "/api/v1/questions/q-1/revert", "owner", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on revert, got %d", resp.Code)
	}

	resp = call(r, http.MethodGet, "/api/v1/questions/q-1/override", "owner", "")
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"override":null`)) {
		t.Fatalf("expected null override, got %d %s", resp.Code, resp.Body.String())
	}

	resp = call(r, http.MethodGet, "/api/v1/questions/q-1/override/history", "owner", "")
	var history struct {
		History []struct {
			ID                string `json:"id"`
			Kind              string `json:"kind"`
			IsRevertedToAI    bool   `json:"isRevertedToAi"`
			RevertsOverrideID string `json:"revertsOverrideId"`
		} `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.History) != 2 || history.History[0].RevertsOverrideID != created.ID || !history.History[1].IsRevertedToAI {
		t.Fatalf("unexpected history %+v", history.History)
	}

	resp = call(r, http.MethodPost, "/api/v1/questions/q-1/revert", "owner", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second revert, got %d", resp.Code)
	}
}

func TestOverrideValidationReturnsSuggestions(t *testing.T) {
	r := newRouter(t)
	resp := call(r, http.MethodPost, "/api/v1/questions/q-1/override", "owner",
		`{"standards":["ms ls1 2"],"rigorLevel":"mild","confidenceLevel":0.5}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("MSLS12")) {
		t.Fatalf("expected suggestion in body, got %s", resp.Body.String())
	}
}

func TestForeignQuestionLooksMissing(t *testing.T) {
	r := newRouter(t)
	resp := call(r, http.MethodGet, "/api/v1/questions/q-1/override/history", "intruder", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
