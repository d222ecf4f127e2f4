package exports

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/shared/server/middleware"
)

func newRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", middleware.Auth(nil, true))
	NewHandler(f.svc, &documents.Service{Repo: f.docs}).RegisterRoutes(api)
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

func TestRequestBeforeAcceptConflicts(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, f)
	resp := call(r, http.MethodPost, "/api/v1/documents/doc-1/exports", "cust-1", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestExportFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, f)
	f.accept(t)

	resp := call(r, http.MethodPost, "/api/v1/documents/doc-1/exports", "cust-1", `{"types":["cover-sheet"]}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var requested struct {
		Items []itemResponse `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&requested); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(requested.Items) != 1 || requested.Items[0].ExportType != "cover_sheet" || requested.Items[0].Status != "pending" {
		t.Fatalf("unexpected items %+v", requested.Items)
	}
	exportID := requested.Items[0].ID

	resp = call(r, http.MethodGet, "/api/v1/exports/"+exportID, "cust-1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp = call(r, http.MethodGet, "/api/v1/exports/"+exportID, "intruder", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign export, got %d", resp.Code)
	}

	resp = call(r, http.MethodGet, "/api/v1/documents/doc-1/exports/rubric/download", "cust-1", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before generation, got %d", resp.Code)
	}

	f.worker.DrainPending(context.Background())

	resp = call(r, http.MethodGet, "/api/v1/documents/doc-1/exports", "cust-1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var listed struct {
		Items     []itemResponse      `json:"items"`
		Generated []generatedResponse `json:"generated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Generated) != 2 {
		t.Fatalf("expected 2 generated docs, got %+v", listed.Generated)
	}
	for _, it := range listed.Items {
		if it.Status != "completed" {
			t.Fatalf("expected completed items, got %+v", it)
		}
	}

	resp = call(r, http.MethodGet, "/api/v1/documents/doc-1/exports/rubric/download", "cust-1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected pdf body")
	}
	if cd := resp.Header().Get("Content-Disposition"); cd != `attachment; filename="Unit_3_Quiz-rubric.pdf"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
}

func TestCancelOverHTTP(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, f)
	f.accept(t)
	id := f.pendingID(t, exportqueue.TypeRubric)

	if resp := call(r, http.MethodDelete, "/api/v1/exports/"+id, "intruder", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign cancel, got %d", resp.Code)
	}
	if resp := call(r, http.MethodDelete, "/api/v1/exports/"+id, "cust-1", ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := call(r, http.MethodGet, "/api/v1/exports/"+id, "cust-1", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after cancel, got %d", resp.Code)
	}
}

func TestRejectsUnknownExportType(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, f)
	f.accept(t)
	resp := call(r, http.MethodPost, "/api/v1/documents/doc-1/exports", "cust-1", `{"types":["answer_key"]}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
