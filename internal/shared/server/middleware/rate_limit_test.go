package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// limitedRouter limits accepts tightly, export polling loosely and leaves
// everything else alone. The caller is taken from the X-Test-Customer header.
func limitedRouter(now time.Time) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(customerIDKey, c.GetHeader("X-Test-Customer"))
		c.Next()
	})
	r.Use(RateLimit(RateLimitConfig{
		Limiter: NewRateLimiter(func() time.Time { return now }),
		GroupFor: func(c *gin.Context) string {
			switch c.FullPath() {
			case "/api/v1/documents/:documentId/accept":
				return "MUTATION"
			case "/api/v1/exports/:exportId":
				return "POLLING"
			}
			return "NONE"
		},
		Rules: map[string]RateLimitRule{
			"MUTATION": {Rate: 1, Burst: 2},
			"POLLING":  {Rate: 5, Burst: 10},
		},
	}))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.POST("/api/v1/documents/:documentId/accept", ok)
	r.GET("/api/v1/exports/:exportId", ok)
	r.GET("/api/v1/documents/:documentId", ok)
	return r
}

func hit(r *gin.Engine, method, path, customer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Test-Customer", customer)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRateLimitBudgetsPerGroup(t *testing.T) {
	r := limitedRouter(time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC))

	cases := []struct {
		name    string
		method  string
		path    string
		allowed int
		limited bool
	}{
		{"accept burst", http.MethodPost, "/api/v1/documents/doc-1/accept", 2, true},
		{"polling burst", http.MethodGet, "/api/v1/exports/exp-1", 10, true},
		{"unlimited reads", http.MethodGet, "/api/v1/documents/doc-1", 25, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < tc.allowed; i++ {
				if resp := hit(r, tc.method, tc.path, "cust-a"); resp.Code != http.StatusOK {
					t.Fatalf("request %d: expected 200, got %d", i+1, resp.Code)
				}
			}
			resp := hit(r, tc.method, tc.path, "cust-a")
			if limited := resp.Code == http.StatusTooManyRequests; limited != tc.limited {
				t.Fatalf("expected limited=%v, got status %d", tc.limited, resp.Code)
			}
		})
	}
}

func TestRateLimitIsPerCustomer(t *testing.T) {
	r := limitedRouter(time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 2; i++ {
		hit(r, http.MethodPost, "/api/v1/documents/doc-1/accept", "cust-a")
	}
	if resp := hit(r, http.MethodPost, "/api/v1/documents/doc-1/accept", "cust-b"); resp.Code != http.StatusOK {
		t.Fatalf("another customer should have its own bucket, got %d", resp.Code)
	}
}

func TestRateLimitResponseCarriesRetryAfter(t *testing.T) {
	r := limitedRouter(time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 2; i++ {
		hit(r, http.MethodPost, "/api/v1/documents/doc-9/accept", "cust-a")
	}
	resp := hit(r, http.MethodPost, "/api/v1/documents/doc-9/accept", "cust-a")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After of 1s, got %q", resp.Header().Get("Retry-After"))
	}

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" {
		t.Fatalf("expected code=rate_limited, got %+v", payload)
	}
	if _, ok := payload.Error.Details["retryAfterMs"]; !ok {
		t.Fatalf("expected retryAfterMs in details")
	}
}
