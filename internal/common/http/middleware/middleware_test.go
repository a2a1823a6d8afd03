package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solcheck/internal/common/cache"
	"solcheck/internal/common/http/middleware"
	"solcheck/internal/common/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware())
	r.Use(handlers...)
	r.POST("/check_solution", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"client": middleware.ClientID(c)})
	})
	return r
}

func do(r http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTraceContextMiddleware(t *testing.T) {
	r := newRouter()

	w := do(r, "/check_solution", map[string]string{"X-Trace-Id": "trace-1"})
	if got := w.Header().Get("X-Trace-Id"); got != "trace-1" {
		t.Fatalf("X-Trace-Id = %q", got)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id was not generated")
	}

	w = do(r, "/check_solution", nil)
	if w.Header().Get("X-Trace-Id") == "" {
		t.Fatal("trace id was not generated")
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	r := newRouter(middleware.APIKeyMiddleware([]string{"secret"}))

	w := do(r, "/check_solution", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "You need to provide correct api_key as GET param to access this API" {
		t.Fatalf("error = %v", body["error"])
	}

	if w := do(r, "/check_solution?api_key=wrong", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d", w.Code)
	}
	if w := do(r, "/check_solution?api_key=secret", nil); w.Code != http.StatusOK {
		t.Fatalf("query key status = %d", w.Code)
	}
	w = do(r, "/check_solution", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("header key status = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if client, _ := body["client"].(string); len(client) != len("key-")+12 {
		t.Fatalf("client id = %v", body["client"])
	}
}

func TestAPIKeyMiddlewareDisabled(t *testing.T) {
	r := newRouter(middleware.APIKeyMiddleware(nil))
	if w := do(r, "/check_solution", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	limiter := ratelimit.NewService(c, time.Minute, time.Second)

	r := newRouter(
		middleware.APIKeyMiddleware([]string{"a", "b"}),
		middleware.RateLimitMiddleware(limiter, "check", middleware.RateLimitPolicy{ClientMax: 2}),
	)
	for i := 0; i < 2; i++ {
		if w := do(r, "/check_solution?api_key=a", nil); w.Code != http.StatusOK {
			t.Fatalf("attempt %d status = %d", i+1, w.Code)
		}
	}
	if w := do(r, "/check_solution?api_key=a", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w := do(r, "/check_solution?api_key=b", nil); w.Code != http.StatusOK {
		t.Fatalf("another client must not be limited, status = %d", w.Code)
	}
}

func TestRateLimitMiddlewareNilLimiter(t *testing.T) {
	r := newRouter(middleware.RateLimitMiddleware(nil, "check", middleware.RateLimitPolicy{ClientMax: 1}))
	for i := 0; i < 3; i++ {
		if w := do(r, "/check_solution", nil); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
}
