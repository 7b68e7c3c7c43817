package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByPrincipalOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := KeyByPrincipalOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(ctxKeyPrincipal, testTokens["alice"])
	if got := KeyByPrincipalOrIP()(c); got != "user:1" {
		t.Fatalf("user key = %q", got)
	}
}

func TestRateLimiter_BurstCoercionAndReuse(t *testing.T) {
	rl := NewRateLimiter(2, 0, KeyByPrincipalOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d", rl.burst)
	}
	now := time.Now()
	lim := rl.limiterFor("k1", now)
	if rl.limiterFor("k1", now) != lim {
		t.Fatalf("limiter not reused")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByPrincipalOrIP())
	now := time.Now()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: now.Add(-time.Hour)}
	rl.visitors["warm"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: now.Add(-time.Minute)}
	rl.sweepN = 4999

	rl.limiterFor("new", now)

	if _, ok := rl.visitors["old"]; ok {
		t.Fatalf("idle bucket not evicted")
	}
	if _, ok := rl.visitors["warm"]; !ok {
		t.Fatalf("recent bucket evicted")
	}
	if rl.sweepN != 0 {
		t.Fatalf("sweep counter not reset")
	}
}

func TestRateLimiter_PerUserBuckets(t *testing.T) {
	r := newEngine()
	r.Use(Authenticate(testTokens))
	r.Use(NewRateLimiter(0.0001, 1, KeyByPrincipalOrIP(), "/health").Handler())
	r.GET("/n", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if w := do(r, http.MethodGet, "/n", bearer("alice")); w.Code != http.StatusNoContent {
		t.Fatalf("first alice = %d", w.Code)
	}
	w := do(r, http.MethodGet, "/n", bearer("alice"))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second alice = %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "too_many_requests" {
		t.Fatalf("body = %v", body)
	}

	// separate bucket
	if w := do(r, http.MethodGet, "/n", bearer("boss")); w.Code != http.StatusNoContent {
		t.Fatalf("boss = %d", w.Code)
	}
	for i := 0; i < 3; i++ {
		if w := do(r, http.MethodGet, "/health", nil); w.Code != http.StatusNoContent {
			t.Fatalf("skipped route limited on call %d", i)
		}
	}
}

func TestRateLimiter_ReplayBypass(t *testing.T) {
	r := newEngine()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Replay") != "" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	})
	r.Use(NewRateLimiter(0.0001, 1, KeyByPrincipalOrIP()).Handler())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	do(r, http.MethodPost, "/x", nil)
	if w := do(r, http.MethodPost, "/x", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/x", map[string]string{"X-Replay": "1"}); w.Code != http.StatusCreated {
		t.Fatalf("replay limited: %d", w.Code)
	}
}
