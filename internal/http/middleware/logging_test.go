package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	r := newEngine()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(requestIDKey)) })

	w := do(r, http.MethodGet, "/x", nil)
	gen := w.Header().Get(requestIDHeader)
	if len(gen) != 36 || w.Body.String() != gen {
		t.Fatalf("generated id %q, body %q", gen, w.Body.String())
	}

	w = do(r, http.MethodGet, "/x", map[string]string{requestIDHeader: "rid-123"})
	if w.Header().Get(requestIDHeader) != "rid-123" {
		t.Fatalf("incoming id not propagated")
	}

	w = do(r, http.MethodGet, "/x", map[string]string{requestIDHeader: strings.Repeat("a", 300)})
	if got := w.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("oversized id should be replaced, got %q", got)
	}
}

func TestRecovery_JSON500WithRequestID(t *testing.T) {
	buf := withCapturedLogger(t)
	r := newEngine()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := do(r, http.MethodGet, "/boom", map[string]string{requestIDHeader: "rid-p"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-p" {
		t.Fatalf("body = %v", body)
	}
	logs := buf.String()
	if !strings.Contains(logs, "panic recovered") || !strings.Contains(logs, `"request_id":"rid-p"`) {
		t.Fatalf("panic log missing request id: %s", logs)
	}
}

func TestRecovery_AfterWriteOnlyAborts(t *testing.T) {
	withCapturedLogger(t)
	r := newEngine()
	r.Use(Recovery())
	r.GET("/half", func(c *gin.Context) {
		c.String(http.StatusAccepted, "partial")
		panic("late")
	})
	w := do(r, http.MethodGet, "/half", nil)
	if w.Code != http.StatusAccepted || w.Body.String() != "partial" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestLoggerFrom_AddsUserID(t *testing.T) {
	buf := withCapturedLogger(t)
	r := newEngine()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Authenticate(testTokens))
	r.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside handler")
		c.Status(http.StatusNoContent)
	})

	do(r, http.MethodGet, "/x", bearer("alice"))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "inside handler") {
			if !strings.Contains(line, `"user_id":"1"`) || !strings.Contains(line, `"request_id"`) {
				t.Fatalf("handler log missing fields: %s", line)
			}
			return
		}
	}
	t.Fatalf("handler log not found: %s", buf.String())
}

func TestLoggerFrom_WithoutUpstreamLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(nil)
	if LoggerFrom(c) == nil {
		t.Fatalf("expected fallback logger")
	}
}
