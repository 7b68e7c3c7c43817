package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	user uint64
	key  string
}

func idemEngine(opts IdempotencyOptions, lookup IdempotencyLookup) *gin.Engine {
	r := newEngine()
	r.Use(Authenticate(testTokens), IdempotencyValidator(opts, lookup))
	r.POST("/notifications", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{"key": key, "replay": IsReplay(c), "bypass": IsRateBypass(c)})
	})
	return r
}

func decodeFlags(t *testing.T, b []byte) (key string, replay, bypass bool) {
	t.Helper()
	var m struct {
		Key    string `json:"key"`
		Replay bool   `json:"replay"`
		Bypass bool   `json:"bypass"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("json: %v", err)
	}
	return m.Key, m.Replay, m.Bypass
}

func TestIdempotencyValidator_NoHeaderIsNoop(t *testing.T) {
	called := false
	r := idemEngine(IdempotencyOptions{}, func(context.Context, uint64, string) (bool, error) {
		called = true
		return true, nil
	})
	w := do(r, http.MethodPost, "/notifications", bearer("boss"))
	key, replay, _ := decodeFlags(t, w.Body.Bytes())
	if key != "" || replay || called {
		t.Fatalf("key=%q replay=%v lookup called=%v", key, replay, called)
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	digits := IdempotencyOptions{MaxLen: 5, Pattern: regexp.MustCompile(`^[0-9]+$`)}
	for _, key := range []string{"123456", "12a", "a b"} {
		r := idemEngine(digits, nil)
		hdr := bearer("boss")
		hdr[HeaderIdempotencyKey] = key
		w := do(r, http.MethodPost, "/notifications", hdr)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: %d %s", key, w.Code, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_DefaultsAcceptTokenChars(t *testing.T) {
	r := idemEngine(IdempotencyOptions{}, nil)
	hdr := bearer("boss")
	hdr[HeaderIdempotencyKey] = "order-42:create-v1.~"
	w := do(r, http.MethodPost, "/notifications", hdr)
	if key, _, _ := decodeFlags(t, w.Body.Bytes()); key != "order-42:create-v1.~" {
		t.Fatalf("key = %q", key)
	}

	hdr[HeaderIdempotencyKey] = strings.Repeat("k", 201)
	if w := do(r, http.MethodPost, "/notifications", hdr); w.Code != http.StatusBadRequest {
		t.Fatalf("201-char key = %d", w.Code)
	}
}

func TestIdempotencyValidator_ReplayMarksBypass(t *testing.T) {
	var calls []lookupCall
	lookup := func(_ context.Context, uid uint64, key string) (bool, error) {
		calls = append(calls, lookupCall{uid, key})
		return key == "seen", nil
	}
	r := idemEngine(IdempotencyOptions{}, lookup)

	hdr := bearer("boss")
	hdr[HeaderIdempotencyKey] = "seen"
	_, replay, bypass := decodeFlags(t, do(r, http.MethodPost, "/notifications", hdr).Body.Bytes())
	if !replay || !bypass {
		t.Fatalf("replay=%v bypass=%v", replay, bypass)
	}

	hdr[HeaderIdempotencyKey] = "fresh"
	_, replay, bypass = decodeFlags(t, do(r, http.MethodPost, "/notifications", hdr).Body.Bytes())
	if replay || bypass {
		t.Fatalf("fresh key marked as replay")
	}

	if len(calls) != 2 || calls[0] != (lookupCall{2, "seen"}) {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestIdempotencyValidator_AnonymousAndLookupErrors(t *testing.T) {
	withCapturedLogger(t)
	called := 0
	r := idemEngine(IdempotencyOptions{}, func(context.Context, uint64, string) (bool, error) {
		called++
		return false, errors.New("db down")
	})

	w := do(r, http.MethodPost, "/notifications", map[string]string{HeaderIdempotencyKey: "k1"})
	if _, replay, _ := decodeFlags(t, w.Body.Bytes()); replay || called != 0 {
		t.Fatalf("anonymous request should not be looked up (called=%d)", called)
	}

	hdr := bearer("alice")
	hdr[HeaderIdempotencyKey] = "k1"
	w = do(r, http.MethodPost, "/notifications", hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup error should not fail the request: %d", w.Code)
	}
	if called != 1 {
		t.Fatalf("called = %d", called)
	}
}
