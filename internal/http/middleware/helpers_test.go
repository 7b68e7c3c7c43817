package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-notify-backend/internal/auth"
)

// mapResolver resolves tokens from a fixed table.
type mapResolver map[string]auth.Principal

func (m mapResolver) Resolve(_ context.Context, tok string) (auth.Principal, error) {
	if p, ok := m[tok]; ok {
		return p, nil
	}
	return auth.Anonymous, auth.ErrInvalidToken
}

var testTokens = mapResolver{
	"alice": {UserID: 1, Username: "alice", Authenticated: true},
	"boss":  {UserID: 2, Username: "boss", Staff: true, Authenticated: true},
}

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func do(r http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}
