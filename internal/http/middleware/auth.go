// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the bearer token on each request into an auth.Principal
// and provides guards for routes that need an authenticated user or staff.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-notify-backend/internal/auth"
)

const (
	// ctxKeyPrincipal holds the resolved auth.Principal.
	ctxKeyPrincipal = "principal"
	// ctxKeyUserID holds the decimal user id of an authenticated principal.
	ctxKeyUserID = "userID"
)

// PrincipalResolver turns a raw token into a principal. *auth.Authenticator
// satisfies it.
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (auth.Principal, error)
}

// Authenticate reads "Authorization: Bearer <token>" and stores the resolved
// principal in the context. Requests without a token, or with one that fails
// verification, continue as auth.Anonymous; RequireUser decides whether that
// is acceptable for a route.
func Authenticate(r PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := auth.Anonymous
		if tok := BearerToken(c.GetHeader("Authorization")); tok != "" {
			resolved, err := r.Resolve(c.Request.Context(), tok)
			if err != nil {
				LoggerFrom(c).Debug().Err(err).Msg("bearer token rejected")
			} else {
				p = resolved
			}
		}
		c.Set(ctxKeyPrincipal, p)
		if p.Authenticated {
			c.Set(ctxKeyUserID, strconv.FormatUint(p.UserID, 10))
		}
		c.Next()
	}
}

// RequireUser aborts with 401 unless an authenticated principal is present.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !PrincipalFrom(c).Authenticated {
			c.Header("WWW-Authenticate", `Bearer realm="notifications"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "authentication required",
			})
			return
		}
		c.Next()
	}
}

// RequireStaff aborts with 403 unless the principal is staff. It must run
// after RequireUser.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !PrincipalFrom(c).Staff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "forbidden",
				"message":    "staff only",
			})
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Authenticate, or
// auth.Anonymous.
func PrincipalFrom(c *gin.Context) auth.Principal {
	if v, ok := c.Get(ctxKeyPrincipal); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.Anonymous
}

// BearerToken extracts the token from an "Authorization: Bearer" header value.
func BearerToken(h string) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
