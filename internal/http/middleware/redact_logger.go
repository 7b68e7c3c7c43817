// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies. Credentials are masked wherever clients put them: the
// Authorization and Cookie headers, and the "token" query parameter the
// WebSocket endpoint accepts. Emails, phone numbers and UUIDs in the
// remaining query string and headers are replaced with placeholders.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and
	// Set-Cookie. Case-insensitive.
	MaskHeaders []string
	// MaskParams are query parameters masked in addition to token and
	// access_token.
	MaskParams []string
}

const redacted = "[REDACTED]"

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// digits only, so it cannot eat the hex groups of a UUID
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// scrub replaces identifiers in s. UUIDs go first because the phone pattern
// would otherwise match their digit runs.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func toSet(defaults []string, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(defaults)+len(extra))
	for _, s := range append(defaults, extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// scrubQuery masks the values of sensitive params and scrubs the rest,
// keeping the original parameter order. Pairs are split by hand so a
// malformed escape elsewhere cannot leave a token unmasked.
func scrubQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	for i, part := range parts {
		k, v, found := strings.Cut(part, "=")
		if !found {
			parts[i] = scrub(k)
			continue
		}
		name := k
		if uk, err := url.QueryUnescape(k); err == nil {
			name = uk
		}
		if _, ok := mask[strings.ToLower(name)]; ok {
			parts[i] = k + "=" + redacted
			continue
		}
		if uv, err := url.QueryUnescape(v); err == nil {
			v = uv
		}
		parts[i] = k + "=" + scrub(v)
	}
	return strings.Join(parts, "&")
}

// RedactingLogger emits one structured access log per request and attaches a
// request-scoped logger for LoggerFrom. Level follows the status: error for
// 5xx, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := toSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskParams := toSet([]string{"token", "access_token"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := scrubQuery(c.Request.URL.RawQuery, maskParams)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = redacted
				continue
			}
			safeHeaders[k] = scrub(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		lg := log.With().Str("request_id", reqID).Logger()
		c.Set(loggerKey, &lg)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = lg.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		if uid := asString(c.Value(ctxKeyUserID)); uid != "" {
			ev = ev.Str("user_id", uid)
		}

		ev.Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
