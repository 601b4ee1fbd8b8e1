package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/opencode-ai/wagate/internal/auth"
	"github.com/opencode-ai/wagate/internal/logging"
)

type ctxKey int

const tokenKey ctxKey = iota

// requestLogger logs every request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logging.Debug().
				Str("requestID", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// extractToken reads the bearer token from the Authorization header,
// falling back to the token query parameter for websocket and SSE clients.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// requireToken rejects requests without a valid token. With no users
// configured every request passes.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		value := extractToken(r)
		if value == "" {
			writeRejected(w, http.StatusUnauthorized, msgNoToken)
			return
		}
		tok, err := s.auth.Validate(value)
		if err != nil {
			writeRejected(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), tokenKey, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenFrom returns the token the request was authorized with, if any.
func tokenFrom(ctx context.Context) *auth.Token {
	tok, _ := ctx.Value(tokenKey).(*auth.Token)
	return tok
}
