package session

import (
	"net/http"
	"strings"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// Middleware authenticates "Authorization: Bearer <jwt>" and stores the Identity in the request
// context. cache may be nil.
func Middleware(verifier Verifier, cache Cache, logger *logging.Logger) func(http.Handler) http.Handler {
	if verifier == nil {
		panic("session: verifier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				apperr.Write(w, apperr.Unauthorized("session", err))
				return
			}

			ctx := r.Context()
			key := tokenKey(token)
			if cache != nil {
				if id, ok := cache.Get(ctx, key); ok {
					next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
					return
				}
			}

			id, err := verifier.Verify(ctx, token)
			if err != nil {
				logger.Debug("token rejected", "error", err, "path", r.URL.Path)
				apperr.Write(w, apperr.Unauthorized("session", ErrInvalidToken))
				return
			}
			if cache != nil {
				cache.Set(ctx, key, id, 0)
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < len("Bearer ") || !strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(auth[len("Bearer "):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
