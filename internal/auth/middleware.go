package auth

import (
	"net/http"
	"strings"

	"facturation/internal/log"
)

// HeaderUserEmail carries the identity when no secret is configured.
const HeaderUserEmail = "X-User-Email"

type Middleware struct {
	secret       []byte
	logger       *log.Logger
	unauthorized func(http.ResponseWriter, *http.Request, error)
}

// NewMiddleware returns a middleware checking tokens signed with secret.
// An empty secret trusts the X-User-Email header instead. unauthorized
// writes the 401 response; nil uses http.Error.
func NewMiddleware(secret []byte, logger *log.Logger, unauthorized func(http.ResponseWriter, *http.Request, error)) *Middleware {
	if unauthorized == nil {
		unauthorized = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return &Middleware{secret: secret, logger: logger.WithComponent(log.ComponentAuth), unauthorized: unauthorized}
}

// Enabled reports whether tokens are required.
func (m *Middleware) Enabled() bool {
	return len(m.secret) > 0
}

func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			email := strings.TrimSpace(r.Header.Get(HeaderUserEmail))
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), email)))
			return
		}

		token, err := BearerToken(r.Header.Get("Authorization"))
		if err == nil {
			var claims *Claims
			claims, err = ParseJWT(token, m.secret)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.Email)))
				return
			}
		}
		m.logger.WarnContext(r.Context(), "Rejected request", log.FieldPath, r.URL.Path, log.FieldError, err.Error())
		m.unauthorized(w, r, err)
	})
}
