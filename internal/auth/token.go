// Package auth guards the JSON API with a single shared bearer token whose
// bcrypt hash is configured out of band.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"feedsentry/internal/core"
)

// Middleware checks bearer tokens against a bcrypt hash
type Middleware struct {
	hash   []byte
	logger *core.Logger
}

// NewMiddleware creates token middleware. An empty hash disables the check.
func NewMiddleware(tokenHash string, logger *core.Logger) *Middleware {
	return &Middleware{hash: []byte(tokenHash), logger: logger}
}

// Enabled reports whether requests must carry a token
func (m *Middleware) Enabled() bool {
	return len(m.hash) > 0
}

// Authenticate rejects requests without a valid bearer token
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Authorization")

		authorizationHeader := r.Header.Get("Authorization")
		if authorizationHeader == "" {
			m.authenticationRequiredResponse(w)
			return
		}

		headerParts := strings.Split(authorizationHeader, " ")
		if len(headerParts) != 2 || headerParts[0] != "Bearer" {
			m.invalidAuthenticationTokenResponse(w)
			return
		}

		ok, err := m.matches(headerParts[1])
		if err != nil {
			m.logger.Error("Token validation error", "error", err)
			core.WriteErrorResponse(w, http.StatusInternalServerError, core.NewInternalError("Internal server error", nil))
			return
		}
		if !ok {
			m.invalidAuthenticationTokenResponse(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) matches(token string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(m.hash, []byte(token))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// HashToken returns the bcrypt hash to configure for a plaintext token
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), 12)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (m *Middleware) invalidAuthenticationTokenResponse(w http.ResponseWriter) {
	core.WriteErrorResponse(w, http.StatusUnauthorized, core.NewUnauthorizedError("Invalid authentication token", nil))
}

func (m *Middleware) authenticationRequiredResponse(w http.ResponseWriter) {
	core.WriteErrorResponse(w, http.StatusUnauthorized, core.NewUnauthorizedError("Authentication required", nil))
}
