package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeUnauthorized = "unauthorized"
)

// TokenFromRequest returns the bearer token of the Authorization header, or
// the token query parameter when the header is missing. Browsers cannot set
// headers on websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// VerifyToken returns a websocket handshake that rejects clients not
// presenting token. An empty token accepts everyone.
func VerifyToken(token string) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if err := verifyToken(token, r); err != nil {
			logs.WithTag("remote_addr", r.RemoteAddr).Error(err)
			return err
		}
		return nil
	}
}

// VerifyTokenHandler is the plain HTTP counterpart of VerifyToken.
func VerifyTokenHandler(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := verifyToken(token, r); err != nil {
			logs.WithTag("remote_addr", r.RemoteAddr).Error(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func verifyToken(token string, r *http.Request) error {
	if token == "" {
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(TokenFromRequest(r)), []byte(token)) != 1 {
		return errors.New("invalid token").
			WithType(ErrTypeUnauthorized).
			WithTag("path", r.URL.Path)
	}
	return nil
}
