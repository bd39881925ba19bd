package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/insightx/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefixLen = 8

// ErrKeyTooShort is returned by HashKey for keys without a full client prefix.
var ErrKeyTooShort = errors.New("api key must be at least 8 characters")

// Auth checks Bearer API keys against a fixed set of bcrypt hashes.
type Auth struct {
	hashes [][]byte
}

// NewAuth creates a new Auth middleware. With no hashes every request is
// let through unauthenticated.
func NewAuth(hashes []string) *Auth {
	a := &Auth{hashes: make([][]byte, 0, len(hashes))}
	for _, h := range hashes {
		a.hashes = append(a.hashes, []byte(h))
	}
	return a
}

// Enabled reports whether any API key is configured.
func (a *Auth) Enabled() bool {
	return len(a.hashes) > 0
}

// Authenticate validates the Bearer token and sets the client id (the key's
// first 8 characters) in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		for _, h := range a.hashes {
			if bcrypt.CompareHashAndPassword(h, []byte(rawKey)) == nil {
				ctx := SetClientID(r.Context(), rawKey[:keyPrefixLen])
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		response.Error(w, http.StatusUnauthorized,
			"INVALID_TOKEN", "Invalid API key", nil)
	})
}

// HashKey returns the bcrypt hash to configure for rawKey.
func HashKey(rawKey string) (string, error) {
	if len(rawKey) < keyPrefixLen {
		return "", ErrKeyTooShort
	}
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
