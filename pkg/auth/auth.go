// Package auth checks bearer API keys on the verification API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// APIKeyManager holds bcrypt hashes of the accepted API keys. Plain keys
// are never retained.
type APIKeyManager struct {
	hashes map[string][]byte // description -> hash
	mu     sync.RWMutex
	cost   int
}

// NewAPIKeyManager creates a manager with no keys. A manager without keys
// accepts every request.
func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{
		hashes: make(map[string][]byte),
		cost:   bcrypt.DefaultCost,
	}
}

// AddAPIKey hashes and registers key under description
func (akm *APIKeyManager) AddAPIKey(description, key string) error {
	if key == "" {
		return ErrMissingKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), akm.cost)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	akm.mu.Lock()
	defer akm.mu.Unlock()
	akm.hashes[description] = hash
	return nil
}

// ValidateAPIKey checks key against every registered hash
func (akm *APIKeyManager) ValidateAPIKey(key string) error {
	if key == "" {
		return ErrMissingKey
	}
	akm.mu.RLock()
	defer akm.mu.RUnlock()

	for _, hash := range akm.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return nil
		}
	}
	return ErrInvalidKey
}

// Enabled reports whether any key is registered
func (akm *APIKeyManager) Enabled() bool {
	akm.mu.RLock()
	defer akm.mu.RUnlock()
	return len(akm.hashes) > 0
}

// Middleware rejects requests without a valid "Authorization: Bearer <key>"
// header. Paths listed in open skip the check.
func (akm *APIKeyManager) Middleware(open ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(open))
	for _, p := range open {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || !akm.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}
			if err := akm.ValidateAPIKey(key); err != nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
