package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/openpos/restobill/internal/domain/auth"
)

// apiKeyHeader is the request header carrying the caller's API key.
const apiKeyHeader = "api_key"

// keyContextKey is the context key for the authenticated API key.
type keyContextKey struct{}

// KeyFromContext extracts the authenticated API key from the context, or nil
// when the request was not authenticated.
func KeyFromContext(ctx context.Context) *auth.APIKeyInfo {
	if k, ok := ctx.Value(keyContextKey{}).(*auth.APIKeyInfo); ok {
		return k
	}
	return nil
}

// APIKeyAuth returns a middleware that authenticates requests via
// HMAC-SHA256 hashed API keys: the presented key is hashed with the pepper,
// looked up, and compared in constant time to prevent timing side-channels.
// The resolved key (with its scopes) is stored in the request context as the
// authorization capability for the billing operations.
func APIKeyAuth(apikeys auth.Repository, pepper []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(apiKeyHeader)
			if presented == "" {
				writeError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			mac := hmac.New(sha256.New, pepper)
			mac.Write([]byte(presented))
			hash := mac.Sum(nil)

			info, err := apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// Constant-time comparison guards against a repository returning
			// a stale or wrong row.
			stored, err := hex.DecodeString(info.KeyHash)
			if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), keyContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
