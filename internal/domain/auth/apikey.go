package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Scopes granted to API keys. Read covers previews and bill lookups; write
// covers bill generation and payment confirmation.
const (
	ScopeBillingRead  = "billing:read"
	ScopeBillingWrite = "billing:write"
)

// ErrPermissionDenied is returned when a key lacks the scope an operation
// requires.
var ErrPermissionDenied = errors.New("permission denied")

// APIKeyInfo holds the identity and permission data for a validated API key.
// It doubles as the authorization capability passed into core operations, so
// the billing logic stays decoupled from the HTTP session mechanics.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Allows reports whether the key carries the given scope.
func (k *APIKeyInfo) Allows(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Require returns ErrPermissionDenied unless the key carries the given scope.
func (k *APIKeyInfo) Require(scope string) error {
	if k == nil || !k.Allows(scope) {
		return ErrPermissionDenied
	}
	return nil
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
