package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Principal is an authenticated reviewer.
type Principal struct {
	APIKey string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(authz) < len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// KeyAllowed compares token against every configured key in constant time.
func KeyAllowed(keys map[string]struct{}, token string) bool {
	if token == "" {
		return false
	}
	found := 0
	for k := range keys {
		found |= subtle.ConstantTimeCompare([]byte(k), []byte(token))
	}
	return found == 1
}
