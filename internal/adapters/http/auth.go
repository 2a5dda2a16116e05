package httpadapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tenantHeader  = "X-Tenant-ID"
	userHeader    = "X-User-ID"
	defaultTenant = "default"
	anonymousUser = "anonymous"
)

type identity struct {
	TenantID string
	UserID   string
}

type identityContextKey struct{}

type identityHolderKey struct{}

type identityHolder struct {
	identity identity
}

func identityFromContext(ctx context.Context) identity {
	if id, ok := ctx.Value(identityContextKey{}).(identity); ok {
		return id
	}
	return identity{TenantID: defaultTenant, UserID: anonymousUser}
}

// authMiddleware resolves the caller's tenant. With a secret configured every
// request needs an HS256 bearer token; tenant_id and sub claims name the tenant
// and user. Without a secret the X-Tenant-ID and X-User-ID headers are trusted.
func authMiddleware(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id identity
		if len(secret) == 0 {
			id = identity{
				TenantID: headerOr(r, tenantHeader, defaultTenant),
				UserID:   headerOr(r, userHeader, anonymousUser),
			}
		} else {
			claims, ok := parseBearer(r.Header.Get("Authorization"), secret)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="company-rag"`)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			id = identity{
				TenantID: claimOr(claims, "tenant_id", defaultTenant),
				UserID:   claimOr(claims, "sub", anonymousUser),
			}
		}

		if holder, ok := r.Context().Value(identityHolderKey{}).(*identityHolder); ok {
			holder.identity = id
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityContextKey{}, id)))
	})
}

func parseBearer(header string, secret []byte) (jwt.MapClaims, bool) {
	header = strings.TrimSpace(header)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, false
	}
	return claims, true
}

func claimOr(claims jwt.MapClaims, key, fallback string) string {
	if v, ok := claims[key].(string); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return fallback
}

func headerOr(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
		return v
	}
	return fallback
}
