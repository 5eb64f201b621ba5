package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// TokenIntrospector recovers the principal bound to a bearer access
// token. Introspection is local; no network round trip per call.
// Implemented by idp.Client.
type TokenIntrospector interface {
	IntrospectToken(tokenString string) (*Principal, error)
}

// ExtractBearerToken extracts the token from the Authorization header.
// Returns "" when the header is missing or not a bearer scheme.
func ExtractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return parts[1]
}

// BearerMiddleware binds an agent connection to a principal. The bearer
// access token is introspected once here; this establishes identity for
// the connection's lifetime, and nothing more. Each subsequent tool or
// resource call is authorized separately through the gate.
//
// Missing or invalid tokens get a 401 with a WWW-Authenticate header
// pointing at the protected resource metadata so agent clients can
// discover where to obtain credentials.
func BearerMiddleware(introspector TokenIntrospector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractBearerToken(r)
			if tokenString == "" {
				unauthorized(w, r)
				return
			}

			principal, err := introspector.IntrospectToken(tokenString)
			if err != nil {
				log.Debug().Err(err).Msg("Bearer auth: introspection failed")
				unauthorized(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	metadataURL := fmt.Sprintf("%s://%s/.well-known/oauth-protected-resource", scheme, r.Host)

	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer error="Unauthorized", error_description="Unauthorized", resource_metadata=%q`, metadataURL))
	http.Error(w, "missing or invalid access token", http.StatusUnauthorized)
}
