package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// SessionCookieName is the cookie the editor frontend stores the session
// credential in.
const SessionCookieName = "okr_session_jwt"

// SessionAuthenticator verifies a session credential, optionally checking
// a permission in the same round trip. Implemented by idp.Client.
type SessionAuthenticator interface {
	AuthenticateSession(ctx context.Context, sessionJWT string, check *AuthorizationCheck) (*Principal, error)
}

// SessionMiddleware authenticates the session cookie and checks the
// route's permission in one combined identity platform call, then installs
// the principal in the request context. Applied per route so every
// operation gets its own fresh authorization decision.
//
// 401 when the credential fails verification, 403 when the credential is
// valid but the policy engine denies the action.
func SessionMiddleware(authenticator SessionAuthenticator, action Action, resource Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionJWT string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionJWT = cookie.Value
			}

			principal, err := authenticator.AuthenticateSession(r.Context(), sessionJWT, &AuthorizationCheck{
				Action:   action,
				Resource: resource,
			})
			if err != nil {
				if errors.Is(err, ErrPermissionDenied) {
					log.Debug().Err(err).Str("action", string(action)).Str("resource", string(resource)).
						Msg("Session auth: permission denied")
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}

				log.Debug().Err(err).Msg("Session auth: verification failed")
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
