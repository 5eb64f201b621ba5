package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSessionAuthenticator struct {
	principal *Principal
	err       error

	gotJWT   string
	gotCheck *AuthorizationCheck
}

func (f *fakeSessionAuthenticator) AuthenticateSession(_ context.Context, sessionJWT string, check *AuthorizationCheck) (*Principal, error) {
	f.gotJWT = sessionJWT
	f.gotCheck = check
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

func TestSessionMiddleware(t *testing.T) {
	principal := &Principal{OrgID: "org-1", PrincipalID: "member-1"}

	captured := func(captive **Principal) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*captive = PrincipalFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("valid session installs principal and forwards the check", func(t *testing.T) {
		authenticator := &fakeSessionAuthenticator{principal: principal}
		var got *Principal
		handler := SessionMiddleware(authenticator, ActionCreate, ResourceObjective)(captured(&got))

		req := httptest.NewRequest(http.MethodPost, "/objectives", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-jwt"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, principal, got)
		require.Equal(t, "session-jwt", authenticator.gotJWT)
		require.NotNil(t, authenticator.gotCheck)
		require.Equal(t, ActionCreate, authenticator.gotCheck.Action)
		require.Equal(t, ResourceObjective, authenticator.gotCheck.Resource)
	})

	t.Run("verification failure is 401", func(t *testing.T) {
		authenticator := &fakeSessionAuthenticator{err: ErrUnauthenticated}
		handler := SessionMiddleware(authenticator, ActionRead, ResourceObjective)(http.NotFoundHandler())

		req := httptest.NewRequest(http.MethodGet, "/objectives", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("policy deny is 403", func(t *testing.T) {
		authenticator := &fakeSessionAuthenticator{err: ErrPermissionDenied}
		handler := SessionMiddleware(authenticator, ActionDelete, ResourceObjective)(http.NotFoundHandler())

		req := httptest.NewRequest(http.MethodDelete, "/objectives/okr_0", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-jwt"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

type fakeIntrospector struct {
	principal *Principal
	err       error
	gotToken  string
}

func (f *fakeIntrospector) IntrospectToken(tokenString string) (*Principal, error) {
	f.gotToken = tokenString
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "no header", header: "", want: ""},
		{name: "bearer token", header: "Bearer abc123", want: "abc123"},
		{name: "case insensitive scheme", header: "bearer abc123", want: "abc123"},
		{name: "wrong scheme", header: "Basic abc123", want: ""},
		{name: "scheme without token", header: "Bearer", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			require.Equal(t, tt.want, ExtractBearerToken(req))
		})
	}
}

func TestBearerMiddleware(t *testing.T) {
	principal := &Principal{OrgID: "org-1", PrincipalID: "member-1"}

	t.Run("valid token installs principal", func(t *testing.T) {
		introspector := &fakeIntrospector{principal: principal}
		var got *Principal
		handler := BearerMiddleware(introspector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = PrincipalFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer token-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, principal, got)
		require.Equal(t, "token-1", introspector.gotToken)
	})

	t.Run("missing token is 401 with discovery header", func(t *testing.T) {
		introspector := &fakeIntrospector{principal: principal}
		handler := BearerMiddleware(introspector)(http.NotFoundHandler())

		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "/.well-known/oauth-protected-resource")
	})

	t.Run("invalid token is 401", func(t *testing.T) {
		introspector := &fakeIntrospector{err: ErrUnauthenticated}
		handler := BearerMiddleware(introspector)(http.NotFoundHandler())

		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.Header.Set("Authorization", "Bearer expired")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
