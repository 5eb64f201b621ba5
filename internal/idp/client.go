// Package idp is the client for the external identity platform: session
// credential verification, local access token introspection, and policy
// engine permission checks.
//
// One Client is constructed per process and passed by reference to both
// protocol adapters. There is no package-level singleton.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/okrd/internal/auth"
	"github.com/wolfeidau/okrd/internal/client"
)

// ErrTokenInvalid covers every credential verification failure: expired,
// malformed, revoked, wrong signature. Verification fails closed; callers
// get no principal alongside this error.
var ErrTokenInvalid = errors.New("token invalid")

// Config holds the identity platform connection settings.
type Config struct {
	// Domain is the base URL of the identity platform tenant,
	// e.g. https://idp.example.com
	Domain string

	// ProjectID and ProjectSecret authenticate this service to the
	// platform's management API.
	ProjectID     string
	ProjectSecret string

	// HTTPTimeout bounds every platform round trip. Default: 10s.
	HTTPTimeout time.Duration
}

// Client talks to the identity platform. Session authentication and
// policy checks are short synchronous RPCs; access token introspection is
// local against the platform's published signing keys.
type Client struct {
	cfg        Config
	httpClient *http.Client
	keys       *signingKeys
}

// NewClient creates an identity platform client. The platform's JWKS is
// fetched once here (with bounded retry) so token introspection never
// needs a network round trip afterwards.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Domain == "" {
		return nil, errors.New("identity platform domain is required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	httpClient := client.NewInMemoryCachingHTTPClient(cfg.HTTPTimeout)

	keys, err := fetchSigningKeys(ctx, httpClient, cfg.Domain+"/.well-known/jwks.json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch identity platform signing keys: %w", err)
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		keys:       keys,
	}, nil
}

// authenticateRequest is the wire shape of the combined session
// verification call. When AuthorizationCheck is present the platform
// evaluates authentication and authorization in one round trip.
type authenticateRequest struct {
	SessionJWT         string              `json:"session_jwt"`
	AuthorizationCheck *authorizationCheck `json:"authorization_check,omitempty"`
}

type authorizationCheck struct {
	Action     string `json:"action"`
	ResourceID string `json:"resource_id"`
}

type authenticateResponse struct {
	OrganizationID string   `json:"organization_id"`
	MemberID       string   `json:"member_id"`
	Roles          []string `json:"roles"`
}

// AuthenticateSession verifies a session credential and, when check is
// non-nil, the caller's permission for that action/resource in the same
// round trip. Returns auth.ErrUnauthenticated on any verification
// failure and auth.ErrPermissionDenied when the credential is valid but
// the policy engine denies the action.
func (c *Client) AuthenticateSession(ctx context.Context, sessionJWT string, check *auth.AuthorizationCheck) (*auth.Principal, error) {
	if sessionJWT == "" {
		return nil, fmt.Errorf("%w: missing session credential", auth.ErrUnauthenticated)
	}

	body := authenticateRequest{SessionJWT: sessionJWT}
	if check != nil {
		body.AuthorizationCheck = &authorizationCheck{
			Action:     string(check.Action),
			ResourceID: string(check.Resource),
		}
	}

	var result authenticateResponse
	status, err := c.post(ctx, "/v1/sessions/authenticate", body, &result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err)
	}

	switch status {
	case http.StatusOK:
		// fallthrough to principal construction
	case http.StatusForbidden:
		if check != nil {
			return nil, fmt.Errorf("%w: session lacks %s on %s", auth.ErrPermissionDenied, check.Action, check.Resource)
		}
		return nil, auth.ErrPermissionDenied
	default:
		log.Debug().Int("status", status).Msg("session authentication rejected")
		return nil, fmt.Errorf("%w: %v", auth.ErrUnauthenticated, ErrTokenInvalid)
	}

	return &auth.Principal{
		OrgID:         result.OrganizationID,
		PrincipalID:   result.MemberID,
		Roles:         result.Roles,
		RawCredential: sessionJWT,
	}, nil
}

// IntrospectToken verifies an access token locally against the platform's
// signing keys and recovers the principal bound to it. It carries
// identity only; permission checks always go through CheckPermission.
func (c *Client) IntrospectToken(tokenString string) (*auth.Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		key := c.keys.get(kid)
		if key == nil {
			return nil, fmt.Errorf("unknown signing key: %s", kid)
		}
		return key, nil
	},
		jwt.WithIssuer(c.cfg.Domain),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		log.Debug().Err(err).Msg("access token introspection failed")
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	orgID, _ := claims["organization_id"].(string)
	if orgID == "" {
		return nil, fmt.Errorf("%w: missing organization_id claim", ErrTokenInvalid)
	}

	subject, _ := claims["sub"].(string)

	return &auth.Principal{
		OrgID:         orgID,
		PrincipalID:   subject,
		Roles:         stringSliceClaim(claims, "roles"),
		RawCredential: tokenString,
	}, nil
}

type policyEvaluateRequest struct {
	OrganizationID string `json:"organization_id"`
	MemberID       string `json:"member_id"`
	Action         string `json:"action"`
	ResourceID     string `json:"resource_id"`
}

type policyEvaluateResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// CheckPermission asks the policy engine whether the principal may
// perform action on the resource kind within its organization. Returns
// auth.ErrPermissionDenied on deny and auth.ErrUnauthenticated when the
// engine no longer recognises the principal's credential.
func (c *Client) CheckPermission(ctx context.Context, principal *auth.Principal, action auth.Action, resource auth.Resource) error {
	body := policyEvaluateRequest{
		OrganizationID: principal.OrgID,
		MemberID:       principal.PrincipalID,
		Action:         string(action),
		ResourceID:     string(resource),
	}

	var result policyEvaluateResponse
	status, err := c.post(ctx, "/v1/policy/evaluate", body, &result)
	if err != nil {
		return fmt.Errorf("policy engine unreachable: %w", err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: credential no longer valid", auth.ErrUnauthenticated)
	case status != http.StatusOK:
		return fmt.Errorf("policy engine returned status %d", status)
	case !result.Allowed:
		return fmt.Errorf("%w: %s", auth.ErrPermissionDenied, result.Reason)
	}

	return nil
}

// Domain returns the identity platform base URL, published as the
// authorization server in the protected resource discovery document.
func (c *Client) Domain() string {
	return c.cfg.Domain
}

// post sends an authenticated JSON request to the platform and decodes
// the response body for 2xx/4xx statuses. Transport errors and timeouts
// are returned as-is.
func (c *Client) post(ctx context.Context, path string, body any, out any) (int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Domain+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.ProjectID, c.cfg.ProjectSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity platform request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// stringSliceClaim extracts a string slice claim, tolerating the
// []any shape produced by JSON decoding.
func stringSliceClaim(claims jwt.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
