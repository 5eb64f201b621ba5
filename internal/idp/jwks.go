package idp

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// signingKeys holds the identity platform's published ES256 public keys,
// indexed by kid. Fetched once at client construction; the platform
// rotates keys rarely enough that a process restart picks them up.
type signingKeys struct {
	mu   sync.RWMutex
	keys map[string]*ecdsa.PublicKey
}

func (k *signingKeys) get(kid string) *ecdsa.PublicKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keys[kid]
}

// fetchSigningKeys fetches and parses the platform JWKS. Startup is the
// one place retries are allowed; per-operation platform calls are not
// retried.
func fetchSigningKeys(ctx context.Context, httpClient *http.Client, jwksURL string) (*signingKeys, error) {
	keys, err := backoff.Retry(ctx, func() (map[string]*ecdsa.PublicKey, error) {
		return fetchJWKS(ctx, httpClient, jwksURL)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		return nil, err
	}

	log.Info().Str("jwks_url", jwksURL).Int("keys", len(keys)).Msg("Fetched identity platform signing keys")

	return &signingKeys{keys: keys}, nil
}

func fetchJWKS(ctx context.Context, httpClient *http.Client, jwksURL string) (map[string]*ecdsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed: %s", resp.Status)
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*ecdsa.PublicKey)
	for _, jwk := range jwks.Keys {
		key, err := parseJWK(jwk)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping unparseable JWK")
			continue
		}

		kid, ok := jwk["kid"].(string)
		if !ok {
			log.Warn().Msg("Skipping JWK without kid")
			continue
		}

		keys[kid] = key
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("JWKS at %s contained no usable keys", jwksURL)
	}

	return keys, nil
}

// parseJWK parses a JWK (JSON Web Key) into an ECDSA public key.
func parseJWK(jwk map[string]any) (*ecdsa.PublicKey, error) {
	kty, ok := jwk["kty"].(string)
	if !ok || kty != "EC" {
		return nil, fmt.Errorf("unsupported key type: %v", kty)
	}

	crv, ok := jwk["crv"].(string)
	if !ok || crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve: %v", crv)
	}

	xStr, ok := jwk["x"].(string)
	if !ok {
		return nil, fmt.Errorf("missing x coordinate")
	}

	yStr, ok := jwk["y"].(string)
	if !ok {
		return nil, fmt.Errorf("missing y coordinate")
	}

	xBytes, err := decodeBase64URL(xStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}

	yBytes, err := decodeBase64URL(yStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// decodeBase64URL decodes a base64url-encoded string (without padding).
func decodeBase64URL(s string) ([]byte, error) {
	// Strip padding if present; RawURLEncoding handles the rest
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return base64.RawURLEncoding.DecodeString(s)
}
