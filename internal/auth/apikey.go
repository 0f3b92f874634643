// ABOUTME: API key credentials for the agent endpoint, the service's default scheme
// ABOUTME: Keys travel in the X-API-Key header and carry an "sk-" prefix

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

// Scheme selects how the client presents its credential.
type Scheme string

const (
	// SchemeAPIKey sends the credential in the X-API-Key header.
	SchemeAPIKey Scheme = "api_key"
	// SchemeBearer sends the credential as an Authorization bearer token.
	SchemeBearer Scheme = "bearer"
)

// ParseScheme maps a config value to a Scheme. Empty means SchemeAPIKey.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeAPIKey:
		return SchemeAPIKey, nil
	case SchemeBearer:
		return SchemeBearer, nil
	default:
		return "", fmt.Errorf("unknown auth scheme %q (want %q or %q)", s, SchemeAPIKey, SchemeBearer)
	}
}

const (
	// APIKeyHeader carries the API key.
	APIKeyHeader = "X-API-Key"
	// APIKeyPrefix starts every well-formed key.
	APIKeyPrefix = "sk-"
)

// API key errors
var (
	ErrMissingAPIKey   = errors.New("missing API key")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAPIKeyPrefix    = errors.New("API key lacks the " + APIKeyPrefix + " prefix")
	ErrNoAPIKeysLoaded = errors.New("no API keys configured")
)

// Caller identifies who made an authenticated request.
type Caller struct {
	Scheme  Scheme
	Subject string
}

// CheckAPIKeyFormat reports whether key looks like a key the service accepts.
func CheckAPIKeyFormat(key string) error {
	if key == "" {
		return ErrMissingAPIKey
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return ErrAPIKeyPrefix
	}
	return nil
}

// MaskAPIKey keeps only the first ten characters of key for logs.
func MaskAPIKey(key string) string {
	const visible = 10
	if len(key) <= visible {
		return key
	}
	return key[:visible] + "..."
}

// APIKeys validates keys against a primary key and optional rotation keys.
type APIKeys struct {
	keys          []string
	requirePrefix bool
}

// NewAPIKeys accepts any of keys; blank entries are ignored. With
// requirePrefix set, keys without the "sk-" prefix are rejected outright.
func NewAPIKeys(requirePrefix bool, keys ...string) *APIKeys {
	a := &APIKeys{requirePrefix: requirePrefix}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, k)
		}
	}
	return a
}

// Check validates key and returns the caller it identifies.
func (a *APIKeys) Check(key string) (Caller, error) {
	if key == "" {
		return Caller{}, ErrMissingAPIKey
	}
	if a.requirePrefix && !strings.HasPrefix(key, APIKeyPrefix) {
		return Caller{}, ErrAPIKeyPrefix
	}
	if len(a.keys) == 0 {
		return Caller{}, ErrNoAPIKeysLoaded
	}
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return Caller{Scheme: SchemeAPIKey, Subject: MaskAPIKey(key)}, nil
		}
	}
	return Caller{}, ErrInvalidAPIKey
}
