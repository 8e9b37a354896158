package auth

import (
	"os"
	"time"

	"bhascraper/pkg/token"
)

// TokenEnvVar holds a manually supplied bearer token
const TokenEnvVar = "BHASCRAPER_TOKEN"

// EnvironmentStore reads a token from BHASCRAPER_TOKEN. It is read-only
// and the token is treated as freshly captured.
type EnvironmentStore struct {
	now func() time.Time
}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{now: time.Now}
}

func (e *EnvironmentStore) Name() string { return "environment" }

func (e *EnvironmentStore) Save(tok token.BearerToken) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Load(domain string) (token.BearerToken, error) {
	raw := os.Getenv(TokenEnvVar)
	if raw == "" {
		return token.BearerToken{}, ErrTokenNotFound
	}
	value := raw
	if v, ok := token.ParseBearer(raw); ok {
		value = v
	}
	return token.BearerToken{Value: value, CapturedAt: e.now().UTC(), DomainScope: domain}, nil
}

func (e *EnvironmentStore) Delete(domain string) error {
	return ErrStoreUnavailable
}
