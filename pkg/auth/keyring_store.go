package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"bhascraper/pkg/token"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "bhascraper"
	keyringPrefix  = "bearer_"
)

// KeyringStore keeps tokens in the system keychain
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore after checking the keychain responds
func NewKeyringStore() (*KeyringStore, error) {
	const probe = "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Name() string { return "keyring" }

func (k *KeyringStore) Save(tok token.BearerToken) error {
	if err := validate(tok); err != nil {
		return err
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+tok.DomainScope, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Load(domain string) (token.BearerToken, error) {
	data, err := keyring.Get(keyringService, keyringPrefix+domain)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return token.BearerToken{}, ErrTokenNotFound
		}
		return token.BearerToken{}, fmt.Errorf("failed to read from keyring: %w", err)
	}

	var tok token.BearerToken
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return token.BearerToken{}, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return tok, nil
}

func (k *KeyringStore) Delete(domain string) error {
	err := keyring.Delete(keyringService, keyringPrefix+domain)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
