package auth

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"bhascraper/pkg/logger"
	"bhascraper/pkg/token"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// TokenStore persists captured bearer tokens, one per API domain
type TokenStore interface {
	Save(tok token.BearerToken) error
	Load(domain string) (token.BearerToken, error)
	Delete(domain string) error
	Name() string
}

func validate(tok token.BearerToken) error {
	if tok.IsZero() || tok.DomainScope == "" {
		return ErrInvalidToken
	}
	return nil
}

// Manager reads tokens from several stores and writes to the first one
// that accepts the write
type Manager struct {
	stores []TokenStore
	maxAge time.Duration
	now    func() time.Time
	logger logger.Logger
}

// NewManager builds a Manager for the configured backend: none, keyring,
// file or auto. auto tries the keyring and falls back to the encrypted
// file. The environment store is always consulted last for reads.
func NewManager(backend, dataDir string, maxAge time.Duration, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	var stores []TokenStore
	switch strings.ToLower(backend) {
	case "", "none":
	case "keyring":
		ks, err := NewKeyringStore()
		if err != nil {
			return nil, err
		}
		stores = append(stores, ks)
	case "file":
		fs, err := newDefaultFileStore(dataDir)
		if err != nil {
			return nil, err
		}
		stores = append(stores, fs)
	case "auto":
		if ks, err := NewKeyringStore(); err == nil {
			stores = append(stores, ks)
		} else {
			log.WithError(err).Debug("Keyring unavailable, using encrypted file")
		}
		fs, err := newDefaultFileStore(dataDir)
		if err != nil {
			return nil, err
		}
		stores = append(stores, fs)
	default:
		return nil, fmt.Errorf("unknown token store %q", backend)
	}
	stores = append(stores, NewEnvironmentStore())

	return NewManagerWithStores(maxAge, log, stores...), nil
}

func newDefaultFileStore(dataDir string) (*EncryptedFileStore, error) {
	passphrase, err := LoadOrCreatePassphrase(dataDir)
	if err != nil {
		return nil, err
	}
	return NewEncryptedFileStore(filepath.Join(dataDir, "tokens.enc"), passphrase)
}

// NewManagerWithStores builds a Manager over explicit stores
func NewManagerWithStores(maxAge time.Duration, log logger.Logger, stores ...TokenStore) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		stores: stores,
		maxAge: maxAge,
		now:    time.Now,
		logger: log.WithField("component", "token_store"),
	}
}

// Load returns the first stored token for domain that is younger than the
// configured max age
func (m *Manager) Load(domain string) (token.BearerToken, error) {
	for _, s := range m.stores {
		tok, err := s.Load(domain)
		if err != nil {
			if !errors.Is(err, ErrTokenNotFound) {
				m.logger.WithError(err).WarnWithFields("Token store read failed", map[string]interface{}{"store": s.Name()})
			}
			continue
		}
		if m.maxAge > 0 && tok.Age(m.now()) > m.maxAge {
			m.logger.DebugWithFields("Stored token too old", map[string]interface{}{
				"store": s.Name(),
				"age":   tok.Age(m.now()),
			})
			continue
		}
		return tok, nil
	}
	return token.BearerToken{}, ErrTokenNotFound
}

// Save writes tok to the first store that accepts it
func (m *Manager) Save(tok token.BearerToken) error {
	if err := validate(tok); err != nil {
		return err
	}

	var lastErr error
	for _, s := range m.stores {
		err := s.Save(tok)
		if err == nil {
			m.logger.DebugWithFields("Token stored", map[string]interface{}{"store": s.Name()})
			return nil
		}
		if !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store token: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Delete removes the token for domain from every writable store
func (m *Manager) Delete(domain string) error {
	var errs []error
	for _, s := range m.stores {
		err := s.Delete(domain)
		if err != nil && !errors.Is(err, ErrTokenNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Stores lists the names of the configured stores in lookup order
func (m *Manager) Stores() []string {
	names := make([]string, len(m.stores))
	for i, s := range m.stores {
		names[i] = s.Name()
	}
	return names
}
