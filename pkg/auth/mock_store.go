package auth

import (
	"sync"

	"bhascraper/pkg/token"
)

// MockStore is an in-memory TokenStore for tests
type MockStore struct {
	tokens map[string]token.BearerToken
	mu     sync.RWMutex

	// Error injection
	SaveError   error
	LoadError   error
	DeleteError error
}

func NewMockStore() *MockStore {
	return &MockStore{tokens: make(map[string]token.BearerToken)}
}

func (m *MockStore) Name() string { return "mock" }

func (m *MockStore) Save(tok token.BearerToken) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	if err := validate(tok); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tok.DomainScope] = tok
	return nil
}

func (m *MockStore) Load(domain string) (token.BearerToken, error) {
	if m.LoadError != nil {
		return token.BearerToken{}, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[domain]
	if !ok {
		return token.BearerToken{}, ErrTokenNotFound
	}
	return tok, nil
}

func (m *MockStore) Delete(domain string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[domain]; !ok {
		return ErrTokenNotFound
	}
	delete(m.tokens, domain)
	return nil
}

// Len returns the number of stored tokens
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
