package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bhascraper/pkg/logger"
	"bhascraper/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const domain = "api09.horseracing.software"

func sampleToken(at time.Time) token.BearerToken {
	return token.BearerToken{Value: "eyJhbGciOi.payload.sig", CapturedAt: at, DomainScope: domain}
}

func TestManagerSaveLoadDelete(t *testing.T) {
	store := NewMockStore()
	m := NewManagerWithStores(time.Hour, logger.NewNopLogger(), store)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Save(sampleToken(now.Add(-time.Minute))))
	assert.Equal(t, 1, store.Len())

	got, err := m.Load(domain)
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.payload.sig", got.Value)

	require.NoError(t, m.Delete(domain))
	_, err = m.Load(domain)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestManagerSkipsStaleTokens(t *testing.T) {
	stale := NewMockStore()
	fresh := NewMockStore()
	m := NewManagerWithStores(10*time.Minute, nil, stale, fresh)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	old := sampleToken(now.Add(-time.Hour))
	old.Value = "old"
	require.NoError(t, stale.Save(old))
	require.NoError(t, fresh.Save(sampleToken(now.Add(-time.Minute))))

	got, err := m.Load(domain)
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.payload.sig", got.Value)

	m.maxAge = 0
	got, err = m.Load(domain)
	require.NoError(t, err)
	assert.Equal(t, "old", got.Value)
}

func TestManagerSaveFallsThroughUnavailableStores(t *testing.T) {
	ro := NewMockStore()
	ro.SaveError = ErrStoreUnavailable
	rw := NewMockStore()
	m := NewManagerWithStores(0, nil, ro, rw)

	require.NoError(t, m.Save(sampleToken(time.Now())))
	assert.Equal(t, 0, ro.Len())
	assert.Equal(t, 1, rw.Len())
}

func TestManagerSaveErrors(t *testing.T) {
	m := NewManagerWithStores(0, nil, NewEnvironmentStore())
	assert.ErrorIs(t, m.Save(sampleToken(time.Now())), ErrStoreUnavailable)
	assert.ErrorIs(t, m.Save(token.BearerToken{}), ErrInvalidToken)

	broken := NewMockStore()
	broken.SaveError = errors.New("disk full")
	m = NewManagerWithStores(0, nil, broken)
	err := m.Save(sampleToken(time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestManagerLoadIgnoresBrokenStore(t *testing.T) {
	broken := NewMockStore()
	broken.LoadError = errors.New("keychain locked")
	good := NewMockStore()
	require.NoError(t, good.Save(sampleToken(time.Now())))

	log := logger.NewTestLogger()
	m := NewManagerWithStores(0, log, broken, good)

	_, err := m.Load(domain)
	require.NoError(t, err)
	assert.True(t, log.HasMessage("Token store read failed"))
	assert.Len(t, log.GetMessagesByLevel("WARN"), 1)
}

func TestManagerDeleteJoinsErrors(t *testing.T) {
	a := NewMockStore()
	a.DeleteError = errors.New("boom")
	b := NewMockStore()
	m := NewManagerWithStores(0, nil, a, b, NewEnvironmentStore())

	err := m.Delete(domain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock: boom")
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.enc")
	store, err := NewEncryptedFileStore(path, "correct horse battery staple")
	require.NoError(t, err)

	_, err = store.Load(domain)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	tok := sampleToken(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.Save(tok))

	other := tok
	other.DomainScope = "api10.horseracing.software"
	require.NoError(t, store.Save(other))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), tok.Value)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load(domain)
	require.NoError(t, err)
	assert.Equal(t, tok.Value, got.Value)
	assert.True(t, tok.CapturedAt.Equal(got.CapturedAt))

	// A second instance with the same passphrase reads the same file
	reopened, err := NewEncryptedFileStore(path, "correct horse battery staple")
	require.NoError(t, err)
	_, err = reopened.Load(other.DomainScope)
	require.NoError(t, err)

	wrong, err := NewEncryptedFileStore(path, "wrong")
	require.NoError(t, err)
	_, err = wrong.Load(domain)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Delete(domain))
	assert.ErrorIs(t, store.Delete(domain), ErrTokenNotFound)
	require.NoError(t, store.Delete(other.DomainScope))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewEncryptedFileStoreRejectsEmptyPassphrase(t *testing.T) {
	_, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "t.enc"), "")
	assert.Error(t, err)
}

func TestLoadOrCreatePassphrase(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "")
	dir := t.TempDir()

	first, err := LoadOrCreatePassphrase(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := LoadOrCreatePassphrase(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	t.Setenv(PassphraseEnvVar, "from-env")
	env, err := LoadOrCreatePassphrase(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", env)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(TokenEnvVar, "")
	_, err := store.Load(domain)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	t.Setenv(TokenEnvVar, "Bearer abc.def.ghi")
	tok, err := store.Load(domain)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok.Value)
	assert.Equal(t, domain, tok.DomainScope)
	assert.False(t, tok.CapturedAt.IsZero())

	t.Setenv(TokenEnvVar, "rawvalue")
	tok, err = store.Load(domain)
	require.NoError(t, err)
	assert.Equal(t, "rawvalue", tok.Value)

	assert.ErrorIs(t, store.Save(tok), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete(domain), ErrStoreUnavailable)
}

func TestNewManagerBackends(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "test-pass")
	dir := t.TempDir()

	m, err := NewManager("none", dir, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"environment"}, m.Stores())

	m, err = NewManager("file", dir, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "environment"}, m.Stores())

	_, err = NewManager("floppy", dir, 0, nil)
	assert.Error(t, err)
}

func TestWriteTokenGuide(t *testing.T) {
	var buf bytes.Buffer
	WriteTokenGuide(&buf, "https://www.britishhorseracing.com/racing/results/", domain)
	out := buf.String()
	assert.Contains(t, out, "https://www.britishhorseracing.com/racing/results/")
	assert.Contains(t, out, TokenEnvVar)
	assert.Contains(t, out, domain)
}
