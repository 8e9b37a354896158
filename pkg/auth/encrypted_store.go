package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bhascraper/pkg/token"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnvVar overrides the generated passphrase file
	PassphraseEnvVar = "BHASCRAPER_PASSPHRASE"
	passphraseFile   = ".passphrase"
)

// EncryptedFileStore keeps tokens in an AES-GCM encrypted JSON file keyed
// by domain
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

type fileEnvelope struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates a store at path sealed with passphrase
func NewEncryptedFileStore(path, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Name() string { return "file" }

// Path returns the encrypted file location
func (e *EncryptedFileStore) Path() string { return e.path }

func (e *EncryptedFileStore) Save(tok token.BearerToken) error {
	if err := validate(tok); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, salt, err := e.load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load existing tokens: %w", err)
	}
	if tokens == nil {
		tokens = make(map[string]token.BearerToken)
	}
	tokens[tok.DomainScope] = tok
	return e.save(tokens, salt)
}

func (e *EncryptedFileStore) Load(domain string) (token.BearerToken, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens, _, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return token.BearerToken{}, ErrTokenNotFound
		}
		return token.BearerToken{}, err
	}
	tok, ok := tokens[domain]
	if !ok {
		return token.BearerToken{}, ErrTokenNotFound
	}
	return tok, nil
}

func (e *EncryptedFileStore) Delete(domain string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, salt, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrTokenNotFound
		}
		return err
	}
	if _, ok := tokens[domain]; !ok {
		return ErrTokenNotFound
	}
	delete(tokens, domain)

	if len(tokens) == 0 {
		return os.Remove(e.path)
	}
	return e.save(tokens, salt)
}

func (e *EncryptedFileStore) load() (map[string]token.BearerToken, []byte, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, nil, err
	}

	var env fileEnvelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to parse file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	plain, err := decrypt(sealed, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt tokens: %w", err)
	}

	var tokens map[string]token.BearerToken
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, nil, fmt.Errorf("failed to parse tokens: %w", err)
	}
	return tokens, salt, nil
}

func (e *EncryptedFileStore) save(tokens map[string]token.BearerToken, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	plain, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	sealed, err := encrypt(plain, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	content, err := json.MarshalIndent(fileEnvelope{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Version:   1,
		Modified:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

// LoadOrCreatePassphrase returns BHASCRAPER_PASSPHRASE when set, otherwise
// the passphrase stored in dataDir, generating one on first use
func LoadOrCreatePassphrase(dataDir string) (string, error) {
	if pass := os.Getenv(PassphraseEnvVar); pass != "" {
		return pass, nil
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, passphraseFile)
	if content, err := os.ReadFile(path); err == nil {
		if pass := strings.TrimSpace(string(content)); pass != "" {
			return pass, nil
		}
	}

	pass, err := generatePassphrase()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(pass), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// encrypt seals plaintext with AES-GCM, prefixing the nonce
func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
