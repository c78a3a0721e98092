package solver

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyringService = "adscraper"
	keyringUser    = "solver_api_key"

	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// ErrAPIKeyNotFound is returned when no solving-service API key is stored
var ErrAPIKeyNotFound = errors.New("solver API key not found")

// KeyStore persists the solving-service API key
type KeyStore interface {
	Set(apiKey string) error
	Get() (string, error)
	Delete() error
}

// NewKeyStore returns the system keychain store when available, otherwise
// an encrypted file store under the user config directory.
func NewKeyStore() (KeyStore, error) {
	if ks, err := NewKeyringStore(); err == nil {
		return ks, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("no keychain and no config directory: %w", err)
	}
	path := filepath.Join(configDir, "adscraper", "solver.key")
	return NewEncryptedFileStore(path, os.Getenv("ADSCRAPER_KEY_PASSPHRASE"))
}

// KeyringStore keeps the API key in the system keychain
type KeyringStore struct{}

// NewKeyringStore verifies keychain availability before returning a store
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Set stores the API key in the keychain
func (k *KeyringStore) Set(apiKey string) error {
	if apiKey == "" {
		return errors.New("api key is empty")
	}
	if err := keyring.Set(keyringService, keyringUser, apiKey); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Get retrieves the API key from the keychain
func (k *KeyringStore) Get() (string, error) {
	apiKey, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrAPIKeyNotFound
		}
		return "", fmt.Errorf("failed to read from keyring: %w", err)
	}
	return apiKey, nil
}

// Delete removes the API key from the keychain
func (k *KeyringStore) Delete() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrAPIKeyNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// EncryptedFileStore keeps the API key in an AES-GCM encrypted file, for
// machines without a keychain
type EncryptedFileStore struct {
	path       string
	passphrase string
}

// encryptedFile is the on-disk format
type encryptedFile struct {
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
}

// NewEncryptedFileStore creates a store at path. An empty passphrase falls
// back to a machine-local default, which protects against casual reads
// only.
func NewEncryptedFileStore(path, passphrase string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if passphrase == "" {
		hostname, _ := os.Hostname()
		passphrase = "adscraper-" + hostname
	}

	return &EncryptedFileStore{
		path:       path,
		passphrase: passphrase,
	}, nil
}

// Set encrypts and writes the API key
func (e *EncryptedFileStore) Set(apiKey string) error {
	if apiKey == "" {
		return errors.New("api key is empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	encrypted, err := encrypt([]byte(apiKey), key)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}

	data, err := json.Marshal(encryptedFile{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(encrypted),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	if err := os.WriteFile(e.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Get reads and decrypts the API key
func (e *EncryptedFileStore) Get() (string, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrAPIKeyNotFound
		}
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	var fileData encryptedFile
	if err := json.Unmarshal(content, &fileData); err != nil {
		return "", fmt.Errorf("failed to parse key file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(fileData.Salt)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}
	encrypted, err := base64.StdEncoding.DecodeString(fileData.Encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode payload: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
	decrypted, err := decrypt(encrypted, key)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt key file: %w", err)
	}

	return string(decrypted), nil
}

// Delete removes the key file
func (e *EncryptedFileStore) Delete() error {
	if err := os.Remove(e.path); err != nil {
		if os.IsNotExist(err) {
			return ErrAPIKeyNotFound
		}
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// encrypt seals data with AES-GCM under key
func encrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// decrypt opens an AES-GCM sealed payload
func decrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
