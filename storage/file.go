package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mymanybooks/go-auth/users"
	"golang.org/x/crypto/scrypt"
)

const (
	fileSaltLength = 16
	fileKeyLength  = 32

	// scrypt cost parameters (interactive profile)
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var _ Adapter = (*File)(nil)

// fileState is the sealed on-disk payload. Tokens and user live in one blob
// so a single atomic rename updates or clears them together.
type fileState struct {
	Tokens *Tokens     `json:"tokens,omitempty"`
	User   *users.User `json:"user,omitempty"`
}

// File is the durable secure store: session state is serialized to JSON and
// sealed with AES-GCM under a key derived from the passphrase via scrypt.
// The file layout is salt || nonce || ciphertext, with a fresh salt and
// nonce on every write.
type File struct {
	path       string
	passphrase []byte
	lock       sync.Mutex
}

// NewFile creates a file-backed adapter at path. The passphrase is the
// caller's long-lived secret (e.g. sourced from the platform keychain).
func NewFile(path string, passphrase []byte) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("[storage.NewFile] path is required")
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("[storage.NewFile] passphrase is required")
	}
	return &File{path: path, passphrase: passphrase}, nil
}

func (f *File) Tokens(ctx context.Context) (*Tokens, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	state, err := f.load()
	if err != nil {
		return nil, err
	}
	return state.Tokens, nil
}

func (f *File) SetTokens(ctx context.Context, tokens *Tokens) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	state, err := f.load()
	if err != nil {
		return err
	}
	state.Tokens = tokens
	return f.save(state)
}

func (f *File) User(ctx context.Context) (*users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	state, err := f.load()
	if err != nil {
		return nil, err
	}
	return state.User, nil
}

func (f *File) SetUser(ctx context.Context, user *users.User) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	state, err := f.load()
	if err != nil {
		return err
	}
	state.User = user
	return f.save(state)
}

func (f *File) Clear(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[storage.File.Clear] os.Remove: %w", err)
	}
	return nil
}

func (f *File) load() (*fileState, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &fileState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[storage.File.load] os.ReadFile: %w", err)
	}

	if len(data) < fileSaltLength {
		return nil, fmt.Errorf("[storage.File.load] corrupt store: short file")
	}
	salt, sealed := data[:fileSaltLength], data[fileSaltLength:]

	gcm, err := f.cipher(salt)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("[storage.File.load] corrupt store: short ciphertext")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("[storage.File.load] gcm.Open: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, fmt.Errorf("[storage.File.load] json.Unmarshal: %w", err)
	}
	return &state, nil
}

func (f *File) save(state *fileState) error {
	plaintext, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("[storage.File.save] json.Marshal: %w", err)
	}

	salt := make([]byte, fileSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("[storage.File.save] rand.Read salt: %w", err)
	}

	gcm, err := f.cipher(salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("[storage.File.save] rand.Read nonce: %w", err)
	}

	data := append(salt, gcm.Seal(nonce, nonce, plaintext, nil)...)

	// Write-then-rename so a crash mid-write never leaves a torn store.
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("[storage.File.save] os.MkdirAll: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("[storage.File.save] os.WriteFile: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("[storage.File.save] os.Rename: %w", err)
	}
	return nil
}

func (f *File) cipher(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(f.passphrase, salt, scryptN, scryptR, scryptP, fileKeyLength)
	if err != nil {
		return nil, fmt.Errorf("[storage.File] scrypt.Key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("[storage.File] aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("[storage.File] cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
