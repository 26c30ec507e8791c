package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// Store persists the calendar credential.
type Store interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

// FileStore keeps the sealed credential in a JSON file. Top-level keys
// other than "tokens" are preserved across saves.
type FileStore struct {
	path   string
	sealer *Sealer
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string, sealer *Sealer) *FileStore {
	return &FileStore{path: path, sealer: sealer}
}

// Path returns the credential file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and decrypts the credential. A missing file yields
// ErrNotConnected; a file that cannot be decrypted yields ErrDecrypt.
func (s *FileStore) Load(_ context.Context) (*oauth2.Token, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	raw, ok := doc["tokens"]
	if !ok {
		return nil, ErrNotConnected
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", ErrDecrypt, err)
	}

	plaintext, err := s.sealer.Open(env)
	if err != nil {
		return nil, err
	}

	tok, err := UnmarshalToken(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return tok, nil
}

// Save encrypts tok and atomically replaces the file.
func (s *FileStore) Save(_ context.Context, tok *oauth2.Token) error {
	plaintext, err := MarshalToken(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	env, err := s.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}
	sealed, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	doc, err := s.read()
	if err != nil {
		doc = map[string]json.RawMessage{}
	}
	doc["tokens"] = sealed

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credential file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

func (s *FileStore) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: credential file is not valid JSON: %v", ErrDecrypt, err)
	}
	return doc, nil
}
