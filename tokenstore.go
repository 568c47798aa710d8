package twitch_widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	ErrNotFound    = errors.New("token file not found")
	ErrCorrupt     = errors.New("token file is corrupt")
	ErrWriteFailed = errors.New("could not write token file")
)

// TokenStore persists a single TokenRecord per path.
type TokenStore interface {
	Load(path string) (*TokenRecord, error)
	Save(path string, record *TokenRecord) error
}

// FileTokenStore keeps the record as a JSON document on the local disk.
type FileTokenStore struct{}

func NewFileTokenStore() *FileTokenStore {
	return &FileTokenStore{}
}

func (s *FileTokenStore) Load(path string) (*TokenRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read token file %s: %w", path, err)
	}

	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if st.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrCorrupt)
	}
	return st.record(), nil
}

// Save replaces the file at path in one rename, so an interrupted write never
// leaves a truncated token file behind.
func (s *FileTokenStore) Save(path string, record *TokenRecord) (err error) {
	data, err := json.Marshal(newStoredToken(record))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err = tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	Log.Debugf("token stored in %s", path)
	return nil
}
