package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileRecord matches the on-disk token cache layout.
type fileRecord struct {
	Token      string `json:"token"`
	ExpiryTime int64  `json:"expiry_time"`
	CreatedAt  int64  `json:"created_at"`
}

// FileStore keeps the last successful login on disk so a restart does
// not force a fresh login while the token is still valid. It is only
// ever overwritten by a newer success, never cleared on invalidation.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the persisted session if the file exists and the token
// has not expired yet.
func (f *FileStore) Load(now time.Time) (Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("read token file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Session{}, false, fmt.Errorf("parse token file: %w", err)
	}

	s := Session{
		Token:     rec.Token,
		ExpiresAt: time.Unix(rec.ExpiryTime, 0),
		CreatedAt: time.Unix(rec.CreatedAt, 0),
	}
	if s.Expired(now) {
		return Session{}, false, nil
	}
	return s, true, nil
}

// Save overwrites the persisted session.
func (f *FileStore) Save(s Session) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(fileRecord{
		Token:      s.Token,
		ExpiryTime: s.ExpiresAt.Unix(),
		CreatedAt:  s.CreatedAt.Unix(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
