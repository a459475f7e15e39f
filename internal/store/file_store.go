// internal/store/file_store.go
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	githubdomain "devsync-agent/internal/domain/github"
	sessiondomain "devsync-agent/internal/domain/session"
	xerrors "devsync-agent/internal/pkg/errors"
)

const (
	sessionFile = "session.json"
	linkFile    = "link_request.json"
)

// FileStore keeps the durable records as JSON files under a state
// directory, one file per record.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) LoadSession() (*sessiondomain.Session, error) {
	var sess sessiondomain.Session
	if err := s.read(sessionFile, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *FileStore) SaveSession(sess *sessiondomain.Session) error {
	return s.write(sessionFile, sess)
}

func (s *FileStore) ClearSession() error {
	return s.remove(sessionFile)
}

func (s *FileStore) LoadLinkRequest() (*githubdomain.LinkRequest, error) {
	var req githubdomain.LinkRequest
	if err := s.read(linkFile, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *FileStore) SaveLinkRequest(req *githubdomain.LinkRequest) error {
	return s.write(linkFile, req)
}

func (s *FileStore) ClearLinkRequest() error {
	return s.remove(linkFile)
}

// Helper functions

func (s *FileStore) read(name string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return xerrors.ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) write(name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	// Write-then-rename so a crash never leaves a torn record.
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}
