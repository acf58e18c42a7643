// Package filestore is the durable file-backed session store. A single JSON
// file holds the token; writes go through a temp file and rename so a crash
// mid-write never leaves a corrupt store.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/michigantokenizers/skl-client/store"
)

var _ store.Repo = (*FileStore)(nil)

type FileStore struct {
	path string
}

type sessionFile struct {
	SessionToken string `json:"sessionToken"`
}

// New creates a file store at path, creating parent directories as needed.
func New(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("[filestore.New] path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrap(err, "[filestore.New] create store directory")
		}
	}
	return &FileStore{path: path}, nil
}

func (fs *FileStore) Get() (string, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "[FileStore.Get] read store file")
	}

	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		// A corrupt store is equivalent to no stored session.
		return "", nil
	}
	return sf.SessionToken, nil
}

func (fs *FileStore) Set(token string) error {
	data, err := json.Marshal(sessionFile{SessionToken: token})
	if err != nil {
		return errors.Wrap(err, "[FileStore.Set] encode session")
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.Set] write temp file")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "[FileStore.Set] rename into place")
	}
	return nil
}

func (fs *FileStore) Clear() error {
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] remove store file")
	}
	return nil
}
