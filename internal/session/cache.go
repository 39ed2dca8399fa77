package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileCache keeps the last session id in a small file under the user config
// directory, the local analog of the browser's saved session pointer.
type FileCache struct {
	path string
}

// NewFileCache creates a cache at the given path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// DefaultCachePath places the cache under os.UserConfigDir.
func DefaultCachePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "streamchat", "last_session"), nil
}

// Save writes the session pointer, creating parent directories as needed.
func (c *FileCache) Save(sessionID string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, []byte(sessionID+"\n"), 0o600)
}

// Load returns the cached session id, or "" when none is cached.
func (c *FileCache) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Discard removes the cached pointer. Missing files are fine.
func (c *FileCache) Discard() error {
	err := os.Remove(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
