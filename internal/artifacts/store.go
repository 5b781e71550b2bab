package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists generated images in a single flat directory, one file
// per job id. Re-writing a name overwrites the previous content.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) filePath(name string) (string, error) {
	// Prevent path traversal
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid artifact name: %s", name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) Put(name string, content []byte) error {
	path, err := s.filePath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0644)
}

func (s *Store) Get(name string) ([]byte, error) {
	path, err := s.filePath(name)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found: %s", name)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return content, nil
}

func (s *Store) Exists(name string) bool {
	path, err := s.filePath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
