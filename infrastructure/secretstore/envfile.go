package secretstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

// EnvFile persists secrets into a dotenv file and mirrors them into the process
// environment. Rewriting the file drops comments and reorders keys.
type EnvFile struct {
	path string
	mu   sync.Mutex
}

func NewEnvFile(path string) *EnvFile {
	return &EnvFile{path: path}
}

func (s *EnvFile) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return "", err
	}
	if v, ok := values[key]; ok && v != "" {
		return v, nil
	}
	return os.Getenv(key), nil
}

func (s *EnvFile) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create env dir: %w", err)
		}
	}
	if err := godotenv.Write(values, s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return os.Setenv(key, value)
}

func (s *EnvFile) read() (map[string]string, error) {
	values, err := godotenv.Read(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return values, nil
}
