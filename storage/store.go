// Package storage keeps uploaded media on local disk under random tokens.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/maastricht-university/audio-analyzer/errs"
)

const copyBufferSize = 1 << 20

// Store owns the uploads directory. Files are written once and never mutated.
type Store struct {
	dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: uploads directory must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %q: %w", abs, err)
	}
	return &Store{dir: abs}, nil
}

func (s *Store) Dir() string { return s.dir }

// NewToken returns 32 hex characters of randomness.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Save copies r into a new file and returns its token.
func (s *Store) Save(r io.Reader) (string, error) {
	token := NewToken()
	path := filepath.Join(s.dir, token)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: create upload: %w", err)
	}
	w := bufio.NewWriterSize(f, copyBufferSize)
	if _, err := io.CopyBuffer(w, r, make([]byte, copyBufferSize)); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: write upload: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: flush upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: close upload: %w", err)
	}
	return token, nil
}

// ValidateName rejects names that could escape the uploads directory.
func ValidateName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return errs.Wrap(errs.ErrInvalidInput, "storage", "", "invalid filename", nil)
	}
	return nil
}

// Path resolves a stored file name. It does not touch the file system.
func (s *Store) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Delete removes a stored file.
func (s *Store) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errs.Wrap(errs.ErrNotFound, "storage", "delete", name, nil)
		}
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}
