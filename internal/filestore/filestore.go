// Package filestore reads and writes route files under a base directory.
package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	ErrNotFound        = errors.New("file not found")
	ErrInvalidName     = errors.New("invalid file name")
	ErrInvalidEncoding = errors.New("file content is not valid UTF-8")
)

// Store resolves file names against a fixed base directory.
// It holds no mutable state and is safe for concurrent use; concurrent
// writes to the same name are not serialized.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. An empty dir means the working directory.
func New(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir}
}

// Dir returns the base directory
func (s *Store) Dir() string {
	return s.dir
}

// Write replaces the content of name with body, minus NUL bytes and one
// trailing newline.
func (s *Store) Write(name string, body []byte) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, Clean(body), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Read returns the full content of name. Files are served as text, so
// content that is not valid UTF-8 is refused with ErrInvalidEncoding.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("read %s: %w", name, ErrInvalidEncoding)
	}
	return data, nil
}

// Clean strips NUL bytes and then at most one trailing newline,
// where "\r\n" counts as a single newline.
func Clean(body []byte) []byte {
	cleaned := bytes.ReplaceAll(body, []byte{0}, nil)
	if bytes.HasSuffix(cleaned, []byte("\r\n")) {
		return cleaned[:len(cleaned)-2]
	}
	return bytes.TrimSuffix(cleaned, []byte("\n"))
}

// resolve joins name to the base directory. Names are taken verbatim except
// that empty names, absolute names and ".." segments are refused.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, seg := range strings.FieldsFunc(name, isSeparator) {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return filepath.Join(s.dir, filepath.FromSlash(name)), nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
