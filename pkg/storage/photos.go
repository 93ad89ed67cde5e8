package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PhotoStore persists confirmation photos on disk and hands out public URLs.
type PhotoStore struct {
	baseDir string
	baseURL string
	signer  *SignedURLSigner
}

// NewPhotoStore ensures the base directory exists and returns a handle.
func NewPhotoStore(baseDir, baseURL string, signer *SignedURLSigner) (*PhotoStore, error) {
	if baseDir == "" {
		baseDir = "./photos"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo directory: %w", err)
	}
	return &PhotoStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
	}, nil
}

// Save writes photo bytes under the base directory and returns the public URL.
func (s *PhotoStore) Save(filename string, data []byte) (string, error) {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare photo directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write photo file: %w", err)
	}
	return s.publicURL(filename)
}

// Open returns a read-only handle for a stored photo.
func (s *PhotoStore) Open(filename string) (*os.File, error) {
	file, err := os.Open(s.resolve(filename))
	if err != nil {
		return nil, fmt.Errorf("open photo file: %w", err)
	}
	return file, nil
}

// Delete removes a stored photo if present.
func (s *PhotoStore) Delete(filename string) error {
	if err := os.Remove(s.resolve(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete photo file: %w", err)
	}
	return nil
}

// Verify checks a signed download token and returns the referenced filename.
func (s *PhotoStore) Verify(token string) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("photo signer not configured")
	}
	_, rel, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", err
	}
	return rel, nil
}

func (s *PhotoStore) publicURL(filename string) (string, error) {
	if s.signer == nil {
		return fmt.Sprintf("%s/%s", s.baseURL, filename), nil
	}
	token, _, err := s.signer.Generate(filepath.Base(filename), filename)
	if err != nil {
		return "", fmt.Errorf("sign photo url: %w", err)
	}
	return fmt.Sprintf("%s/%s?token=%s", s.baseURL, filename, token), nil
}

func (s *PhotoStore) resolve(filename string) string {
	return filepath.Join(s.baseDir, filepath.Clean("/"+filename))
}
