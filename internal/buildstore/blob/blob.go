// Package blob implements content-addressed storage for build file contents.
// Each distinct content is stored exactly once on the filesystem, keyed by its
// SHA-256 hash, so repeated builds of an unchanged site cost no extra space.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a content-addressed blob store rooted at a single directory.
// The first two characters of the hash form a subdirectory to avoid too many
// files in one directory.
type Store struct {
	blobsDir string
}

// NewStore creates a Store rooted at the given blobs directory.
func NewStore(blobsDir string) (*Store, error) {
	if err := os.MkdirAll(blobsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}
	return &Store{blobsDir: blobsDir}, nil
}

// Put stores content and returns its content-addressed ID (SHA-256 hex).
// If the content already exists, it returns the existing ID without rewriting.
func (s *Store) Put(data []byte) (string, error) {
	hash := sha256.Sum256(data)
	hashStr := hex.EncodeToString(hash[:])

	blobPath := s.blobPath(hashStr)
	if _, err := os.Stat(blobPath); err == nil {
		return hashStr, nil
	}

	subdir := filepath.Join(s.blobsDir, hashStr[:2])
	if err := os.MkdirAll(subdir, 0755); err != nil {
		return "", fmt.Errorf("failed to create blob subdirectory: %w", err)
	}

	if err := atomicWriteFile(blobPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return hashStr, nil
}

// Get retrieves content by its content-addressed ID and verifies integrity.
func (s *Store) Get(blobID string) ([]byte, error) {
	blobPath := s.blobPath(blobID)
	data, err := os.ReadFile(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", blobID)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	hash := sha256.Sum256(data)
	if hashStr := hex.EncodeToString(hash[:]); hashStr != blobID {
		return nil, fmt.Errorf("blob integrity check failed: expected %s, got %s", blobID, hashStr)
	}

	return data, nil
}

// Exists checks if a blob with the given ID exists.
func (s *Store) Exists(blobID string) bool {
	_, err := os.Stat(s.blobPath(blobID))
	return err == nil
}

// blobPath returns the filesystem path for a given blob ID.
// Format: blobsDir/{first2chars}/{fullhash}
func (s *Store) blobPath(blobID string) string {
	// SHA-256 hex is always 64 characters; anything shorter is routed to a
	// subdirectory that can never match a real blob.
	if len(blobID) < 2 {
		return filepath.Join(s.blobsDir, "__invalid__", blobID)
	}
	return filepath.Join(s.blobsDir, blobID[:2], blobID)
}

// atomicWriteFile writes data using a temp file + rename so the blob is either
// fully written or absent.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tmpFile = nil // prevent double close in defer

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
