package imports

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileStore keeps raw uploads so a pending job can be processed later by the
// worker. The recorded path is opaque to everything but the store itself.
type FileStore interface {
	Save(name string, r io.Reader) (path string, size int64, err error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// DiskStore stores uploads under a configured directory.
type DiskStore struct {
	dir string
}

// NewDiskStore constructs a store rooted at dir, creating it when missing.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imports: create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save writes the stream to a uuid-named file, preserving the extension so
// the parser can pick a format later.
func (s *DiskStore) Save(name string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.dir, uuid.NewString()+filepath.Ext(name))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("imports: create upload file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("imports: write upload file: %w", err)
	}
	return path, size, nil
}

// Open returns the stored upload for reading.
func (s *DiskStore) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Remove deletes the stored upload.
func (s *DiskStore) Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
