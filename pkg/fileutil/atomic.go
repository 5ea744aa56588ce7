package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

var ErrAtomicWriteFailed = errors.New("fileutil: atomic write failed")

// WriteFileAtomic replaces path with data so that readers observe either the
// previous content or the new content, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create dir for %s: %v", ErrAtomicWriteFailed, path, err)
	}

	if err := renameio.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAtomicWriteFailed, path, err)
	}

	// Best effort: persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
