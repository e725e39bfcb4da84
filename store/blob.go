package store

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// blobStore reads and writes whole files on an afero filesystem.
type blobStore struct {
	fs afero.Fs
}

// read returns the file contents. A missing file surfaces as an error
// matching fs.ErrNotExist.
func (b blobStore) read(path string) ([]byte, error) {
	return afero.ReadFile(b.fs, path)
}

// write replaces the file at path, creating parent directories on demand.
// The data goes to a temp file first and is renamed into place.
func (b blobStore) write(path string, data []byte) error {
	if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(b.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := b.fs.Rename(tmp, path); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
