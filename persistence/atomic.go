package persistence

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes a file by streaming writeFunc into a temp file in
// the target directory, fsyncing it, and renaming it over the target.
//
// Either the complete file appears at path, or nothing does. A failed write
// never leaves a partial file behind for a later run to pick up.
func AtomicWriteFile(path string, writeFunc func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persistence: failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err = writeFunc(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("persistence: failed to write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("persistence: failed to sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("persistence: failed to close %s: %w", path, err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("persistence: failed to rename %s: %w", path, err)
	}

	// Best-effort: fsync directory so the rename itself is durable.
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}
