// Package atomicfile writes files so that readers only ever observe the
// previous content or the complete new content, never a partial write.
//
// The data is written to a temporary file in the destination directory,
// fsynced, renamed over the destination and the directory is fsynced so the
// rename itself survives a power loss.
package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultPerm is used when WriteFile is called with a zero mode.
const DefaultPerm os.FileMode = 0o600

// WriteFile atomically replaces path with data.
//
// On any error the temporary file is removed and path is left untouched.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return write(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Copy atomically replaces dst with the content of src.
// A missing src returns an error satisfying errors.Is(err, os.ErrNotExist).
func Copy(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // path from operator config
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only

	return write(dst, perm, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func write(path string, perm os.FileMode, fn func(w io.Writer) error) (err error) {
	if perm == 0 {
		perm = DefaultPerm
	}
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()        //nolint:errcheck,gosec // already failing
			os.Remove(tmpName) //nolint:errcheck,gosec // best effort cleanup
		}
	}()

	if err = fn(tmp); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file over %s: %w", path, err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes directory metadata. Some filesystems do not support
// fsync on directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // directory of a path we just wrote
	if err != nil {
		return
	}
	_ = d.Sync()  //nolint:errcheck // unsupported on some filesystems
	_ = d.Close() //nolint:errcheck // read-only handle
}
