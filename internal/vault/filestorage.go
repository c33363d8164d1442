package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// FileStorage archives payloads under a root directory, one file per
// file-id, named by the integer id. Copy writes atomically via a
// temp-file-then-rename so a reader never observes a partially written
// vault object.
type FileStorage struct {
	root string
}

// NewFileStorage returns a FileStorage rooted at root.
func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

// Location returns the vault path for fileID: root/<file_id>.
func (f *FileStorage) Location(fileID int64) (string, error) {
	return filepath.Join(f.root, strconv.FormatInt(fileID, 10)), nil
}

// Copy streams r into target via a sibling temp file, renamed into place
// once fully written.
func (f *FileStorage) Copy(r io.Reader, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, fmt.Errorf("creating vault directory for %s: %w", target, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".vault-tmp-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file for %s: %w", target, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("copying to %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return 0, fmt.Errorf("renaming %s to %s: %w", tmpPath, target, err)
	}

	logrus.Debugf("vault copy complete: %s (%s)", target, humanize.Bytes(uint64(n)))
	return n, nil
}
