package docmeta

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/local/printmanager/internal/docerr"
)

// Key identifies one version of a document: the same path with a different
// size or modification time is a different document.
type Key string

// Identify derives the document key from its absolute path, size and mtime.
func Identify(path string) (Key, os.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", docerr.ErrInvalidInput, path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", docerr.ErrInvalidInput, err)
	}
	if fi.IsDir() {
		return "", nil, fmt.Errorf("%w: %s is a directory", docerr.ErrInvalidInput, abs)
	}

	d := xxhash.New()
	_, _ = d.WriteString(abs)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatInt(fi.Size(), 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatInt(fi.ModTime().UnixNano(), 10))
	return Key(fmt.Sprintf("%016x", d.Sum64())), fi, nil
}
