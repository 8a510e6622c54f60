package colorclass

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/printmanager/internal/docerr"
)

// Locator finds the Ghostscript binary. A found path is remembered for the
// process lifetime; a miss is not, so installing gs mid-session is picked up
// on the next probe.
type Locator struct {
	candidates []string
	binary     string

	mu    sync.Mutex
	found string
}

// NewLocator probes candidates in order and then looks binary up in PATH.
func NewLocator(candidates []string, binary string) *Locator {
	return &Locator{candidates: append([]string(nil), candidates...), binary: binary}
}

// Find returns the tool path or an error wrapping docerr.ErrToolNotFound.
func (l *Locator) Find() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.found != "" {
		if isExecutable(l.found) {
			return l.found, nil
		}
		log.Warn().Str("path", l.found).Msg("ghostscript disappeared; probing again")
		l.found = ""
	}

	for _, p := range l.candidates {
		if isExecutable(p) {
			l.found = p
			log.Info().Str("path", p).Msg("ghostscript found")
			return p, nil
		}
	}
	if l.binary != "" {
		if p, err := exec.LookPath(l.binary); err == nil {
			l.found = p
			log.Info().Str("path", p).Msg("ghostscript found in PATH")
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: probed %v and PATH for %q", docerr.ErrToolNotFound, l.candidates, l.binary)
}

// Available reports whether the tool can currently be found.
func (l *Locator) Available() bool {
	_, err := l.Find()
	return err == nil
}

func isExecutable(p string) bool {
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Mode().Perm()&0o111 != 0
}
