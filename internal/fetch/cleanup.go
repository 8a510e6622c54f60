package fetch

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Cleanup removes spooled documents and abandoned partial downloads older
// than maxAge. It returns the number of files removed.
func (r *Resolver) Cleanup(maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	entries, err := os.ReadDir(r.spool)
	if err != nil {
		log.Warn().Err(err).Str("dir", r.spool).Msg("spool cleanup failed")
		return 0
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		p := filepath.Join(r.spool, e.Name())
		if err := os.Remove(p); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("dir", r.spool).Msg("spool cleanup")
	}
	return removed
}
