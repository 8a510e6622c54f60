package cache

import (
	"fmt"
	"time"

	"github.com/local/printmanager/internal/docmeta"
	"github.com/local/printmanager/internal/inkcov"
)

// ColorState tells whether the color distribution of a document is known.
type ColorState int

const (
	ColorUnknown ColorState = iota
	ColorPending
	ColorKnown
	ColorFailed
)

var colorStateNames = [...]string{"unknown", "pending", "known", "failed"}

func (s ColorState) String() string {
	if s < 0 || int(s) >= len(colorStateNames) {
		return fmt.Sprintf("ColorState(%d)", int(s))
	}
	return colorStateNames[s]
}

func (s ColorState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ColorState) UnmarshalText(b []byte) error {
	for i, n := range colorStateNames {
		if n == string(b) {
			*s = ColorState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown color state %q", b)
}

// ColorInfo carries a report only in ColorKnown and an error only in ColorFailed.
type ColorInfo struct {
	State      ColorState     `json:"state"`
	Report     *inkcov.Report `json:"report,omitempty"`
	Error      string         `json:"error,omitempty"`
	AnalyzedAt *time.Time     `json:"analyzed_at,omitempty"`
}

// DocumentMetadata is one cache entry. Entries are values: an update replaces
// the whole entry, so a copy held by a caller never changes underneath it.
type DocumentMetadata struct {
	Key docmeta.Key `json:"key"`
	docmeta.Info
	Color    ColorInfo `json:"color"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Loaded reports whether the entry came from the cache, as opposed to the
// zero value returned for a miss.
func (d DocumentMetadata) Loaded() bool { return d.Key != "" }

// ColorKnown reports whether the counts below are a completed classification.
func (d DocumentMetadata) ColorKnown() bool {
	return d.Color.State == ColorKnown && d.Color.Report != nil
}

// ColorPageCount is 0 unless the classification is known.
func (d DocumentMetadata) ColorPageCount() int {
	if !d.ColorKnown() {
		return 0
	}
	return d.Color.Report.ColorCount()
}

// MonoPageCount is 0 unless the classification is known.
func (d DocumentMetadata) MonoPageCount() int {
	if !d.ColorKnown() {
		return 0
	}
	return d.Color.Report.MonoCount()
}

func (d DocumentMetadata) withColor(c ColorInfo) DocumentMetadata {
	d.Color = c
	return d
}

func knownColor(rep inkcov.Report) ColorInfo {
	now := time.Now().UTC()
	r := rep.Clone()
	return ColorInfo{State: ColorKnown, Report: &r, AnalyzedAt: &now}
}

func failedColor(err error) ColorInfo {
	now := time.Now().UTC()
	return ColorInfo{State: ColorFailed, Error: err.Error(), AnalyzedAt: &now}
}
