package inkcov

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/local/printmanager/internal/docerr"
)

// Threshold is the C/M/Y coverage above which a page counts as color.
// Nominally gray content rendered through CMYK leaves small residues below it.
const Threshold = 0.01

// Report is the per-page color classification of one document.
// Page numbers are 1-based and ascending.
type Report struct {
	TotalPages int   `json:"total_pages"`
	ColorPages []int `json:"color_pages"`
	MonoPages  []int `json:"mono_pages"`
	// Fallback is set when no coverage line could be read and every page was
	// assumed monochrome from an independently obtained page count.
	Fallback bool `json:"fallback,omitempty"`
}

// ColorCount returns the number of color pages.
func (r Report) ColorCount() int { return len(r.ColorPages) }

// MonoCount returns the number of monochrome pages.
func (r Report) MonoCount() int { return len(r.MonoPages) }

// Clone returns a deep copy so callers can't alias the page slices.
func (r Report) Clone() Report {
	out := r
	out.ColorPages = append([]int(nil), r.ColorPages...)
	out.MonoPages = append([]int(nil), r.MonoPages...)
	return out
}

// Validate checks the structural invariants of a report.
func (r Report) Validate() error {
	if r.TotalPages < 1 {
		return fmt.Errorf("total pages %d < 1", r.TotalPages)
	}
	if len(r.ColorPages)+len(r.MonoPages) > r.TotalPages {
		return fmt.Errorf("%d classified pages exceed total %d", len(r.ColorPages)+len(r.MonoPages), r.TotalPages)
	}
	seen := make(map[int]struct{}, len(r.ColorPages)+len(r.MonoPages))
	for _, list := range [][]int{r.ColorPages, r.MonoPages} {
		for _, p := range list {
			if p < 1 || p > r.TotalPages {
				return fmt.Errorf("page %d outside [1,%d]", p, r.TotalPages)
			}
			if _, dup := seen[p]; dup {
				return fmt.Errorf("page %d classified twice", p)
			}
			seen[p] = struct{}{}
		}
	}
	return nil
}

// IsColor reports whether the given cyan, magenta and yellow coverage marks a
// color page. The threshold is exclusive.
func IsColor(c, m, y float64) bool {
	return c > Threshold || m > Threshold || y > Threshold
}

// Parse converts inkcov output (one line per page, CMYK fractions first) into a
// Report. When no line can be classified and fallbackPages > 0, every page is
// reported monochrome with Fallback set; otherwise docerr.ErrParse is returned.
func Parse(out []byte, fallbackPages int) (Report, error) {
	var rep Report
	if utf8.Valid(out) {
		rep = parseLines(out)
	}
	if rep.TotalPages > 0 {
		return rep, nil
	}
	if fallbackPages > 0 {
		return AllMono(fallbackPages), nil
	}
	return Report{}, fmt.Errorf("%w: no coverage lines in %d bytes of output", docerr.ErrParse, len(out))
}

// AllMono builds the fallback report for n pages.
func AllMono(n int) Report {
	rep := Report{TotalPages: n, MonoPages: make([]int, 0, n), Fallback: true}
	for p := 1; p <= n; p++ {
		rep.MonoPages = append(rep.MonoPages, p)
	}
	return rep
}

func parseLines(out []byte) Report {
	var rep Report
	page := 0
	for _, raw := range bytes.Split(out, []byte("\n")) {
		fields := strings.Fields(string(raw))
		if len(fields) == 0 {
			continue
		}
		// Only lines that start with a number are coverage records; anything
		// else (banners, warnings) does not consume a page number.
		if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
			continue
		}
		page++

		cmyk, ok := parseCMYK(fields)
		if !ok {
			continue
		}
		if IsColor(cmyk[0], cmyk[1], cmyk[2]) {
			rep.ColorPages = append(rep.ColorPages, page)
		} else {
			rep.MonoPages = append(rep.MonoPages, page)
		}
		rep.TotalPages = page
	}
	return rep
}

func parseCMYK(fields []string) ([4]float64, bool) {
	var v [4]float64
	if len(fields) < 4 {
		return v, false
	}
	for i := 0; i < 4; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || math.IsNaN(f) || f < 0 || f > 1 {
			return v, false
		}
		v[i] = f
	}
	return v, true
}
