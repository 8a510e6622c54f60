package pricing

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SizeClass is the billing paper size of a document.
type SizeClass string

const (
	A4 SizeClass = "A4"
	A3 SizeClass = "A3"
)

// Ink is the billing class of a page.
type Ink string

const (
	Mono  Ink = "mono"
	Color Ink = "color"
)

// Tier is an inclusive lower bound on the page count of one ink class.
type Tier int

// Tiers in descending order.
var Tiers = []Tier{100, 50, 10, 1}

// TierFor returns the greatest tier not above n. n < 1 maps to tier 1.
func TierFor(n int) Tier {
	for _, t := range Tiers {
		if n >= int(t) {
			return t
		}
	}
	return 1
}

const (
	mmPerPoint  = 25.4 / 72
	a3ShortMM   = 297.0
	a3LongMM    = 420.0
	toleranceMM = 10.0
)

// SizeClassFor classifies a page given in PDF points. Anything that is not
// A3 within the tolerance, in either orientation, is billed as A4.
func SizeClassFor(widthPt, heightPt float64) SizeClass {
	w, h := widthPt*mmPerPoint, heightPt*mmPerPoint
	if w > h {
		w, h = h, w
	}
	if near(w, a3ShortMM) && near(h, a3LongMM) {
		return A3
	}
	return A4
}

func near(v, target float64) bool {
	d := v - target
	return d <= toleranceMM && d >= -toleranceMM
}

type cell struct {
	size SizeClass
	ink  Ink
	tier Tier
}

// Table maps (size, ink, tier) to a per-page rate.
type Table struct {
	Currency string
	rates    map[cell]decimal.Decimal
}

func NewTable(currency string) *Table {
	return &Table{Currency: currency, rates: make(map[cell]decimal.Decimal)}
}

func (t *Table) Set(size SizeClass, ink Ink, tier Tier, rate decimal.Decimal) {
	t.rates[cell{size, ink, tier}] = rate
}

// Rate returns the per-page rate for the exact tier.
func (t *Table) Rate(size SizeClass, ink Ink, tier Tier) (decimal.Decimal, error) {
	r, ok := t.rates[cell{size, ink, tier}]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s/%s/tier %d", size, ink, tier)
	}
	return r, nil
}

// Validate checks that every cell is present and non-negative.
func (t *Table) Validate() error {
	for _, size := range []SizeClass{A4, A3} {
		for _, ink := range []Ink{Mono, Color} {
			for _, tier := range Tiers {
				r, err := t.Rate(size, ink, tier)
				if err != nil {
					return err
				}
				if r.IsNegative() {
					return fmt.Errorf("negative rate for %s/%s/tier %d", size, ink, tier)
				}
			}
		}
	}
	return nil
}

// DefaultTable is used when no rate file is configured.
func DefaultTable() *Table {
	t := NewTable("EUR")
	fill := func(size SizeClass, ink Ink, rates ...string) {
		for i, tier := range []Tier{1, 10, 50, 100} {
			t.Set(size, ink, tier, decimal.RequireFromString(rates[i]))
		}
	}
	fill(A4, Mono, "2.00", "1.50", "1.20", "1.00")
	fill(A4, Color, "8.00", "6.50", "5.00", "4.00")
	fill(A3, Mono, "4.00", "3.00", "2.40", "2.00")
	fill(A3, Color, "16.00", "13.00", "10.00", "8.00")
	return t
}

type rate struct{ decimal.Decimal }

func (r *rate) UnmarshalYAML(n *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: rate %q: %w", n.Line, n.Value, err)
	}
	r.Decimal = d
	return nil
}

type tableFile struct {
	Currency string                              `yaml:"currency"`
	Rates    map[SizeClass]map[Ink]map[Tier]rate `yaml:"rates"`
}

// ParseTable reads a YAML rate table:
//
//	currency: EUR
//	rates:
//	  A4:
//	    mono:  {1: 2.00, 10: 1.50, 50: 1.20, 100: 1.00}
//	    color: {1: 8.00, 10: 6.50, 50: 5.00, 100: 4.00}
//	  A3: ...
func ParseTable(b []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse rate table: %w", err)
	}
	if f.Currency == "" {
		f.Currency = "EUR"
	}
	t := NewTable(f.Currency)
	for size, inks := range f.Rates {
		size = SizeClass(strings.ToUpper(string(size)))
		for ink, tiers := range inks {
			ink = Ink(strings.ToLower(string(ink)))
			for tier, r := range tiers {
				t.Set(size, ink, tier, r.Decimal)
			}
		}
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("rate table: %w", err)
	}
	return t, nil
}

// LoadTable reads a YAML rate table from path. An empty path yields the
// default table.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTable(b)
}
