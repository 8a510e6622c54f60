package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/local/printmanager/internal/cache"
	"github.com/local/printmanager/internal/docmeta"
	"github.com/local/printmanager/internal/metrics"
)

// Line is the priced breakdown of one document.
type Line struct {
	Key   docmeta.Key `json:"key"`
	Path  string      `json:"path"`
	Size  SizeClass   `json:"size"`
	Pages int         `json:"pages"`
	Mono  int         `json:"mono_pages"`
	Color int         `json:"color_pages"`
	// Assumed is set when no classification was available and every page was
	// priced as monochrome.
	Assumed bool `json:"assumed_mono"`

	MonoTier      Tier            `json:"mono_tier,omitempty"`
	ColorTier     Tier            `json:"color_tier,omitempty"`
	MonoSubtotal  decimal.Decimal `json:"mono_subtotal"`
	ColorSubtotal decimal.Decimal `json:"color_subtotal"`
	Total         decimal.Decimal `json:"total"`
}

// Quote is the price of a set of documents. Amounts are exact; round only
// for display.
type Quote struct {
	Currency string          `json:"currency"`
	Lines    []Line          `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	Assumed  bool            `json:"assumed_mono"`
}

// Estimator prices documents from their cached metadata. It has no side
// effects beyond a metrics counter.
type Estimator struct {
	table *Table
}

func NewEstimator(t *Table) *Estimator {
	if t == nil {
		t = DefaultTable()
	}
	return &Estimator{table: t}
}

func (e *Estimator) Table() *Table { return e.table }

// Estimate prices docs. A document without a completed, non-empty
// classification is priced as entirely monochrome.
func (e *Estimator) Estimate(docs []cache.DocumentMetadata) (Quote, error) {
	q := Quote{Currency: e.table.Currency, Lines: make([]Line, 0, len(docs)), Total: decimal.Zero}
	for _, d := range docs {
		l, err := e.line(d)
		if err != nil {
			return Quote{}, err
		}
		q.Lines = append(q.Lines, l)
		q.Total = q.Total.Add(l.Total)
		q.Assumed = q.Assumed || l.Assumed
	}
	metrics.IncQuote(q.Assumed)
	return q, nil
}

func (e *Estimator) line(d cache.DocumentMetadata) (Line, error) {
	l := Line{Key: d.Key, Path: d.Path, Size: A4, Pages: d.PageCount}
	if p, ok := d.FirstPage(); ok {
		l.Size = SizeClassFor(p.WidthPt, p.HeightPt)
	}

	color, mono := d.ColorPageCount(), d.MonoPageCount()
	if color+mono > 0 {
		l.Color, l.Mono = color, mono
	} else {
		l.Mono, l.Assumed = d.PageCount, true
	}

	var err error
	l.MonoTier, l.MonoSubtotal, err = e.subtotal(l.Size, Mono, l.Mono)
	if err != nil {
		return Line{}, err
	}
	l.ColorTier, l.ColorSubtotal, err = e.subtotal(l.Size, Color, l.Color)
	if err != nil {
		return Line{}, err
	}
	l.Total = l.MonoSubtotal.Add(l.ColorSubtotal)
	return l, nil
}

func (e *Estimator) subtotal(size SizeClass, ink Ink, n int) (Tier, decimal.Decimal, error) {
	if n <= 0 {
		return 0, decimal.Zero, nil
	}
	tier := TierFor(n)
	r, err := e.table.Rate(size, ink, tier)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return tier, r.Mul(decimal.NewFromInt(int64(n))), nil
}

// Format renders an amount with two fraction digits.
func Format(d decimal.Decimal) string { return d.StringFixed(2) }
