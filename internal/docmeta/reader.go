package docmeta

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/printmanager/internal/docerr"
	"github.com/local/printmanager/internal/filetype"
)

// PageSize is a page's physical size in PDF points (1/72 inch).
type PageSize struct {
	WidthPt  float64 `json:"width_pt"`
	HeightPt float64 `json:"height_pt"`
}

// Info is the basic, non-color metadata of a document.
type Info struct {
	Path           string        `json:"path"`
	MIMEType       string        `json:"mime_type"`
	Kind           filetype.Kind `json:"kind"`
	Title          string        `json:"title,omitempty"`
	Author         string        `json:"author,omitempty"`
	Subject        string        `json:"subject,omitempty"`
	Creator        string        `json:"creator,omitempty"`
	Producer       string        `json:"producer,omitempty"`
	Created        *time.Time    `json:"created,omitempty"`
	Modified       *time.Time    `json:"modified,omitempty"`
	PageCount      int           `json:"page_count"`
	PageSizes      []PageSize    `json:"page_sizes,omitempty"`
	Encrypted      bool          `json:"encrypted"`
	Linearized     bool          `json:"linearized"`
	HasOutline     bool          `json:"has_outline"`
	HasAnnotations bool          `json:"has_annotations"`
	HasForms       bool          `json:"has_forms"`
	FileSize       int64         `json:"file_size"`
}

// FirstPage returns the size of page 1, if known.
func (i Info) FirstPage() (PageSize, bool) {
	if len(i.PageSizes) == 0 {
		return PageSize{}, false
	}
	return i.PageSizes[0], true
}

// Reader reads document metadata, choosing a backend by magic bytes.
type Reader struct {
	detector *filetype.Detector
	pdf      pdfBackend
	fitz     fitzBackend
}

// NewReader creates a Reader with the pdfcpu and go-fitz backends.
func NewReader() *Reader {
	return &Reader{detector: filetype.New()}
}

// Read returns the basic metadata of the document at path.
func (r *Reader) Read(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	_, fi, err := Identify(path)
	if err != nil {
		return Info{}, err
	}
	if fi.Size() == 0 {
		return Info{}, fmt.Errorf("%w: %s is empty", docerr.ErrInvalidInput, path)
	}
	ft, err := r.detector.Detect(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", docerr.ErrInvalidInput, err)
	}
	if !ft.Readable() {
		return Info{}, fmt.Errorf("%w: %s", docerr.ErrInvalidInput, ft.Description)
	}

	abs, _ := filepath.Abs(path)
	info := Info{Path: abs, MIMEType: ft.MIMEType, Kind: ft.Kind, FileSize: fi.Size()}

	switch ft.Kind {
	case filetype.KindPDF:
		err = r.pdf.read(abs, &info)
		if err != nil {
			log.Warn().Err(err).Str("file", abs).Msg("pdfcpu could not read document; trying go-fitz")
			err = r.fitz.read(abs, &info)
		}
	default:
		err = r.fitz.read(abs, &info)
	}
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", docerr.ErrInvalidInput, abs, err)
	}
	if info.PageCount < 1 {
		return Info{}, fmt.Errorf("%w: %s has no pages", docerr.ErrInvalidInput, abs)
	}
	return info, nil
}

// PageCount returns the number of pages, independently of any ink analysis.
func (r *Reader) PageCount(path string) (int, error) {
	n, err := r.pdf.pageCount(path)
	if err == nil && n > 0 {
		return n, nil
	}
	n, ferr := r.fitz.pageCount(path)
	if ferr != nil {
		if err == nil {
			err = ferr
		}
		return 0, fmt.Errorf("page count %s: %w", path, err)
	}
	return n, nil
}
