package docmeta

import (
	"fmt"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
)

// fitzBackend reads images and anything else MuPDF opens. It is also the
// fallback for PDFs that pdfcpu rejects.
type fitzBackend struct{}

func (fitzBackend) read(path string, info *Info) error {
	doc, err := fitz.New(path)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	info.PageCount = doc.NumPage()
	info.PageSizes = make([]PageSize, 0, info.PageCount)
	for i := 0; i < info.PageCount; i++ {
		b, err := doc.Bound(i)
		if err != nil {
			return fmt.Errorf("bound page %d: %w", i+1, err)
		}
		info.PageSizes = append(info.PageSizes, PageSize{WidthPt: float64(b.Dx()), HeightPt: float64(b.Dy())})
	}

	meta := doc.Metadata()
	info.Title = strings.TrimSpace(meta["title"])
	info.Author = strings.TrimSpace(meta["author"])
	info.Subject = strings.TrimSpace(meta["subject"])
	info.Creator = strings.TrimSpace(meta["creator"])
	info.Producer = strings.TrimSpace(meta["producer"])
	info.Created = pdfDate(meta["creationDate"])
	info.Modified = pdfDate(meta["modDate"])
	if enc := strings.TrimSpace(meta["encryption"]); enc != "" && !strings.EqualFold(enc, "none") {
		info.Encrypted = true
	}

	if toc, err := doc.ToC(); err == nil && len(toc) > 0 {
		info.HasOutline = true
	}
	return nil
}

func (fitzBackend) pageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}
