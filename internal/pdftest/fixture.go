// Package pdftest builds small PDF files for tests using pdfcpu.
package pdftest

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Common page sizes in points.
var (
	A4 = [2]float64{595.28, 841.89}
	A3 = [2]float64{841.89, 1190.55}
)

// Options describes the document to generate.
type Options struct {
	Pages       [][2]float64 // width, height per page; defaults to one A4 page
	Title       string
	Author      string
	Outline     bool // one bookmark pointing at page 1
	Form        bool // AcroForm with an empty field list
	Annotations bool // a text annotation on every page
}

// Build returns the bytes of a PDF described by opts.
func Build(opts Options) ([]byte, error) {
	pages := opts.Pages
	if len(pages) == 0 {
		pages = [][2]float64{A4}
	}

	ctx, err := pdfcpu.CreateContextWithXRefTable(nil, types.PaperSize["A4"])
	if err != nil {
		return nil, err
	}
	root, err := ctx.Catalog()
	if err != nil {
		return nil, err
	}
	pagesRef, err := ctx.Pages()
	if err != nil {
		return nil, err
	}
	pagesDict, err := ctx.DereferenceDict(*pagesRef)
	if err != nil {
		return nil, err
	}

	for _, p := range pages {
		ref, err := ctx.EmptyPage(pagesRef, types.RectForDim(p[0], p[1]))
		if err != nil {
			return nil, err
		}
		if err := model.AppendPageTree(ref, 1, pagesDict); err != nil {
			return nil, err
		}
	}
	ctx.PageCount = len(pages)

	if opts.Title != "" || opts.Author != "" {
		info := types.NewDict()
		if opts.Title != "" {
			info.InsertString("Title", opts.Title)
		}
		if opts.Author != "" {
			info.InsertString("Author", opts.Author)
		}
		ref, err := ctx.IndRefForNewObject(info)
		if err != nil {
			return nil, err
		}
		ctx.Info = ref
	}

	if opts.Form {
		form := types.Dict(map[string]types.Object{"Fields": types.Array{}})
		ref, err := ctx.IndRefForNewObject(form)
		if err != nil {
			return nil, err
		}
		root.Insert("AcroForm", *ref)
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, err
	}
	b := buf.Bytes()

	if opts.Outline {
		var out bytes.Buffer
		bms := []pdfcpu.Bookmark{{Title: "Start", PageFrom: 1}}
		if err := api.AddBookmarks(bytes.NewReader(b), &out, bms, false, nil); err != nil {
			return nil, err
		}
		b = out.Bytes()
	}

	if opts.Annotations {
		var out bytes.Buffer
		note := model.NewTextAnnotation(*types.NewRectangle(36, 36, 72, 72), "note", "n1", "", 0, nil, nil, "", "", false, "Comment")
		if err := api.AddAnnotations(bytes.NewReader(b), &out, nil, note, nil); err != nil {
			return nil, err
		}
		b = out.Bytes()
	}
	return b, nil
}

// Write stores a generated PDF in dir and returns its path.
func Write(dir, name string, opts Options) (string, error) {
	b, err := Build(opts)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// Uniform returns n pages of the same size.
func Uniform(n int, size [2]float64) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = size
	}
	return out
}
