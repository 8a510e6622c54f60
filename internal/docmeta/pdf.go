package docmeta

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// pdfBackend reads PDF structure with pdfcpu.
type pdfBackend struct{}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

func (pdfBackend) read(path string, info *Info) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, err := api.ReadContext(f, relaxedConfig())
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return fmt.Errorf("validate pdf: %w", err)
	}

	info.PageCount = ctx.PageCount
	info.Title = strings.TrimSpace(ctx.Title)
	info.Author = strings.TrimSpace(ctx.Author)
	info.Subject = strings.TrimSpace(ctx.Subject)
	info.Creator = strings.TrimSpace(ctx.Creator)
	info.Producer = strings.TrimSpace(ctx.Producer)
	info.Created = pdfDate(ctx.CreationDate)
	info.Modified = pdfDate(ctx.ModDate)
	info.Encrypted = ctx.Encrypt != nil

	if ctx.RootDict != nil {
		_, info.HasOutline = ctx.RootDict["Outlines"]
		_, info.HasForms = ctx.RootDict["AcroForm"]
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return fmt.Errorf("page dims: %w", err)
	}
	info.PageSizes = make([]PageSize, 0, len(dims))
	for _, d := range dims {
		info.PageSizes = append(info.PageSizes, PageSize{WidthPt: d.Width, HeightPt: d.Height})
	}

	info.Linearized, info.HasAnnotations = structureFlags(ctx)
	return nil
}

// structureFlags reports linearization and page annotations of a validated context.
func structureFlags(ctx *model.Context) (linearized, annotations bool) {
	if ctx.Read != nil {
		linearized = ctx.Read.Linearized
	}
	for _, pg := range ctx.PageAnnots {
		for _, a := range pg {
			if len(a.Map) > 0 {
				return linearized, true
			}
		}
	}
	return linearized, false
}

func (pdfBackend) pageCount(path string) (int, error) {
	return api.PageCountFile(path)
}

// pdfDate parses a PDF date string ("D:YYYYMMDDHHmmSS+HH'mm'").
func pdfDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, ok := types.DateTime(s, true)
	if !ok {
		return nil
	}
	return &t
}
