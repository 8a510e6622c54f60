package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/local/printmanager/internal/cache"
	"github.com/local/printmanager/internal/colorclass"
	"github.com/local/printmanager/internal/config"
	"github.com/local/printmanager/internal/dispatcher"
	"github.com/local/printmanager/internal/docerr"
	"github.com/local/printmanager/internal/docmeta"
	"github.com/local/printmanager/internal/fetch"
	"github.com/local/printmanager/internal/inkcov"
	"github.com/local/printmanager/internal/logger"
	"github.com/local/printmanager/internal/pricing"
)

const defaultTimeout = 5 * time.Minute

// setup initializes stderr logging and the classifier shared by all commands.
func setup(c *cli.Context) (*colorclass.Locator, *colorclass.Classifier, *docmeta.Reader, error) {
	if err := logger.Init(logger.Options{Level: c.String("log-level"), Pretty: true, Console: os.Stderr, Service: "printcost"}); err != nil {
		return nil, nil, nil, err
	}
	candidates := c.StringSlice("gs")
	if len(candidates) == 0 {
		candidates = config.DefaultGhostscriptPaths
	}
	jobs := c.Int("jobs")
	if jobs <= 0 {
		jobs = 1
	}
	locator := colorclass.NewLocator(candidates, "gs")
	reader := docmeta.NewReader()
	classifier := colorclass.New(colorclass.Options{
		Locator:  locator,
		Pages:    reader,
		Timeout:  c.Duration("timeout"),
		MaxProcs: jobs,
	})
	return locator, classifier, reader, nil
}

type analyzeResult struct {
	Path       string         `json:"path"`
	Report     *inkcov.Report `json:"report,omitempty"`
	ColorPages int            `json:"color_page_count"`
	MonoPages  int            `json:"mono_page_count"`
	Error      string         `json:"error,omitempty"`
	Category   string         `json:"category,omitempty"`
}

func AnalyzeAction(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("no documents given")
	}
	_, classifier, _, err := setup(c)
	if err != nil {
		return err
	}
	if !classifier.IsToolAvailable() {
		return fmt.Errorf("%w: install Ghostscript or pass --gs", docerr.ErrToolNotFound)
	}

	results := make([]analyzeResult, len(files))
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(max(c.Int("jobs"), 1))
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			res := analyzeResult{Path: f}
			rep, err := classifier.Analyze(ctx, f)
			if err != nil {
				res.Error, res.Category = err.Error(), docerr.Category(err)
			} else {
				res.Report = &rep
				res.ColorPages, res.MonoPages = rep.ColorCount(), rep.MonoCount()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	} else {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DOCUMENT\tPAGES\tCOLOR\tMONO\tCOLOR PAGES")
		for _, r := range results {
			if r.Error != "" {
				failed++
				fmt.Fprintf(tw, "%s\t-\t-\t-\t%s\n", filepath.Base(r.Path), r.Error)
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", filepath.Base(r.Path), r.Report.TotalPages, r.ColorPages, r.MonoPages, pageList(r.Report.ColorPages))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents could not be analyzed", failed, len(results))
	}
	return nil
}

func QuoteAction(c *cli.Context) error {
	refs := c.Args().Slice()
	if len(refs) == 0 {
		return fmt.Errorf("no documents given")
	}
	_, classifier, reader, err := setup(c)
	if err != nil {
		return err
	}
	table, err := pricing.LoadTable(c.String("rates"))
	if err != nil {
		return err
	}
	resolver, err := fetch.NewResolver(fetch.Options{})
	if err != nil {
		return err
	}

	jobs := max(c.Int("jobs"), 1)
	pool := dispatcher.New(dispatcher.Config{Concurrency: jobs, QueueSize: len(refs)})
	pool.Start()
	defer func() { _ = pool.Stop(c.Context) }()
	docs := cache.New(cache.Options{Reader: reader, Analyzer: classifier, Pool: pool})

	analyze := !c.Bool("no-analyze")
	if analyze && !classifier.IsToolAvailable() {
		fmt.Fprintln(os.Stderr, "warning: Ghostscript not found; pricing every page as monochrome")
		analyze = false
	}

	keys := make([]docmeta.Key, len(refs))
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(jobs)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			path, err := resolver.Resolve(ctx, ref)
			if err != nil {
				return err
			}
			d, err := docs.GetOrLoad(ctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}
			keys[i] = d.Key
			if analyze {
				if _, err := docs.Enrich(ctx, path); err != nil {
					return fmt.Errorf("%s: %w", ref, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	docs.Wait()

	set := make([]cache.DocumentMetadata, 0, len(keys))
	for _, k := range keys {
		d, ok := docs.Get(k)
		if !ok {
			return fmt.Errorf("%w: %s", docerr.ErrNotFound, k)
		}
		if d.Color.State == cache.ColorFailed {
			fmt.Fprintf(os.Stderr, "warning: %s: color analysis failed (%s); priced as monochrome\n", filepath.Base(d.Path), d.Color.Error)
		}
		set = append(set, d)
	}

	q, err := pricing.NewEstimator(table).Estimate(set)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}
	return printQuote(q)
}

func printQuote(q pricing.Quote) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DOCUMENT\tSIZE\tMONO\tCOLOR\tMONO "+q.Currency+"\tCOLOR "+q.Currency+"\tTOTAL "+q.Currency+"\t")
	for _, l := range q.Lines {
		name := filepath.Base(l.Path)
		if l.Assumed {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t\n", name, l.Size, l.Mono, l.Color,
			pricing.Format(l.MonoSubtotal), pricing.Format(l.ColorSubtotal), pricing.Format(l.Total))
	}
	fmt.Fprintf(tw, "\t\t\t\t\t\t%s\t\n", pricing.Format(q.Total))
	if err := tw.Flush(); err != nil {
		return err
	}
	if q.Assumed {
		fmt.Println("* color unknown, priced as monochrome")
	}
	return nil
}

func ToolAction(c *cli.Context) error {
	locator, _, _, err := setup(c)
	if err != nil {
		return err
	}
	p, err := locator.Find()
	if errors.Is(err, docerr.ErrToolNotFound) {
		fmt.Println("Ghostscript not found")
		fmt.Println("searched:", strings.Join(append(c.StringSlice("gs"), "$PATH"), ", "))
		return cli.Exit("", 1)
	}
	if err != nil {
		return err
	}
	fmt.Println(p)
	return nil
}

// pageList renders 1-based page numbers compactly, e.g. "1-3,7".
func pageList(pages []int) string {
	if len(pages) == 0 {
		return "-"
	}
	var b strings.Builder
	for i := 0; i < len(pages); {
		j := i
		for j+1 < len(pages) && pages[j+1] == pages[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if j > i {
			fmt.Fprintf(&b, "%d-%d", pages[i], pages[j])
		} else {
			fmt.Fprintf(&b, "%d", pages[i])
		}
		i = j + 1
	}
	return b.String()
}
