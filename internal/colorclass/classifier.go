package colorclass

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/local/printmanager/internal/docerr"
	"github.com/local/printmanager/internal/filetype"
	"github.com/local/printmanager/internal/inkcov"
	"github.com/local/printmanager/internal/metrics"
	"github.com/local/printmanager/internal/procexec"
)

// PageCounter supplies the page count used when the tool output is unusable.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// Options configures a Classifier.
type Options struct {
	Locator  *Locator
	Runner   procexec.Runner
	Pages    PageCounter
	Timeout  time.Duration
	MaxProcs int
}

// Outcome is delivered by AnalyzeAsync.
type Outcome struct {
	Report inkcov.Report
	Err    error
}

// Classifier runs Ghostscript's inkcov device over a document and classifies
// each page as color or monochrome.
type Classifier struct {
	locator  *Locator
	runner   procexec.Runner
	pages    PageCounter
	detector *filetype.Detector
	timeout  time.Duration
	procs    *semaphore.Weighted
}

// New creates a classifier. Runner defaults to an ExecRunner discarding stderr.
func New(opts Options) *Classifier {
	if opts.Runner == nil {
		opts.Runner = &procexec.ExecRunner{DiscardStderr: true}
	}
	if opts.MaxProcs <= 0 {
		opts.MaxProcs = 2
	}
	return &Classifier{
		locator:  opts.Locator,
		runner:   opts.Runner,
		pages:    opts.Pages,
		detector: filetype.New(),
		timeout:  opts.Timeout,
		procs:    semaphore.NewWeighted(int64(opts.MaxProcs)),
	}
}

// IsToolAvailable probes for the tool. It is cheap enough to call per request.
func (c *Classifier) IsToolAvailable() bool {
	return c.locator != nil && c.locator.Available()
}

// Analyze blocks until the document is classified. Do not call it from a
// latency sensitive goroutine; use AnalyzeAsync or the cache instead.
func (c *Classifier) Analyze(ctx context.Context, path string) (inkcov.Report, error) {
	if err := c.checkInput(path); err != nil {
		return inkcov.Report{}, err
	}
	if c.locator == nil {
		return inkcov.Report{}, docerr.ErrToolNotFound
	}
	tool, err := c.locator.Find()
	if err != nil {
		metrics.ObserveClassification(docerr.Category(err), 0)
		return inkcov.Report{}, err
	}

	runID := uuid.NewString()
	lg := log.With().Str("run_id", runID).Str("file", path).Logger()

	if err := c.procs.Acquire(ctx, 1); err != nil {
		return inkcov.Report{}, err
	}
	defer c.procs.Release(1)

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	lg.Debug().Str("tool", tool).Msg("running ink coverage analysis")
	res, runErr := c.runner.Run(runCtx, tool, "-q", "-o", "-", "-sDEVICE=inkcov", path)
	rep, err := c.interpret(path, res, runErr)
	result := docerr.Category(err)
	if err == nil && rep.Fallback {
		result = "fallback"
	}
	metrics.ObserveClassification(result, res.Duration)
	if err != nil {
		lg.Warn().Err(err).Dur("duration", res.Duration).Msg("ink coverage analysis failed")
		return inkcov.Report{}, err
	}

	metrics.AddPages(rep.ColorCount(), rep.MonoCount())
	ev := lg.Info()
	if rep.Fallback {
		// distinct from a missing tool: gs ran but its output format is not understood
		ev = lg.Warn()
	}
	ev.Int("pages", rep.TotalPages).
		Int("color_pages", rep.ColorCount()).
		Int("mono_pages", rep.MonoCount()).
		Bool("fallback", rep.Fallback).
		Dur("duration", res.Duration).
		Msg("ink coverage analysis finished")
	return rep, nil
}

// AnalyzeAsync runs Analyze on its own goroutine. The channel receives exactly
// one Outcome and is then closed.
func (c *Classifier) AnalyzeAsync(ctx context.Context, path string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		rep, err := c.Analyze(ctx, path)
		ch <- Outcome{Report: rep, Err: err}
	}()
	return ch
}

func (c *Classifier) interpret(path string, res procexec.Result, runErr error) (inkcov.Report, error) {
	if runErr != nil {
		var exitErr *procexec.ExitError
		if !errors.As(runErr, &exitErr) {
			// launch failure or context expiry
			return inkcov.Report{}, runErr
		}
		rep, err := inkcov.Parse(res.Stdout, 0)
		if err != nil {
			return inkcov.Report{}, fmt.Errorf("%w: %v", docerr.ErrToolFailed, runErr)
		}
		log.Warn().Err(runErr).Str("file", path).Int("pages", rep.TotalPages).Msg("ghostscript exited non-zero; using partial output")
		return rep, nil
	}

	rep, err := inkcov.Parse(res.Stdout, 0)
	if err == nil {
		return rep, nil
	}
	if c.pages == nil {
		return inkcov.Report{}, err
	}
	n, perr := c.pages.PageCount(path)
	if perr != nil || n < 1 {
		return inkcov.Report{}, fmt.Errorf("%w (no fallback page count: %v)", err, perr)
	}
	return inkcov.Parse(res.Stdout, n)
}

func (c *Classifier) checkInput(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", docerr.ErrInvalidInput)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", docerr.ErrInvalidInput, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", docerr.ErrInvalidInput, path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", docerr.ErrInvalidInput, path)
	}
	ft, err := c.detector.Detect(path)
	if err != nil {
		return fmt.Errorf("%w: %v", docerr.ErrInvalidInput, err)
	}
	if !ft.Inkable() {
		return fmt.Errorf("%w: %s cannot be measured (%s)", docerr.ErrInvalidInput, path, ft.MIMEType)
	}
	return nil
}
