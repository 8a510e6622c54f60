package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "printcost",
		Usage: "Classify document pages as color or monochrome and estimate print cost",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level written to stderr (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringSliceFlag{
				Name:    "gs",
				Usage:   "Ghostscript candidate path (repeatable); PATH is searched afterwards",
				EnvVars: []string{"GS_PATHS"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: defaultTimeout,
				Usage: "Per-document analysis timeout",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "Report color and monochrome pages of each document",
				ArgsUsage: "<file>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print one JSON object per document",
					},
					&cli.IntFlag{
						Name:    "jobs",
						Aliases: []string{"j"},
						Value:   2,
						Usage:   "Documents analyzed concurrently",
					},
				},
				Action: AnalyzeAction,
			},
			{
				Name:      "quote",
				Usage:     "Estimate the print cost of a set of documents",
				ArgsUsage: "<file|url|s3://bucket/key>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "rates",
						Usage:   "YAML rate table (defaults to the built-in EUR table)",
						EnvVars: []string{"PRICE_TABLE_FILE"},
					},
					&cli.IntFlag{
						Name:    "jobs",
						Aliases: []string{"j"},
						Value:   2,
						Usage:   "Documents analyzed concurrently",
					},
					&cli.BoolFlag{
						Name:  "no-analyze",
						Usage: "Skip color analysis and price every page as monochrome",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the quote as JSON",
					},
				},
				Action: QuoteAction,
			},
			{
				Name:   "tool",
				Usage:  "Show which Ghostscript binary would be used",
				Action: ToolAction,
			},
		},
	}
}
