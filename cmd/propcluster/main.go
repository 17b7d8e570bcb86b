package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "propcluster: %v\n", err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "Path to config.json or config.yaml (default: ./config.json)"},
		&cli.StringFlag{Name: "env", Usage: "Environment file path", Value: ".env"},
		&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
		&cli.StringFlag{Name: "log-format", Usage: "console or json"},
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "propcluster",
		Usage: "Group property names by meaning and frequency",
		Commands: []*cli.Command{
			{
				Name:  "cluster",
				Usage: "Cluster a term frequency list into numbered property groups",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "input", Usage: "Frequency JSON, CSV, TSV or *_frequency.txt file", Required: true},
					&cli.StringFlag{Name: "field", Usage: "Top-level JSON field holding sorted_by_frequency"},
					&cli.StringFlag{Name: "term-column", Usage: "Column name or #index for terms"},
					&cli.StringFlag{Name: "count-column", Usage: "Column name or #index for counts"},
					&cli.StringFlag{Name: "output", Usage: "CSV file to write (default uses --output-dir/property_clusters_<run>.csv)"},
					&cli.StringFlag{Name: "output-dir", Usage: "Directory for the result CSV when --output is omitted"},
					&cli.FloatFlag{Name: "primary-threshold", Usage: "Cosine threshold of the first round"},
					&cli.FloatFlag{Name: "secondary-threshold", Usage: "Cosine threshold of the second round"},
					&cli.IntFlag{Name: "min-community-size", Usage: "Minimum primary cluster size"},
					&cli.FloatFlag{Name: "file-count", Usage: "Number of source files behind the counts"},
					&cli.FloatFlag{Name: "threshold-percent", Usage: "Share of file-count below which groups are rare"},
					&cli.IntFlag{Name: "workers", Usage: "Primary clusters refined in parallel"},
					&cli.StringFlag{Name: "embedder", Usage: "onnx or openai"},
					&cli.StringFlag{Name: "cache-dir", Usage: "Directory for cached vectors"},
					&cli.StringFlag{Name: "cache-db", Usage: "SQLite file for cached vectors (takes precedence over --cache-dir)"},
					&cli.BoolFlag{Name: "separate-singletons", Usage: "Number promoted single terms after all clusters"},
					&cli.BoolFlag{Name: "stdout", Usage: "Also print the table to STDOUT"},
				),
				Action: clusterAction,
			},
			{
				Name:  "extract",
				Usage: "Collect string fields from JSON documents into frequency lists",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "input", Usage: "JSON file or directory of JSON files", Required: true},
					&cli.StringSliceFlag{Name: "keys", Usage: "Keys to extract, e.g. name,physical_form", Required: true},
					&cli.StringFlag{Name: "output-dir", Usage: "Directory for the extraction files", Value: "."},
				),
				Action: extractAction,
			},
			{
				Name:  "config",
				Usage: "Configuration helpers",
				Commands: []*cli.Command{
					{
						Name:  "init",
						Usage: "Write a configuration file with default values",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "path", Usage: "Destination file", Value: "config.json"},
							&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
						},
						Action: configInitAction,
					},
				},
			},
		},
	}
}
