package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"churchrank/internal/config"
	"churchrank/internal/dataset"
	"churchrank/internal/export"
	"churchrank/internal/refresh"
	"churchrank/internal/scrapers/listing"

	"github.com/spf13/cobra"
)

var (
	scrapeFrom   *int
	scrapeTo     *int
	scrapeFormat *string
	scrapeOutput *string
	scrapeMetric *string
)

func init() {
	scrapeFrom = scrapeCmd.Flags().Int("from", 0, "First year to scrape, defaults to years.from in the config.")
	scrapeTo = scrapeCmd.Flags().Int("to", 0, "Last year to scrape, defaults to years.to in the config.")
	scrapeFormat = scrapeCmd.Flags().StringP("format", "f", "json", "Output format: json, yaml, csv or table.")
	scrapeOutput = scrapeCmd.Flags().StringP("output", "o", "", "Write the result to this file instead of stdout.")
	scrapeMetric = scrapeCmd.Flags().String("metric", "attendance", "Metric shown by the table format: attendance or ranking.")
	rootCmd.AddCommand(scrapeCmd)
}

// yearsFromFlags returns the years picked by --from and --to, filling a missing bound from
// the config. It returns nil when neither flag is set.
func yearsFromFlags(from, to int) ([]int, error) {
	if from == 0 && to == 0 {
		return nil, nil
	}
	if from == 0 {
		from = cfg.Years.From
	}
	if to == 0 {
		to = cfg.Years.To
	}
	if from > to {
		return nil, fmt.Errorf("--from (%d) is after --to (%d)", from, to)
	}
	return dataset.YearRange(from, to), nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func reportYearErrors(result refresh.Result) {
	for _, yearErr := range result.Errors {
		slog.Warn("year failed", "year", yearErr.Year, "err", yearErr.Message)
	}
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--from <year>] [--to <year>] [--format json|yaml|csv|table] [--output <path>]",
	Short: "Builds the consolidated multi-year dataset and writes it out.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(*scrapeFormat)
		if err != nil {
			return err
		}
		metric, err := dataset.ParseMetric(*scrapeMetric)
		if err != nil {
			return err
		}
		years, err := yearsFromFlags(*scrapeFrom, *scrapeTo)
		if err != nil {
			return err
		}

		source, err := refresh.New(cfg, tel, httpOutput)
		if err != nil {
			return err
		}
		result, err := source.Refresh(cmd.Context(), years)
		reportYearErrors(result)
		if err != nil {
			if errors.Is(err, listing.ErrDirectAccessBlocked) {
				slog.Error("the listing site refused direct access, point backend.url at a running 'churchrank serve' or set "+config.EnvBackendUrl)
			}
			return err
		}

		w, closeOutput, err := openOutput(*scrapeOutput)
		if err != nil {
			return err
		}
		err = export.Write(w, format, result, metric)
		if err != nil {
			closeOutput()
			return err
		}
		err = closeOutput()
		if err != nil {
			return err
		}

		slog.Info(
			"scrape complete",
			"entities", len(result.Entities),
			"failed_years", len(result.Errors),
		)
		return nil
	},
}
