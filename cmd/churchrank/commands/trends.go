package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"churchrank/internal/dataset"
	"churchrank/internal/export"
	"churchrank/internal/refresh"

	"github.com/spf13/cobra"
)

var (
	trendsInput  *string
	trendsMetric *string
	trendsQuery  *string
)

func init() {
	trendsInput = trendsCmd.Flags().StringP("input", "i", "", "Read a consolidated payload written by 'scrape --format json' instead of refreshing.")
	trendsMetric = trendsCmd.Flags().String("metric", "attendance", "Metric to compare: attendance or ranking.")
	trendsQuery = trendsCmd.Flags().StringP("query", "q", "", "Only show entities whose name, location or pastor contains this text.")
	rootCmd.AddCommand(trendsCmd)
}

func readPayload(path string) (refresh.Result, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		return refresh.Result{}, err
	}
	var result refresh.Result
	err = json.Unmarshal(buff, &result)
	if err != nil {
		return refresh.Result{}, fmt.Errorf("decode payload %s: %w", path, err)
	}
	return result, nil
}

var trendsCmd = &cobra.Command{
	Use:   "trends [--input <payload.json>] [--metric attendance|ranking] [--query <text>]",
	Short: "Prints the trend and growth of every entity between its first and latest year.",
	RunE: func(cmd *cobra.Command, args []string) error {
		metric, err := dataset.ParseMetric(*trendsMetric)
		if err != nil {
			return err
		}

		var result refresh.Result
		if *trendsInput != "" {
			result, err = readPayload(*trendsInput)
			if err != nil {
				return err
			}
		} else {
			source, err := refresh.New(cfg, tel, httpOutput)
			if err != nil {
				return err
			}
			result, err = source.Refresh(cmd.Context(), nil)
			reportYearErrors(result)
			if err != nil {
				return err
			}
		}

		entities := dataset.Filter(result.Entities, *trendsQuery)
		return export.WriteTrendTable(os.Stdout, entities, metric)
	},
}
