package commands

import (
	"fmt"
	"net/url"
	"os"

	"churchrank/internal/scrapers/listing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	extractYear    *int
	extractBaseUrl *string
)

func init() {
	extractYear = extractCmd.Flags().IntP("year", "y", 0, "Year the page belongs to, numbers equal to it are never read as attendance.")
	extractBaseUrl = extractCmd.Flags().String("base-url", "", "Url relative links are resolved against, defaults to source.base_url in the config.")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <page.html> [--year <year>] [--base-url <url>]",
	Short: "Runs the listing extractor on a saved page and prints what it finds.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		markup, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		rawBase := cfg.Source.BaseUrl
		if *extractBaseUrl != "" {
			rawBase = *extractBaseUrl
		}
		var base *url.URL
		if rawBase != "" {
			base, err = url.Parse(rawBase)
			if err != nil {
				return fmt.Errorf("parse base url: %w", err)
			}
		}

		extractor := listing.NewExtractor(base, cfg.Source.DetailPattern, tel)
		candidates, err := extractor.Extract(string(markup), *extractYear)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Rank", "Source", "Name", "Location", "Pastor", "Attendance", "Url"})
		for _, c := range candidates {
			attendance := "-"
			if c.Attendance != nil {
				attendance = fmt.Sprint(*c.Attendance)
			}
			t.AppendRow(table.Row{c.Rank, c.RankSource, c.Name, c.Location, c.Pastor, attendance, c.DetailUrl})
		}
		t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d candidates", len(candidates))})
		t.Render()
		return nil
	},
}
