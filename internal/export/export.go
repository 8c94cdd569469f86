// Package export renders a refresh result for humans and other tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"churchrank/internal/dataset"
	"churchrank/internal/refresh"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML, FormatCSV, FormatTable:
		return Format(s), nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q, expected one of json, yaml, csv or table", s)
}

// Write renders result in format. The table format shows the trend of every entity for
// metric, the other formats ignore metric.
func Write(w io.Writer, format Format, result refresh.Result, metric dataset.Metric) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, result)
	case FormatYAML:
		return WriteYAML(w, result)
	case FormatCSV:
		return WriteCSV(w, result.Entities)
	case FormatTable:
		return WriteTrendTable(w, result.Entities, metric)
	}
	return fmt.Errorf("unknown format %q", format)
}

// WriteJSON writes the consolidated payload, the same document the backend serves.
func WriteJSON(w io.Writer, result refresh.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func WriteYAML(w io.Writer, result refresh.Result) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	err := encoder.Encode(result)
	if err != nil {
		return err
	}
	return encoder.Close()
}

var csvHeader = []string{"name", "location", "pastor", "year", "attendance", "ranking"}

// WriteCSV writes one row per observation, missing attendance is an empty cell.
func WriteCSV(w io.Writer, entities []dataset.Entity) error {
	writer := csv.NewWriter(w)
	err := writer.Write(csvHeader)
	if err != nil {
		return err
	}
	for _, e := range entities {
		for _, o := range e.Observations {
			attendance := ""
			if o.Attendance != nil {
				attendance = strconv.Itoa(*o.Attendance)
			}
			err = writer.Write([]string{
				e.Name,
				e.Location,
				e.Pastor,
				strconv.Itoa(o.Year),
				attendance,
				strconv.Itoa(o.Rank),
			})
			if err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatValue(o dataset.Observation, metric dataset.Metric) string {
	if metric == dataset.MetricRank {
		if o.Rank <= 0 {
			return "-"
		}
		return fmt.Sprintf("#%d", o.Rank)
	}
	if o.Attendance == nil {
		return "-"
	}
	return strconv.Itoa(*o.Attendance)
}

// WriteTrendTable renders the trend of every entity with at least 2 observations.
func WriteTrendTable(w io.Writer, entities []dataset.Entity, metric dataset.Metric) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Church", "Location", "First", "Latest", "Trend", "Growth"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	for _, trend := range dataset.Trends(entities, metric) {
		arrow := "↓"
		if trend.Direction == dataset.DirectionUp {
			arrow = "↑"
		}
		t.AppendRow(table.Row{
			trend.Name,
			trend.Location,
			fmt.Sprintf("%s (%d)", formatValue(trend.First, metric), trend.First.Year),
			fmt.Sprintf("%s (%d)", formatValue(trend.Latest, metric), trend.Latest.Year),
			arrow,
			trend.Display,
		})
	}
	t.Render()
	return nil
}
