package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

type outputMode string

const (
	outputTable outputMode = "table"
	outputJSON  outputMode = "json"
	outputYAML  outputMode = "yaml"
)

func parseOutputMode(raw string) (outputMode, error) {
	switch mode := outputMode(strings.ToLower(raw)); mode {
	case outputTable, outputJSON, outputYAML:
		return mode, nil
	case "":
		return outputTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", raw)
	}
}

type printer struct {
	mode outputMode
	w    io.Writer
}

// print writes value as JSON or YAML, or hands the rows to a table.
func (p printer) print(value any, rows func() [][]string) error {
	switch p.mode {
	case outputJSON:
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("format json: %w", err)
		}
		_, err = fmt.Fprintln(p.w, string(data))
		return err
	case outputYAML:
		// Round-trip through JSON so YAML keys follow the json tags.
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("format yaml: %w", err)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("format yaml: %w", err)
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return fmt.Errorf("format yaml: %w", err)
		}
		_, err = p.w.Write(out)
		return err
	default:
		return p.table(rows())
	}
}

func (p printer) table(rows [][]string) error {
	w := tabwriter.NewWriter(p.w, 2, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func formatBool(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
