/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/

// Package report renders pipeline results for the terminal or for machines.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/draftfix/pkg/diagnose"
	"github.com/fulmenhq/draftfix/pkg/pipeline"
	"github.com/fulmenhq/draftfix/pkg/repair"
)

// OutputFormat represents the format for run output
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

// Formats lists the supported formats.
func Formats() []OutputFormat {
	return []OutputFormat{FormatText, FormatJSON, FormatYAML}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (OutputFormat, error) {
	for _, f := range Formats() {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// detailWidth caps finding details in text output.
const detailWidth = 96

// Summary counts results by status.
type Summary struct {
	Total    int `json:"total" yaml:"total"`
	Repaired int `json:"repaired" yaml:"repaired"`
	Partial  int `json:"partial" yaml:"partial"`
	Failed   int `json:"failed" yaml:"failed"`
	// Findings counts detected defects by kind across every result.
	Findings map[diagnose.Kind]int `json:"findings,omitempty" yaml:"findings,omitempty"`
}

// Document is the machine-readable form of a batch.
type Document struct {
	Summary Summary            `json:"summary" yaml:"summary"`
	Results []*pipeline.Result `json:"results" yaml:"results"`
}

// NewDocument collects the results of items.
func NewDocument(items []pipeline.Item) Document {
	doc := Document{Results: make([]*pipeline.Result, 0, len(items))}
	for _, it := range items {
		res := it.Result
		if res == nil {
			res = &pipeline.Result{Source: it.Request.Source, Status: pipeline.StatusFailed}
			if it.Err != nil {
				res.Error = it.Err.Error()
			}
		}
		doc.Results = append(doc.Results, res)
		doc.Summary.Total++
		for kind, n := range diagnose.Count(res.Findings) {
			if doc.Summary.Findings == nil {
				doc.Summary.Findings = make(map[diagnose.Kind]int)
			}
			doc.Summary.Findings[kind] += n
		}
		switch res.Status {
		case pipeline.StatusRepaired:
			doc.Summary.Repaired++
		case pipeline.StatusPartial:
			doc.Summary.Partial++
		default:
			doc.Summary.Failed++
		}
	}
	return doc
}

// Formatter handles formatting run reports
type Formatter struct {
	format  OutputFormat
	noColor bool
	// forceColor keeps escapes even when stdout is not a terminal.
	forceColor bool
}

// NewFormatter creates a new report formatter
func NewFormatter(format OutputFormat, noColor bool) *Formatter {
	return &Formatter{format: format, noColor: noColor}
}

// Format renders items according to the configured format
func (f *Formatter) Format(items []pipeline.Item) (string, error) {
	doc := NewDocument(items)
	switch f.format {
	case FormatText, "":
		return f.formatText(doc), nil
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(data) + "\n", nil
	case FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", f.format)
	}
}

func (f *Formatter) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	switch {
	case f.noColor:
		c.DisableColor()
	case f.forceColor:
		c.EnableColor()
	}
	return c
}

func (f *Formatter) status(s pipeline.Status) string {
	switch s {
	case pipeline.StatusRepaired:
		return f.paint(color.FgGreen, color.Bold).Sprint(s)
	case pipeline.StatusPartial:
		return f.paint(color.FgYellow, color.Bold).Sprint(s)
	default:
		return f.paint(color.FgRed, color.Bold).Sprint(s)
	}
}

// outcome colors a padded outcome cell.
func (f *Formatter) outcome(padded string) string {
	switch repair.Outcome(strings.TrimSpace(padded)) {
	case repair.Applied:
		return f.paint(color.FgGreen).Sprint(padded)
	case repair.Failed:
		return f.paint(color.FgRed).Sprint(padded)
	default:
		return f.paint(color.Faint).Sprint(padded)
	}
}

func (f *Formatter) formatText(doc Document) string {
	var sb strings.Builder
	bold := f.paint(color.Bold)
	for i, res := range doc.Results {
		if i > 0 {
			sb.WriteString("\n")
		}
		name := res.BundleID
		if name == "" {
			name = res.Source
		}
		fmt.Fprintf(&sb, "%s  %s  target=%s policy=%s  %d findings, %d unresolved  (%s)\n",
			bold.Sprint(name), f.status(res.Status), res.Target, res.Policy,
			len(res.Findings), len(res.Unresolved), res.Duration.Round(time.Millisecond))
		if res.Error != "" {
			fmt.Fprintf(&sb, "  error: %s\n", res.Error)
		}
		if res.OutputPath != "" {
			fmt.Fprintf(&sb, "  output: %s\n", res.OutputPath)
		}
		if res.UnpackedPath != "" {
			fmt.Fprintf(&sb, "  unpacked: %s\n", res.UnpackedPath)
		}

		if len(res.Findings) > 0 {
			sb.WriteString("  findings:\n")
			rows := make([][]string, 0, len(res.Findings))
			for _, fd := range res.Findings {
				rows = append(rows, []string{string(fd.Kind), runewidth.Truncate(fd.Detail, detailWidth, "…")})
			}
			writeRows(&sb, "    ", rows, nil)
		}
		if len(res.Actions) > 0 {
			sb.WriteString("  actions:\n")
			rows := make([][]string, 0, len(res.Actions))
			for _, a := range res.Actions {
				target := a.Target
				if a.Error != "" {
					target += "  (" + runewidth.Truncate(a.Error, detailWidth, "…") + ")"
				}
				rows = append(rows, []string{string(a.Outcome), string(a.Kind), target})
			}
			writeRows(&sb, "    ", rows, func(col int, cell string) string {
				if col == 0 {
					return f.outcome(cell)
				}
				return cell
			})
		}
	}
	if doc.Summary.Total > 1 {
		fmt.Fprintf(&sb, "\n%s %d bundles: %d repaired, %d partial, %d failed\n",
			bold.Sprint("Summary:"), doc.Summary.Total, doc.Summary.Repaired, doc.Summary.Partial, doc.Summary.Failed)
		if counts := findingCounts(doc.Summary.Findings); counts != "" {
			fmt.Fprintf(&sb, "%s %s\n", bold.Sprint("Findings:"), counts)
		}
	}
	return sb.String()
}

// findingCounts lists non-zero counts in check order.
func findingCounts(counts map[diagnose.Kind]int) string {
	var parts []string
	for _, kind := range diagnose.Kinds() {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	return strings.Join(parts, ", ")
}

// writeRows prints rows with columns padded to their display width, so
// wide material names keep the columns aligned. style, when set, decorates a
// cell after it has been padded.
func writeRows(sb *strings.Builder, indent string, rows [][]string, style func(col int, cell string) string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for _, row := range rows {
		sb.WriteString(indent)
		for i, cell := range row {
			last := i == len(row)-1
			if !last {
				cell = runewidth.FillRight(cell, widths[i])
			}
			if style != nil {
				cell = style(i, cell)
			}
			sb.WriteString(cell)
			if !last {
				sb.WriteString("  ")
			}
		}
		sb.WriteString("\n")
	}
}
