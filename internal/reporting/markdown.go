package reporting

import (
	"fmt"
	"math"
	"strings"
	"time"

	"trade-quality-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Trade Quality Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Trade definition: %s | Symbols: %d | Trades: %d\n\n",
		r.Definition, len(r.Symbols), r.TotalTrades()))

	// Overview
	sb.WriteString("## Overview\n\n")
	if len(r.Symbols) > 0 {
		sb.WriteString("| Symbol | Trades | Open | Winners | Losers | Flat | Net P&L | Start (ms) | End (ms) |\n")
		sb.WriteString("|--------|--------|------|---------|--------|------|---------|------------|----------|\n")
		for _, s := range r.Symbols {
			d := s.Summary
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d | %s | %d | %d |\n",
				s.Symbol, d.TotalTrades, d.OpenTrades, d.Winners, d.Losers, d.Flat,
				formatCell(d.TotalNetPL), d.DateRangeStart, d.DateRangeEnd))
		}
	} else {
		sb.WriteString("No symbols processed.\n")
	}
	sb.WriteString("\n")

	for _, s := range r.Symbols {
		renderSymbol(&sb, &s)
	}

	// Reproducibility
	if r.Reproducibility.DataVersion != "" {
		sb.WriteString("## Reproducibility\n\n")
		sb.WriteString("| Field | Value |\n")
		sb.WriteString("|-------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Generator Version | %s |\n", r.Reproducibility.GeneratorVersion))
		sb.WriteString(fmt.Sprintf("| Data Version | %s |\n", r.Reproducibility.DataVersion))
		sb.WriteString(fmt.Sprintf("| Command | `%s` |\n", r.Reproducibility.Command))
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderSymbol(sb *strings.Builder, s *SymbolSection) {
	sb.WriteString(fmt.Sprintf("## %s\n\n", s.Symbol))

	if len(s.Warnings) > 0 {
		sb.WriteString("### Data Quality\n\n")
		for _, w := range s.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### Trade Quantiles\n\n")
	q := s.Quantiles
	if q == nil {
		sb.WriteString("No trades available.\n\n")
		return
	}

	for _, scale := range q.Scales {
		sb.WriteString(fmt.Sprintf("#### %s\n\n", scale))
		sb.WriteString("| Label | Value |\n")
		sb.WriteString("|-------|-------|\n")
		for _, entry := range q.Quantiles {
			if entry.Key.Scale != scale {
				continue
			}
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", entry.Key.Label(), formatCell(entry.Value)))
		}
		for _, m := range q.MaxCum {
			if m.Scale == scale {
				sb.WriteString(fmt.Sprintf("| %s | %s |\n", domain.MaxCumLabel(scale), formatCell(m.Value)))
			}
		}
		sb.WriteString("\n")
	}
}

// formatCell renders a metric with four decimals; NaN as "n/a".
func formatCell(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}
