// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/strategy"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	rejectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
				PaddingLeft(1).PaddingRight(1)
	selectedRowStyle = lipgloss.NewStyle().Bold(true).
				PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

// styledTable is a lipgloss table where individual rows can be highlighted.
type styledTable struct {
	Table  *lgtable.Table
	count  int
	styles map[int]lipgloss.Style
}

// Row appends a row, rendered with style if not nil.
func (t *styledTable) Row(style *lipgloss.Style, row ...string) {
	if style != nil {
		t.styles[t.count] = *style
	}
	t.Table.Row(row...)
	t.count++
}

func newTable(headers ...string) *styledTable {
	t := &styledTable{styles: make(map[int]lipgloss.Style)}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if style, found := t.styles[row]; found {
				return style
			}
			if row%2 == 0 {
				return oddRowStyle
			}
			return evenRowStyle
		})
	return t
}

func printTitle(w io.Writer, title string) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(title))
}

func printTable(w io.Writer, t *styledTable) {
	_, _ = fmt.Fprintln(w, t.Table.Render())
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

// listRegistries prints the strategies, schedules, computes, patterns, gradients and kernels registered.
func listRegistries(w io.Writer, d *dispatch.Dispatcher) {
	r := d.Registries()
	printTitle(w, "Strategies and schedules")
	table := newTable("Operator", "Tag", "Kind", "Compute", "Pattern", "Gradient")
	for _, entry := range r.Strategies.Entries() {
		_, gradErr := r.Gradients.Lookup(entry.Operator)
		table.Row(nil, entry.Operator.String(), entry.Tag, entry.Kind,
			yesNo(r.Strategies.HasCompute(entry.Operator)),
			r.Patterns.Get(entry.Operator).String(),
			yesNo(gradErr == nil))
	}
	printTable(w, table)

	printTitle(w, "Kernels")
	table = newTable("Namespace", "Name", "Compute", "Schedule")
	for _, k := range r.Kernels.Kernels() {
		table.Row(nil, k.Namespace, k.Name, yesNo(k.Compute != nil), yesNo(k.Schedule != nil))
	}
	printTable(w, table)
}

// printCandidates prints the candidates evaluated by a selection, highlighting the chosen one and the
// rejected ones.
func printCandidates(w io.Writer, sel *strategy.Selection) {
	printTitle(w, fmt.Sprintf("Candidates for %q on %q, output %s", sel.Operator, sel.Target, sel.OutputType))
	table := newTable("Implementation", "Priority", "Eligible", "Outputs / Reason")
	for ii, candidate := range sel.Candidates {
		var style *lipgloss.Style
		detail := candidate.Reason
		switch {
		case ii == sel.Chosen:
			style = &selectedRowStyle
		case !candidate.Eligible:
			style = &rejectedRowStyle
		}
		if candidate.Eligible {
			detail = ""
			for jj, output := range candidate.Outputs {
				if jj > 0 {
					detail += ", "
				}
				detail += output.Shape().String()
			}
		}
		eligible := yesNo(candidate.Eligible)
		if ii == sel.Chosen {
			eligible = "selected"
		}
		table.Row(style, candidate.Name, strconv.Itoa(candidate.Priority), eligible, detail)
	}
	printTable(w, table)
}

// printSchedule prints the loops and buffers of a lowered node.
func printSchedule(w io.Writer, lowered *dispatch.Lowered) {
	s := lowered.Schedule
	printTitle(w, fmt.Sprintf("Schedule %s of %s (%s)", s.Name, lowered.Implementation.Name, s.Target))
	table := newTable("Stage", "Loop")
	for _, stage := range s.Stages {
		for _, loop := range stage.Loops {
			table.Row(nil, stage.Name, loop.String())
		}
	}
	printTable(w, table)

	table = newTable("Buffer", "Kind", "Shape", "Scope", "Bytes", "Image2D")
	var totalBytes uint64
	for _, buffer := range s.Buffers {
		bytes := uint64(buffer.Shape.Memory())
		totalBytes += bytes
		table.Row(nil, buffer.Name, buffer.Kind.String(), buffer.Shape.String(), buffer.Scope.String(),
			humanize.Bytes(bytes), textureString(buffer.Texture))
	}
	table.Row(&selectedRowStyle, "total", "", "", "", humanize.Bytes(totalBytes), "")
	printTable(w, table)
}

func textureString(texture *schedule.Texture2DShape) string {
	if texture == nil {
		return ""
	}
	return fmt.Sprintf("%d x %d x %d", texture.Height, texture.Width, texture.Channels)
}
