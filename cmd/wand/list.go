// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/holomush/wand/internal/plugin"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	levelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// newListCmd creates the list subcommand.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <dir>",
		Short: "List plugins in load order",
		Long: `Discover the plugins under dir and print them in the order they would
be loaded, grouped by dependency level, followed by any that could not be
placed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := plugin.Discover(args[0], nil)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderPlan(plugin.Resolve(descs, nil)))
			return nil
		},
	}
}

// renderPlan draws the plan as a table.
func renderPlan(plan plugin.Plan) string {
	rows := [][]string{{"LEVEL", "NAME", "VERSION", "KIND", "DEPENDS", "EXPORTS"}}
	for i, level := range plan.Levels {
		for _, d := range level {
			rows = append(rows, []string{
				fmt.Sprint(i),
				d.Name,
				d.Version,
				d.Kind,
				dependsList(d),
				fmt.Sprint(len(d.Exports)),
			})
		}
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for c, cell := range row {
			widths[c] = max(widths[c], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for r, row := range rows {
		cells := make([]string, len(row))
		for c, cell := range row {
			style := cellStyle.Width(widths[c] + 2)
			switch {
			case r == 0:
				style = style.Inherit(headerStyle)
			case c == 0:
				style = style.Inherit(levelStyle)
			}
			cells[c] = style.Render(cell)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		b.WriteByte('\n')
	}

	for _, f := range plan.Failures {
		b.WriteString(failStyle.Render(fmt.Sprintf("skipped %s: %v", f.Descriptor.Name, f.Err)))
		b.WriteByte('\n')
	}
	return b.String()
}

func dependsList(d *plugin.Descriptor) string {
	if len(d.Dependencies) == 0 {
		return "-"
	}
	names := make([]string, len(d.Dependencies))
	for i, dep := range d.Dependencies {
		names[i] = dep.Name
		if dep.Constraint != "" {
			names[i] += " " + dep.Constraint
		}
	}
	return strings.Join(names, ", ")
}
