// ABOUTME: Colored output helpers shared by the gym commands.
// ABOUTME: Writes through the command's streams so tests can capture them.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/harperreed/gym/internal/models"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
)

func successf(cmd *cobra.Command, format string, args ...any) {
	green.Fprintf(cmd.OutOrStdout(), "✓ "+format+"\n", args...)
}

func removedf(cmd *cobra.Command, format string, args ...any) {
	yellow.Fprintf(cmd.OutOrStdout(), "✗ "+format+"\n", args...)
}

func warnf(cmd *cobra.Command, format string, args ...any) {
	yellow.Fprintf(cmd.ErrOrStderr(), "⚠ "+format+"\n", args...)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func formatSets(sets []models.Set) string {
	parts := make([]string, len(sets))
	for i, s := range sets {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
