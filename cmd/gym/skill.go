// ABOUTME: Install the gym skill for AI coding assistants.
// ABOUTME: Embeds SKILL.md and writes it to ~/.claude/skills/gym/.
package main

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

//go:embed skill/SKILL.md
var skillFS embed.FS

var skillSkipConfirm bool

var installSkillCmd = &cobra.Command{
	Use:         "install-skill",
	Short:       "Install the gym skill for Claude",
	Annotations: map[string]string{"storage": "none"},
	Long: `Install the gym skill.

This copies the skill definition to ~/.claude/skills/gym/ so an assistant
knows how to log sets and check sync with this CLI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		return installSkill(cmd.OutOrStdout(), cmd.InOrStdin(), home, skillSkipConfirm)
	},
}

// installSkill writes the embedded skill under home. Without skip it asks
// for confirmation on in.
func installSkill(out io.Writer, in io.Reader, home string, skip bool) error {
	skillDir := filepath.Join(home, ".claude", "skills", "gym")
	skillPath := filepath.Join(skillDir, "SKILL.md")

	fmt.Fprintln(out, bold.Sprint("Gym skill"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "This lets your assistant log sets, manage workouts and check sync.")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Destination:\n  %s\n\n", skillPath)

	if _, err := os.Stat(skillPath); err == nil {
		fmt.Fprintln(out, "Note: A skill file already exists and will be overwritten.")
		fmt.Fprintln(out)
	}

	if !skip {
		fmt.Fprint(out, "Install the gym skill? [y/N] ")
		response, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read response: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Installation canceled.")
			return nil
		}
		fmt.Fprintln(out)
	}

	content, err := skillFS.ReadFile("skill/SKILL.md")
	if err != nil {
		return fmt.Errorf("failed to read embedded skill: %w", err)
	}
	if err := os.MkdirAll(skillDir, 0750); err != nil {
		return fmt.Errorf("failed to create skill directory: %w", err)
	}
	if err := os.WriteFile(skillPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write skill file: %w", err)
	}

	fmt.Fprintf(out, "%s Installed gym skill\n", green.Sprint("✓"))
	return nil
}

func init() {
	installSkillCmd.Flags().BoolVarP(&skillSkipConfirm, "yes", "y", false, "skip confirmation prompt")
	rootCmd.AddCommand(installSkillCmd)
}
