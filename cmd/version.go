/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/draftfix/pkg/buildinfo"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show draftfix version information",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show detailed build information")
	cmd.Flags().Bool("as-json", false, "Output version information in JSON format")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	asJSON, _ := cmd.Flags().GetBool("as-json")
	out := cmd.OutOrStdout()
	info := buildinfo.Current()

	if asJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	fmt.Fprintf(out, "draftfix %s\n", info.Version)
	if !extended {
		return nil
	}
	if info.ModuleVersion != "" {
		fmt.Fprintf(out, "Module version: %s\n", info.ModuleVersion)
	}
	commit := info.Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	if commit == "" {
		commit = "unknown"
	}
	buildDate := info.BuildDate
	if buildDate == "" {
		buildDate = "unknown"
	}
	fmt.Fprintf(out, "Git commit: %s\n", commit)
	fmt.Fprintf(out, "Build date: %s\n", buildDate)
	fmt.Fprintf(out, "Go version: %s\n", info.GoVersion)
	fmt.Fprintf(out, "Platform: %s\n", info.Platform)
	return nil
}
