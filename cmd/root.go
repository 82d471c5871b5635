/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/draftfix/internal/ops"
	"github.com/fulmenhq/draftfix/pkg/buildinfo"
	"github.com/fulmenhq/draftfix/pkg/exitcode"
	"github.com/fulmenhq/draftfix/pkg/logger"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draftfix",
		Short: "Diagnose and repair CapCut/JianYing draft bundles",
		Long: `Draftfix inspects draft bundles (zip archives of an editor project), reports
structural defects and repairs them: missing manifests, missing media, stale
absolute paths and platform metadata that does not match the target editor.

Examples:
   draftfix repair draft.zip                     # Repair into ./fixed_drafts
   draftfix repair https://host/d.zip --target mac
   draftfix diagnose draft.zip --format json     # Report only, write nothing
   draftfix config --format toml                 # Show effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("config", "", "Config file (default ./draftfix.yaml or $DRAFTFIX_HOME/draftfix.yaml)")
	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before DRAFTFIX_* overrides")

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("draftfix {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &configError{err: err}
	})

	reg := ops.NewRegistry()
	registerSubcommands(cmd, reg)

	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		if c != cmd {
			defaultHelp(c, args)
			return
		}
		c.Println(c.Long)
		for _, group := range ops.Groups() {
			c.Println()
			c.Println(group.Title() + ":")
			for _, r := range reg.GetCommandsByGroup(group) {
				c.Printf("  %-12s %s\n", r.Name, r.Description)
			}
		}
		c.Println()
		c.Println("Flags:")
		c.Print(c.UsageString())
	})

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
func registerSubcommands(cmd *cobra.Command, reg *ops.Registry) {
	for _, sub := range []struct {
		group ops.CommandGroup
		cmd   *cobra.Command
	}{
		{ops.GroupRepair, newRepairCommand()},
		{ops.GroupRepair, newDiagnoseCommand()},
		{ops.GroupSupport, newConfigCommand()},
		{ops.GroupSupport, newVersionCommand()},
	} {
		cmd.AddCommand(sub.cmd)
		if err := reg.Register(sub.group, sub.cmd); err != nil {
			panic(err)
		}
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute runs the root command and exits with the mapped exit code.
// This is called by main.main(). Interrupts cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	code := exitCodeFor(err)
	if err != nil && !isStatusOnly(err) {
		if logger.Default() != nil {
			logger.Error("Command execution failed", logger.Err(err))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(code)
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "draftfix",
		DryRun:    cmd.Name() == "diagnose",
		Output:    cmd.ErrOrStderr(),
	}
	if err := logger.Initialize(config); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(exitcode.ConfigError)
	}
}
