/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/fulmenhq/draftfix/internal/report"
	"github.com/fulmenhq/draftfix/pkg/config"
	"github.com/fulmenhq/draftfix/pkg/platform"
	"github.com/fulmenhq/draftfix/pkg/repair"
)

// enumValue is a string flag restricted to a fixed set of values.
type enumValue struct {
	value   string
	allowed []string
	// parse normalizes aliases; nil means exact (case-insensitive) matches only.
	parse func(string) (string, error)
}

var _ pflag.Value = (*enumValue)(nil)

func newEnum(def string, allowed ...string) *enumValue {
	return &enumValue{value: def, allowed: allowed}
}

func (e *enumValue) String() string { return e.value }

func (e *enumValue) Type() string { return strings.Join(e.allowed, "|") }

func (e *enumValue) Set(s string) error {
	if e.parse != nil {
		v, err := e.parse(s)
		if err != nil {
			return err
		}
		e.value = v
		return nil
	}
	for _, a := range e.allowed {
		if strings.EqualFold(s, a) {
			e.value = a
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(e.allowed, ", "))
}

func (e *enumValue) complete(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return e.allowed, cobra.ShellCompDirectiveNoFileComp
}

func targetFlag() *enumValue {
	var names []string
	for _, f := range platform.Families() {
		names = append(names, string(f))
	}
	e := newEnum("", names...)
	e.parse = func(s string) (string, error) {
		f, err := platform.ParseFamily(s)
		return string(f), err
	}
	return e
}

func policyFlag() *enumValue {
	var names []string
	for _, p := range repair.Policies() {
		names = append(names, string(p))
	}
	return newEnum("", names...)
}

func formatFlag() *enumValue {
	var names []string
	for _, f := range report.Formats() {
		names = append(names, string(f))
	}
	return newEnum(string(report.FormatText), names...)
}

// addEnum registers an enum flag with shell completion.
func addEnum(cmd *cobra.Command, e *enumValue, name, usage string) {
	cmd.Flags().Var(e, name, usage)
	_ = cmd.RegisterFlagCompletionFunc(name, e.complete)
}

// loadConfig reads the config file and env named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadConfig(config.LoadOptions{ConfigFile: configFile, EnvFile: envFile})
	if err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}

// applyOverrides copies explicitly set flags over cfg and validates the result.
func applyOverrides(flags *pflag.FlagSet, cfg *config.Config) error {
	if f := flags.Lookup("target"); f != nil && f.Changed {
		cfg.Target = f.Value.String()
	}
	if f := flags.Lookup("policy"); f != nil && f.Changed {
		cfg.Policy = f.Value.String()
	}
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("jobs") {
		cfg.Jobs, _ = flags.GetInt("jobs")
	}
	if flags.Changed("fetch-timeout") {
		var d time.Duration
		d, _ = flags.GetDuration("fetch-timeout")
		cfg.Fetch.Timeout = d
	}
	if flags.Changed("keep-unpacked") {
		cfg.Output.KeepUnpacked, _ = flags.GetBool("keep-unpacked")
	}
	if flags.Changed("placeholders") {
		cfg.Placeholder.Enabled, _ = flags.GetBool("placeholders")
	}
	if err := cfg.Validate(); err != nil {
		return &configError{err: err}
	}
	return nil
}
