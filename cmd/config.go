/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	format := newEnum("yaml", "yaml", "toml", "json")
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Config prints the configuration draftfix would run with after defaults, the
config file, the env file and DRAFTFIX_* variables are merged. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return &configError{err: err}
			}
			settings := cfg.Settings()

			var data []byte
			switch format.String() {
			case "toml":
				data, err = toml.Marshal(settings)
			case "json":
				data, err = json.MarshalIndent(settings, "", "  ")
				data = append(data, '\n')
			default:
				data, err = yaml.Marshal(settings)
			}
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	addEnum(cmd, format, "format", "Output format")
	return cmd
}
