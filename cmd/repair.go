/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/draftfix/internal/metrics"
	"github.com/fulmenhq/draftfix/internal/report"
	"github.com/fulmenhq/draftfix/pkg/config"
	"github.com/fulmenhq/draftfix/pkg/logger"
	"github.com/fulmenhq/draftfix/pkg/pipeline"
	"github.com/fulmenhq/draftfix/pkg/repair"
)

func newRepairCommand() *cobra.Command {
	target, policy, format := targetFlag(), policyFlag(), formatFlag()
	cmd := &cobra.Command{
		Use:   "repair <locator>...",
		Short: "Diagnose and repair draft bundles",
		Long: `Repair unpacks each bundle, diagnoses it, applies the repair plan allowed by
the policy and writes <out>/<id>_fixed.zip.

A locator is a local path, a file:// URL, an http(s) URL or, when an S3
endpoint is configured, an s3://bucket/key URL.

Policies:
   patch     fix everything, downloading missing media (default)
   offline   local fixes only, nothing is downloaded
   diagnose  report only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id != "" && len(args) > 1 {
				return &configError{err: errors.New("--id applies to a single locator")}
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyOverrides(cmd.Flags(), cfg); err != nil {
				return err
			}
			reqs := make([]pipeline.Request, 0, len(args))
			for _, locator := range args {
				reqs = append(reqs, pipeline.Request{Source: locator, FallbackID: id})
			}
			metricsFile, _ := cmd.Flags().GetString("metrics-file")
			return runBundles(cmd, cfg, reqs, report.OutputFormat(format.String()), metricsFile)
		},
	}

	addEnum(cmd, target, "target", "Target platform (default from config: windows)")
	addEnum(cmd, policy, "policy", "Repair policy (default from config: patch)")
	addEnum(cmd, format, "format", "Report format")
	cmd.Flags().String("id", "", "Bundle id for flat archives (single locator only)")
	cmd.Flags().StringP("out", "o", "", "Output directory (default from config: fixed_drafts)")
	cmd.Flags().Int("concurrency", 0, "Parallel asset fetches per bundle")
	cmd.Flags().Int("jobs", 0, "Bundles processed in parallel")
	cmd.Flags().Duration("fetch-timeout", 0, "Timeout for each asset fetch")
	cmd.Flags().Bool("keep-unpacked", false, "Also keep the repaired tree at <out>/<id>")
	cmd.Flags().Bool("placeholders", false, "Synthesize media with ffmpeg for assets that have no remote copy")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile")
	return cmd
}

// runBundles runs reqs through a fresh engine and prints the report.
func runBundles(cmd *cobra.Command, cfg *config.Config, reqs []pipeline.Request, format report.OutputFormat, metricsFile string) error {
	opts := []pipeline.Option{pipeline.WithLogger(logger.Default())}
	var prom *metrics.Prom
	if metricsFile != "" {
		prom = metrics.NewProm()
		opts = append(opts, pipeline.WithObserver(prom))
	}
	eng, err := pipeline.New(cfg, opts...)
	if err != nil {
		return &configError{err: err}
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to remove fetch cache", logger.Err(err))
		}
	}()

	logger.Debug("starting", logger.Int("bundles", len(reqs)), logger.String("policy", cfg.Policy), logger.String("target", cfg.Target))
	items := eng.RunBatch(cmd.Context(), reqs, cfg.Jobs)

	noColor, _ := cmd.Flags().GetBool("no-color")
	out, err := report.NewFormatter(format, noColor).Format(items)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(cmd.OutOrStdout(), out); err != nil {
		return err
	}

	if prom != nil {
		if err := prom.WriteTextfile(metricsFile); err != nil {
			logger.Warn("failed to write metrics", logger.String("path", metricsFile), logger.Err(err))
		}
	}
	return batchError(items)
}

func newDiagnoseCommand() *cobra.Command {
	target, format := targetFlag(), formatFlag()
	cmd := &cobra.Command{
		Use:   "diagnose <locator>",
		Short: "Report the defects of a bundle without writing anything",
		Long: `Diagnose unpacks the bundle into a temporary directory, lists its findings
and removes it again. The exit status is 10 when findings exist.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Policy = string(repair.PolicyDiagnose)
			cfg.Output.KeepUnpacked = false
			if err := applyOverrides(cmd.Flags(), cfg); err != nil {
				return err
			}
			id, _ := cmd.Flags().GetString("id")
			reqs := []pipeline.Request{{Source: args[0], FallbackID: id}}
			return runBundles(cmd, cfg, reqs, report.OutputFormat(format.String()), "")
		},
	}
	addEnum(cmd, target, "target", "Target platform (default from config: windows)")
	addEnum(cmd, format, "format", "Report format")
	cmd.Flags().String("id", "", "Bundle id for flat archives")
	return cmd
}
