package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ratepacer/ratepacer/internal/core/registry"
	"github.com/ratepacer/ratepacer/internal/output"
)

var (
	integrationsOutput string
	integrationsOut    string
	integrationsOutDir string
)

var integrationsCmd = &cobra.Command{
	Use:   "integrations",
	Short: "List configured integrations and their rate settings",
	Long: `List the integrations this instance knows how to pace.

Built-in profiles are merged with the overrides file named by
pacer.overrides_path, overrides winning per integration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}

		reg, err := registry.LoadMerged(viper.GetString("pacer.overrides_path"))
		if err != nil {
			return err
		}

		ext := outputExtension(format)
		if outDir != "" {
			var err error
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("integrations.%s", ext))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatIntegrations(reg.List())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	integrationsCmd.Flags().StringVar(&integrationsOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	integrationsCmd.Flags().StringVar(&integrationsOut, "out", "", "Write output to a file (default stdout)")
	integrationsCmd.Flags().StringVar(&integrationsOutDir, "out-dir", "", "Write output to a directory")
	rootCmd.AddCommand(integrationsCmd)
}
