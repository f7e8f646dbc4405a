package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ratepacer/ratepacer/internal/core/store"
	"github.com/ratepacer/ratepacer/internal/output"
)

var (
	pacerStateOutput      string
	pacerStateOut         string
	pacerStateOutDir      string
	pacerStateAll         bool
	pacerStateIntegration string
	pacerStatePrefix      string
)

var pacerStateCmd = &cobra.Command{
	Use:   "state",
	Short: "List persisted pacer state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.PacerQuery{
			All:         pacerStateAll,
			Integration: strings.TrimSpace(pacerStateIntegration),
			Prefix:      strings.TrimSpace(pacerStatePrefix),
		}
		if !query.All && query.Integration == "" && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListPacerStates(cmd.Context(), query)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("pacer.state.%s", ext))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatStates(entries)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	pacerStateCmd.Flags().StringVar(&pacerStateOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	pacerStateCmd.Flags().StringVar(&pacerStateOut, "out", "", "Write output to a file (default stdout)")
	pacerStateCmd.Flags().StringVar(&pacerStateOutDir, "out-dir", "", "Write output to a directory")
	pacerStateCmd.Flags().BoolVar(&pacerStateAll, "all", false, "List all integrations")
	pacerStateCmd.Flags().StringVar(&pacerStateIntegration, "integration", "", "List a single integration (exact match)")
	pacerStateCmd.Flags().StringVar(&pacerStatePrefix, "prefix", "", "List integrations with matching prefix")
}
