package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ratepacer/ratepacer/internal/core/store"
	"github.com/ratepacer/ratepacer/internal/output"
)

var (
	pacerResetAll         bool
	pacerResetIntegration string
	pacerResetPrefix      string
	pacerResetYes         bool
	pacerResetDryRun      bool
	pacerResetOutput      string
	pacerResetOut         string
	pacerResetOutDir      string
)

var pacerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset persisted pacer state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(pacerResetOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.PacerQuery{
			All:         pacerResetAll,
			Integration: strings.TrimSpace(pacerResetIntegration),
			Prefix:      strings.TrimSpace(pacerResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !pacerResetYes && !pacerResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountPacerStates(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(pacerResetOut)
		outDir := strings.TrimSpace(pacerResetOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}
		ext := outputExtension(format)
		if outDir != "" {
			var err error
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("pacer.reset.%s", ext))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if pacerResetDryRun {
			return writePacerResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetPacerStates(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writePacerResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writePacerResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := map[string]any{
		"matched": matched,
		"deleted": deleted,
		"dry_run": dryRun,
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d pacer state entr(ies)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d pacer state entr(ies)\n", deleted, matched)
	return err
}

func init() {
	pacerResetCmd.Flags().BoolVar(&pacerResetAll, "all", false, "Reset all integrations")
	pacerResetCmd.Flags().StringVar(&pacerResetIntegration, "integration", "", "Reset a single integration (exact match)")
	pacerResetCmd.Flags().StringVar(&pacerResetPrefix, "prefix", "", "Reset integrations with matching prefix")
	pacerResetCmd.Flags().BoolVar(&pacerResetYes, "yes", false, "Confirm destructive reset")
	pacerResetCmd.Flags().BoolVar(&pacerResetDryRun, "dry-run", false, "Show what would be deleted")
	pacerResetCmd.Flags().StringVar(&pacerResetOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	pacerResetCmd.Flags().StringVar(&pacerResetOut, "out", "", "Write output to a file (default stdout)")
	pacerResetCmd.Flags().StringVar(&pacerResetOutDir, "out-dir", "", "Write output to a directory")
}
