package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ratepacer/ratepacer/internal/output"
)

var (
	pacerEventsOutput      string
	pacerEventsOut         string
	pacerEventsOutDir      string
	pacerEventsIntegration string
	pacerEventsLimit       int
)

var pacerEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent request events for an integration",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}

		integration := strings.TrimSpace(pacerEventsIntegration)
		if integration == "" {
			return errors.New("--integration is required")
		}
		if pacerEventsLimit < 0 {
			return errors.New("--limit must be a non-negative integer")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		events, err := db.RecentRequestEvents(cmd.Context(), integration, pacerEventsLimit)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("pacer.events.%s.%s", sanitizeFilename(integration), ext))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatEvents(events)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	pacerEventsCmd.Flags().StringVar(&pacerEventsOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	pacerEventsCmd.Flags().StringVar(&pacerEventsOut, "out", "", "Write output to a file (default stdout)")
	pacerEventsCmd.Flags().StringVar(&pacerEventsOutDir, "out-dir", "", "Write output to a directory")
	pacerEventsCmd.Flags().StringVar(&pacerEventsIntegration, "integration", "", "Integration name (required)")
	pacerEventsCmd.Flags().IntVar(&pacerEventsLimit, "limit", 0, "Maximum events to return (0 uses the default)")
}
