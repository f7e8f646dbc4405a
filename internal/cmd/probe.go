package cmd

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/core/pacer"
	"github.com/ratepacer/ratepacer/internal/core/registry"
	"github.com/ratepacer/ratepacer/internal/core/transport"
)

var (
	probeMethod   string
	probeHeaders  []string
	probeBody     string
	probeTenant   string
	probeTimeout  time.Duration
	probeCount    int
	probeRecord   bool
	probeShowBody bool
)

var probeCmd = &cobra.Command{
	Use:   "probe <integration> <path>",
	Short: "Send one guarded request against an integration",
	Long: `Send a single request through the full admission path: token bucket,
retry loop, and circuit breaker. Useful for verifying credentials and
observing how an integration responds to the configured pacing.

With --record the resulting request event and pacer state are written
to the local store, where "pacer state" and "pacer events" can inspect
them.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		integration := strings.TrimSpace(args[0])
		path := args[1]

		reg, err := registry.LoadMerged(viper.GetString("pacer.overrides_path"))
		if err != nil {
			return err
		}
		cfg, err := reg.Get(integration)
		if err != nil {
			return err
		}

		header := http.Header{}
		for _, raw := range probeHeaders {
			key, value, found := strings.Cut(raw, ":")
			if !found || strings.TrimSpace(key) == "" {
				return fmt.Errorf("invalid header %q (expected \"Key: Value\")", raw)
			}
			header.Add(strings.TrimSpace(key), strings.TrimSpace(value))
		}

		tenant := strings.TrimSpace(probeTenant)
		if tenant == "" {
			tenant = viper.GetString("pacer.tenant_id")
		}

		timeout := probeTimeout
		if timeout == 0 {
			timeout = viper.GetDuration("pacer.request_timeout")
		}

		logger := zap.NewNop()
		if verbose {
			if dev, err := zap.NewDevelopment(); err == nil {
				logger = dev
			}
		}

		opts := transport.ClientOptions{
			TenantID:  tenant,
			UserAgent: fmt.Sprintf("%s/%s", appIdentity.BinaryName, versionInfo.Version),
			Logger:    logger,
		}

		record := probeRecord
		if !cmd.Flags().Changed("record") {
			record = viper.GetBool("pacer.persist_state")
		}

		var guard *pacer.Guard
		if record {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close() // nolint:errcheck // best-effort cleanup

			recorder := db.EventRecorder(logger, func() core.BreakerState {
				if guard == nil {
					return core.BreakerClosed
				}
				return guard.BreakerState()
			})
			opts.Handlers = append(opts.Handlers, recorder)
		}

		guard, err = transport.NewClient(cfg, opts)
		if err != nil {
			return err
		}

		var body []byte
		if probeBody != "" {
			body = []byte(probeBody)
		}

		if probeCount < 1 {
			probeCount = 1
		}

		req := pacer.Request{
			Method:  strings.ToUpper(strings.TrimSpace(probeMethod)),
			Path:    path,
			Header:  header,
			Body:    body,
			Timeout: timeout,
		}

		var (
			resp     *pacer.Response
			reqErr   error
			statuses []string
		)
		for i := 0; i < probeCount; i++ {
			resp, reqErr = guard.Do(cmd.Context(), req)
			if reqErr != nil {
				break
			}
			statuses = append(statuses, fmt.Sprintf("%d", resp.StatusCode))
		}

		snapshot := guard.Snapshot()
		lines := []string{
			fmt.Sprintf("Probe: %s %s %s", integration, req.Method, path),
			"",
			fmt.Sprintf("Requests: %d/%d", len(statuses), probeCount),
		}
		if len(statuses) > 0 {
			lines = append(lines, "Statuses: "+strings.Join(statuses, " "))
		}
		if reqErr != nil {
			lines = append(lines, fmt.Sprintf("Error: %v", reqErr))
		}
		lines = append(lines,
			fmt.Sprintf("Rate: %.2f rps", snapshot.CurrentRate),
			fmt.Sprintf("Tokens: %.2f", snapshot.Tokens),
			fmt.Sprintf("Breaker: %s", guard.BreakerState()),
		)
		if snapshot.InCooldown(time.Now()) {
			lines = append(lines, fmt.Sprintf("Cooldown until: %s", snapshot.CooldownUntil.UTC().Format(time.RFC3339)))
		}

		fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		fmt.Fprintln(cmd.OutOrStdout())

		if probeShowBody && reqErr == nil && resp != nil && len(resp.Body) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))
		}

		return reqErr
	},
}

func init() {
	probeCmd.Flags().StringVarP(&probeMethod, "method", "X", http.MethodGet, "HTTP method")
	probeCmd.Flags().StringArrayVarP(&probeHeaders, "header", "H", nil, "Request header (repeatable, \"Key: Value\")")
	probeCmd.Flags().StringVar(&probeBody, "body", "", "Request body")
	probeCmd.Flags().StringVar(&probeTenant, "tenant", "", "Tenant identifier (defaults to pacer.tenant_id)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 0, "Per-request timeout (defaults to pacer.request_timeout)")
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 1, "Number of guarded requests to send")
	probeCmd.Flags().BoolVar(&probeRecord, "record", false, "Persist the request event and pacer state (defaults to pacer.persist_state)")
	probeCmd.Flags().BoolVar(&probeShowBody, "show-body", false, "Print the response body")
	rootCmd.AddCommand(probeCmd)
}
