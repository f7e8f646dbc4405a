package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/core/store"
)

// TableFormatter renders listings as ASCII tables.
type TableFormatter struct{}

// FormatIntegrations renders the configured integrations as a table.
func (f *TableFormatter) FormatIntegrations(configs []core.RateConfig) (string, error) {
	return f.integrationsTable(configs).Render(), nil
}

// FormatStates renders persisted pacer state entries as a table.
func (f *TableFormatter) FormatStates(entries []store.PacerEntry) (string, error) {
	return f.statesTable(entries).Render(), nil
}

// FormatEvents renders recent request events as a table.
func (f *TableFormatter) FormatEvents(events []core.RequestEvent) (string, error) {
	return f.eventsTable(events).Render(), nil
}

func (f *TableFormatter) integrationsTable(configs []core.RateConfig) table.Writer {
	t := newTable()
	t.AppendHeader(table.Row{"Name", "Base URL", "Initial", "Min", "Max", "Documented Limit"})

	for _, cfg := range configs {
		t.AppendRow(table.Row{
			cfg.Name,
			cfg.BaseURL,
			formatRate(cfg.InitialRate),
			formatRate(cfg.MinRate),
			formatRate(cfg.MaxRate),
			truncate(cfg.DocumentedLimitDesc, 60),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d integration(s)", len(configs))})
	return t
}

func (f *TableFormatter) statesTable(entries []store.PacerEntry) table.Writer {
	t := newTable()
	t.AppendHeader(table.Row{"Integration", "Tenant", "Rate", "Tokens", "Cooldown Until", "Breaker", "Failures", "Updated"})

	for _, entry := range entries {
		t.AppendRow(table.Row{
			entry.Integration,
			orDash(entry.TenantID),
			formatRate(entry.State.CurrentRate),
			fmt.Sprintf("%.2f", entry.State.Tokens),
			formatOptionalTime(entry.State.CooldownUntil),
			string(entry.State.BreakerState),
			entry.State.FailureCount,
			entry.State.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "", "", "", fmt.Sprintf("%d entr(ies)", len(entries))})
	return t
}

func (f *TableFormatter) eventsTable(events []core.RequestEvent) table.Writer {
	t := newTable()
	t.AppendHeader(table.Row{"Completed", "Method", "Path", "Status", "Elapsed", "Rate", "Error"})

	for _, event := range events {
		status := "-"
		if event.StatusCode != 0 {
			status = fmt.Sprintf("%d", event.StatusCode)
		}
		errText := orDash(event.Error)
		if event.ErrorKind != "" {
			errText = fmt.Sprintf("[%s] %s", event.ErrorKind, truncate(event.Error, 40))
		}
		t.AppendRow(table.Row{
			event.CompletedAt.UTC().Format(time.RFC3339),
			event.Method,
			event.Path,
			status,
			event.Elapsed.Round(time.Millisecond).String(),
			formatRate(event.Snapshot.CurrentRate),
			errText,
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d event(s)", len(events))})
	return t
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.2f rps", rate)
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.UTC().Format(time.RFC3339)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
