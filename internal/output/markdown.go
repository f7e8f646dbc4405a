package output

import (
	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/core/store"
)

// MarkdownFormatter renders listings as Markdown tables.
type MarkdownFormatter struct{}

// FormatIntegrations renders the configured integrations as Markdown.
func (f *MarkdownFormatter) FormatIntegrations(configs []core.RateConfig) (string, error) {
	tf := &TableFormatter{}
	t := tf.integrationsTable(configs)
	return t.RenderMarkdown(), nil
}

// FormatStates renders persisted pacer state entries as Markdown.
func (f *MarkdownFormatter) FormatStates(entries []store.PacerEntry) (string, error) {
	tf := &TableFormatter{}
	t := tf.statesTable(entries)
	return t.RenderMarkdown(), nil
}

// FormatEvents renders recent request events as Markdown.
func (f *MarkdownFormatter) FormatEvents(events []core.RequestEvent) (string, error) {
	tf := &TableFormatter{}
	t := tf.eventsTable(events)
	return t.RenderMarkdown(), nil
}
