package output

import (
	"encoding/json"

	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/core/store"
)

// JSONFormatter renders listings as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatIntegrations renders the configured integrations as JSON.
func (f *JSONFormatter) FormatIntegrations(configs []core.RateConfig) (string, error) {
	return f.marshal(configs)
}

// FormatStates renders persisted pacer state entries as JSON.
func (f *JSONFormatter) FormatStates(entries []store.PacerEntry) (string, error) {
	rows := make([]stateRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, stateRow{
			Integration: entry.Integration,
			TenantID:    entry.TenantID,
			State:       entry.State,
		})
	}
	return f.marshal(rows)
}

// FormatEvents renders recent request events as JSON.
func (f *JSONFormatter) FormatEvents(events []core.RequestEvent) (string, error) {
	return f.marshal(events)
}

type stateRow struct {
	Integration string          `json:"integration"`
	TenantID    string          `json:"tenant_id,omitempty"`
	State       core.PacerState `json:"state"`
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
