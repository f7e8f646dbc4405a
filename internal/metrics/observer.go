package metrics

import (
	"github.com/ratepacer/ratepacer/internal/core"
)

// GuardObserver returns a request event handler that publishes metrics for
// each guarded request. breakerState, when non-nil, supplies the circuit
// state gauge value.
func GuardObserver(breakerState func() core.BreakerState) func(core.RequestEvent) {
	return func(event core.RequestEvent) {
		failed := event.StatusCode >= 500 ||
			(event.Error != "" && event.ErrorKind != core.ErrorKindCancelled)

		switch event.ErrorKind {
		case core.ErrorKindCircuitOpen:
			RecordBreakerDenial(event.Integration)
		case core.ErrorKindRetriesExhausted:
			RecordRetriesExhausted(event.Integration)
		}

		RecordOutboundRequest(event.Integration, event.StatusCode, event.Elapsed, failed)
		SetPacerSnapshot(event.Integration, event.Snapshot, event.CompletedAt)
		if breakerState != nil {
			SetBreakerState(event.Integration, breakerState())
		}
	}
}
