package outbox

import (
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
)

// Action is the kind of user intent.
type Action string

const (
	ActionSend   Action = "send"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// DurabilityState is the outcome of the out-of-band persistence call.
type DurabilityState string

const (
	DurabilityPending DurabilityState = "pending"
	DurabilitySkipped DurabilityState = "skipped"
	DurabilityOK      DurabilityState = "ok"
	DurabilityFailed  DurabilityState = "failed"
)

// Result is what happened to one action. Edits and deletes of confirmed
// messages are reported twice under the same ID: once when emitted, once
// when durability settles.
type Result struct {
	ID             string
	Action         Action
	ConversationID string
	MessageID      string
	Content        string
	Emitted        bool
	Durability     DurabilityState
	Err            error
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Final reports whether no further report will follow for this action.
func (r Result) Final() bool {
	return r.Durability != DurabilityPending
}

// ErrorText returns the error message or "".
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// BusReporter publishes results as outbound.result events.
type BusReporter struct {
	Bus *bus.Bus
}

// Report implements Reporter.
func (r BusReporter) Report(res Result) {
	r.Bus.Emit(bus.OutboundResult, res)
}
