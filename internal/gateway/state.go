package gateway

import "log/slog"

// state tracks a turn's progress through the pipeline. Transitions are
// strictly forward; Rejected and Failed are early terminals.
type state int

const (
	stateIdle state = iota
	stateRateChecked
	stateRouted
	stateRetrieved
	stateAssembled
	stateGenerated
	stateResponded
	stateRejected
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRateChecked:
		return "rate_checked"
	case stateRouted:
		return "routed"
	case stateRetrieved:
		return "retrieved"
	case stateAssembled:
		return "assembled"
	case stateGenerated:
		return "generated"
	case stateResponded:
		return "responded"
	case stateRejected:
		return "rejected"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// turn is the per-request trace of the state machine.
type turn struct {
	state    state
	identity string
	logger   *slog.Logger
}

func newTurn(logger *slog.Logger, identity string) *turn {
	return &turn{state: stateIdle, identity: identity, logger: logger}
}

func (t *turn) to(next state) {
	t.logger.Debug("turn transition",
		"identity", t.identity, "from", t.state, "to", next)
	t.state = next
}

func (t *turn) log(msg string, args ...any) {
	t.logger.Debug(msg, append([]any{"identity", t.identity, "state", t.state}, args...)...)
}
