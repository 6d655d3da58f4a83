package domain

// Status is the canonical payment status shared by every provider.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// AllStatuses lists every canonical status.
var AllStatuses = []Status{
	StatusPending,
	StatusCompleted,
	StatusFailed,
	StatusRefunded,
	StatusCancelled,
	StatusExpired,
}

// IsValid reports whether s is a canonical status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal returns true if no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// CanTransitionTo returns true if s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s in one step.
func (s Status) AllowedTransitions() []Status {
	allowed := transitions[s]
	result := make([]Status, len(allowed))
	copy(result, allowed)
	return result
}

func (s Status) String() string {
	return string(s)
}

// transitions is the payment state machine. Payments start implicitly in pending.
var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed, StatusCancelled, StatusExpired},
	StatusCompleted: {StatusRefunded},
	StatusFailed:    {},
	StatusRefunded:  {},
	StatusCancelled: {},
	StatusExpired:   {},
}
