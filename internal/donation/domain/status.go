package domain

import "strings"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

func ParseStatus(value string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return s, true
	default:
		return "", false
	}
}

func (s Status) String() string { return string(s) }

// IsFinal reports whether no further event can move the donation forward
// except a refund of a completed payment.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

type Decision int

const (
	// DecisionNoop means the donation already reflects the target or is ahead of it.
	DecisionNoop Decision = iota
	DecisionApply
	// DecisionReject means the move is illegal; nothing is written.
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionApply:
		return "apply"
	case DecisionReject:
		return "reject"
	default:
		return "noop"
	}
}

// Decide is the donation lifecycle:
//
//	pending   -> completed | failed
//	completed -> refunded
//
// Events that arrive after the donation has moved past them (a retried success,
// a failure delivered after the success, a success delivered after the refund)
// are no-ops. Everything else is rejected.
func Decide(current, target Status) Decision {
	if current == target {
		return DecisionNoop
	}

	switch current {
	case StatusPending:
		switch target {
		case StatusCompleted, StatusFailed:
			return DecisionApply
		}
	case StatusCompleted:
		switch target {
		case StatusRefunded:
			return DecisionApply
		case StatusFailed:
			return DecisionNoop
		}
	case StatusRefunded:
		switch target {
		case StatusCompleted, StatusFailed:
			return DecisionNoop
		}
	}
	return DecisionReject
}
