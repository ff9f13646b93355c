package domain

import "time"

// AppealHistory is an immutable audit trail entry written with every transition.
type AppealHistory struct {
	ID         int64
	AppealID   int64
	Event      EventKind
	ActorID    *string
	FromStatus AppealStatus
	ToStatus   AppealStatus
	FromOwner  *string
	ToOwner    *string
	Note       string
	CreatedAt  time.Time
}

// CheckKind differentiates escalation checks.
type CheckKind string

const (
	// CheckOverdue escalates an appeal left untouched in in_progress.
	CheckOverdue CheckKind = "overdue"
	// CheckDelegateIdle alerts supervisors when a delegated appeal is never acted on.
	CheckDelegateIdle CheckKind = "delegate_idle"
)

// CheckState tracks scheduler progress of a check row.
type CheckState string

const (
	CheckStatePending CheckState = "pending"
	CheckStateDone    CheckState = "done"
	CheckStateFailed  CheckState = "failed"
)

// EscalationCheck is a durable one-shot deferred check.
type EscalationCheck struct {
	ID              string
	AppealID        int64
	Kind            CheckKind
	ExpectedOwner   string
	ExpectedVersion int64
	ArmedAt         time.Time
	DueAt           time.Time
	State           CheckState
	Attempts        int
	LastError       string
	LockedUntil     *time.Time
	CreatedAt       time.Time
	FinishedAt      *time.Time
}
