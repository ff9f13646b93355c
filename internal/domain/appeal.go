package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AppealStatus enumerates lifecycle states for appeals.
type AppealStatus string

const (
	AppealStatusNew                AppealStatus = "new"
	AppealStatusInProgress         AppealStatus = "in_progress"
	AppealStatusPostponed          AppealStatus = "postponed"
	AppealStatusOverdue            AppealStatus = "overdue"
	AppealStatusAwaitingSpecialist AppealStatus = "awaiting_specialist"
	AppealStatusReplacement        AppealStatus = "replacement_process"
	AppealStatusProcessed          AppealStatus = "processed"
	AppealStatusClosed             AppealStatus = "closed"
)

var validAppealStatuses = map[AppealStatus]bool{
	AppealStatusNew:                true,
	AppealStatusInProgress:         true,
	AppealStatusPostponed:          true,
	AppealStatusOverdue:            true,
	AppealStatusAwaitingSpecialist: true,
	AppealStatusReplacement:        true,
	AppealStatusProcessed:          true,
	AppealStatusClosed:             true,
}

// OpenStatuses lists every status outside the closed/processed family.
var OpenStatuses = []AppealStatus{
	AppealStatusNew,
	AppealStatusInProgress,
	AppealStatusPostponed,
	AppealStatusOverdue,
	AppealStatusAwaitingSpecialist,
	AppealStatusReplacement,
}

func (s AppealStatus) String() string {
	return string(s)
}

func (s AppealStatus) IsValid() bool {
	return validAppealStatuses[s]
}

// IsOwned reports whether the status belongs to the "in progress" family,
// the only states in which an appeal has an owning operator.
func (s AppealStatus) IsOwned() bool {
	switch s {
	case AppealStatusInProgress, AppealStatusPostponed, AppealStatusOverdue,
		AppealStatusAwaitingSpecialist, AppealStatusReplacement:
		return true
	}
	return false
}

// AwaitsDelegate reports whether a delegated appeal in this status still
// waits on its delegate and is watched by the delegation idle check.
func (s AppealStatus) AwaitsDelegate() bool {
	switch s {
	case AppealStatusInProgress, AppealStatusPostponed, AppealStatusReplacement:
		return true
	}
	return false
}

func (s AppealStatus) IsTerminal() bool {
	return s == AppealStatusProcessed || s == AppealStatusClosed
}

// ParseAppealStatus validates a raw status string.
func ParseAppealStatus(raw string) (AppealStatus, error) {
	status := AppealStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid appeal status: %s", raw)
	}
	return status, nil
}

// Appeal is the support ticket filed against a device serial.
type Appeal struct {
	ID                int64
	Serial            string
	RequesterID       string
	Description       string
	Media             []string
	Status            AppealStatus
	OwnerID           *string
	ResolvedBy        *string
	CreatedAt         time.Time
	ClaimedAt         *time.Time
	ClosedAt          *time.Time
	LastActivityAt    time.Time
	Response          string
	ReplacementTarget *string
	ReplacementOrigin *string
	Version           int64
}

// NewAppeal carries the requester-supplied fields of a submission.
type NewAppeal struct {
	Serial      string
	RequesterID string
	Description string
	Media       []string
	At          time.Time
}

// ErrOwnershipInvariant marks an appeal whose owner does not match its status family.
var ErrOwnershipInvariant = errors.New("owner must be set exactly when status is in progress family")

// CheckOwnership enforces owner_id != nil <=> status in the owned family.
func (a *Appeal) CheckOwnership() error {
	if (a.OwnerID != nil) != a.Status.IsOwned() {
		return fmt.Errorf("appeal %d status %s: %w", a.ID, a.Status, ErrOwnershipInvariant)
	}
	return nil
}

// Owner returns the owning operator id or "".
func (a *Appeal) Owner() string {
	if a.OwnerID == nil {
		return ""
	}
	return *a.OwnerID
}

// OwnedBy reports whether operatorID currently owns the appeal.
func (a *Appeal) OwnedBy(operatorID string) bool {
	return a.OwnerID != nil && *a.OwnerID == operatorID
}

// Clone returns a deep copy so transitions never alias stored state.
func (a *Appeal) Clone() *Appeal {
	out := *a
	if a.Media != nil {
		out.Media = append([]string(nil), a.Media...)
	}
	out.OwnerID = cloneString(a.OwnerID)
	out.ResolvedBy = cloneString(a.ResolvedBy)
	out.ClaimedAt = cloneTime(a.ClaimedAt)
	out.ClosedAt = cloneTime(a.ClosedAt)
	out.ReplacementTarget = cloneString(a.ReplacementTarget)
	out.ReplacementOrigin = cloneString(a.ReplacementOrigin)
	return &out
}

// NormalizeDescription produces the key the duplicate guard compares on.
func NormalizeDescription(description string) string {
	return strings.ToLower(strings.Join(strings.Fields(description), " "))
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
