package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAppealCreated        EventType = "appeal_created"
	EventAppealStatusChanged  EventType = "appeal_status_changed"
	EventAppealAssigned       EventType = "appeal_assigned"
	EventAppealResponded      EventType = "appeal_responded"
	EventAppealEscalated      EventType = "appeal_escalated"
	EventAppealDelegationIdle EventType = "appeal_delegation_idle"
)

// Actor identifies who caused the event. A nil OperatorID is the system.
type Actor struct {
	OperatorID *string `json:"operator_id,omitempty"`
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID          string              `json:"id"`
	Type        EventType           `json:"type"`
	AppealID    int64               `json:"appeal_id"`
	Serial      string              `json:"serial"`
	RequesterID string              `json:"requester_id"`
	Status      domain.AppealStatus `json:"status"`
	OwnerID     *string             `json:"owner_id,omitempty"`
	Version     int64               `json:"version"`
	Actor       Actor               `json:"actor"`
	Timestamp   time.Time           `json:"timestamp"`
	Payload     any                 `json:"payload,omitempty"`
}

// NewAppealEvent snapshots the appeal into an event envelope.
func NewAppealEvent(eventType EventType, appeal *domain.Appeal, actor domain.Actor, at time.Time, payload any) Event {
	ev := Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AppealID:    appeal.ID,
		Serial:      appeal.Serial,
		RequesterID: appeal.RequesterID,
		Status:      appeal.Status,
		OwnerID:     appeal.OwnerID,
		Version:     appeal.Version,
		Timestamp:   at,
		Payload:     payload,
	}
	if !actor.IsSystem() {
		id := actor.OperatorID
		ev.Actor.OperatorID = &id
	}
	return ev
}

// AppealCreatedPayload payload.
type AppealCreatedPayload struct {
	Description string   `json:"description"`
	Media       []string `json:"media,omitempty"`
	AppealCount int      `json:"appeal_count"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	Event      domain.EventKind    `json:"event"`
	OldStatus  domain.AppealStatus `json:"old_status"`
	NewStatus  domain.AppealStatus `json:"new_status"`
	ResolvedBy *string             `json:"resolved_by,omitempty"`
	Note       string              `json:"note,omitempty"`
}

// AssignedPayload payload. FromOperatorID is nil for a first claim.
type AssignedPayload struct {
	Event          domain.EventKind `json:"event"`
	FromOperatorID *string          `json:"from_operator_id,omitempty"`
	ToOperatorID   string           `json:"to_operator_id"`
}

// RespondedPayload payload.
type RespondedPayload struct {
	OperatorID string   `json:"operator_id"`
	Text       string   `json:"text"`
	Media      []string `json:"media,omitempty"`
}

// EscalatedPayload payload.
type EscalatedPayload struct {
	OwnerID        string    `json:"owner_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// DelegationIdlePayload payload.
type DelegationIdlePayload struct {
	OwnerID        string    `json:"owner_id"`
	DelegatedAt    time.Time `json:"delegated_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}
