package dto

import (
	"time"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

// SubmitAppealRequest is posted by the conversational front-end.
type SubmitAppealRequest struct {
	Serial      string   `json:"serial"`
	RequesterID string   `json:"requester_id"`
	Description string   `json:"description"`
	Media       []string `json:"media"`
}

// SubmitAppealResponse returns the new appeal id and the device's appeal count.
type SubmitAppealResponse struct {
	AppealID    int64 `json:"appeal_id"`
	AppealCount int   `json:"appeal_count"`
}

// RespondRequest carries an operator response.
type RespondRequest struct {
	Text  string   `json:"text"`
	Media []string `json:"media"`
}

// IntakeRespondRequest relays a response typed by an operator in the chat
// front-end. OperatorID names the operator the response is recorded for.
type IntakeRespondRequest struct {
	OperatorID string   `json:"operator_id"`
	Text       string   `json:"text"`
	Media      []string `json:"media"`
}

// NoteRequest carries an optional free-form note.
type NoteRequest struct {
	Note string `json:"note"`
}

// DelegateRequest names the operator receiving the appeal.
type DelegateRequest struct {
	OperatorID string `json:"operator_id"`
	Note       string `json:"note"`
}

// MarkReplacementRequest optionally overrides the returned device serial.
type MarkReplacementRequest struct {
	Serial string `json:"serial"`
	Note   string `json:"note"`
}

// CompleteReplacementRequest names the replacement device.
type CompleteReplacementRequest struct {
	Serial string   `json:"serial"`
	Text   string   `json:"text"`
	Media  []string `json:"media"`
}

// AppealSummary response.
type AppealSummary struct {
	ID             int64               `json:"id"`
	Serial         string              `json:"serial"`
	RequesterID    string              `json:"requester_id"`
	Status         domain.AppealStatus `json:"status"`
	OwnerID        *string             `json:"owner_id"`
	CreatedAt      time.Time           `json:"created_at"`
	LastActivityAt time.Time           `json:"last_activity_at"`
	ClosedAt       *time.Time          `json:"closed_at"`
	Version        int64               `json:"version"`
}

// AppealDetailResponse provides full appeal info.
type AppealDetailResponse struct {
	ID                int64               `json:"id"`
	Serial            string              `json:"serial"`
	RequesterID       string              `json:"requester_id"`
	Description       string              `json:"description"`
	Media             []string            `json:"media"`
	Status            domain.AppealStatus `json:"status"`
	OwnerID           *string             `json:"owner_id"`
	ResolvedBy        *string             `json:"resolved_by"`
	CreatedAt         time.Time           `json:"created_at"`
	ClaimedAt         *time.Time          `json:"claimed_at"`
	ClosedAt          *time.Time          `json:"closed_at"`
	LastActivityAt    time.Time           `json:"last_activity_at"`
	Response          string              `json:"response"`
	ReplacementOrigin *string             `json:"replacement_origin"`
	ReplacementTarget *string             `json:"replacement_target"`
	Version           int64               `json:"version"`
	History           []HistoryResponse   `json:"history,omitempty"`
	Responses         []ResponseEntry     `json:"responses,omitempty"`
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ID         int64               `json:"id"`
	Event      domain.EventKind    `json:"event"`
	ActorID    *string             `json:"actor_id"`
	FromStatus domain.AppealStatus `json:"from_status"`
	ToStatus   domain.AppealStatus `json:"to_status"`
	FromOwner  *string             `json:"from_owner"`
	ToOwner    *string             `json:"to_owner"`
	Note       string              `json:"note,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// ResponseEntry is one operator response.
type ResponseEntry struct {
	ID         int64     `json:"id"`
	OperatorID string    `json:"operator_id"`
	Text       string    `json:"text"`
	Media      []string  `json:"media"`
	CreatedAt  time.Time `json:"created_at"`
}
