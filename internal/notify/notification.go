package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

// RecipientKind classifies who a notification is addressed to.
type RecipientKind string

const (
	RecipientOperator   RecipientKind = "operator"
	RecipientSupervisor RecipientKind = "supervisor"
	RecipientRequester  RecipientKind = "requester"
	RecipientChannel    RecipientKind = "channel"
)

// Recipient is one addressee of a notification.
type Recipient struct {
	Kind RecipientKind `json:"kind"`
	ID   string        `json:"id"`
}

// ActionTake is the quick action that claims the appeal in one step.
const ActionTake = "take"

// Action is an affordance the messaging collaborator renders next to the text.
type Action struct {
	Name     string `json:"name"`
	AppealID int64  `json:"appeal_id"`
}

// Notification is the event stream record consumed by the messaging collaborator.
type Notification struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	AppealID   int64               `json:"appeal_id"`
	Status     domain.AppealStatus `json:"status"`
	Summary    string              `json:"summary"`
	Recipients []Recipient         `json:"recipients"`
	Actions    []Action            `json:"actions,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Sink delivers notifications to a transport.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// MultiSink fans a notification out to every sink.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, n Notification) error {
	recipients := make([]string, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		recipients = append(recipients, string(r.Kind)+":"+r.ID)
	}
	s.logger.Info("notification",
		zap.String("type", n.Type),
		zap.Int64("appeal_id", n.AppealID),
		zap.String("status", n.Status.String()),
		zap.String("summary", n.Summary),
		zap.Strings("recipients", recipients),
		zap.Int("actions", len(n.Actions)))
	return nil
}
