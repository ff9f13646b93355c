package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/config"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/events"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/notify"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
)

const (
	summaryPreviewLength = 200
	operatorFanOutLimit  = 1000
)

// NotificationService turns domain events into notifications for the
// messaging collaborator.
type NotificationService struct {
	dispatcher events.Dispatcher
	sink       notify.Sink
	gate       notify.AlertGate
	operators  repository.OperatorStore
	cfg        config.NotificationConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Sink       notify.Sink
	Gate       notify.AlertGate
	Operators  repository.OperatorStore
	Config     config.NotificationConfig
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		sink:       deps.Sink,
		gate:       deps.Gate,
		operators:  deps.Operators,
		cfg:        deps.Config,
		logger:     logger,
		now:        now,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAppealCreated, n.handleAppealCreated)
	n.dispatcher.Subscribe(events.EventAppealAssigned, n.handleAppealAssigned)
	n.dispatcher.Subscribe(events.EventAppealResponded, n.handleAppealResponded)
	n.dispatcher.Subscribe(events.EventAppealStatusChanged, n.handleAppealStatusChanged)
	n.dispatcher.Subscribe(events.EventAppealEscalated, n.handleAppealEscalated)
	n.dispatcher.Subscribe(events.EventAppealDelegationIdle, n.handleDelegationIdle)
}

func (n *NotificationService) handleAppealCreated(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.AppealCreatedPayload)
	recipients := channelRecipients(n.cfg.OperatorChannels)
	operators, err := n.operators.ListOperators(ctx, repository.OperatorFilter{Limit: operatorFanOutLimit})
	if err != nil {
		n.logger.Warn("list operators for fan-out", zap.Error(err))
	}
	for _, op := range operators {
		recipients = append(recipients, notify.Recipient{Kind: notify.RecipientOperator, ID: op.ID})
	}
	return n.send(ctx, event, notify.Notification{
		Summary: fmt.Sprintf("New appeal #%d for device %s (appeal %d for this device): %s",
			event.AppealID, event.Serial, payload.AppealCount, preview(payload.Description)),
		Recipients: recipients,
		Actions:    []notify.Action{{Name: notify.ActionTake, AppealID: event.AppealID}},
	})
}

func (n *NotificationService) handleAppealAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AssignedPayload)
	if !ok {
		return nil
	}
	recipients := []notify.Recipient{{Kind: notify.RecipientOperator, ID: payload.ToOperatorID}}
	summary := fmt.Sprintf("Appeal #%d for device %s is now yours", event.AppealID, event.Serial)
	if payload.FromOperatorID != nil {
		recipients = append(recipients, notify.Recipient{Kind: notify.RecipientOperator, ID: *payload.FromOperatorID})
		summary = fmt.Sprintf("Appeal #%d for device %s moved from %s to %s",
			event.AppealID, event.Serial, *payload.FromOperatorID, payload.ToOperatorID)
	}
	return n.send(ctx, event, notify.Notification{Summary: summary, Recipients: recipients})
}

func (n *NotificationService) handleAppealResponded(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.RespondedPayload)
	summary := fmt.Sprintf("Response to your appeal #%d: %s", event.AppealID, preview(payload.Text))
	if payload.Text == "" {
		summary = fmt.Sprintf("New attachments on your appeal #%d", event.AppealID)
	}
	return n.send(ctx, event, notify.Notification{
		Summary:    summary,
		Recipients: []notify.Recipient{{Kind: notify.RecipientRequester, ID: event.RequesterID}},
	})
}

func (n *NotificationService) handleAppealStatusChanged(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.StatusChangedPayload)
	var summary string
	switch payload.NewStatus {
	case domain.AppealStatusInProgress:
		summary = fmt.Sprintf("Your appeal #%d is being handled", event.AppealID)
	case domain.AppealStatusPostponed:
		summary = fmt.Sprintf("Your appeal #%d has been postponed", event.AppealID)
	case domain.AppealStatusAwaitingSpecialist:
		summary = fmt.Sprintf("Your appeal #%d was passed to a specialist", event.AppealID)
	case domain.AppealStatusReplacement:
		summary = fmt.Sprintf("Device %s from appeal #%d is being replaced", event.Serial, event.AppealID)
	case domain.AppealStatusProcessed:
		summary = fmt.Sprintf("Your appeal #%d has been resolved", event.AppealID)
	case domain.AppealStatusClosed:
		summary = fmt.Sprintf("Your appeal #%d has been closed", event.AppealID)
	default:
		return nil
	}
	if payload.Note != "" {
		summary += ": " + preview(payload.Note)
	}
	return n.send(ctx, event, notify.Notification{
		Summary:    summary,
		Recipients: []notify.Recipient{{Kind: notify.RecipientRequester, ID: event.RequesterID}},
	})
}

func (n *NotificationService) handleAppealEscalated(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.EscalatedPayload)
	if !n.acquireAlert(ctx, event) {
		return nil
	}
	recipients := n.supervisorRecipients(ctx)
	if payload.OwnerID != "" {
		recipients = append(recipients, notify.Recipient{Kind: notify.RecipientOperator, ID: payload.OwnerID})
	}
	return n.send(ctx, event, notify.Notification{
		Summary: fmt.Sprintf("Appeal #%d for device %s is overdue; owner %s has been inactive since %s",
			event.AppealID, event.Serial, payload.OwnerID, payload.LastActivityAt.Format(time.RFC3339)),
		Recipients: recipients,
		Actions:    []notify.Action{{Name: notify.ActionTake, AppealID: event.AppealID}},
	})
}

func (n *NotificationService) handleDelegationIdle(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.DelegationIdlePayload)
	if !n.acquireAlert(ctx, event) {
		return nil
	}
	return n.send(ctx, event, notify.Notification{
		Summary: fmt.Sprintf("Delegated appeal #%d is still %s with %s since the handover at %s",
			event.AppealID, event.Status, payload.OwnerID, payload.DelegatedAt.Format(time.RFC3339)),
		Recipients: n.supervisorRecipients(ctx),
		Actions:    []notify.Action{{Name: notify.ActionTake, AppealID: event.AppealID}},
	})
}

// acquireAlert deduplicates supervisor alerts per appeal version. A gate
// failure lets the alert through.
func (n *NotificationService) acquireAlert(ctx context.Context, event events.Event) bool {
	if n.gate == nil {
		return true
	}
	ok, err := n.gate.TryAcquire(ctx, notify.AlertKey(string(event.Type), event.AppealID, event.Version), n.cfg.AlertCooldown)
	if err != nil {
		n.logger.Warn("alert deduplication unavailable", zap.Int64("appeal_id", event.AppealID), zap.Error(err))
		return true
	}
	if !ok {
		n.logger.Debug("supervisor alert suppressed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("appeal_id", event.AppealID))
	}
	return ok
}

func (n *NotificationService) supervisorRecipients(ctx context.Context) []notify.Recipient {
	recipients := []notify.Recipient{}
	for _, id := range n.cfg.SupervisorChannels {
		recipients = append(recipients, notify.Recipient{Kind: notify.RecipientChannel, ID: id})
	}
	privileged := true
	supervisors, err := n.operators.ListOperators(ctx, repository.OperatorFilter{Privileged: &privileged, Limit: operatorFanOutLimit})
	if err != nil {
		n.logger.Warn("list supervisors", zap.Error(err))
	}
	for _, op := range supervisors {
		recipients = append(recipients, notify.Recipient{Kind: notify.RecipientSupervisor, ID: op.ID})
	}
	return recipients
}

func (n *NotificationService) send(ctx context.Context, event events.Event, msg notify.Notification) error {
	if n.sink == nil || len(msg.Recipients) == 0 {
		return nil
	}
	msg.ID = uuid.NewString()
	msg.Type = string(event.Type)
	msg.AppealID = event.AppealID
	msg.Status = event.Status
	msg.CreatedAt = n.now()
	if err := n.sink.Send(ctx, msg); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("event_type", msg.Type),
			zap.Int64("appeal_id", msg.AppealID),
			zap.Error(err))
		return err
	}
	return nil
}

func channelRecipients(ids []string) []notify.Recipient {
	out := make([]notify.Recipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, notify.Recipient{Kind: notify.RecipientChannel, ID: id})
	}
	return out
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= summaryPreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:summaryPreviewLength]) + "..."
}
