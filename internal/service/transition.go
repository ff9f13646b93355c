package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/escalation"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/events"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/observability"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
)

// Dependencies bundles collaborators shared by the appeal services.
type Dependencies struct {
	Store      repository.Store
	Planner    *escalation.Planner
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// transitioner runs state machine events through the store and publishes
// events for what was committed.
type transitioner struct {
	store      repository.Store
	planner    *escalation.Planner
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func newTransitioner(deps Dependencies) *transitioner {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &transitioner{
		store:      deps.Store,
		planner:    deps.Planner,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
	}
}

// guardFunc may veto a transition after the row is locked.
type guardFunc func(current *domain.Appeal) error

func (t *transitioner) apply(ctx context.Context, appealID int64, ev domain.Event) (*domain.Appeal, error) {
	out, err := t.applyGuarded(ctx, appealID, ev, nil)
	if err != nil {
		return nil, err
	}
	return &out.Appeal, nil
}

func (t *transitioner) applyGuarded(ctx context.Context, appealID int64, ev domain.Event, guard guardFunc) (*domain.Outcome, error) {
	if ev.At.IsZero() {
		ev.At = t.now()
	}
	out, err := t.store.ApplyTransition(ctx, appealID, func(ctx context.Context, current *domain.Appeal, lookup domain.Lookup) (*domain.Outcome, error) {
		if guard != nil {
			if err := guard(current); err != nil {
				return nil, err
			}
		}
		out, err := domain.Apply(ctx, current, ev, lookup)
		if err != nil {
			return nil, err
		}
		if t.planner != nil {
			t.planner.Plan(out, ev.At)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	t.metrics.RecordTransition(string(ev.Kind), string(out.From), string(out.Appeal.Status))
	t.logger.Info("appeal transition",
		zap.Int64("appeal_id", appealID),
		zap.String("event", string(ev.Kind)),
		zap.String("from", string(out.From)),
		zap.String("to", string(out.Appeal.Status)),
		zap.String("owner", out.Appeal.Owner()),
		zap.Int64("version", out.Appeal.Version),
		zap.Int("checks_armed", len(out.Checks)))

	t.publishOutcome(ctx, ev, out)
	return out, nil
}

func (t *transitioner) publishOutcome(ctx context.Context, ev domain.Event, out *domain.Outcome) {
	appeal := &out.Appeal
	if ev.Kind == domain.EventEscalate {
		t.publish(ctx, events.NewAppealEvent(events.EventAppealEscalated, appeal, ev.Actor, ev.At, events.EscalatedPayload{
			OwnerID:        appeal.Owner(),
			LastActivityAt: appeal.LastActivityAt,
		}))
		return
	}

	for _, entry := range out.History {
		if entry.ToOwner == nil || (entry.FromOwner != nil && *entry.FromOwner == *entry.ToOwner) {
			continue
		}
		t.publish(ctx, events.NewAppealEvent(events.EventAppealAssigned, appeal, ev.Actor, ev.At, events.AssignedPayload{
			Event:          ev.Kind,
			FromOperatorID: entry.FromOwner,
			ToOperatorID:   *entry.ToOwner,
		}))
	}
	for _, response := range out.Responses {
		t.publish(ctx, events.NewAppealEvent(events.EventAppealResponded, appeal, ev.Actor, ev.At, events.RespondedPayload{
			OperatorID: response.OperatorID,
			Text:       response.Text,
			Media:      response.Media,
		}))
	}
	if out.From != appeal.Status {
		t.publish(ctx, events.NewAppealEvent(events.EventAppealStatusChanged, appeal, ev.Actor, ev.At, events.StatusChangedPayload{
			Event:      ev.Kind,
			OldStatus:  out.From,
			NewStatus:  appeal.Status,
			ResolvedBy: appeal.ResolvedBy,
			Note:       ev.Text,
		}))
	}
}

// publish runs after commit; handler failures are logged by the dispatcher and
// never undo the transition.
func (t *transitioner) publish(ctx context.Context, event events.Event) {
	if t.dispatcher == nil {
		return
	}
	_ = t.dispatcher.Publish(ctx, event)
}
