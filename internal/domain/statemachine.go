package domain

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

// EventKind enumerates the transition requests an appeal accepts.
type EventKind string

const (
	EventClaim               EventKind = "claim"
	EventRespond             EventKind = "respond"
	EventPostpone            EventKind = "postpone"
	EventDelegate            EventKind = "delegate"
	EventClose               EventKind = "close"
	EventEscalate            EventKind = "escalate"
	EventMarkReplacement     EventKind = "mark_replacement"
	EventCompleteReplacement EventKind = "complete_replacement"
	EventRequestSpecialist   EventKind = "request_specialist"
	EventReject              EventKind = "reject"
)

func (k EventKind) String() string {
	return string(k)
}

// transitionTable is the only generator of legal moves: event -> from -> to.
var transitionTable = map[EventKind]map[AppealStatus]AppealStatus{
	EventClaim: {
		AppealStatusNew:         AppealStatusInProgress,
		AppealStatusInProgress:  AppealStatusInProgress,
		AppealStatusPostponed:   AppealStatusInProgress,
		AppealStatusOverdue:     AppealStatusInProgress,
		AppealStatusReplacement: AppealStatusReplacement,
	},
	EventRespond: {
		AppealStatusInProgress: AppealStatusInProgress,
	},
	EventPostpone: {
		AppealStatusInProgress: AppealStatusPostponed,
		AppealStatusPostponed:  AppealStatusPostponed,
	},
	EventDelegate: {
		AppealStatusInProgress:         AppealStatusInProgress,
		AppealStatusPostponed:          AppealStatusInProgress,
		AppealStatusOverdue:            AppealStatusInProgress,
		AppealStatusReplacement:        AppealStatusReplacement,
		AppealStatusAwaitingSpecialist: AppealStatusAwaitingSpecialist,
	},
	EventClose: {
		AppealStatusInProgress: AppealStatusProcessed,
	},
	EventEscalate: {
		AppealStatusInProgress: AppealStatusOverdue,
	},
	EventMarkReplacement: {
		AppealStatusNew:        AppealStatusReplacement,
		AppealStatusInProgress: AppealStatusReplacement,
		AppealStatusPostponed:  AppealStatusReplacement,
		AppealStatusOverdue:    AppealStatusReplacement,
	},
	EventCompleteReplacement: {
		AppealStatusReplacement: AppealStatusProcessed,
	},
	EventRequestSpecialist: {
		AppealStatusInProgress: AppealStatusAwaitingSpecialist,
		AppealStatusPostponed:  AppealStatusAwaitingSpecialist,
		AppealStatusOverdue:    AppealStatusAwaitingSpecialist,
	},
	EventReject: {
		AppealStatusNew:        AppealStatusClosed,
		AppealStatusInProgress: AppealStatusClosed,
		AppealStatusPostponed:  AppealStatusClosed,
		AppealStatusOverdue:    AppealStatusClosed,
	},
}

// NextStatus looks up the table; ok is false for an illegal move.
func NextStatus(from AppealStatus, kind EventKind) (AppealStatus, bool) {
	to, ok := transitionTable[kind][from]
	return to, ok
}

// Actor identifies who requested a transition. The zero value is the system.
type Actor struct {
	OperatorID string
	Privileged bool
}

// SystemActor is used by the escalation scheduler.
func SystemActor() Actor {
	return Actor{}
}

func (a Actor) IsSystem() bool {
	return a.OperatorID == ""
}

// Event is a transition request validated against the current state.
type Event struct {
	Kind   EventKind
	Actor  Actor
	Target string
	Serial string
	Text   string
	Media  []string
	At     time.Time
}

// Lookup gives the state machine read access to the transaction it runs in.
type Lookup interface {
	DeviceExists(ctx context.Context, serial string) (bool, error)
	OperatorExists(ctx context.Context, id string) (bool, error)
}

// Outcome is everything a transition writes. The store persists it atomically.
type Outcome struct {
	Appeal        Appeal
	From          AppealStatus
	Event         EventKind
	CounterDeltas map[string]int
	Devices       []DeviceChange
	History       []AppealHistory
	Responses     []AppealResponse
	Checks        []EscalationCheck
}

// Apply validates ev against current and computes the resulting outcome.
// current is never modified.
func Apply(ctx context.Context, current *Appeal, ev Event, lookup Lookup) (*Outcome, error) {
	if ev.Kind != EventEscalate && ev.Actor.IsSystem() {
		return nil, apperrors.NewValidationError("operator required", map[string]any{"event": ev.Kind})
	}
	if ev.Kind == EventMarkReplacement && current.Status == AppealStatusReplacement {
		return nil, apperrors.NewAlreadyReplacing(current.ID)
	}
	to, ok := NextStatus(current.Status, ev.Kind)
	if !ok {
		return nil, apperrors.NewIllegalTransition(current.Status.String(), ev.Kind.String())
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	next := current.Clone()
	out := &Outcome{
		From:          current.Status,
		Event:         ev.Kind,
		CounterDeltas: map[string]int{},
	}

	var err error
	switch ev.Kind {
	case EventClaim:
		err = applyClaim(next, ev, out)
	case EventRespond:
		err = applyRespond(next, ev, out)
	case EventPostpone, EventRequestSpecialist:
		err = requireControl(next, ev.Actor)
	case EventDelegate:
		err = applyDelegate(ctx, next, ev, out, lookup)
	case EventClose:
		err = applyClose(next, ev)
	case EventEscalate:
		err = applyEscalate(ev)
	case EventMarkReplacement:
		err = applyMarkReplacement(ctx, next, ev, out, lookup)
	case EventCompleteReplacement:
		err = applyCompleteReplacement(ctx, next, ev, out, lookup)
	case EventReject:
		err = applyReject(next, ev)
	}
	if err != nil {
		return nil, err
	}

	next.Status = to
	next.Version = current.Version + 1
	if ev.Kind != EventEscalate {
		next.LastActivityAt = ev.At
	}
	if to.IsTerminal() {
		closedAt := ev.At
		next.ClosedAt = &closedAt
		next.ResolvedBy = cloneString(next.OwnerID)
		if next.ResolvedBy == nil && !ev.Actor.IsSystem() {
			next.ResolvedBy = cloneString(&ev.Actor.OperatorID)
		}
		next.OwnerID = nil
	}
	if err := next.CheckOwnership(); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	out.History = append(out.History, AppealHistory{
		AppealID:   current.ID,
		Event:      ev.Kind,
		ActorID:    actorID(ev.Actor),
		FromStatus: current.Status,
		ToStatus:   to,
		FromOwner:  cloneString(current.OwnerID),
		ToOwner:    cloneString(next.OwnerID),
		Note:       strings.TrimSpace(ev.Text),
		CreatedAt:  ev.At,
	})
	for i := range out.Checks {
		out.Checks[i].AppealID = current.ID
		out.Checks[i].ExpectedVersion = next.Version
	}
	for i := range out.Responses {
		out.Responses[i].AppealID = current.ID
		out.Responses[i].CreatedAt = ev.At
	}
	for op, delta := range out.CounterDeltas {
		if delta == 0 {
			delete(out.CounterDeltas, op)
		}
	}
	out.Appeal = *next
	return out, nil
}

func applyClaim(a *Appeal, ev Event, out *Outcome) error {
	claimant := ev.Actor.OperatorID
	switch a.Status {
	case AppealStatusNew:
		takeOwnership(a, claimant, ev.At, out)
	case AppealStatusInProgress:
		if !a.OwnedBy(claimant) {
			return apperrors.NewAlreadyOwned(a.Owner())
		}
	case AppealStatusReplacement:
		if a.OwnedBy(claimant) {
			return apperrors.NewIllegalTransition(a.Status.String(), ev.Kind.String())
		}
		transferOwnership(a, claimant, ev.At, out)
		return nil
	default:
		if !a.OwnedBy(claimant) {
			transferOwnership(a, claimant, ev.At, out)
		}
	}
	out.Checks = append(out.Checks, EscalationCheck{Kind: CheckOverdue, ExpectedOwner: claimant})
	return nil
}

func applyRespond(a *Appeal, ev Event, out *Outcome) error {
	if err := requireControl(a, ev.Actor); err != nil {
		return err
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" && len(ev.Media) == 0 {
		return apperrors.NewValidationError("response text or media required", nil)
	}
	appendResponse(a, ev.Actor.OperatorID, text, ev.Media, out)
	out.Checks = append(out.Checks, EscalationCheck{Kind: CheckOverdue, ExpectedOwner: a.Owner()})
	return nil
}

func applyDelegate(ctx context.Context, a *Appeal, ev Event, out *Outcome, lookup Lookup) error {
	if err := requireControl(a, ev.Actor); err != nil {
		return err
	}
	target := strings.TrimSpace(ev.Target)
	if target == "" {
		return apperrors.NewValidationError("target operator required", nil)
	}
	if a.OwnedBy(target) {
		return apperrors.NewValidationError("target operator already owns the appeal",
			map[string]any{"operator_id": target})
	}
	exists, err := lookup.OperatorExists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewNotFound("operator", map[string]any{"operator_id": target})
	}
	transferOwnership(a, target, ev.At, out)
	to, _ := NextStatus(a.Status, ev.Kind)
	if to == AppealStatusInProgress {
		out.Checks = append(out.Checks, EscalationCheck{Kind: CheckOverdue, ExpectedOwner: target})
	}
	if to.AwaitsDelegate() {
		out.Checks = append(out.Checks, EscalationCheck{Kind: CheckDelegateIdle, ExpectedOwner: target})
	}
	return nil
}

func applyClose(a *Appeal, ev Event) error {
	return requireControl(a, ev.Actor)
}

func applyEscalate(ev Event) error {
	if !ev.Actor.IsSystem() {
		return apperrors.NewIllegalTransition(AppealStatusInProgress.String(), ev.Kind.String())
	}
	return nil
}

func applyMarkReplacement(ctx context.Context, a *Appeal, ev Event, out *Outcome, lookup Lookup) error {
	if a.OwnerID == nil {
		takeOwnership(a, ev.Actor.OperatorID, ev.At, out)
	} else if err := requireControl(a, ev.Actor); err != nil {
		return err
	}
	oldSerial := strings.TrimSpace(ev.Serial)
	if oldSerial == "" {
		oldSerial = a.Serial
	}
	exists, err := lookup.DeviceExists(ctx, oldSerial)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewUnknownDevice(oldSerial)
	}
	returned := ReturnStatusReturned
	out.Devices = append(out.Devices, DeviceChange{
		Serial:       oldSerial,
		Status:       DeviceStatusReturned,
		ReturnStatus: &returned,
	})
	a.ReplacementOrigin = &oldSerial
	a.ReplacementTarget = nil
	return nil
}

func applyCompleteReplacement(ctx context.Context, a *Appeal, ev Event, out *Outcome, lookup Lookup) error {
	if err := requireControl(a, ev.Actor); err != nil {
		return err
	}
	newSerial := strings.TrimSpace(ev.Serial)
	if newSerial == "" {
		return apperrors.NewValidationError("replacement serial required", nil)
	}
	if a.ReplacementOrigin != nil && *a.ReplacementOrigin == newSerial {
		return apperrors.NewValidationError("replacement serial must differ from the returned device",
			map[string]any{"serial": newSerial})
	}
	exists, err := lookup.DeviceExists(ctx, newSerial)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewUnknownDevice(newSerial)
	}
	out.Devices = append(out.Devices, DeviceChange{Serial: newSerial, Status: DeviceStatusActive})
	a.ReplacementTarget = &newSerial
	if text := strings.TrimSpace(ev.Text); text != "" || len(ev.Media) > 0 {
		appendResponse(a, ev.Actor.OperatorID, text, ev.Media, out)
	}
	return nil
}

func applyReject(a *Appeal, ev Event) error {
	if a.OwnerID == nil {
		return nil
	}
	return requireControl(a, ev.Actor)
}

// requireControl lets the owner or a privileged operator act on an owned appeal.
func requireControl(a *Appeal, actor Actor) error {
	if a.OwnedBy(actor.OperatorID) || actor.Privileged {
		return nil
	}
	return apperrors.NewAlreadyOwned(a.Owner())
}

func takeOwnership(a *Appeal, operatorID string, at time.Time, out *Outcome) {
	owner := operatorID
	claimedAt := at
	a.OwnerID = &owner
	a.ClaimedAt = &claimedAt
	out.CounterDeltas[operatorID]++
}

func transferOwnership(a *Appeal, operatorID string, at time.Time, out *Outcome) {
	if a.OwnerID != nil {
		out.CounterDeltas[*a.OwnerID]--
	}
	takeOwnership(a, operatorID, at, out)
}

func appendResponse(a *Appeal, operatorID, text string, media []string, out *Outcome) {
	if text != "" {
		if a.Response == "" {
			a.Response = text
		} else {
			a.Response = a.Response + "\n\n" + text
		}
	}
	out.Responses = append(out.Responses, AppealResponse{
		OperatorID: operatorID,
		Text:       text,
		Media:      append([]string(nil), media...),
	})
}

func actorID(actor Actor) *string {
	if actor.IsSystem() {
		return nil
	}
	id := actor.OperatorID
	return &id
}
