package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/events"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

const (
	maxDescriptionLength = 4000
	maxMediaItems        = 20
)

var errCheckSuperseded = errors.New("escalation check superseded")

// AppealService coordinates intake and the single-owner lifecycle actions.
type AppealService struct {
	*transitioner
}

// SubmitInput is a requester submission relayed by the conversational front-end.
type SubmitInput struct {
	Serial      string
	RequesterID string
	Description string
	Media       []string
}

// SubmitResult reports the created appeal and the device's new appeal count.
type SubmitResult struct {
	AppealID    int64
	AppealCount int
}

// AppealDetails bundles an appeal with its audit trail and response log.
type AppealDetails struct {
	Appeal    *domain.Appeal
	History   []domain.AppealHistory
	Responses []domain.AppealResponse
}

// AppealListFilter describes operator listing filters.
type AppealListFilter struct {
	Statuses []domain.AppealStatus
	OwnerID  *string
	Serial   *string
	Limit    int
	Offset   int
}

// NewAppealService constructs the service.
func NewAppealService(deps Dependencies) *AppealService {
	return &AppealService{transitioner: newTransitioner(deps)}
}

// Submit validates a submission and creates the appeal. An open appeal with
// the same serial, requester and normalized description yields DUPLICATE_APPEAL.
func (s *AppealService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	serial := normalizeSerial(input.Serial)
	requester := strings.TrimSpace(input.RequesterID)
	description := strings.TrimSpace(input.Description)

	details := map[string]any{}
	if serial == "" {
		details["serial"] = "required"
	}
	if requester == "" {
		details["requester_id"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	} else if len(description) > maxDescriptionLength {
		details["description"] = "too long"
	}
	if len(input.Media) > maxMediaItems {
		details["media"] = "too many items"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid appeal submission", details)
	}

	media := make([]string, 0, len(input.Media))
	for _, handle := range input.Media {
		if handle = strings.TrimSpace(handle); handle != "" {
			media = append(media, handle)
		}
	}

	at := s.now()
	id, count, err := s.store.CreateAppeal(ctx, domain.NewAppeal{
		Serial:      serial,
		RequesterID: requester,
		Description: description,
		Media:       media,
		At:          at,
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeDuplicateAppeal) {
			s.logger.Info("duplicate appeal suppressed",
				zap.String("serial", serial),
				zap.String("requester_id", requester))
		}
		return nil, err
	}
	s.logger.Info("appeal created",
		zap.Int64("appeal_id", id),
		zap.String("serial", serial),
		zap.Int("appeal_count", count))

	appeal, err := s.store.GetAppeal(ctx, id)
	if err == nil {
		s.publish(ctx, events.NewAppealEvent(events.EventAppealCreated, appeal, domain.SystemActor(), at, events.AppealCreatedPayload{
			Description: description,
			Media:       media,
			AppealCount: count,
		}))
	} else {
		s.logger.Warn("load created appeal for notification", zap.Int64("appeal_id", id), zap.Error(err))
	}
	return &SubmitResult{AppealID: id, AppealCount: count}, nil
}

// Get returns an appeal with its history and responses.
func (s *AppealService) Get(ctx context.Context, id int64) (*AppealDetails, error) {
	appeal, err := s.store.GetAppeal(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AppealDetails{Appeal: appeal, History: history, Responses: responses}, nil
}

// List returns appeals for the operator console.
func (s *AppealService) List(ctx context.Context, filter AppealListFilter) ([]domain.Appeal, error) {
	serial := filter.Serial
	if serial != nil {
		normalized := normalizeSerial(*serial)
		serial = &normalized
	}
	return s.store.ListAppeals(ctx, repository.AppealFilter{
		Statuses: filter.Statuses,
		OwnerID:  filter.OwnerID,
		Serial:   serial,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// ListForRequester returns a requester's own appeals, newest first.
func (s *AppealService) ListForRequester(ctx context.Context, requesterID string, limit, offset int) ([]domain.Appeal, error) {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return nil, apperrors.NewValidationError("requester_id required", nil)
	}
	return s.store.ListAppeals(ctx, repository.AppealFilter{RequesterID: &requesterID, Limit: limit, Offset: offset})
}

// Respond appends an operator response and re-arms the overdue check.
func (s *AppealService) Respond(ctx context.Context, actor domain.Actor, id int64, text string, media []string) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{Kind: domain.EventRespond, Actor: actor, Text: text, Media: media})
}

// Postpone parks the appeal; pending overdue checks become no-ops.
func (s *AppealService) Postpone(ctx context.Context, actor domain.Actor, id int64, note string) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{Kind: domain.EventPostpone, Actor: actor, Text: note})
}

// Close resolves an in-progress appeal as processed.
func (s *AppealService) Close(ctx context.Context, actor domain.Actor, id int64, note string) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{Kind: domain.EventClose, Actor: actor, Text: note})
}

// Reject dismisses an invalid appeal.
func (s *AppealService) Reject(ctx context.Context, actor domain.Actor, id int64, reason string) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{Kind: domain.EventReject, Actor: actor, Text: reason})
}

// RequestSpecialist hands the appeal over to an outside specialist.
func (s *AppealService) RequestSpecialist(ctx context.Context, actor domain.Actor, id int64, note string) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{Kind: domain.EventRequestSpecialist, Actor: actor, Text: note})
}

// Escalate moves a stale appeal to overdue if it is still exactly as the check
// saw it when armed. It reports false when the check was superseded.
func (s *AppealService) Escalate(ctx context.Context, appealID int64, expectedOwner string, expectedVersion int64) (bool, error) {
	_, err := s.applyGuarded(ctx, appealID, domain.Event{Kind: domain.EventEscalate, Actor: domain.SystemActor()},
		func(current *domain.Appeal) error {
			if current.Status != domain.AppealStatusInProgress ||
				!current.OwnedBy(expectedOwner) ||
				current.Version != expectedVersion {
				return errCheckSuperseded
			}
			return nil
		})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errCheckSuperseded),
		apperrors.IsCode(err, apperrors.CodeIllegalTransition),
		apperrors.IsCode(err, apperrors.CodeConflict):
		return false, nil
	case apperrors.IsCode(err, apperrors.CodeNotFound):
		s.logger.Warn("escalation check for missing appeal", zap.Int64("appeal_id", appealID))
		return false, nil
	default:
		return false, err
	}
}

// AlertDelegationIdle notifies supervisors when an appeal delegated at armedAt
// is still waiting on the same delegate once the idle window has passed.
func (s *AppealService) AlertDelegationIdle(ctx context.Context, appealID int64, expectedOwner string, armedAt time.Time) (bool, error) {
	appeal, err := s.store.GetAppeal(ctx, appealID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	if !appeal.Status.AwaitsDelegate() || !appeal.OwnedBy(expectedOwner) {
		return false, nil
	}
	s.publish(ctx, events.NewAppealEvent(events.EventAppealDelegationIdle, appeal, domain.SystemActor(), s.now(), events.DelegationIdlePayload{
		OwnerID:        expectedOwner,
		DelegatedAt:    armedAt,
		LastActivityAt: appeal.LastActivityAt,
	}))
	return true, nil
}

func normalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}
