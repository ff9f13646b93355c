package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

// MemoryStore is a process-local Ticket Store. A single mutex serializes every
// read-modify-write, which gives the same atomicity as the Postgres store.
type MemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	nextAppeal  int64
	nextHistory int64
	nextReply   int64
	appeals     map[int64]*domain.Appeal
	devices     map[string]*domain.Device
	operators   map[string]*domain.Operator
	history     map[int64][]domain.AppealHistory
	responses   map[int64][]domain.AppealResponse
	checks      map[string]*domain.EscalationCheck
}

// NewMemoryStore builds an empty store. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:       now,
		appeals:   make(map[int64]*domain.Appeal),
		devices:   make(map[string]*domain.Device),
		operators: make(map[string]*domain.Operator),
		history:   make(map[int64][]domain.AppealHistory),
		responses: make(map[int64][]domain.AppealResponse),
		checks:    make(map[string]*domain.EscalationCheck),
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) CreateAppeal(_ context.Context, in domain.NewAppeal) (int64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.openDuplicateLocked(in.Serial, in.RequesterID, in.Description); existing != nil {
		return 0, 0, apperrors.NewDuplicateAppeal(existing.ID)
	}
	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	device, ok := s.devices[in.Serial]
	if !ok {
		device = &domain.Device{Serial: in.Serial, FirstSeen: at, Status: domain.DeviceStatusActive}
		s.devices[in.Serial] = device
	}

	s.nextAppeal++
	appeal := &domain.Appeal{
		ID:             s.nextAppeal,
		Serial:         in.Serial,
		RequesterID:    in.RequesterID,
		Description:    in.Description,
		Media:          append([]string{}, in.Media...),
		Status:         domain.AppealStatusNew,
		CreatedAt:      at,
		LastActivityAt: at,
		Version:        1,
	}
	s.appeals[appeal.ID] = appeal
	device.AppealCount++
	return appeal.ID, device.AppealCount, nil
}

func (s *MemoryStore) GetAppeal(_ context.Context, id int64) (*domain.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appeal, ok := s.appeals[id]
	if !ok {
		return nil, apperrors.NewNotFound("appeal", map[string]any{"appeal_id": id})
	}
	return appeal.Clone(), nil
}

func (s *MemoryStore) FindOpenDuplicate(_ context.Context, serial, requesterID, description string) (*domain.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.openDuplicateLocked(serial, requesterID, description); existing != nil {
		return existing.Clone(), nil
	}
	return nil, nil
}

func (s *MemoryStore) openDuplicateLocked(serial, requesterID, description string) *domain.Appeal {
	norm := domain.NormalizeDescription(description)
	var found *domain.Appeal
	for _, appeal := range s.appeals {
		if appeal.Serial != serial || appeal.RequesterID != requesterID || appeal.Status.IsTerminal() {
			continue
		}
		if domain.NormalizeDescription(appeal.Description) != norm {
			continue
		}
		if found == nil || appeal.ID < found.ID {
			found = appeal
		}
	}
	return found
}

func (s *MemoryStore) ApplyTransition(ctx context.Context, id int64, fn TransitionFunc) (*domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.appeals[id]
	if !ok {
		return nil, apperrors.NewNotFound("appeal", map[string]any{"appeal_id": id})
	}
	current := stored.Clone()
	out, err := fn(ctx, current, memoryLookup{store: s})
	if err != nil {
		return nil, err
	}
	if err := validateOutcome(current, out); err != nil {
		return nil, err
	}

	// validate every write before mutating anything so a failure leaves no trace
	for operatorID, delta := range out.CounterDeltas {
		op, ok := s.operators[operatorID]
		if !ok {
			return nil, apperrors.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
		if op.TakenCount+delta < 0 {
			return nil, apperrors.NewInternalError(fmt.Errorf("taken_count for %s would drop below zero", operatorID))
		}
	}
	for _, change := range out.Devices {
		if _, ok := s.devices[change.Serial]; !ok {
			return nil, apperrors.NewUnknownDevice(change.Serial)
		}
	}

	updated := out.Appeal.Clone()
	s.appeals[id] = updated
	for operatorID, delta := range out.CounterDeltas {
		s.operators[operatorID].TakenCount += delta
	}
	for _, change := range out.Devices {
		device := s.devices[change.Serial]
		device.Status = change.Status
		if change.ReturnStatus != nil {
			device.ReturnStatus = *change.ReturnStatus
		}
	}
	for i := range out.History {
		s.nextHistory++
		out.History[i].ID = s.nextHistory
		s.history[id] = append(s.history[id], out.History[i])
	}
	for i := range out.Responses {
		s.nextReply++
		out.Responses[i].ID = s.nextReply
		s.responses[id] = append(s.responses[id], out.Responses[i])
	}
	for i := range out.Checks {
		check := out.Checks[i]
		check.CreatedAt = s.now()
		out.Checks[i].CreatedAt = check.CreatedAt
		s.checks[check.ID] = &check
	}
	return out, nil
}

func (s *MemoryStore) ListAppeals(_ context.Context, filter AppealFilter) ([]domain.Appeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[domain.AppealStatus]bool, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses[status] = true
	}
	var matched []domain.Appeal
	for _, appeal := range s.appeals {
		if filter.RequesterID != nil && appeal.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.OwnerID != nil && !appeal.OwnedBy(*filter.OwnerID) {
			continue
		}
		if filter.Serial != nil && appeal.Serial != *filter.Serial {
			continue
		}
		if len(statuses) > 0 && !statuses[appeal.Status] {
			continue
		}
		matched = append(matched, *appeal.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return page(matched, normalizeLimit(filter.Limit, 20), normalizeOffset(filter.Offset)), nil
}

func (s *MemoryStore) ListHistory(_ context.Context, appealID int64) ([]domain.AppealHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AppealHistory(nil), s.history[appealID]...), nil
}

func (s *MemoryStore) ListResponses(_ context.Context, appealID int64) ([]domain.AppealResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AppealResponse(nil), s.responses[appealID]...), nil
}

func (s *MemoryStore) GetDevice(_ context.Context, serial string) (*domain.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[serial]
	if !ok {
		return nil, apperrors.NewNotFound("device", map[string]any{"serial": serial})
	}
	copied := *device
	return &copied, nil
}

func (s *MemoryStore) ListDevices(_ context.Context, filter DeviceFilter) ([]domain.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Device
	for _, device := range s.devices {
		if filter.Status != nil && device.Status != *filter.Status {
			continue
		}
		matched = append(matched, *device)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Serial < matched[j].Serial })
	return page(matched, normalizeLimit(filter.Limit, 100), normalizeOffset(filter.Offset)), nil
}

func (s *MemoryStore) ImportDevices(_ context.Context, devices []domain.Device) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, device := range devices {
		if _, exists := s.devices[device.Serial]; exists {
			continue
		}
		record := domain.Device{
			Serial:       device.Serial,
			FirstSeen:    device.FirstSeen,
			Status:       device.Status,
			ReturnStatus: device.ReturnStatus,
		}
		if record.FirstSeen.IsZero() {
			record.FirstSeen = s.now()
		}
		if record.Status == "" {
			record.Status = domain.DeviceStatusActive
		}
		s.devices[device.Serial] = &record
		created++
	}
	return created, nil
}

func (s *MemoryStore) CreateOperator(_ context.Context, op *domain.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.operators[op.ID]; exists {
		return apperrors.NewConflict("operator already exists", map[string]any{"operator_id": op.ID})
	}
	op.TakenCount = 0
	op.CreatedAt = s.now()
	stored := *op
	s.operators[op.ID] = &stored
	return nil
}

func (s *MemoryStore) GetOperator(_ context.Context, id string) (*domain.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[id]
	if !ok {
		return nil, apperrors.NewNotFound("operator", map[string]any{"operator_id": id})
	}
	copied := *op
	return &copied, nil
}

func (s *MemoryStore) ListOperators(_ context.Context, filter OperatorFilter) ([]domain.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Operator
	for _, op := range s.operators {
		if filter.Privileged != nil && op.IsPrivileged != *filter.Privileged {
			continue
		}
		matched = append(matched, *op)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return page(matched, normalizeLimit(filter.Limit, 50), normalizeOffset(filter.Offset)), nil
}

func (s *MemoryStore) LeaseDueChecks(_ context.Context, now time.Time, limit int, lease time.Duration) ([]domain.EscalationCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.EscalationCheck
	for _, check := range s.checks {
		if check.State != domain.CheckStatePending || check.DueAt.After(now) {
			continue
		}
		if check.LockedUntil != nil && check.LockedUntil.After(now) {
			continue
		}
		due = append(due, check)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	limit = normalizeLimit(limit, 50)
	if len(due) > limit {
		due = due[:limit]
	}

	leased := make([]domain.EscalationCheck, 0, len(due))
	for _, check := range due {
		until := now.Add(lease)
		check.LockedUntil = &until
		check.Attempts++
		leased = append(leased, *check)
	}
	return leased, nil
}

func (s *MemoryStore) CompleteCheck(_ context.Context, id string, at time.Time) error {
	return s.updateCheck(id, func(check *domain.EscalationCheck) {
		check.State = domain.CheckStateDone
		check.FinishedAt = &at
		check.LockedUntil = nil
	})
}

func (s *MemoryStore) RetryCheck(_ context.Context, id string, nextDue time.Time, cause string) error {
	return s.updateCheck(id, func(check *domain.EscalationCheck) {
		if check.State != domain.CheckStatePending {
			return
		}
		check.DueAt = nextDue
		check.LastError = cause
		check.LockedUntil = nil
	})
}

func (s *MemoryStore) FailCheck(_ context.Context, id string, at time.Time, cause string) error {
	return s.updateCheck(id, func(check *domain.EscalationCheck) {
		check.State = domain.CheckStateFailed
		check.FinishedAt = &at
		check.LastError = cause
		check.LockedUntil = nil
	})
}

// Checks returns a snapshot of every check for the given appeal.
func (s *MemoryStore) Checks(appealID int64) []domain.EscalationCheck {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.EscalationCheck
	for _, check := range s.checks {
		if check.AppealID == appealID {
			result = append(result, *check)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DueAt.Before(result[j].DueAt) })
	return result
}

func (s *MemoryStore) updateCheck(id string, mutate func(*domain.EscalationCheck)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	check, ok := s.checks[id]
	if !ok {
		return apperrors.NewNotFound("escalation check", map[string]any{"check_id": id})
	}
	mutate(check)
	return nil
}

// memoryLookup runs under the store mutex held by ApplyTransition.
type memoryLookup struct {
	store *MemoryStore
}

func (l memoryLookup) DeviceExists(_ context.Context, serial string) (bool, error) {
	_, ok := l.store.devices[serial]
	return ok, nil
}

func (l memoryLookup) OperatorExists(_ context.Context, id string) (bool, error) {
	_, ok := l.store.operators[id]
	return ok, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
