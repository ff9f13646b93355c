package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

// AppealFilter captures list parameters for appeals.
type AppealFilter struct {
	RequesterID *string
	OwnerID     *string
	Serial      *string
	Statuses    []domain.AppealStatus
	Limit       int
	Offset      int
}

// DeviceFilter captures list parameters for devices.
type DeviceFilter struct {
	Status *domain.DeviceStatus
	Limit  int
	Offset int
}

// OperatorFilter captures list parameters for operators.
type OperatorFilter struct {
	Privileged *bool
	Limit      int
	Offset     int
}

// TransitionFunc computes a transition outcome from the locked current row.
// lookup reads through the same transaction.
type TransitionFunc func(ctx context.Context, current *domain.Appeal, lookup domain.Lookup) (*domain.Outcome, error)

// AppealStore persists appeals together with their coupled counters.
type AppealStore interface {
	// CreateAppeal runs the duplicate guard, inserts the appeal and bumps the
	// device appeal count in one transaction.
	CreateAppeal(ctx context.Context, in domain.NewAppeal) (int64, int, error)
	GetAppeal(ctx context.Context, id int64) (*domain.Appeal, error)
	// FindOpenDuplicate returns nil when no open equivalent appeal exists.
	FindOpenDuplicate(ctx context.Context, serial, requesterID, description string) (*domain.Appeal, error)
	// ApplyTransition reads, validates and writes one appeal plus every
	// counter, device, audit and check row of the outcome atomically.
	ApplyTransition(ctx context.Context, id int64, fn TransitionFunc) (*domain.Outcome, error)
	ListAppeals(ctx context.Context, filter AppealFilter) ([]domain.Appeal, error)
	ListHistory(ctx context.Context, appealID int64) ([]domain.AppealHistory, error)
	ListResponses(ctx context.Context, appealID int64) ([]domain.AppealResponse, error)
}

// DeviceStore exposes serial records to import/export collaborators.
type DeviceStore interface {
	GetDevice(ctx context.Context, serial string) (*domain.Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]domain.Device, error)
	// ImportDevices inserts unknown serials with a zero appeal count and
	// returns how many were created. Existing rows are left untouched.
	ImportDevices(ctx context.Context, devices []domain.Device) (int, error)
}

// OperatorStore manages operators.
type OperatorStore interface {
	CreateOperator(ctx context.Context, op *domain.Operator) error
	GetOperator(ctx context.Context, id string) (*domain.Operator, error)
	ListOperators(ctx context.Context, filter OperatorFilter) ([]domain.Operator, error)
}

// CheckStore backs the durable escalation scheduler.
type CheckStore interface {
	// LeaseDueChecks hands out pending checks due at now, hiding them from
	// other pollers until the lease expires.
	LeaseDueChecks(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]domain.EscalationCheck, error)
	CompleteCheck(ctx context.Context, id string, at time.Time) error
	RetryCheck(ctx context.Context, id string, nextDue time.Time, cause string) error
	FailCheck(ctx context.Context, id string, at time.Time, cause string) error
}

// Store is the Ticket Store.
type Store interface {
	AppealStore
	DeviceStore
	OperatorStore
	CheckStore
	Ping(ctx context.Context) error
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// validateOutcome rejects outcomes that would break store invariants before
// anything is written.
func validateOutcome(current *domain.Appeal, out *domain.Outcome) error {
	if out == nil {
		return apperrors.NewInternalError(errors.New("transition produced no outcome"))
	}
	if out.Appeal.ID != current.ID {
		return apperrors.NewInternalError(fmt.Errorf("outcome for appeal %d applied to %d", out.Appeal.ID, current.ID))
	}
	if out.Appeal.Version != current.Version+1 {
		return apperrors.NewInternalError(fmt.Errorf("appeal %d version %d does not follow %d",
			current.ID, out.Appeal.Version, current.Version))
	}
	if err := out.Appeal.CheckOwnership(); err != nil {
		return apperrors.NewInternalError(err)
	}
	for i := range out.Checks {
		check := &out.Checks[i]
		if check.DueAt.IsZero() {
			return apperrors.NewInternalError(fmt.Errorf("check %s for appeal %d has no deadline", check.Kind, current.ID))
		}
		if check.ID == "" {
			check.ID = uuid.NewString()
		}
		if check.State == "" {
			check.State = domain.CheckStatePending
		}
	}
	return nil
}
