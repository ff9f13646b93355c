package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/auth"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

const minPasswordLength = 8

// OperatorService manages operator accounts. Operators are never deleted.
type OperatorService struct {
	operators  repository.OperatorStore
	bcryptCost int
	logger     *zap.Logger
}

// CreateOperatorInput describes an administrative operator creation.
type CreateOperatorInput struct {
	ID          string
	DisplayName string
	Password    string
	Privileged  bool
}

// OperatorListFilter describes listing filters.
type OperatorListFilter struct {
	Privileged *bool
	Limit      int
	Offset     int
}

// NewOperatorService builds the service.
func NewOperatorService(operators repository.OperatorStore, bcryptCost int, logger *zap.Logger) *OperatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperatorService{operators: operators, bcryptCost: bcryptCost, logger: logger}
}

// CreateOperator registers an operator with a zero workload counter.
func (s *OperatorService) CreateOperator(ctx context.Context, input CreateOperatorInput) (*domain.Operator, error) {
	id := strings.TrimSpace(input.ID)
	name := strings.TrimSpace(input.DisplayName)
	details := map[string]any{}
	if id == "" {
		details["id"] = "required"
	}
	if name == "" {
		details["display_name"] = "required"
	}
	if len(input.Password) < minPasswordLength {
		details["password"] = "too short"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid operator", details)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	op := &domain.Operator{
		ID:           id,
		DisplayName:  name,
		IsPrivileged: input.Privileged,
		PasswordHash: hash,
	}
	if err := s.operators.CreateOperator(ctx, op); err != nil {
		return nil, err
	}
	s.logger.Info("operator created", zap.String("operator_id", op.ID), zap.Bool("privileged", op.IsPrivileged))
	return op, nil
}

// GetOperator returns one operator.
func (s *OperatorService) GetOperator(ctx context.Context, id string) (*domain.Operator, error) {
	return s.operators.GetOperator(ctx, strings.TrimSpace(id))
}

// ListOperators returns operators ordered by creation.
func (s *OperatorService) ListOperators(ctx context.Context, filter OperatorListFilter) ([]domain.Operator, error) {
	return s.operators.ListOperators(ctx, repository.OperatorFilter{
		Privileged: filter.Privileged,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// EnsureOperator creates the operator unless one with the same id exists.
// Used to seed the first privileged account.
func (s *OperatorService) EnsureOperator(ctx context.Context, input CreateOperatorInput) (*domain.Operator, error) {
	existing, err := s.operators.GetOperator(ctx, strings.TrimSpace(input.ID))
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, err
	}
	return s.CreateOperator(ctx, input)
}
