package service

import (
	"context"
	"strings"
	"time"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/auth"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

// AuthService issues tokens for operators and trusted integrations.
type AuthService struct {
	operators repository.OperatorStore
	tokenMgr  *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(operators repository.OperatorStore, tokens *auth.TokenManager) *AuthService {
	return &AuthService{operators: operators, tokenMgr: tokens}
}

// LoginOperator authenticates an operator by id and password.
func (s *AuthService) LoginOperator(ctx context.Context, operatorID, password string) (*domain.Operator, string, time.Time, error) {
	op, err := s.operators.GetOperator(ctx, strings.TrimSpace(operatorID))
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if op.PasswordHash == "" || auth.ComparePassword(op.PasswordHash, password) != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(op.ID, domain.SubjectTypeOperator, op.IsPrivileged)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return op, token, exp, nil
}

// IssueIntegrationToken mints a token for a collaborator such as the chat front-end.
func (s *AuthService) IssueIntegrationToken(_ context.Context, name string) (string, time.Time, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", time.Time{}, apperrors.NewValidationError("integration name required", nil)
	}
	token, exp, err := s.tokenMgr.GenerateToken(name, domain.SubjectTypeIntegration, false)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	return token, exp, nil
}
