package service

import (
	"context"
	"strings"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

// AssignmentService manages exclusive ownership of appeals. Every counter
// change rides on the transition outcome and commits with the ownership write.
type AssignmentService struct {
	*transitioner
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps Dependencies) *AssignmentService {
	return &AssignmentService{transitioner: newTransitioner(deps)}
}

// Claim takes ownership of an unowned, postponed or overdue appeal. Claiming an
// appeal the actor already owns re-arms its overdue check.
func (s *AssignmentService) Claim(ctx context.Context, actor domain.Actor, id int64) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{Kind: domain.EventClaim, Actor: actor})
}

// Delegate hands the appeal to another operator. The outgoing and incoming
// owners are recorded in the audit trail of the same transaction.
func (s *AssignmentService) Delegate(ctx context.Context, actor domain.Actor, id int64, targetOperatorID, note string) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{
		Kind:   domain.EventDelegate,
		Actor:  actor,
		Target: strings.TrimSpace(targetOperatorID),
		Text:   note,
	})
}
