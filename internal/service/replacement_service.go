package service

import (
	"context"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

// ReplacementService sequences the device replacement sub-workflow.
type ReplacementService struct {
	*transitioner
}

// NewReplacementService creates the service.
func NewReplacementService(deps Dependencies) *ReplacementService {
	return &ReplacementService{transitioner: newTransitioner(deps)}
}

// MarkForReplacement retires the old device and parks the appeal in
// replacement_process. An empty oldSerial means the appeal's own device.
func (s *ReplacementService) MarkForReplacement(ctx context.Context, actor domain.Actor, id int64, oldSerial, note string) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{
		Kind:   domain.EventMarkReplacement,
		Actor:  actor,
		Serial: normalizeSerial(oldSerial),
		Text:   note,
	})
}

// CompleteReplacement links the replacement device and resolves the appeal.
// An unknown newSerial leaves the appeal in replacement_process.
func (s *ReplacementService) CompleteReplacement(ctx context.Context, actor domain.Actor, id int64, newSerial, text string, media []string) (*domain.Appeal, error) {
	return s.apply(ctx, id, domain.Event{
		Kind:   domain.EventCompleteReplacement,
		Actor:  actor,
		Serial: normalizeSerial(newSerial),
		Text:   text,
		Media:  media,
	})
}
