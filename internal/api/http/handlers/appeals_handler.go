package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/api/dto"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/service"
)

// AppealsHandler serves operator console actions on appeals.
type AppealsHandler struct {
	appeals      *service.AppealService
	assignments  *service.AssignmentService
	replacements *service.ReplacementService
}

// NewAppealsHandler constructs handler.
func NewAppealsHandler(appeals *service.AppealService, assignments *service.AssignmentService, replacements *service.ReplacementService) *AppealsHandler {
	return &AppealsHandler{appeals: appeals, assignments: assignments, replacements: replacements}
}

// ListAppeals GET /appeals?status=a,b&owner_id=&serial=&mine=true.
func (h *AppealsHandler) ListAppeals(c *fiber.Ctx) error {
	actor, err := operatorActor(c)
	if err != nil {
		return err
	}
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return err
	}
	limit, offset := pagination(c, 20)
	filter := service.AppealListFilter{
		Statuses: statuses,
		OwnerID:  optionalQuery(c, "owner_id"),
		Serial:   optionalQuery(c, "serial"),
		Limit:    limit,
		Offset:   offset,
	}
	if c.QueryBool("mine") {
		filter.OwnerID = &actor.OperatorID
	}
	appeals, err := h.appeals.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealSummaries(appeals)})
}

// GetAppeal GET /appeals/:id.
func (h *AppealsHandler) GetAppeal(c *fiber.Ctx) error {
	id, err := appealIDParam(c)
	if err != nil {
		return err
	}
	details, err := h.appeals.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealDetailWithTrail(details)})
}

// Claim POST /appeals/:id/claim. Also backs the "take" quick action.
func (h *AppealsHandler) Claim(c *fiber.Ctx) error {
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.assignments.Claim(c.UserContext(), actor, id)
	})
}

// Respond POST /appeals/:id/respond.
func (h *AppealsHandler) Respond(c *fiber.Ctx) error {
	var req dto.RespondRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.appeals.Respond(c.UserContext(), actor, id, req.Text, req.Media)
	})
}

// Postpone POST /appeals/:id/postpone.
func (h *AppealsHandler) Postpone(c *fiber.Ctx) error {
	var req dto.NoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.appeals.Postpone(c.UserContext(), actor, id, req.Note)
	})
}

// Delegate POST /appeals/:id/delegate.
func (h *AppealsHandler) Delegate(c *fiber.Ctx) error {
	var req dto.DelegateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.assignments.Delegate(c.UserContext(), actor, id, req.OperatorID, req.Note)
	})
}

// Close POST /appeals/:id/close.
func (h *AppealsHandler) Close(c *fiber.Ctx) error {
	var req dto.NoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.appeals.Close(c.UserContext(), actor, id, req.Note)
	})
}

// Reject POST /appeals/:id/reject.
func (h *AppealsHandler) Reject(c *fiber.Ctx) error {
	var req dto.NoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.appeals.Reject(c.UserContext(), actor, id, req.Note)
	})
}

// RequestSpecialist POST /appeals/:id/specialist.
func (h *AppealsHandler) RequestSpecialist(c *fiber.Ctx) error {
	var req dto.NoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.appeals.RequestSpecialist(c.UserContext(), actor, id, req.Note)
	})
}

// MarkReplacement POST /appeals/:id/replacement.
func (h *AppealsHandler) MarkReplacement(c *fiber.Ctx) error {
	var req dto.MarkReplacementRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.replacements.MarkForReplacement(c.UserContext(), actor, id, req.Serial, req.Note)
	})
}

// CompleteReplacement POST /appeals/:id/replacement/complete.
func (h *AppealsHandler) CompleteReplacement(c *fiber.Ctx) error {
	var req dto.CompleteReplacementRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.transition(c, func(actor domain.Actor, id int64) (*domain.Appeal, error) {
		return h.replacements.CompleteReplacement(c.UserContext(), actor, id, req.Serial, req.Text, req.Media)
	})
}

func (h *AppealsHandler) transition(c *fiber.Ctx, fn func(actor domain.Actor, id int64) (*domain.Appeal, error)) error {
	actor, err := operatorActor(c)
	if err != nil {
		return err
	}
	id, err := appealIDParam(c)
	if err != nil {
		return err
	}
	appeal, err := fn(actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealDetail(appeal)})
}
