package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/api/dto"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/service"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

// IntakeHandler serves the conversational front-end.
type IntakeHandler struct {
	appeals   *service.AppealService
	operators *service.OperatorService
}

// NewIntakeHandler constructs handler.
func NewIntakeHandler(appeals *service.AppealService, operators *service.OperatorService) *IntakeHandler {
	return &IntakeHandler{appeals: appeals, operators: operators}
}

// SubmitAppeal POST /intake/appeals.
func (h *IntakeHandler) SubmitAppeal(c *fiber.Ctx) error {
	var req dto.SubmitAppealRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.appeals.Submit(c.UserContext(), service.SubmitInput{
		Serial:      req.Serial,
		RequesterID: req.RequesterID,
		Description: req.Description,
		Media:       req.Media,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.SubmitAppealResponse{
		AppealID:    result.AppealID,
		AppealCount: result.AppealCount,
	}})
}

// ListRequesterAppeals GET /intake/requesters/:id/appeals.
func (h *IntakeHandler) ListRequesterAppeals(c *fiber.Ctx) error {
	limit, offset := pagination(c, 20)
	appeals, err := h.appeals.ListForRequester(c.UserContext(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealSummaries(appeals)})
}

// RespondToAppeal POST /intake/appeals/:id/respond.
// The response is attributed to operator_id and passes the same ownership
// rules as an operator responding directly.
func (h *IntakeHandler) RespondToAppeal(c *fiber.Ctx) error {
	id, err := appealIDParam(c)
	if err != nil {
		return err
	}
	var req dto.IntakeRespondRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	operatorID := strings.TrimSpace(req.OperatorID)
	if operatorID == "" {
		return apperrors.NewValidationError("operator_id is required", nil)
	}
	operator, err := h.operators.GetOperator(c.UserContext(), operatorID)
	if err != nil {
		return err
	}
	actor := domain.Actor{OperatorID: operator.ID, Privileged: operator.IsPrivileged}
	appeal, err := h.appeals.Respond(c.UserContext(), actor, id, req.Text, req.Media)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appealDetail(appeal)})
}
