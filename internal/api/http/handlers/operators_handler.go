package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/api/dto"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/service"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

// OperatorsHandler manages operator authentication and administration.
type OperatorsHandler struct {
	authService     *service.AuthService
	operatorService *service.OperatorService
}

// NewOperatorsHandler constructs handler.
func NewOperatorsHandler(authService *service.AuthService, operatorService *service.OperatorService) *OperatorsHandler {
	return &OperatorsHandler{authService: authService, operatorService: operatorService}
}

// Login handles POST /auth/operators/login.
func (h *OperatorsHandler) Login(c *fiber.Ctx) error {
	var req dto.OperatorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.OperatorID == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "operator_id and password required")
	}

	op, token, exp, err := h.authService.LoginOperator(c.UserContext(), req.OperatorID, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"operator": operatorResponse(op),
			"auth":     dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// IssueIntegrationToken handles POST /auth/integrations/token.
func (h *OperatorsHandler) IssueIntegrationToken(c *fiber.Ctx) error {
	var req dto.IntegrationTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	token, exp, err := h.authService.IssueIntegrationToken(c.UserContext(), req.Name)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AuthResponse{Token: token, ExpiresAt: exp}})
}

// CreateOperator handles POST /operators.
func (h *OperatorsHandler) CreateOperator(c *fiber.Ctx) error {
	var req dto.CreateOperatorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	op, err := h.operatorService.CreateOperator(c.UserContext(), service.CreateOperatorInput{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Privileged:  req.Privileged,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": operatorResponse(op)})
}

// ListOperators handles GET /operators?privileged=true.
func (h *OperatorsHandler) ListOperators(c *fiber.Ctx) error {
	limit, offset := pagination(c, 50)
	filter := service.OperatorListFilter{Limit: limit, Offset: offset}
	if raw := c.Query("privileged"); raw != "" {
		privileged, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.NewValidationError("invalid privileged filter", map[string]any{"privileged": raw})
		}
		filter.Privileged = &privileged
	}
	ops, err := h.operatorService.ListOperators(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.OperatorResponse, 0, len(ops))
	for i := range ops {
		items = append(items, operatorResponse(&ops[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
