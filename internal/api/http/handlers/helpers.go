package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/api/dto"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/auth"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/service"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

const maxPageSize = 200

func operatorActor(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return domain.Actor{}, apperrors.NewUnauthorized("operator required")
	}
	return principal.Actor(), nil
}

func appealIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid appeal id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

// pagination reads page/page_size and returns limit/offset.
func pagination(c *fiber.Ctx, defaultSize int) (int, int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), defaultSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseStatuses(raw string) ([]domain.AppealStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []domain.AppealStatus
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		status, err := domain.ParseAppealStatus(part)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": part})
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

func appealSummary(appeal *domain.Appeal) dto.AppealSummary {
	return dto.AppealSummary{
		ID:             appeal.ID,
		Serial:         appeal.Serial,
		RequesterID:    appeal.RequesterID,
		Status:         appeal.Status,
		OwnerID:        appeal.OwnerID,
		CreatedAt:      appeal.CreatedAt,
		LastActivityAt: appeal.LastActivityAt,
		ClosedAt:       appeal.ClosedAt,
		Version:        appeal.Version,
	}
}

func appealSummaries(appeals []domain.Appeal) []dto.AppealSummary {
	items := make([]dto.AppealSummary, 0, len(appeals))
	for i := range appeals {
		items = append(items, appealSummary(&appeals[i]))
	}
	return items
}

func appealDetail(appeal *domain.Appeal) dto.AppealDetailResponse {
	media := appeal.Media
	if media == nil {
		media = []string{}
	}
	return dto.AppealDetailResponse{
		ID:                appeal.ID,
		Serial:            appeal.Serial,
		RequesterID:       appeal.RequesterID,
		Description:       appeal.Description,
		Media:             media,
		Status:            appeal.Status,
		OwnerID:           appeal.OwnerID,
		ResolvedBy:        appeal.ResolvedBy,
		CreatedAt:         appeal.CreatedAt,
		ClaimedAt:         appeal.ClaimedAt,
		ClosedAt:          appeal.ClosedAt,
		LastActivityAt:    appeal.LastActivityAt,
		Response:          appeal.Response,
		ReplacementOrigin: appeal.ReplacementOrigin,
		ReplacementTarget: appeal.ReplacementTarget,
		Version:           appeal.Version,
	}
}

func appealDetailWithTrail(details *service.AppealDetails) dto.AppealDetailResponse {
	resp := appealDetail(details.Appeal)
	resp.History = make([]dto.HistoryResponse, 0, len(details.History))
	for _, entry := range details.History {
		resp.History = append(resp.History, dto.HistoryResponse{
			ID:         entry.ID,
			Event:      entry.Event,
			ActorID:    entry.ActorID,
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			FromOwner:  entry.FromOwner,
			ToOwner:    entry.ToOwner,
			Note:       entry.Note,
			CreatedAt:  entry.CreatedAt,
		})
	}
	resp.Responses = make([]dto.ResponseEntry, 0, len(details.Responses))
	for _, response := range details.Responses {
		media := response.Media
		if media == nil {
			media = []string{}
		}
		resp.Responses = append(resp.Responses, dto.ResponseEntry{
			ID:         response.ID,
			OperatorID: response.OperatorID,
			Text:       response.Text,
			Media:      media,
			CreatedAt:  response.CreatedAt,
		})
	}
	return resp
}

func operatorResponse(op *domain.Operator) dto.OperatorResponse {
	return dto.OperatorResponse{
		ID:           op.ID,
		DisplayName:  op.DisplayName,
		TakenCount:   op.TakenCount,
		IsPrivileged: op.IsPrivileged,
		CreatedAt:    op.CreatedAt,
	}
}

func deviceResponse(device *domain.Device) dto.DeviceResponse {
	return dto.DeviceResponse{
		Serial:       device.Serial,
		FirstSeen:    device.FirstSeen,
		AppealCount:  device.AppealCount,
		Status:       device.Status,
		ReturnStatus: device.ReturnStatus,
	}
}
