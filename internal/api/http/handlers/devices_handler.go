package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/api/dto"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/service"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

// DevicesHandler exposes device serial records.
type DevicesHandler struct {
	devices *service.DeviceService
}

// NewDevicesHandler constructs handler.
func NewDevicesHandler(devices *service.DeviceService) *DevicesHandler {
	return &DevicesHandler{devices: devices}
}

// ListDevices GET /devices?status=.
func (h *DevicesHandler) ListDevices(c *fiber.Ctx) error {
	var status *domain.DeviceStatus
	if raw := c.Query("status"); raw != "" {
		parsed := domain.DeviceStatus(raw)
		if !parsed.IsValid() {
			return apperrors.NewValidationError("invalid status filter", map[string]any{"status": raw})
		}
		status = &parsed
	}
	limit, offset := pagination(c, 100)
	devices, err := h.devices.ListDevices(c.UserContext(), status, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.DeviceResponse, 0, len(devices))
	for i := range devices {
		items = append(items, deviceResponse(&devices[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetDevice GET /devices/:serial.
func (h *DevicesHandler) GetDevice(c *fiber.Ctx) error {
	device, err := h.devices.GetDevice(c.UserContext(), c.Params("serial"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": deviceResponse(device)})
}

// ImportDevices POST /devices/import.
func (h *DevicesHandler) ImportDevices(c *fiber.Ctx) error {
	var req dto.DeviceImportRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	items := make([]service.DeviceImportItem, 0, len(req.Devices))
	for _, entry := range req.Devices {
		items = append(items, service.DeviceImportItem{
			Serial:       entry.Serial,
			Status:       entry.Status,
			ReturnStatus: entry.ReturnStatus,
		})
	}
	result, err := h.devices.Import(c.UserContext(), items)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}
