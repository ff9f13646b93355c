package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

const maxImportBatch = 5000

// DeviceService exposes serial records to the import/export collaborators.
// Appeal counts are only ever changed by appeal creation.
type DeviceService struct {
	devices repository.DeviceStore
	logger  *zap.Logger
}

// DeviceImportItem is one row of a bulk serial import.
type DeviceImportItem struct {
	Serial       string
	Status       domain.DeviceStatus
	ReturnStatus string
}

// DeviceImportResult summarizes a bulk import.
type DeviceImportResult struct {
	Received int `json:"received"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
}

// NewDeviceService builds the service.
func NewDeviceService(devices repository.DeviceStore, logger *zap.Logger) *DeviceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceService{devices: devices, logger: logger}
}

// GetDevice returns a device record by serial.
func (s *DeviceService) GetDevice(ctx context.Context, serial string) (*domain.Device, error) {
	return s.devices.GetDevice(ctx, normalizeSerial(serial))
}

// ListDevices lists device records.
func (s *DeviceService) ListDevices(ctx context.Context, status *domain.DeviceStatus, limit, offset int) ([]domain.Device, error) {
	return s.devices.ListDevices(ctx, repository.DeviceFilter{Status: status, Limit: limit, Offset: offset})
}

// Import creates the serials that are not registered yet. Duplicates within
// the batch and existing serials are skipped.
func (s *DeviceService) Import(ctx context.Context, items []DeviceImportItem) (*DeviceImportResult, error) {
	if len(items) == 0 {
		return nil, apperrors.NewValidationError("no devices to import", nil)
	}
	if len(items) > maxImportBatch {
		return nil, apperrors.NewValidationError("import batch too large", map[string]any{"max": maxImportBatch})
	}

	seen := make(map[string]bool, len(items))
	devices := make([]domain.Device, 0, len(items))
	for i, item := range items {
		serial := normalizeSerial(item.Serial)
		if serial == "" {
			return nil, apperrors.NewValidationError("serial required", map[string]any{"row": i})
		}
		status := item.Status
		if status == "" {
			status = domain.DeviceStatusActive
		}
		if !status.IsValid() {
			return nil, apperrors.NewValidationError("invalid device status", map[string]any{"row": i, "status": status})
		}
		if seen[serial] {
			continue
		}
		seen[serial] = true
		devices = append(devices, domain.Device{Serial: serial, Status: status, ReturnStatus: item.ReturnStatus})
	}

	created, err := s.devices.ImportDevices(ctx, devices)
	if err != nil {
		return nil, err
	}
	s.logger.Info("devices imported", zap.Int("received", len(items)), zap.Int("created", created))
	return &DeviceImportResult{Received: len(items), Created: created, Skipped: len(items) - created}, nil
}
