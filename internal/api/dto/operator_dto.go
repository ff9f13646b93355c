package dto

import (
	"time"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

// OperatorLoginRequest payload.
type OperatorLoginRequest struct {
	OperatorID string `json:"operator_id"`
	Password   string `json:"password"`
}

// IntegrationTokenRequest names the collaborator receiving a token.
type IntegrationTokenRequest struct {
	Name string `json:"name"`
}

// AuthResponse contains token info.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateOperatorRequest payload.
type CreateOperatorRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Privileged  bool   `json:"is_privileged"`
}

// OperatorResponse DTO.
type OperatorResponse struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	TakenCount   int       `json:"taken_count"`
	IsPrivileged bool      `json:"is_privileged"`
	CreatedAt    time.Time `json:"created_at"`
}

// DeviceResponse DTO.
type DeviceResponse struct {
	Serial       string              `json:"serial"`
	FirstSeen    time.Time           `json:"first_seen"`
	AppealCount  int                 `json:"appeal_count"`
	Status       domain.DeviceStatus `json:"status"`
	ReturnStatus string              `json:"return_status"`
}

// DeviceImportRequest is a bulk serial import.
type DeviceImportRequest struct {
	Devices []DeviceImportEntry `json:"devices"`
}

// DeviceImportEntry is one imported serial.
type DeviceImportEntry struct {
	Serial       string              `json:"serial"`
	Status       domain.DeviceStatus `json:"status"`
	ReturnStatus string              `json:"return_status"`
}
