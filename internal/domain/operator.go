package domain

import "time"

// Operator models an authorized staff member who owns and resolves appeals.
type Operator struct {
	ID           string
	DisplayName  string
	TakenCount   int
	IsPrivileged bool
	PasswordHash string
	CreatedAt    time.Time
}

// Device represents one physical unit under support.
type Device struct {
	Serial       string
	FirstSeen    time.Time
	AppealCount  int
	Status       DeviceStatus
	ReturnStatus string
}

// DeviceStatus enumerates device lifecycle states.
type DeviceStatus string

const (
	DeviceStatusActive    DeviceStatus = "active"
	DeviceStatusDefective DeviceStatus = "defective"
	DeviceStatusReturned  DeviceStatus = "returned"
	DeviceStatusReplaced  DeviceStatus = "replaced"
)

// IsValid reports whether s is a known device status.
func (s DeviceStatus) IsValid() bool {
	switch s {
	case DeviceStatusActive, DeviceStatusDefective, DeviceStatusReturned, DeviceStatusReplaced:
		return true
	}
	return false
}

// ReturnStatusReturned annotates a device retired by the replacement workflow.
const ReturnStatusReturned = "returned"

// DeviceChange is a device write coupled to an appeal transition.
type DeviceChange struct {
	Serial       string
	Status       DeviceStatus
	ReturnStatus *string
}
