package domain

import "time"

// AppealResponse is one entry of an appeal's operator response log.
type AppealResponse struct {
	ID         int64
	AppealID   int64
	OperatorID string
	Text       string
	Media      []string
	CreatedAt  time.Time
}
