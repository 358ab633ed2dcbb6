package models

import "time"

// SMSStatus tracks the delivery state of a logged message.
type SMSStatus string

const (
	SMSStatusPending SMSStatus = "PENDING"
	SMSStatusSent    SMSStatus = "SENT"
	SMSStatusFailed  SMSStatus = "FAILED"
)

// AlertType selects the template used for a guardian progress alert.
type AlertType string

const (
	AlertProgress AlertType = "progress"
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

// SMSLog records every outbound message attempt.
type SMSLog struct {
	ID        string    `db:"id" json:"id"`
	To        string    `db:"recipient" json:"to"`
	Body      string    `db:"body" json:"body"`
	Status    SMSStatus `db:"status" json:"status"`
	GatewayID *string   `db:"gateway_id" json:"gateway_id,omitempty"`
	Error     *string   `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProgressAlertRequest asks for a guardian notification about a student.
type ProgressAlertRequest struct {
	StudentID     string    `json:"student_id" validate:"required"`
	MessageType   AlertType `json:"message_type" validate:"omitempty,oneof=progress warning critical"`
	CustomMessage string    `json:"custom_message"`
}
