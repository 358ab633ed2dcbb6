package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-assign-api/internal/models"
)

// SMSRepository persists the outbound message log.
type SMSRepository struct {
	db *sqlx.DB
}

// NewSMSRepository constructs the repository.
func NewSMSRepository(db *sqlx.DB) *SMSRepository {
	return &SMSRepository{db: db}
}

// Create inserts a log row, normally in PENDING state before dispatch.
func (r *SMSRepository) Create(ctx context.Context, log *models.SMSLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	log.UpdatedAt = now
	const query = `INSERT INTO sms_log (id, recipient, body, status, gateway_id, error, created_at, updated_at)
		VALUES (:id, :recipient, :body, :status, :gateway_id, :error, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create sms log: %w", err)
	}
	return nil
}

// UpdateStatus records the delivery outcome reported by the gateway.
func (r *SMSRepository) UpdateStatus(ctx context.Context, id string, status models.SMSStatus, gatewayID, sendErr *string) error {
	const query = `UPDATE sms_log SET status = $2, gateway_id = $3, error = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, gatewayID, sendErr, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update sms status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated sms rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns recent log rows, newest first.
func (r *SMSRepository) List(ctx context.Context, limit, offset int) ([]models.SMSLog, error) {
	const query = `SELECT id, recipient, body, status, gateway_id, error, created_at, updated_at
		FROM sms_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	var logs []models.SMSLog
	if err := r.db.SelectContext(ctx, &logs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list sms logs: %w", err)
	}
	return logs, nil
}
