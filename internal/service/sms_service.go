package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-assign-api/internal/authz"
	"github.com/noah-isme/school-assign-api/internal/models"
	"github.com/noah-isme/school-assign-api/pkg/config"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
	"github.com/noah-isme/school-assign-api/pkg/jobs"
)

type smsRepository interface {
	Create(ctx context.Context, log *models.SMSLog) error
	UpdateStatus(ctx context.Context, id string, status models.SMSStatus, gatewayID, sendErr *string) error
	List(ctx context.Context, limit, offset int) ([]models.SMSLog, error)
}

type smsUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Sender delivers a single message to the gateway and returns a provider
// message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizeMSISDN canonicalizes a Bangladeshi mobile number into +880
// international form. Accepted inputs: 01XXXXXXXXX, 8801XXXXXXXXX and
// +8801XXXXXXXXX, with spaces and dashes ignored.
func NormalizeMSISDN(raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "01"):
		return "+880" + digits[1:], nil
	case len(digits) == 13 && strings.HasPrefix(digits, "8801"):
		return "+" + digits, nil
	}
	return "", fmt.Errorf("unrecognized mobile number %q", raw)
}

// GatewaySender posts messages to an HTTP SMS gateway.
type GatewaySender struct {
	client   *http.Client
	url      string
	apiKey   string
	senderID string
}

// NewGatewaySender builds the HTTP sender from config.
func NewGatewaySender(cfg config.SMSConfig) *GatewaySender {
	return &GatewaySender{
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		url:      cfg.GatewayURL,
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
	}
}

// Send submits one message and returns the gateway message id.
func (g *GatewaySender) Send(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"api_key":   g.apiKey,
		"sender_id": g.senderID,
		"to":        to,
		"message":   body,
	})
	if err != nil {
		return "", fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.MessageID == "" {
		return uuid.NewString(), nil
	}
	return out.MessageID, nil
}

// dryRunSender logs instead of delivering. Used when SMS_DRY_RUN is set.
type dryRunSender struct {
	logger *zap.Logger
}

func (d dryRunSender) Send(_ context.Context, to, body string) (string, error) {
	d.logger.Info("sms dry run", zap.String("to", to), zap.String("body", body))
	return "dry-run-" + uuid.NewString(), nil
}

// NewDryRunSender builds a sender that only logs.
func NewDryRunSender(logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return dryRunSender{logger: logger}
}

type smsJobPayload struct {
	LogID string
	To    string
	Body  string
}

// SMSService sends progress alerts to student guardians. Dispatch is
// asynchronous: the log row is written synchronously, delivery happens on
// the worker queue.
type SMSService struct {
	repo      smsRepository
	users     smsUserRepository
	sender    Sender
	queue     *jobs.Queue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	enabled   bool
}

// NewSMSService constructs the SMS service and its dispatch queue. Call
// Start before enqueueing and Stop on shutdown.
func NewSMSService(repo smsRepository, users smsUserRepository, sender Sender, cfg config.SMSConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SMSService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SMSService{
		repo:      repo,
		users:     users,
		sender:    sender,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		enabled:   cfg.Enabled,
	}
	s.queue = jobs.NewQueue("sms-dispatch", s.dispatch, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *SMSService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *SMSService) Stop() {
	s.queue.Stop()
}

func alertBody(studentName string, alertType models.AlertType, custom string) string {
	if custom != "" {
		return custom
	}
	switch alertType {
	case models.AlertWarning:
		return fmt.Sprintf("Dear guardian, %s needs attention in recent assessments. Please contact the school.", studentName)
	case models.AlertCritical:
		return fmt.Sprintf("Dear guardian, %s is performing critically below expectations. Please meet the class teacher urgently.", studentName)
	default:
		return fmt.Sprintf("Dear guardian, a progress update for %s is available. Please check with the school.", studentName)
	}
}

// SendProgressAlert queues a guardian notification for the student. Teachers
// and admins may send; the guardian contact comes from the student record.
func (s *SMSService) SendProgressAlert(ctx context.Context, principal models.Principal, req models.ProgressAlertRequest) (*models.SMSLog, error) {
	if err := authz.Decide(principal, authz.ActionSendProgressAlert, authz.Target{StudentID: req.StudentID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alert payload")
	}
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sms notifications are disabled")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if student.GuardianPrimaryContact == nil || *student.GuardianPrimaryContact == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no guardian contact on file")
	}

	to, err := NormalizeMSISDN(*student.GuardianPrimaryContact)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "guardian contact is not a valid mobile number")
	}

	log := &models.SMSLog{
		To:     to,
		Body:   alertBody(student.FullName, req.MessageType, req.CustomMessage),
		Status: models.SMSStatusPending,
	}
	if err := s.repo.Create(ctx, log); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record sms")
	}

	if err := s.queue.Enqueue(jobs.Job{
		ID:      log.ID,
		Type:    "progress-alert",
		Payload: smsJobPayload{LogID: log.ID, To: log.To, Body: log.Body},
	}); err != nil {
		s.logger.Warn("failed to enqueue sms", zap.String("log_id", log.ID), zap.Error(err))
	}
	return log, nil
}

// History returns recent delivery log rows, admin only.
func (s *SMSService) History(ctx context.Context, principal models.Principal, limit, offset int) ([]models.SMSLog, error) {
	if err := authz.Decide(principal, authz.ActionViewSMSHistory, authz.Target{}); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	logs, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sms history")
	}
	return logs, nil
}

// dispatch is the queue handler: it delivers one message and records the
// outcome on the log row. A returned error triggers the queue's retry.
func (s *SMSService) dispatch(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(smsJobPayload)
	if !ok {
		s.logger.Error("sms job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	gatewayID, err := s.sender.Send(ctx, payload.To, payload.Body)
	if err != nil {
		reason := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, payload.LogID, models.SMSStatusFailed, nil, &reason); updateErr != nil {
			s.logger.Warn("failed to mark sms failed", zap.String("log_id", payload.LogID), zap.Error(updateErr))
		}
		s.metrics.RecordSMSDispatch("failed")
		return err
	}

	if err := s.repo.UpdateStatus(ctx, payload.LogID, models.SMSStatusSent, &gatewayID, nil); err != nil {
		s.logger.Warn("failed to mark sms sent", zap.String("log_id", payload.LogID), zap.Error(err))
	}
	s.metrics.RecordSMSDispatch("sent")
	return nil
}
