package worker

// alert_worker.go
// Processes discrepancy alert jobs from QueueAlert.
// Renders the reconciliation report PDF for the closed session and mails it
// to the configured supervisor address.

import (
	"context"
	"encoding/json"
	"fmt"

	"tillbox/internal/infra"
	"tillbox/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// AlertJobPayload is the job envelope sent to QueueAlert.
type AlertJobPayload struct {
	SessionID string `json:"session_id"`
}

// AlertWorker processes discrepancy alert jobs from QueueAlert.
type AlertWorker struct {
	repo        repository.DrawerRepository
	mailer      *infra.Mailer
	cb          *infra.CircuitBreaker
	alertEmail  string
	storagePath string
}

// NewAlertWorker creates an AlertWorker. The circuit breaker guards the SMTP
// relay so a dead mail server fast-fails instead of blocking the pool.
func NewAlertWorker(repo repository.DrawerRepository, mailer *infra.Mailer, cb *infra.CircuitBreaker, alertEmail, storagePath string) *AlertWorker {
	return &AlertWorker{
		repo:        repo,
		mailer:      mailer,
		cb:          cb,
		alertEmail:  alertEmail,
		storagePath: storagePath,
	}
}

// Process renders the session report and emails it. Unrecoverable failures go
// to the DLQ; the job is never retried inline.
func (w *AlertWorker) Process(ctx context.Context, rdb *redis.Client, queue string, raw json.RawMessage) {
	var payload AlertJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("alert_worker: invalid payload")
		return
	}
	if w.alertEmail == "" {
		log.Warn().Msg("alert_worker: no alert email configured — skipping")
		return
	}

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", payload.SessionID).Msg("alert_worker: bad session id")
		return
	}
	session, err := w.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		SendToDLQ(ctx, rdb, queue, "discrepancy_alert", raw, "session not found: "+err.Error(), 1)
		return
	}
	if session.Difference == nil {
		log.Warn().Str("session_id", session.ID.String()).Msg("alert_worker: session has no discrepancy — skipping")
		return
	}

	pdfPath, err := infra.GenerateSessionReportPDF(session, w.storagePath)
	if err != nil {
		SendToDLQ(ctx, rdb, queue, "discrepancy_alert", raw, "pdf generation failed: "+err.Error(), 1)
		return
	}

	subject := fmt.Sprintf("Drawer discrepancy — session %s", shortID(session.ID))
	body := fmt.Sprintf(
		"Session %s closed with a discrepancy of %s.\nSee the attached reconciliation report.",
		session.ID, session.Difference.StringFixed(2),
	)

	sendErr := w.cb.Execute(func() error {
		return w.mailer.SendReport(w.alertEmail, subject, body, pdfPath)
	})
	if sendErr != nil {
		SendToDLQ(ctx, rdb, queue, "discrepancy_alert", raw, "email delivery failed: "+sendErr.Error(), 1)
		return
	}
	log.Info().Str("session_id", session.ID.String()).Msg("alert_worker: discrepancy report sent")
}

func shortID(id uuid.UUID) string {
	s := id.String()
	return s[:8]
}
