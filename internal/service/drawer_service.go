package service

import (
	"context"
	"errors"
	"time"

	"tillbox/internal/apierror"
	"tillbox/internal/dto"
	"tillbox/internal/model"
	"tillbox/internal/repository"
	"tillbox/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Caller is the authenticated identity threaded into every operation that has
// an authorization boundary. Identity resolution itself happens upstream (JWT
// middleware); the core never reads ambient state.
type Caller struct {
	OperatorID uuid.UUID
	Role       string
}

// Reporting reports whether the caller may read sessions across operators.
func (c Caller) Reporting() bool { return model.ReportingRole(c.Role) }

// SessionLocker serializes the cash-out check+insert per session. The Redis
// implementation is best-effort: when the lock cannot be obtained the caller
// proceeds unlocked (single-operator-per-session usage makes the race benign).
type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (release func(), err error)
}

type DrawerService interface {
	Current(ctx context.Context, operatorID uuid.UUID) (*dto.CurrentDrawerResponse, error)
	Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenDrawerRequest) (*dto.SessionResponse, error)
	Close(ctx context.Context, sessionID uuid.UUID, req dto.CloseDrawerRequest) (*dto.SessionResponse, error)
	CashIn(ctx context.Context, operatorID uuid.UUID, req dto.CashMovementRequest) (*dto.MovementResponse, error)
	CashOut(ctx context.Context, operatorID uuid.UUID, req dto.CashMovementRequest) (*dto.MovementResponse, error)
	// RecordSale / RecordRefund are best-effort: (nil, nil) means the operator
	// had no open drawer and nothing was recorded — success, not an error.
	RecordSale(ctx context.Context, operatorID uuid.UUID, req dto.LedgerReferenceRequest) (*dto.TransactionResponse, error)
	RecordRefund(ctx context.Context, operatorID uuid.UUID, req dto.LedgerReferenceRequest) (*dto.TransactionResponse, error)
	History(ctx context.Context, caller Caller, filter dto.HistoryFilter) (*dto.HistoryResponse, int64, error)
	Session(ctx context.Context, caller Caller, id uuid.UUID) (*dto.SessionResponse, error)
	Transactions(ctx context.Context, id uuid.UUID) ([]dto.TransactionResponse, error)
}

type drawerService struct {
	repo           repository.DrawerRepository
	locker         SessionLocker
	dispatcher     *worker.Dispatcher
	alertThreshold decimal.Decimal
}

func NewDrawerService(
	repo repository.DrawerRepository,
	locker SessionLocker,
	dispatcher *worker.Dispatcher,
	alertThreshold decimal.Decimal,
) DrawerService {
	return &drawerService{
		repo:           repo,
		locker:         locker,
		dispatcher:     dispatcher,
		alertThreshold: alertThreshold,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── Current ───────────────────────────────────────────────────────────────────

func (s *drawerService) Current(ctx context.Context, operatorID uuid.UUID) (*dto.CurrentDrawerResponse, error) {
	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil {
		return nil, apierror.Unexpected("Failed to fetch drawer", err)
	}
	if session == nil {
		return &dto.CurrentDrawerResponse{Message: "No open drawer found"}, nil
	}

	balance := CurrentBalance(session.OpeningAmount, session.Transactions)
	return &dto.CurrentDrawerResponse{
		Session:        sessionToResponse(session, true),
		CurrentBalance: &balance,
	}, nil
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (s *drawerService) Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenDrawerRequest) (*dto.SessionResponse, error) {
	// Guard: at most one open session per operator. The partial unique index
	// (operator_id WHERE status='open') closes the check-then-insert race.
	existing, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil {
		return nil, apierror.Unexpected("Failed to open drawer", err)
	}
	if existing != nil {
		return nil, apierror.ConflictWith(
			"You already have an open drawer. Please close it first.",
			sessionToResponse(existing, false),
		)
	}

	session := &model.DrawerSession{
		OperatorID:    operatorID,
		OpeningAmount: req.OpeningAmount,
		Notes:         req.Notes,
		Status:        model.SessionOpen,
		OpenedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a concurrent open race — surface the winner as context.
			if winner, ferr := s.repo.FindOpenByOperator(ctx, operatorID); ferr == nil && winner != nil {
				return nil, apierror.ConflictWith(
					"You already have an open drawer. Please close it first.",
					sessionToResponse(winner, false),
				)
			}
			return nil, apierror.Conflict("You already have an open drawer. Please close it first.")
		}
		return nil, apierror.Unexpected("Failed to open drawer", err)
	}

	return sessionToResponse(session, false), nil
}

// ── Close ─────────────────────────────────────────────────────────────────────
// Atomic: the row lock, the entry snapshot, the expected/difference computation
// and the status flip all happen inside one transaction. The loser of a
// concurrent double-close sees status != open under the lock and gets Conflict.

func (s *drawerService) Close(ctx context.Context, sessionID uuid.UUID, req dto.CloseDrawerRequest) (*dto.SessionResponse, error) {
	var closed *model.DrawerSession

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		session, err := s.findForUpdate(ctx, tx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierror.NotFound("Drawer not found")
			}
			return apierror.Unexpected("Failed to close drawer", err)
		}
		if session.Status == model.SessionClosed {
			return apierror.Conflict("Drawer is already closed")
		}

		entries, err := s.listInTx(ctx, tx, sessionID)
		if err != nil {
			return apierror.Unexpected("Failed to close drawer", err)
		}

		expected := CurrentBalance(session.OpeningAmount, entries)
		difference := req.ClosingAmount.Sub(expected)
		now := time.Now().UTC()

		session.ClosingAmount = &req.ClosingAmount
		session.ExpectedAmount = &expected
		session.Difference = &difference
		session.Status = model.SessionClosed
		session.ClosedAt = &now
		if req.Notes != nil {
			session.Notes = req.Notes
		}

		if err := s.updateInTx(ctx, tx, session); err != nil {
			return apierror.Unexpected("Failed to close drawer", err)
		}
		closed = session
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.maybeAlert(ctx, closed)
	return sessionToResponse(closed, false), nil
}

// maybeAlert enqueues a discrepancy alert when the absolute difference reaches
// the configured threshold. Best-effort — a queue failure never fails the close.
func (s *drawerService) maybeAlert(ctx context.Context, session *model.DrawerSession) {
	if s.dispatcher == nil || session.Difference == nil || s.alertThreshold.IsZero() {
		return
	}
	if session.Difference.Abs().LessThan(s.alertThreshold) {
		return
	}
	payload := worker.AlertJobPayload{SessionID: session.ID.String()}
	if err := s.dispatcher.EnqueueAlert(ctx, payload); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID.String()).
			Msg("failed to enqueue discrepancy alert")
	}
}

// ── Cash movements ────────────────────────────────────────────────────────────

func (s *drawerService) CashIn(ctx context.Context, operatorID uuid.UUID, req dto.CashMovementRequest) (*dto.MovementResponse, error) {
	session, err := s.requireOpen(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	entry := &model.DrawerTransaction{
		SessionID:  session.ID,
		OperatorID: operatorID,
		Type:       model.TxCashIn,
		Amount:     req.Amount,
		Reason:     &reason,
		Notes:      req.Notes,
	}
	if err := s.repo.CreateTransaction(ctx, entry); err != nil {
		return nil, apierror.Unexpected("Failed to record cash in", err)
	}

	balance := CurrentBalance(session.OpeningAmount, append(session.Transactions, *entry))
	return &dto.MovementResponse{
		Transaction:    txToResponse(entry),
		CurrentBalance: balance,
	}, nil
}

func (s *drawerService) CashOut(ctx context.Context, operatorID uuid.UUID, req dto.CashMovementRequest) (*dto.MovementResponse, error) {
	session, err := s.requireOpen(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	// Serialize the check+insert per session so two concurrent cash-outs can't
	// both pass the sufficiency check. Degrades to unlocked when Redis is down.
	if s.locker != nil {
		if release, lockErr := s.locker.Lock(ctx, session.ID.String()); lockErr == nil {
			defer release()
		} else {
			log.Warn().Err(lockErr).Str("session_id", session.ID.String()).
				Msg("could not obtain drawer lock; proceeding without lock")
		}
		// Re-read entries under the lock — a cash-out may have landed meanwhile.
		if session, err = s.requireOpen(ctx, operatorID); err != nil {
			return nil, err
		}
	}

	balance := CurrentBalance(session.OpeningAmount, session.Transactions)
	if req.Amount.GreaterThan(balance) {
		return nil, apierror.InsufficientFunds("Insufficient cash in drawer")
	}

	reason := req.Reason
	entry := &model.DrawerTransaction{
		SessionID:  session.ID,
		OperatorID: operatorID,
		Type:       model.TxCashOut,
		Amount:     req.Amount,
		Reason:     &reason,
		Notes:      req.Notes,
	}
	if err := s.repo.CreateTransaction(ctx, entry); err != nil {
		return nil, apierror.Unexpected("Failed to record cash out", err)
	}

	return &dto.MovementResponse{
		Transaction:    txToResponse(entry),
		CurrentBalance: balance.Sub(req.Amount),
	}, nil
}

// ── Sales / refunds ───────────────────────────────────────────────────────────
// Drawer tracking is optional for sales and refunds: with no open drawer the
// document simply isn't mirrored into any ledger.

func (s *drawerService) RecordSale(ctx context.Context, operatorID uuid.UUID, req dto.LedgerReferenceRequest) (*dto.TransactionResponse, error) {
	return s.recordReference(ctx, operatorID, model.TxSale, req)
}

func (s *drawerService) RecordRefund(ctx context.Context, operatorID uuid.UUID, req dto.LedgerReferenceRequest) (*dto.TransactionResponse, error) {
	return s.recordReference(ctx, operatorID, model.TxRefund, req)
}

func (s *drawerService) recordReference(ctx context.Context, operatorID uuid.UUID, kind string, req dto.LedgerReferenceRequest) (*dto.TransactionResponse, error) {
	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil {
		return nil, apierror.Unexpected("Failed to record "+kind, err)
	}
	if session == nil {
		return nil, nil
	}

	refID := req.ReferenceID
	refType := kind
	entry := &model.DrawerTransaction{
		SessionID:     session.ID,
		OperatorID:    operatorID,
		Type:          kind,
		Amount:        req.Amount,
		ReferenceID:   &refID,
		ReferenceType: &refType,
	}
	if err := s.repo.CreateTransaction(ctx, entry); err != nil {
		return nil, apierror.Unexpected("Failed to record "+kind, err)
	}
	resp := txToResponse(entry)
	return &resp, nil
}

// ── Reporting ─────────────────────────────────────────────────────────────────

func (s *drawerService) History(ctx context.Context, caller Caller, filter dto.HistoryFilter) (*dto.HistoryResponse, int64, error) {
	// Non-reporting roles are always scoped to themselves, whatever they ask for.
	if !caller.Reporting() {
		filter.OperatorID = caller.OperatorID.String()
	}

	sessions, total, err := s.repo.ListSessions(ctx, filter)
	if err != nil {
		return nil, 0, apierror.Unexpected("Failed to fetch drawer history", err)
	}
	stats, err := s.repo.Aggregates(ctx, filter)
	if err != nil {
		return nil, 0, apierror.Unexpected("Failed to fetch drawer history", err)
	}

	drawers := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		drawers = append(drawers, *sessionToResponse(&sessions[i], true))
	}
	return &dto.HistoryResponse{Drawers: drawers, Stats: *stats}, total, nil
}

func (s *drawerService) Session(ctx context.Context, caller Caller, id uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.NotFound("Drawer not found")
		}
		return nil, apierror.Unexpected("Failed to fetch drawer", err)
	}
	if !caller.Reporting() && session.OperatorID != caller.OperatorID {
		return nil, apierror.Forbidden("Unauthorized")
	}
	return sessionToResponse(session, true), nil
}

func (s *drawerService) Transactions(ctx context.Context, id uuid.UUID) ([]dto.TransactionResponse, error) {
	entries, err := s.repo.ListTransactions(ctx, id)
	if err != nil {
		return nil, apierror.Unexpected("Failed to fetch transactions", err)
	}
	resp := make([]dto.TransactionResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, txToResponse(&entries[i]))
	}
	return resp, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// requireOpen loads the operator's open session or fails with Precondition.
func (s *drawerService) requireOpen(ctx context.Context, operatorID uuid.UUID) (*model.DrawerSession, error) {
	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil {
		return nil, apierror.Unexpected("Failed to fetch drawer", err)
	}
	if session == nil {
		return nil, apierror.Precondition("No open drawer found. Please open a drawer first.")
	}
	return session, nil
}

// findForUpdate prefers the row-locked read inside a real transaction and
// falls back to the plain read in unit-test mode (nil tx).
func (s *drawerService) findForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.DrawerSession, error) {
	if tx == nil {
		return s.repo.FindSessionByID(ctx, id)
	}
	return s.repo.FindSessionForUpdate(tx, id)
}

func (s *drawerService) listInTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) ([]model.DrawerTransaction, error) {
	if tx == nil {
		return s.repo.ListTransactions(ctx, id)
	}
	return s.repo.ListTransactionsTx(tx, id)
}

func (s *drawerService) updateInTx(ctx context.Context, tx *gorm.DB, session *model.DrawerSession) error {
	if tx == nil {
		return s.repo.UpdateSessionTx(s.repo.DB(), session)
	}
	return s.repo.UpdateSessionTx(tx, session)
}

const timeLayout = "2006-01-02T15:04:05Z"

// stampUTC formats a timestamp for the wire. The layout's Z suffix promises
// UTC, so the value must actually be converted first — GORM hands back
// whatever zone the driver used.
func stampUTC(t time.Time) string { return t.UTC().Format(timeLayout) }

func sessionToResponse(s *model.DrawerSession, includeTx bool) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:             s.ID.String(),
		OperatorID:     s.OperatorID.String(),
		OpeningAmount:  s.OpeningAmount,
		ClosingAmount:  s.ClosingAmount,
		ExpectedAmount: s.ExpectedAmount,
		Difference:     s.Difference,
		Status:         s.Status,
		Notes:          s.Notes,
		OpenedAt:       stampUTC(s.OpenedAt),
	}
	if s.ClosedAt != nil {
		t := stampUTC(*s.ClosedAt)
		resp.ClosedAt = &t
	}
	if s.Operator != nil {
		resp.Operator = &dto.OperatorSummary{
			ID:       s.Operator.ID.String(),
			Name:     s.Operator.Name,
			Username: s.Operator.Username,
		}
	}
	if includeTx {
		resp.Transactions = make([]dto.TransactionResponse, 0, len(s.Transactions))
		for i := range s.Transactions {
			resp.Transactions = append(resp.Transactions, txToResponse(&s.Transactions[i]))
		}
	}
	return resp
}

func txToResponse(t *model.DrawerTransaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:            t.ID.String(),
		SessionID:     t.SessionID.String(),
		OperatorID:    t.OperatorID.String(),
		Type:          t.Type,
		Amount:        t.Amount,
		Reason:        t.Reason,
		ReferenceID:   t.ReferenceID,
		ReferenceType: t.ReferenceType,
		Notes:         t.Notes,
		CreatedAt:     stampUTC(t.CreatedAt),
	}
}
