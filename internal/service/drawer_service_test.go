package service_test

import (
	"context"
	"testing"
	"time"

	"tillbox/internal/apierror"
	"tillbox/internal/dto"
	"tillbox/internal/model"
	"tillbox/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── In-memory DrawerRepository ───────────────────────────────────────────────

type fakeDrawerRepo struct {
	sessions   map[uuid.UUID]*model.DrawerSession
	entries    []model.DrawerTransaction
	lastFilter dto.HistoryFilter
}

func newFakeDrawerRepo() *fakeDrawerRepo {
	return &fakeDrawerRepo{sessions: make(map[uuid.UUID]*model.DrawerSession)}
}

func (r *fakeDrawerRepo) DB() *gorm.DB { return nil }

func (r *fakeDrawerRepo) CreateSession(_ context.Context, s *model.DrawerSession) error {
	for _, existing := range r.sessions {
		if existing.OperatorID == s.OperatorID && existing.Status == model.SessionOpen {
			return gorm.ErrDuplicatedKey
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeDrawerRepo) FindOpenByOperator(_ context.Context, operatorID uuid.UUID) (*model.DrawerSession, error) {
	for _, s := range r.sessions {
		if s.OperatorID == operatorID && s.Status == model.SessionOpen {
			r.attachEntries(s)
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeDrawerRepo) FindSessionByID(_ context.Context, id uuid.UUID) (*model.DrawerSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r.attachEntries(s)
	return s, nil
}

func (r *fakeDrawerRepo) FindSessionForUpdate(_ *gorm.DB, id uuid.UUID) (*model.DrawerSession, error) {
	return r.FindSessionByID(context.Background(), id)
}

func (r *fakeDrawerRepo) UpdateSessionTx(_ *gorm.DB, s *model.DrawerSession) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeDrawerRepo) CreateTransaction(_ context.Context, t *model.DrawerTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	r.entries = append(r.entries, *t)
	return nil
}

func (r *fakeDrawerRepo) ListTransactions(_ context.Context, sessionID uuid.UUID) ([]model.DrawerTransaction, error) {
	var result []model.DrawerTransaction
	for _, e := range r.entries {
		if e.SessionID == sessionID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *fakeDrawerRepo) ListTransactionsTx(_ *gorm.DB, sessionID uuid.UUID) ([]model.DrawerTransaction, error) {
	return r.ListTransactions(context.Background(), sessionID)
}

func (r *fakeDrawerRepo) ListSessions(_ context.Context, filter dto.HistoryFilter) ([]model.DrawerSession, int64, error) {
	r.lastFilter = filter
	var result []model.DrawerSession
	for _, s := range r.sessions {
		if filter.OperatorID != "" && s.OperatorID.String() != filter.OperatorID {
			continue
		}
		r.attachEntries(s)
		result = append(result, *s)
	}
	return result, int64(len(result)), nil
}

func (r *fakeDrawerRepo) Aggregates(_ context.Context, filter dto.HistoryFilter) (*dto.HistoryStats, error) {
	stats := &dto.HistoryStats{
		TotalCashIn:    decimal.Zero,
		TotalCashOut:   decimal.Zero,
		TotalSales:     decimal.Zero,
		AvgDiscrepancy: decimal.Zero,
	}
	for _, s := range r.sessions {
		if filter.OperatorID != "" && s.OperatorID.String() != filter.OperatorID {
			continue
		}
		stats.TotalSessions++
		for _, e := range r.entries {
			if e.SessionID != s.ID {
				continue
			}
			switch e.Type {
			case model.TxCashIn:
				stats.TotalCashIn = stats.TotalCashIn.Add(e.Amount)
			case model.TxCashOut:
				stats.TotalCashOut = stats.TotalCashOut.Add(e.Amount)
			case model.TxSale:
				stats.TotalSales = stats.TotalSales.Add(e.Amount)
			}
		}
	}
	return stats, nil
}

func (r *fakeDrawerRepo) attachEntries(s *model.DrawerSession) {
	s.Transactions = nil
	for _, e := range r.entries {
		if e.SessionID == s.ID {
			s.Transactions = append(s.Transactions, e)
		}
	}
}

func newTestService(repo *fakeDrawerRepo) service.DrawerService {
	return service.NewDrawerService(repo, nil, nil, decimal.Zero)
}

// ── Open ─────────────────────────────────────────────────────────────────────

func TestOpen_CreatesSession(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()

	resp, err := svc.Open(context.Background(), operatorID, dto.OpenDrawerRequest{
		OpeningAmount: dec("100.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionOpen, resp.Status)
	assert.True(t, resp.OpeningAmount.Equal(dec("100.00")))
}

func TestOpen_SecondOpenConflictsWithExisting(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()

	first, err := svc.Open(context.Background(), operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("50.00")})
	require.Error(t, err)

	e := apierror.From(err)
	assert.Equal(t, apierror.KindConflict, e.Kind)
	assert.Equal(t, "You already have an open drawer. Please close it first.", e.Message)
	// The existing open session comes back as context.
	require.NotNil(t, e.Context)
	existing, ok := e.Context.(*dto.SessionResponse)
	require.True(t, ok)
	assert.Equal(t, first.ID, existing.ID)
}

func TestOpen_DifferentOperatorsIndependent(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)

	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)
	_, err = svc.Open(context.Background(), uuid.New(), dto.OpenDrawerRequest{OpeningAmount: dec("200.00")})
	require.NoError(t, err)
}

// ── Close ────────────────────────────────────────────────────────────────────

func TestClose_ComputesExpectedAndDifference(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()
	ctx := context.Background()

	opened, err := svc.Open(ctx, operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)

	_, err = svc.CashIn(ctx, operatorID, dto.CashMovementRequest{Amount: dec("50.00"), Reason: "change float"})
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, operatorID, dto.LedgerReferenceRequest{Amount: dec("25.50"), ReferenceID: 1001})
	require.NoError(t, err)

	sessionID := uuid.MustParse(opened.ID)
	closed, err := svc.Close(ctx, sessionID, dto.CloseDrawerRequest{ClosingAmount: dec("175.00")})
	require.NoError(t, err)

	assert.Equal(t, model.SessionClosed, closed.Status)
	require.NotNil(t, closed.ExpectedAmount)
	require.NotNil(t, closed.Difference)
	assert.True(t, closed.ExpectedAmount.Equal(dec("175.50")), "expected %s", closed.ExpectedAmount)
	assert.True(t, closed.Difference.Equal(dec("-0.50")), "difference %s", closed.Difference)
	assert.NotNil(t, closed.ClosedAt)
}

func TestClose_AlreadyClosedConflicts(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()
	ctx := context.Background()

	opened, err := svc.Open(ctx, operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	_, err = svc.Close(ctx, sessionID, dto.CloseDrawerRequest{ClosingAmount: dec("100.00")})
	require.NoError(t, err)

	_, err = svc.Close(ctx, sessionID, dto.CloseDrawerRequest{ClosingAmount: dec("100.00")})
	require.Error(t, err)
	e := apierror.From(err)
	assert.Equal(t, apierror.KindConflict, e.Kind)
	assert.Equal(t, "Drawer is already closed", e.Message)
}

func TestClose_UnknownSessionNotFound(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)

	_, err := svc.Close(context.Background(), uuid.New(), dto.CloseDrawerRequest{ClosingAmount: dec("10.00")})
	require.Error(t, err)
	assert.Equal(t, apierror.KindNotFound, apierror.From(err).Kind)
}

// ── Cash movements ───────────────────────────────────────────────────────────

func TestCashIn_RequiresOpenDrawer(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)

	_, err := svc.CashIn(context.Background(), uuid.New(), dto.CashMovementRequest{
		Amount: dec("10.00"), Reason: "float",
	})
	require.Error(t, err)
	e := apierror.From(err)
	assert.Equal(t, apierror.KindPrecondition, e.Kind)
	assert.Equal(t, "No open drawer found. Please open a drawer first.", e.Message)
}

func TestCashIn_ReturnsUpdatedBalance(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()
	ctx := context.Background()

	_, err := svc.Open(ctx, operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)

	resp, err := svc.CashIn(ctx, operatorID, dto.CashMovementRequest{Amount: dec("50.00"), Reason: "change float"})
	require.NoError(t, err)
	assert.True(t, resp.CurrentBalance.Equal(dec("150.00")), "balance %s", resp.CurrentBalance)
	assert.Equal(t, model.TxCashIn, resp.Transaction.Type)
}

func TestCashOut_InsufficientFundsLeavesLedgerUnchanged(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()
	ctx := context.Background()

	_, err := svc.Open(ctx, operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)

	before := len(repo.entries)
	_, err = svc.CashOut(ctx, operatorID, dto.CashMovementRequest{Amount: dec("200.00"), Reason: "bank deposit"})
	require.Error(t, err)
	e := apierror.From(err)
	assert.Equal(t, apierror.KindInsufficientFunds, e.Kind)
	assert.Equal(t, "Insufficient cash in drawer", e.Message)
	assert.Equal(t, before, len(repo.entries))
}

func TestCashOut_ExactBalanceAllowed(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()
	ctx := context.Background()

	_, err := svc.Open(ctx, operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)

	resp, err := svc.CashOut(ctx, operatorID, dto.CashMovementRequest{Amount: dec("100.00"), Reason: "bank deposit"})
	require.NoError(t, err)
	assert.True(t, resp.CurrentBalance.IsZero(), "balance %s", resp.CurrentBalance)
}

// ── Sales / refunds ──────────────────────────────────────────────────────────

func TestRecordSale_NoDrawerIsSilentNoop(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)

	resp, err := svc.RecordSale(context.Background(), uuid.New(), dto.LedgerReferenceRequest{
		Amount: dec("25.50"), ReferenceID: 42,
	})
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, repo.entries)
}

func TestRecordRefund_SubtractsFromBalance(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()
	ctx := context.Background()

	_, err := svc.Open(ctx, operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)

	resp, err := svc.RecordRefund(ctx, operatorID, dto.LedgerReferenceRequest{Amount: dec("10.25"), ReferenceID: 7})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, model.TxRefund, resp.Type)
	require.NotNil(t, resp.ReferenceID)
	assert.Equal(t, int64(7), *resp.ReferenceID)

	current, err := svc.Current(ctx, operatorID)
	require.NoError(t, err)
	require.NotNil(t, current.CurrentBalance)
	assert.True(t, current.CurrentBalance.Equal(dec("89.75")), "balance %s", current.CurrentBalance)
}

func TestTimestamps_SerializedAsUTC(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	operatorID := uuid.New()
	ctx := context.Background()

	opened, err := svc.Open(ctx, operatorID, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)

	// The fake stamps entries with local time.Now(); the wire format claims
	// UTC, so the serialized instant must equal the UTC clock, not the local
	// wall clock.
	movement, err := svc.CashIn(ctx, operatorID, dto.CashMovementRequest{Amount: dec("5.00"), Reason: "float"})
	require.NoError(t, err)

	openedAt, err := time.Parse(time.RFC3339, opened.OpenedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), openedAt, 5*time.Second)

	createdAt, err := time.Parse(time.RFC3339, movement.Transaction.CreatedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), createdAt, 5*time.Second)
}

// ── Current ──────────────────────────────────────────────────────────────────

func TestCurrent_NoDrawerReturnsNullData(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)

	resp, err := svc.Current(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, resp.Session)
	assert.Equal(t, "No open drawer found", resp.Message)
}

// ── Reporting ────────────────────────────────────────────────────────────────

func TestHistory_CashierAlwaysScopedToSelf(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	cashier := service.Caller{OperatorID: uuid.New(), Role: model.RoleCashier}

	// A cashier asking for someone else's sessions still only gets their own.
	_, _, err := svc.History(context.Background(), cashier, dto.HistoryFilter{
		OperatorID: uuid.New().String(), Limit: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, cashier.OperatorID.String(), repo.lastFilter.OperatorID)
}

func TestHistory_SupervisorFilterPassesThrough(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	supervisor := service.Caller{OperatorID: uuid.New(), Role: model.RoleSupervisor}
	target := uuid.New().String()

	_, _, err := svc.History(context.Background(), supervisor, dto.HistoryFilter{OperatorID: target, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, target, repo.lastFilter.OperatorID)
}

func TestSession_CashierCannotReadOthers(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := newTestService(repo)
	owner := uuid.New()
	ctx := context.Background()

	opened, err := svc.Open(ctx, owner, dto.OpenDrawerRequest{OpeningAmount: dec("100.00")})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	intruder := service.Caller{OperatorID: uuid.New(), Role: model.RoleCashier}
	_, err = svc.Session(ctx, intruder, sessionID)
	require.Error(t, err)
	assert.Equal(t, apierror.KindForbidden, apierror.From(err).Kind)

	supervisor := service.Caller{OperatorID: uuid.New(), Role: model.RoleSupervisor}
	resp, err := svc.Session(ctx, supervisor, sessionID)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, resp.ID)
}
