//go:build integration

package repository_test

// Integration coverage for the SQL paths the unit fakes cannot reach:
// the partial unique index on open sessions, the history date filter, and
// the whole-filtered-set aggregates.
// Run with: go test -tags integration ./internal/repository/... -v

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tillbox/internal/dto"
	"tillbox/internal/infra"
	"tillbox/internal/model"
	"tillbox/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal   { return decimal.RequireFromString(s) }
func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("tillbox_test"),
		tcPostgres.WithUsername("tillbox"),
		tcPostgres.WithPassword("tillbox"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// NewDatabase runs AutoMigrate plus the schema patches (partial index).
	db, err := infra.NewDatabase(dsn)
	require.NoError(t, err)
	return db
}

var operatorSeq int

func seedOperator(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	operatorSeq++
	op := &model.Operator{
		Username:     fmt.Sprintf("cashier%d@it.test", operatorSeq),
		Name:         fmt.Sprintf("Cashier %d", operatorSeq),
		PasswordHash: "x",
		Role:         model.RoleCashier,
		Active:       true,
	}
	require.NoError(t, db.Create(op).Error)
	return op.ID
}

func openSession(t *testing.T, repo repository.DrawerRepository, operatorID uuid.UUID, opening string) *model.DrawerSession {
	t.Helper()
	s := &model.DrawerSession{
		OperatorID:    operatorID,
		OpeningAmount: dec(opening),
		Status:        model.SessionOpen,
		OpenedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.CreateSession(context.Background(), s))
	return s
}

func addEntry(t *testing.T, repo repository.DrawerRepository, s *model.DrawerSession, kind, amount string) {
	t.Helper()
	reason := "it-entry"
	require.NoError(t, repo.CreateTransaction(context.Background(), &model.DrawerTransaction{
		SessionID:  s.ID,
		OperatorID: s.OperatorID,
		Type:       kind,
		Amount:     dec(amount),
		Reason:     &reason,
	}))
}

func closeSession(t *testing.T, db *gorm.DB, repo repository.DrawerRepository, s *model.DrawerSession, closing, expected, difference string) {
	t.Helper()
	now := time.Now().UTC()
	s.ClosingAmount = decPtr(closing)
	s.ExpectedAmount = decPtr(expected)
	s.Difference = decPtr(difference)
	s.Status = model.SessionClosed
	s.ClosedAt = &now
	require.NoError(t, repo.UpdateSessionTx(db, s))
}

func TestOpenSessionPartialUniqueIndex(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewDrawerRepository(db)
	ctx := context.Background()
	operatorID := seedOperator(t, db)

	first := openSession(t, repo, operatorID, "100.00")

	// Second open session for the same operator hits the partial index and
	// surfaces as the translated duplicate-key error.
	err := repo.CreateSession(ctx, &model.DrawerSession{
		OperatorID:    operatorID,
		OpeningAmount: dec("50.00"),
		Status:        model.SessionOpen,
		OpenedAt:      time.Now().UTC(),
	})
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// Another operator is unaffected.
	openSession(t, repo, seedOperator(t, db), "200.00")

	// After the first session closes, the operator may open again.
	closeSession(t, db, repo, first, "100.00", "100.00", "0.00")
	openSession(t, repo, operatorID, "80.00")
}

func TestAggregatesOverFilteredSet(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewDrawerRepository(db)
	ctx := context.Background()

	op1 := seedOperator(t, db)
	op2 := seedOperator(t, db)

	// op1: closed session — 100 open, +50 cash_in, +25.50 sale, -30 cash_out,
	// counted 145.00 against expected 145.50.
	s1 := openSession(t, repo, op1, "100.00")
	addEntry(t, repo, s1, model.TxCashIn, "50.00")
	addEntry(t, repo, s1, model.TxSale, "25.50")
	addEntry(t, repo, s1, model.TxCashOut, "30.00")
	closeSession(t, db, repo, s1, "145.00", "145.50", "-0.50")

	// op1: second closed session with a positive discrepancy.
	s2 := openSession(t, repo, op1, "10.00")
	addEntry(t, repo, s2, model.TxCashIn, "5.00")
	closeSession(t, db, repo, s2, "17.50", "15.00", "2.50")

	// op2: still open, with a refund (never part of the stats totals).
	s3 := openSession(t, repo, op2, "40.00")
	addEntry(t, repo, s3, model.TxRefund, "10.00")
	addEntry(t, repo, s3, model.TxSale, "4.50")

	t.Run("unfiltered totals and closed-only average", func(t *testing.T) {
		stats, err := repo.Aggregates(ctx, dto.HistoryFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, stats.TotalSessions)
		assert.True(t, stats.TotalCashIn.Equal(dec("55.00")), "cashIn %s", stats.TotalCashIn)
		assert.True(t, stats.TotalCashOut.Equal(dec("30.00")), "cashOut %s", stats.TotalCashOut)
		assert.True(t, stats.TotalSales.Equal(dec("30.00")), "sales %s", stats.TotalSales)
		// (-0.50 + 2.50) / 2 — the open session contributes nothing.
		assert.True(t, stats.AvgDiscrepancy.Equal(dec("1.00")), "avg %s", stats.AvgDiscrepancy)
	})

	t.Run("operator filter scopes the whole set", func(t *testing.T) {
		stats, err := repo.Aggregates(ctx, dto.HistoryFilter{OperatorID: op2.String()})
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats.TotalSessions)
		assert.True(t, stats.TotalCashIn.IsZero())
		assert.True(t, stats.TotalSales.Equal(dec("4.50")))
		assert.True(t, stats.AvgDiscrepancy.IsZero(), "no closed sessions for op2")
	})

	t.Run("date filter excludes everything outside the range", func(t *testing.T) {
		tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
		stats, err := repo.Aggregates(ctx, dto.HistoryFilter{StartDate: tomorrow})
		require.NoError(t, err)
		assert.EqualValues(t, 0, stats.TotalSessions)
		assert.True(t, stats.TotalCashIn.IsZero())
		assert.True(t, stats.AvgDiscrepancy.IsZero())

		sessions, total, err := repo.ListSessions(ctx, dto.HistoryFilter{StartDate: tomorrow, Limit: 20})
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
		assert.Empty(t, sessions)
	})

	t.Run("net ledger movement reconciles with session balances", func(t *testing.T) {
		// Sum of final balances: closed sessions contribute expectedAmount,
		// open ones opening + their own entries.
		stats, err := repo.Aggregates(ctx, dto.HistoryFilter{})
		require.NoError(t, err)

		sessions, total, err := repo.ListSessions(ctx, dto.HistoryFilter{Limit: 20})
		require.NoError(t, err)
		require.EqualValues(t, 3, total)

		openingSum := decimal.Zero
		balanceSum := decimal.Zero
		for i := range sessions {
			s := sessions[i]
			openingSum = openingSum.Add(s.OpeningAmount)
			if s.Status == model.SessionClosed {
				balanceSum = balanceSum.Add(*s.ExpectedAmount)
				continue
			}
			b := s.OpeningAmount
			for _, e := range s.Transactions {
				switch e.Type {
				case model.TxCashIn, model.TxSale:
					b = b.Add(e.Amount)
				case model.TxCashOut, model.TxRefund:
					b = b.Sub(e.Amount)
				}
			}
			balanceSum = balanceSum.Add(b)
		}

		// refunds are absent from the stats block, so subtract them explicitly
		refundSum := dec("10.00")
		net := stats.TotalCashIn.Add(stats.TotalSales).Sub(stats.TotalCashOut).Sub(refundSum)
		assert.True(t, openingSum.Add(net).Equal(balanceSum),
			"openings %s + net %s != balances %s", openingSum, net, balanceSum)
	})
}

func TestListSessionsOrderingAndPagination(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewDrawerRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		op := seedOperator(t, db)
		s := openSession(t, repo, op, "10.00")
		closeSession(t, db, repo, s, "10.00", "10.00", "0.00")
	}

	page, total, err := repo.ListSessions(ctx, dto.HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page, 2)

	rest, _, err := repo.ListSessions(ctx, dto.HistoryFilter{Skip: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
