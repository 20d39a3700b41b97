package repository

import (
	"context"
	"errors"

	"tillbox/internal/dto"
	"tillbox/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DrawerRepository interface {
	CreateSession(ctx context.Context, s *model.DrawerSession) error
	// FindOpenByOperator returns (nil, nil) when the operator has no open
	// session — absence is a normal state, not an error.
	FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*model.DrawerSession, error)
	FindSessionByID(ctx context.Context, id uuid.UUID) (*model.DrawerSession, error)
	// FindSessionForUpdate locks the session row for the duration of tx.
	FindSessionForUpdate(tx *gorm.DB, id uuid.UUID) (*model.DrawerSession, error)
	UpdateSessionTx(tx *gorm.DB, s *model.DrawerSession) error
	CreateTransaction(ctx context.Context, t *model.DrawerTransaction) error
	ListTransactions(ctx context.Context, sessionID uuid.UUID) ([]model.DrawerTransaction, error)
	ListTransactionsTx(tx *gorm.DB, sessionID uuid.UUID) ([]model.DrawerTransaction, error)
	ListSessions(ctx context.Context, filter dto.HistoryFilter) ([]model.DrawerSession, int64, error)
	Aggregates(ctx context.Context, filter dto.HistoryFilter) (*dto.HistoryStats, error)
	DB() *gorm.DB // exposes the DB for transaction creation in the service layer
}

type drawerRepo struct{ db *gorm.DB }

func NewDrawerRepository(db *gorm.DB) DrawerRepository { return &drawerRepo{db: db} }

func (r *drawerRepo) DB() *gorm.DB { return r.db }

func (r *drawerRepo) CreateSession(ctx context.Context, s *model.DrawerSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *drawerRepo) FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*model.DrawerSession, error) {
	var s model.DrawerSession
	err := r.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("operator_id = ? AND status = ?", operatorID, model.SessionOpen).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *drawerRepo) FindSessionByID(ctx context.Context, id uuid.UUID) (*model.DrawerSession, error) {
	var s model.DrawerSession
	err := r.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Operator").
		First(&s, id).Error
	return &s, err
}

func (r *drawerRepo) FindSessionForUpdate(tx *gorm.DB, id uuid.UUID) (*model.DrawerSession, error) {
	var s model.DrawerSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error
	return &s, err
}

func (r *drawerRepo) UpdateSessionTx(tx *gorm.DB, s *model.DrawerSession) error {
	return tx.Save(s).Error
}

func (r *drawerRepo) CreateTransaction(ctx context.Context, t *model.DrawerTransaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *drawerRepo) ListTransactions(ctx context.Context, sessionID uuid.UUID) ([]model.DrawerTransaction, error) {
	var txs []model.DrawerTransaction
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&txs).Error
	return txs, err
}

func (r *drawerRepo) ListTransactionsTx(tx *gorm.DB, sessionID uuid.UUID) ([]model.DrawerTransaction, error) {
	var txs []model.DrawerTransaction
	err := tx.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&txs).Error
	return txs, err
}

// filteredSessions applies the history filter (date range + operator scope).
func (r *drawerRepo) filteredSessions(ctx context.Context, filter dto.HistoryFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.DrawerSession{})
	if filter.StartDate != "" {
		q = q.Where("DATE(created_at) >= ?", filter.StartDate)
	}
	if filter.EndDate != "" {
		q = q.Where("DATE(created_at) <= ?", filter.EndDate)
	}
	if filter.OperatorID != "" {
		q = q.Where("operator_id = ?", filter.OperatorID)
	}
	return q
}

func (r *drawerRepo) ListSessions(ctx context.Context, filter dto.HistoryFilter) ([]model.DrawerSession, int64, error) {
	var sessions []model.DrawerSession
	var total int64

	q := r.filteredSessions(ctx, filter)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Operator").
		Order("created_at DESC").
		Offset(filter.Skip).Limit(filter.Limit).
		Find(&sessions).Error
	return sessions, total, err
}

// Aggregates computes the stats block over the ENTIRE filtered set in SQL,
// never over the returned page.
func (r *drawerRepo) Aggregates(ctx context.Context, filter dto.HistoryFilter) (*dto.HistoryStats, error) {
	stats := &dto.HistoryStats{
		TotalCashIn:    decimal.Zero,
		TotalCashOut:   decimal.Zero,
		TotalSales:     decimal.Zero,
		AvgDiscrepancy: decimal.Zero,
	}

	if err := r.filteredSessions(ctx, filter).Count(&stats.TotalSessions).Error; err != nil {
		return nil, err
	}

	type typeSum struct {
		Type string
		Sum  decimal.Decimal
	}
	var sums []typeSum
	sub := r.filteredSessions(ctx, filter).Select("id")
	err := r.db.WithContext(ctx).
		Model(&model.DrawerTransaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS sum").
		Where("session_id IN (?)", sub).
		Group("type").
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	for _, s := range sums {
		switch s.Type {
		case model.TxCashIn:
			stats.TotalCashIn = s.Sum
		case model.TxCashOut:
			stats.TotalCashOut = s.Sum
		case model.TxSale:
			stats.TotalSales = s.Sum
		}
	}

	// Average discrepancy across closed sessions only; zero when none closed.
	var row struct{ Avg decimal.Decimal }
	err = r.filteredSessions(ctx, filter).
		Where("status = ?", model.SessionClosed).
		Select("COALESCE(AVG(difference), 0) AS avg").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	stats.AvgDiscrepancy = row.Avg.Round(2)
	return stats, nil
}
