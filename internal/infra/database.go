package infra

import (
	"fmt"

	"tillbox/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate,
// then applies the idempotent SQL patches GORM cannot express (the partial
// unique index enforcing one open session per operator).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Map driver unique-violation errors to gorm.ErrDuplicatedKey so the
		// service layer can detect open-session races without SQLSTATE parsing.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates/updates all tables and applies schema patches.
// Also used by integration tests against a scratch database.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Operator{},
		&model.DrawerSession{},
		&model.DrawerTransaction{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate
// cannot handle on its own. Each statement uses IF NOT EXISTS semantics so
// re-running on an already-patched DB is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// One open session per operator. The application check-then-insert in
		// the service layer leaves a race window; this index makes the loser
		// of a concurrent double-open fail with a unique violation.
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_drawer_sessions_operator_open
		     ON drawer_sessions (operator_id)
		     WHERE status = 'open'`,
		// Ledger sums at close and in history aggregates group by type.
		`CREATE INDEX IF NOT EXISTS idx_drawer_transactions_session_type
		     ON drawer_transactions (session_id, type)`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
