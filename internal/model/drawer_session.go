package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session status values.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// Transaction types.
const (
	TxCashIn  = "cash_in"
	TxCashOut = "cash_out"
	TxSale    = "sale"
	TxRefund  = "refund"
)

// DrawerSession represents the lifecycle of a cash drawer session.
// Status: "open" | "closed". At most one open session per operator —
// enforced by a partial unique index on (operator_id) WHERE status = 'open'.
type DrawerSession struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OperatorID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpeningAmount decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	// ClosingAmount is the physically-counted cash declared at close.
	// ExpectedAmount is computed at close: openingAmount + SUM(ledger).
	// Difference = ClosingAmount − ExpectedAmount. All three stay NULL
	// while the session is open and are set exactly once at close.
	ClosingAmount  *decimal.Decimal `gorm:"type:decimal(10,2)"`
	ExpectedAmount *decimal.Decimal `gorm:"type:decimal(10,2)"`
	Difference     *decimal.Decimal `gorm:"type:decimal(10,2)"`
	Status         string           `gorm:"type:varchar(20);not null;default:'open'"`
	Notes          *string
	OpenedAt       time.Time
	ClosedAt       *time.Time
	CreatedAt      time.Time

	Operator     *Operator           `gorm:"foreignKey:OperatorID"`
	Transactions []DrawerTransaction `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// DrawerTransaction is an immutable entry in the drawer ledger.
// Type: "cash_in" | "cash_out" | "sale" | "refund"
// Entries are NEVER modified or deleted — the ledger is append-only.
type DrawerTransaction struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID  uuid.UUID       `gorm:"type:uuid;index;not null"`
	OperatorID uuid.UUID       `gorm:"type:uuid;not null"`
	Type       string          `gorm:"type:varchar(20);not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	// Reason is required for manual cash movements, absent for sales/refunds.
	Reason *string
	// ReferenceID links to the originating sale/refund record.
	ReferenceID   *int64
	ReferenceType *string `gorm:"type:varchar(20)"`
	Notes         *string
	CreatedAt     time.Time
}
