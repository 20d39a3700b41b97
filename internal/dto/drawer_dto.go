package dto

import "github.com/shopspring/decimal"

// Wire convention: camelCase field names, monetary values as 2-digit decimals.

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenDrawerRequest struct {
	OpeningAmount decimal.Decimal `json:"openingAmount" validate:"min=0"`
	Notes         *string         `json:"notes"`
}

type CloseDrawerRequest struct {
	ClosingAmount decimal.Decimal `json:"closingAmount" validate:"min=0"`
	Notes         *string         `json:"notes"`
}

type CashMovementRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Reason string          `json:"reason" validate:"required,min=1,max=255"`
	Notes  *string         `json:"notes"`
}

// LedgerReferenceRequest covers sale and refund recording: both link a ledger
// entry to an external document and are best-effort when no drawer is open.
type LedgerReferenceRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"min=0"`
	ReferenceID int64           `json:"referenceId" validate:"required"`
}

type HistoryFilter struct {
	StartDate  string // inclusive, by session creation date (YYYY-MM-DD)
	EndDate    string // inclusive
	OperatorID string // empty = all operators (reporting roles only)
	Skip       int
	Limit      int
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type OperatorSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type TransactionResponse struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionId"`
	OperatorID    string          `json:"operatorId"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        *string         `json:"reason"`
	ReferenceID   *int64          `json:"referenceId"`
	ReferenceType *string         `json:"referenceType"`
	Notes         *string         `json:"notes"`
	CreatedAt     string          `json:"createdAt"`
}

type SessionResponse struct {
	ID             string                `json:"id"`
	OperatorID     string                `json:"operatorId"`
	Operator       *OperatorSummary      `json:"operator,omitempty"`
	OpeningAmount  decimal.Decimal       `json:"openingAmount"`
	ClosingAmount  *decimal.Decimal      `json:"closingAmount"`
	ExpectedAmount *decimal.Decimal      `json:"expectedAmount"`
	Difference     *decimal.Decimal      `json:"difference"`
	Status         string                `json:"status"`
	Notes          *string               `json:"notes"`
	OpenedAt       string                `json:"openedAt"`
	ClosedAt       *string               `json:"closedAt"`
	Transactions   []TransactionResponse `json:"transactions,omitempty"`
}

// CurrentDrawerResponse is the GET /current payload. Session is null when the
// operator has no open drawer — an explicit signal, not an error.
type CurrentDrawerResponse struct {
	Session        *SessionResponse `json:"data"`
	CurrentBalance *decimal.Decimal `json:"currentBalance,omitempty"`
	Message        string           `json:"message,omitempty"`
}

// MovementResponse returns the created entry plus the recomputed balance.
type MovementResponse struct {
	Transaction    TransactionResponse `json:"data"`
	CurrentBalance decimal.Decimal     `json:"currentBalance"`
}

// HistoryStats aggregates over the ENTIRE filtered set, not just the page.
// totalCashIn and totalSales are distinct figures even though both count
// positively toward the balance.
type HistoryStats struct {
	TotalSessions  int64           `json:"totalSessions"`
	TotalCashIn    decimal.Decimal `json:"totalCashIn"`
	TotalCashOut   decimal.Decimal `json:"totalCashOut"`
	TotalSales     decimal.Decimal `json:"totalSales"`
	AvgDiscrepancy decimal.Decimal `json:"avgDiscrepancy"`
}

type HistoryResponse struct {
	Drawers []SessionResponse `json:"drawers"`
	Stats   HistoryStats      `json:"stats"`
}
