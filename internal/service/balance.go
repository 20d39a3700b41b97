package service

import (
	"tillbox/internal/model"

	"github.com/shopspring/decimal"
)

// CurrentBalance derives a drawer balance from the opening amount and the full
// entry set:
//
//	balance = opening + Σ(cash_in, sale) − Σ(cash_out, refund)
//
// This is the single source of truth for the formula — the live "current
// balance" query, the cash-out sufficiency check, and the expected amount at
// close all go through here. Pure function, decimal-exact, order-independent.
func CurrentBalance(opening decimal.Decimal, entries []model.DrawerTransaction) decimal.Decimal {
	balance := opening
	for _, e := range entries {
		switch e.Type {
		case model.TxCashIn, model.TxSale:
			balance = balance.Add(e.Amount)
		case model.TxCashOut, model.TxRefund:
			balance = balance.Sub(e.Amount)
		}
	}
	return balance
}
