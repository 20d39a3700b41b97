package infra

// pdf.go — Reconciliation report generation using go-pdf/fpdf.
// Produces an A5 report for a closed drawer session with:
//   - Session header (id, operator, opened/closed timestamps)
//   - Amount summary (opening, expected, counted, difference)
//   - Full transaction table (time, type, reason/reference, amount)
//
// The output file is saved to storagePath/drawer_{id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"tillbox/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// GenerateSessionReportPDF renders the reconciliation report for a session.
// storagePath is the directory where the PDF will be written (created if needed).
// Returns the absolute path to the generated file.
func GenerateSessionReportPDF(session *model.DrawerSession, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("drawer_%s.pdf", session.ID)
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 20

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, "Tillbox", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, "Cash Drawer Reconciliation Report", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	// ── Session info ──────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, "Session: "+session.ID.String(), "", 1, "L", false, 0, "")
	if session.Operator != nil {
		pdf.CellFormat(contentW, 5, "Operator: "+session.Operator.Name, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(contentW, 5, "Opened: "+session.OpenedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	if session.ClosedAt != nil {
		pdf.CellFormat(contentW, 5, "Closed: "+session.ClosedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	// ── Amount summary ────────────────────────────────────────────────────────
	labelW := contentW * 0.6
	valueW := contentW * 0.4

	amountRow := func(label string, v *decimal.Decimal, bold bool) {
		if v == nil {
			return
		}
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(labelW, 6, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(valueW, 6, "$"+v.StringFixed(2), "", 1, "R", false, 0, "")
	}

	opening := session.OpeningAmount
	amountRow("Opening amount:", &opening, false)
	amountRow("Expected amount:", session.ExpectedAmount, false)
	amountRow("Counted amount:", session.ClosingAmount, false)
	amountRow("Difference:", session.Difference, true)

	pdf.Ln(2)
	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	// ── Transaction table ─────────────────────────────────────────────────────
	col1 := contentW * 0.22 // time
	col2 := contentW * 0.18 // type
	col3 := contentW * 0.38 // reason / reference
	col4 := contentW * 0.22 // amount

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(col1, 5, "Time", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Type", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 5, "Detail", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col4, 5, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	for _, tx := range session.Transactions {
		detail := ""
		switch {
		case tx.Reason != nil:
			detail = *tx.Reason
		case tx.ReferenceID != nil:
			detail = fmt.Sprintf("ref #%d", *tx.ReferenceID)
		}
		if len(detail) > 28 {
			detail = detail[:27] + "…"
		}

		sign := "+"
		if tx.Type == model.TxCashOut || tx.Type == model.TxRefund {
			sign = "-"
		}
		pdf.CellFormat(col1, 5, tx.CreatedAt.Format("02/01 15:04"), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, tx.Type, "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 5, detail, "", 0, "L", false, 0, "")
		pdf.CellFormat(col4, 5, sign+"$"+tx.Amount.StringFixed(2), "", 1, "R", false, 0, "")
	}

	if session.Notes != nil && *session.Notes != "" {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(contentW, 4, "Notes: "+*session.Notes, "", "L", false)
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}

	return filePath, nil
}
