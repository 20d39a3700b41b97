package handler

import (
	"context"
	"net/http"
	"time"

	"tillbox/internal/apierror"
	"tillbox/internal/dto"
	"tillbox/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

type DrawerHandler struct{ svc service.DrawerService }

func NewDrawerHandler(svc service.DrawerService) *DrawerHandler { return &DrawerHandler{svc: svc} }

// Current godoc
// @Summary Returns the caller's open drawer session with its live balance
// @Tags drawer
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.CurrentDrawerResponse
// @Router /v1/drawer/current [get]
func (h *DrawerHandler) Current(c *gin.Context) {
	caller, ok := callerFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.Current(c.Request.Context(), caller.OperatorID)
	if err != nil {
		respondError(c, err)
		return
	}
	// No open drawer is a valid answer, not an error: data comes back null.
	c.JSON(http.StatusOK, resp)
}

// Open godoc
// @Summary Opens a new drawer session for the caller
// @Tags drawer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenDrawerRequest true "Opening float"
// @Success 201 {object} dto.SessionResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/drawer/open [post]
func (h *DrawerHandler) Open(c *gin.Context) {
	var req dto.OpenDrawerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	caller, ok := callerFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.Open(c.Request.Context(), caller.OperatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Drawer opened successfully", "data": resp})
}

// Close godoc
// @Summary Closes a drawer session and computes the reconciliation
// @Tags drawer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param body body dto.CloseDrawerRequest true "Counted closing amount"
// @Success 200 {object} dto.SessionResponse
// @Failure 400 {object} apierror.APIError
// @Failure 404 {object} apierror.APIError
// @Router /v1/drawer/{id}/close [post]
func (h *DrawerHandler) Close(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid session ID"))
		return
	}
	var req dto.CloseDrawerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Close(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Drawer closed successfully", "data": resp})
}

// CashIn godoc
// @Summary Records a manual cash deposit into the caller's open drawer
// @Tags drawer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CashMovementRequest true "Amount and reason"
// @Success 201 {object} dto.MovementResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/drawer/cash-in [post]
func (h *DrawerHandler) CashIn(c *gin.Context) {
	var req dto.CashMovementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	caller, ok := callerFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.CashIn(c.Request.Context(), caller.OperatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// CashOut godoc
// @Summary Records a manual cash withdrawal from the caller's open drawer
// @Tags drawer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CashMovementRequest true "Amount and reason"
// @Success 201 {object} dto.MovementResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/drawer/cash-out [post]
func (h *DrawerHandler) CashOut(c *gin.Context) {
	var req dto.CashMovementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	caller, ok := callerFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.CashOut(c.Request.Context(), caller.OperatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// RecordSale godoc
// @Summary Mirrors a cash sale into the caller's open drawer ledger
// @Tags drawer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.LedgerReferenceRequest true "Sale amount and document reference"
// @Success 200 {object} apierror.APIError "No drawer open; nothing recorded"
// @Success 201 {object} dto.TransactionResponse
// @Router /v1/drawer/sale [post]
func (h *DrawerHandler) RecordSale(c *gin.Context) {
	h.recordReference(c, "Sale", h.svc.RecordSale)
}

// RecordRefund godoc
// @Summary Mirrors a cash refund into the caller's open drawer ledger
// @Tags drawer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.LedgerReferenceRequest true "Refund amount and document reference"
// @Success 200 {object} apierror.APIError "No drawer open; nothing recorded"
// @Success 201 {object} dto.TransactionResponse
// @Router /v1/drawer/refund [post]
func (h *DrawerHandler) RecordRefund(c *gin.Context) {
	h.recordReference(c, "Refund", h.svc.RecordRefund)
}

type recordFn func(ctx context.Context, operatorID uuid.UUID, req dto.LedgerReferenceRequest) (*dto.TransactionResponse, error)

// recordReference shares the sale/refund flow: both are best-effort, so a nil
// result means "no drawer open" and still returns 200.
func (h *DrawerHandler) recordReference(c *gin.Context, label string, record recordFn) {
	var req dto.LedgerReferenceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	caller, ok := callerFromClaims(c)
	if !ok {
		return
	}
	resp, err := record(c.Request.Context(), caller.OperatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusOK, gin.H{"message": label + " recorded (no drawer open)"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": label + " recorded", "data": resp})
}

// History godoc
// @Summary Lists drawer sessions with aggregate statistics
// @Tags drawer
// @Produce json
// @Security BearerAuth
// @Param startDate query string false "Inclusive lower bound (YYYY-MM-DD)"
// @Param endDate query string false "Inclusive upper bound (YYYY-MM-DD)"
// @Param operatorId query string false "Filter by operator (reporting roles only)"
// @Param page query int false "Page number (1-based)"
// @Param count query int false "Page size (max 100)"
// @Success 200 {object} dto.HistoryResponse
// @Router /v1/drawer/history [get]
func (h *DrawerHandler) History(c *gin.Context) {
	caller, ok := callerFromClaims(c)
	if !ok {
		return
	}
	p := dto.PaginationFromQuery(c.Query("page"), c.Query("count"))
	filter := dto.HistoryFilter{Skip: p.Skip, Limit: p.Limit}

	// Malformed filters are rejected here — they must never reach the SQL
	// layer, where postgres would fail the cast and surface a 500.
	if v := c.Query("startDate"); v != "" {
		if _, err := time.Parse(dateLayout, v); err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("Invalid startDate, expected YYYY-MM-DD"))
			return
		}
		filter.StartDate = v
	}
	if v := c.Query("endDate"); v != "" {
		if _, err := time.Parse(dateLayout, v); err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("Invalid endDate, expected YYYY-MM-DD"))
			return
		}
		filter.EndDate = v
	}
	if v := c.Query("operatorId"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("Invalid operator ID"))
			return
		}
		filter.OperatorID = v
	}
	resp, total, err := h.svc.History(c.Request.Context(), caller, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp, "total": total})
}

// GetSession godoc
// @Summary Fetches one drawer session with its entries
// @Tags drawer
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Failure 403 {object} apierror.APIError
// @Failure 404 {object} apierror.APIError
// @Router /v1/drawer/{id} [get]
func (h *DrawerHandler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid session ID"))
		return
	}
	caller, ok := callerFromClaims(c)
	if !ok {
		return
	}
	resp, err := h.svc.Session(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetTransactions godoc
// @Summary Lists the ledger entries of a drawer session, newest first
// @Tags drawer
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {array} dto.TransactionResponse
// @Router /v1/drawer/{id}/transactions [get]
func (h *DrawerHandler) GetTransactions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid session ID"))
		return
	}
	caller, ok := callerFromClaims(c)
	if !ok {
		return
	}
	// Reuse the single-session fetch for the ownership check.
	if _, err := h.svc.Session(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}
	resp, err := h.svc.Transactions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
