package handler

import (
	"net/http"

	"tillbox/internal/apierror"
	"tillbox/internal/dto"
	"tillbox/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthHandler struct{ svc service.AuthService }

func NewAuthHandler(svc service.AuthService) *AuthHandler { return &AuthHandler{svc: svc} }

// Login godoc
// @Summary Authenticates an operator and issues a token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param body body dto.LoginRequest true "Credentials"
// @Success 200 {object} dto.LoginResponse
// @Failure 401 {object} apierror.APIError
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		// Never distinguish unknown user from wrong password.
		c.JSON(http.StatusUnauthorized, apierror.New("Invalid credentials"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh godoc
// @Summary Exchanges a refresh token for a new token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param body body dto.RefreshRequest true "Refresh token"
// @Success 200 {object} dto.LoginResponse
// @Failure 401 {object} apierror.APIError
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateOperator godoc
// @Summary Creates an operator account
// @Tags operators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreateOperatorRequest true "Operator data"
// @Success 201 {object} dto.OperatorResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/operators [post]
func (h *AuthHandler) CreateOperator(c *gin.Context) {
	var req dto.CreateOperatorRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateOperator(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListOperators godoc
// @Summary Lists all operator accounts
// @Tags operators
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.OperatorResponse
// @Router /v1/operators [get]
func (h *AuthHandler) ListOperators(c *gin.Context) {
	resp, err := h.svc.ListOperators(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// UpdateOperator godoc
// @Summary Updates an operator account
// @Tags operators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Operator ID"
// @Param body body dto.UpdateOperatorRequest true "Fields to change"
// @Success 200 {object} dto.OperatorResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/operators/{id} [put]
func (h *AuthHandler) UpdateOperator(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid operator ID"))
		return
	}
	var req dto.UpdateOperatorRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.UpdateOperator(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeactivateOperator godoc
// @Summary Deactivates an operator account
// @Tags operators
// @Produce json
// @Security BearerAuth
// @Param id path string true "Operator ID"
// @Success 204
// @Router /v1/operators/{id} [delete]
func (h *AuthHandler) DeactivateOperator(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid operator ID"))
		return
	}
	if err := h.svc.DeactivateOperator(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
