package handler

import (
	"net/http"
	"reflect"

	"tillbox/internal/apierror"
	"tillbox/internal/middleware"
	"tillbox/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails —
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		for _, fe := range err.(validator.ValidationErrors) {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// respondError maps the domain error taxonomy onto HTTP statuses. Unexpected
// errors are logged with full detail and surfaced as a generic 500.
func respondError(c *gin.Context, err error) {
	e := apierror.From(err)
	if e.Kind == apierror.KindUnexpected {
		log.Error().
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Err(e.Unwrap()).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, apierror.New(e.Message))
		return
	}
	if e.Context != nil {
		c.JSON(e.Status(), apierror.NewWith(e.Message, e.Context))
		return
	}
	c.JSON(e.Status(), apierror.New(e.Message))
}

// callerFromClaims threads the authenticated identity into the core — the
// service layer never reads ambient auth state.
func callerFromClaims(c *gin.Context) (service.Caller, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, apierror.New("Authentication required"))
		return service.Caller{}, false
	}
	id, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid operator id"))
		return service.Caller{}, false
	}
	return service.Caller{OperatorID: id, Role: claims.Role}, true
}
