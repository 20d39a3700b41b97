package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Conflict("x").Status())
	assert.Equal(t, http.StatusBadRequest, Precondition("x").Status())
	assert.Equal(t, http.StatusBadRequest, InsufficientFunds("x").Status())
	assert.Equal(t, http.StatusNotFound, NotFound("x").Status())
	assert.Equal(t, http.StatusForbidden, Forbidden("x").Status())
	assert.Equal(t, http.StatusInternalServerError, Unexpected("x", nil).Status())
}

func TestFrom(t *testing.T) {
	orig := Conflict("taken")
	assert.Same(t, orig, From(orig))

	plain := errors.New("db down")
	wrapped := From(plain)
	assert.Equal(t, KindUnexpected, wrapped.Kind)
	assert.Equal(t, "Internal server error", wrapped.Message)
	assert.ErrorIs(t, wrapped, plain)
}

func TestConflictWithCarriesContext(t *testing.T) {
	payload := map[string]string{"id": "abc"}
	e := ConflictWith("already open", payload)
	assert.Equal(t, payload, e.Context)
}
