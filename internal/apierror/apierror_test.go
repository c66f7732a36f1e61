package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorString(t *testing.T) {
	err := NewAPIError(ErrNotFound, "conversation not found", nil)
	assert.Equal(t, "NOT_FOUND: conversation not found", err.Error())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, MapErrorToHTTPStatus(NewAPIError(ErrNotFound, "missing", nil)))
	assert.Equal(t, http.StatusConflict, MapErrorToHTTPStatus(NewAPIError(ErrConflict, "claimed", nil)))
	assert.Equal(t, http.StatusLocked, MapErrorToHTTPStatus(NewAPIError(ErrLocked, "locked", nil)))
	assert.Equal(t, http.StatusBadRequest, MapErrorToHTTPStatus(NewAPIError(ErrInvalidInput, "bad", nil)))
	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("plain error")))
}
