package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_InvalidID(t *testing.T) {
	status, message := Normalize(&InvalidIDError{Field: "id"})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Resource not found. Invalid: id", message)
}

func TestNormalize_InvalidIDWrapped(t *testing.T) {
	err := fmt.Errorf("get user: %w", &InvalidIDError{Field: "id"})
	status, message := Normalize(err)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Resource not found. Invalid: id", message)
}

func TestNormalize_DuplicateKey(t *testing.T) {
	status, message := Normalize(&DuplicateKeyError{Field: "email"})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Duplicate email Entered", message)
}

func TestNormalize_TokenInvalid(t *testing.T) {
	status, message := Normalize(ErrTokenInvalid)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Token is invalid, try again", message)
}

func TestNormalize_TokenExpired(t *testing.T) {
	status, message := Normalize(fmt.Errorf("verify: %w", ErrTokenExpired))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Token is expired, try again", message)
}

func TestNormalize_ExplicitError(t *testing.T) {
	status, message := Normalize(NewError("User not found", http.StatusNotFound))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", message)
}

func TestNormalize_UnknownErrorFallsThroughTo500(t *testing.T) {
	status, message := Normalize(errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal Server Error", message)
}
