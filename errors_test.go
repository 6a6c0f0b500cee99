package exoquery_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exo-run/exoquery"
)

func TestAuthorizationErrorIsNotAuthorized(t *testing.T) {
	t.Parallel()

	err := exoquery.NewAuthorizationError("")
	assert.True(t, errors.Is(err, exoquery.ErrNotAuthorized))
	assert.Equal(t, "Not authorized", err.UserMessage())
}

func TestExpiredAuthenticationIsDistinctFromAuthorization(t *testing.T) {
	t.Parallel()

	err := exoquery.NewExpiredAuthenticationError()
	assert.True(t, errors.Is(err, exoquery.ErrExpired))
	assert.False(t, errors.Is(err, exoquery.ErrNotAuthorized))
}

func TestDatabaseErrorSanitizedByDefault(t *testing.T) {
	t.Parallel()

	err := exoquery.NewDatabaseError("select", errors.New("relation \"venues\" does not exist"))
	assert.Equal(t, "Internal server error", err.UserMessage())
	assert.Contains(t, err.Error(), "relation")
}

func TestCastErrorKind(t *testing.T) {
	t.Parallel()

	err := exoquery.NewCastError("abc", "Int")
	assert.True(t, exoquery.IsKind(err, exoquery.KindCast))
	assert.Equal(t, "Internal server error", err.UserMessage())
}

func TestValidationErrorIsDisplayable(t *testing.T) {
	t.Parallel()

	err := exoquery.NewValidationError("unknown field \"foo\"")
	assert.Equal(t, "unknown field \"foo\"", err.UserMessage())
}
