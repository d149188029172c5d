package userkit_test

import (
	"testing"

	userkit "github.com/goliatone/go-userkit"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSuccess(t *testing.T) {
	user := &userkit.User{ID: uuid.New(), Email: "a@x.com"}

	result := userkit.Success(user)

	assert.True(t, result.OK())
	assert.Equal(t, userkit.StatusOK, result.Status())
	assert.Same(t, user, result.User())
	assert.NoError(t, result.Err())
	assert.Equal(t, "ok", result.String())
}

func TestResultSuccessRequiresUser(t *testing.T) {
	assert.Panics(t, func() {
		userkit.Success[*userkit.User](nil)
	})
}

func TestResultFailure(t *testing.T) {
	result := userkit.Failure[*userkit.User](userkit.StatusInvalidPassword)

	assert.False(t, result.OK())
	assert.Equal(t, userkit.StatusInvalidPassword, result.Status())
	assert.True(t, userkit.HasTextCode(result.Err(), userkit.TextCodeInvalidPassword))
}

func TestResultFailureRejectsOK(t *testing.T) {
	assert.Panics(t, func() {
		userkit.Failure[*userkit.User](userkit.StatusOK)
	})
}

func TestResultUserOnFailurePanics(t *testing.T) {
	result := userkit.Failure[*userkit.User](userkit.StatusUserNotFound)

	defer func() {
		r := recover()
		require.NotNil(t, r)

		err, ok := r.(*goerrors.Error)
		require.True(t, ok, "panic value should be a rich error, got %T", r)
		assert.Equal(t, userkit.TextCodeResultHasNoUser, err.TextCode)
	}()

	result.User()
}

func TestZeroResultIsNotOK(t *testing.T) {
	var result userkit.Result[*userkit.User]

	assert.False(t, result.OK())
	assert.Panics(t, func() { result.User() })
}

func TestStatusDescriptions(t *testing.T) {
	statuses := []userkit.Status{
		userkit.StatusOK,
		userkit.StatusUserNotFound,
		userkit.StatusInvalidPassword,
		userkit.StatusInvalidToken,
		userkit.StatusTwoFactorRequired,
		userkit.StatusUserAlreadyConfirmed,
		userkit.StatusUserAlreadyExists,
	}

	seen := map[string]bool{}
	for _, s := range statuses {
		desc := s.Description()
		assert.NotEmpty(t, desc, s.String())
		assert.False(t, seen[desc], "duplicate description for %s", s)
		seen[desc] = true
	}

	assert.Equal(t, "The user was not found.", userkit.StatusUserNotFound.Description())
	assert.Equal(t, "status(42)", userkit.Status(42).String())
}
