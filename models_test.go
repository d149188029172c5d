package userkit_test

import (
	"testing"
	"time"

	userkit "github.com/goliatone/go-userkit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	user, err := userkit.NewUser(quickHasher{}, "  a@x.com ", "Pw1!")
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", user.Email)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NotEmpty(t, user.Salt)
	assert.NotEmpty(t, user.PasswordHash)
	assert.False(t, user.EmailConfirmed)
	assert.False(t, user.TwoFactorEnabled)

	ok, err := quickHasher{}.ValidatePassword("Pw1!", user.GetSalt(), user.GetPasswordHash())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewUserRejectsInput(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		textCode string
	}{
		{name: "missing email", email: "", password: "Pw1!", textCode: userkit.TextCodeInvalidEmail},
		{name: "malformed email", email: "not-an-email", password: "Pw1!", textCode: userkit.TextCodeInvalidEmail},
		{name: "empty password", email: "a@x.com", password: "", textCode: userkit.TextCodeEmptyPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := userkit.NewUser(quickHasher{}, tt.email, tt.password)
			require.Error(t, err)
			assert.Nil(t, user)
			assert.True(t, userkit.HasTextCode(err, tt.textCode))
		})
	}
}

func TestCodePurposeValid(t *testing.T) {
	assert.True(t, userkit.PurposeEmailConfirmation.Valid())
	assert.True(t, userkit.PurposePasswordRedefinition.Valid())
	assert.True(t, userkit.PurposeTwoFactorAuthentication.Valid())
	assert.False(t, userkit.CodePurpose("").Valid())
	assert.False(t, userkit.CodePurpose("login").Valid())
}

func TestVerificationCodeExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	code := &userkit.VerificationCode{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, code.Expired(now))
	assert.True(t, code.Expired(now.Add(time.Minute)), "a code is dead at its expiry instant")
	assert.True(t, code.Expired(now.Add(time.Hour)))
}

func TestUserState(t *testing.T) {
	user := &userkit.User{}
	assert.Equal(t, "unconfirmed/2fa-off", userkit.StateOf(user).String())

	user.SetEmailConfirmed(true)
	user.SetTwoFactorEnabled(true)
	state := userkit.StateOf(user)
	assert.Equal(t, userkit.UserState{Confirmed: true, TwoFactor: true}, state)
	assert.Equal(t, "confirmed/2fa-on", state.String())
}

func TestUserSetCredentials(t *testing.T) {
	user := &userkit.User{}
	user.SetCredentials([]byte("salt"), []byte("hash"))

	assert.Equal(t, []byte("salt"), user.GetSalt())
	assert.Equal(t, []byte("hash"), user.GetPasswordHash())
}
