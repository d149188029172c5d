package userkit_test

import (
	"context"
	"errors"
	"testing"

	userkit "github.com/goliatone/go-userkit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsAccessors(t *testing.T) {
	claims := userkit.Claims{
		userkit.ClaimUserID:         "user-1",
		userkit.ClaimEmail:          "a@x.com",
		userkit.ClaimEmailConfirmed: "true",
		userkit.ClaimAdmin:          "not-a-bool",
	}

	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "a@x.com", claims.Email())
	assert.True(t, claims.EmailConfirmed())
	assert.False(t, claims.IsAdmin())
	assert.False(t, claims.Bool("missing"))
}

func TestClaimsMerge(t *testing.T) {
	base := userkit.Claims{"a": "1", "b": "2"}

	merged := base.Merge(userkit.Claims{"b": "3"}, nil, userkit.Claims{"c": "4"})

	assert.Equal(t, userkit.Claims{"a": "1", "b": "3", "c": "4"}, merged)
	assert.Equal(t, "2", base["b"], "merge must not mutate the receiver")
}

func TestUserClaims(t *testing.T) {
	user := &userkit.User{
		ID:             uuid.New(),
		Email:          "a@x.com",
		EmailConfirmed: true,
		IsAdmin:        true,
	}
	user.AddClaim("tenant", "acme").AddClaim(userkit.ClaimEmail, "spoofed@x.com")

	claims := user.Claims()

	assert.Equal(t, user.ID.String(), claims.UserID())
	assert.Equal(t, "a@x.com", claims.Email(), "identity claims win over extra claims")
	assert.Equal(t, "true", claims[userkit.ClaimEmailConfirmed])
	assert.Equal(t, "false", claims[userkit.ClaimTwoFactorEnabled])
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "acme", claims["tenant"])
}

func TestClaimsDecoratorFunc(t *testing.T) {
	user := &userkit.User{ID: uuid.New(), Email: "a@x.com"}
	claims := user.Claims()

	decorator := userkit.ClaimsDecoratorFunc(func(_ context.Context, u userkit.ManagedUser, c userkit.Claims) error {
		c["workspace"] = "editor:" + u.GetEmail()
		return nil
	})

	require.NoError(t, decorator.Decorate(context.Background(), user, claims))
	assert.Equal(t, "editor:a@x.com", claims["workspace"])

	var nilDecorator userkit.ClaimsDecoratorFunc
	assert.NoError(t, nilDecorator.Decorate(context.Background(), user, claims))
}

func TestManagerGetTokenUsesDecorator(t *testing.T) {
	f := newFixture(t)
	user := f.signUp(t, "decorated@x.com", "Pw1!")

	f.manager.WithClaimsDecorator(userkit.ClaimsDecoratorFunc(func(_ context.Context, _ userkit.ManagedUser, c userkit.Claims) error {
		c["role"] = "editor"
		return nil
	}))

	token, err := f.manager.GetToken(context.Background(), user, userkit.Claims{"scope": "read"})
	require.NoError(t, err)

	claims := f.manager.ValidateToken(token)
	require.NotNil(t, claims)
	assert.Equal(t, "editor", claims["role"])
	assert.Equal(t, "read", claims["scope"])
	assert.Equal(t, user.ID.String(), claims.UserID())
}

func TestManagerGetTokenDecoratorError(t *testing.T) {
	f := newFixture(t)
	user := f.signUp(t, "broken@x.com", "Pw1!")

	f.manager.WithClaimsDecorator(userkit.ClaimsDecoratorFunc(func(context.Context, userkit.ManagedUser, userkit.Claims) error {
		return errors.New("directory offline")
	}))

	token, err := f.manager.GetToken(context.Background(), user, nil)
	assert.Error(t, err)
	assert.Empty(t, token)
}
