package redisstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-repository-bun"
	userkit "github.com/goliatone/go-userkit"
	"github.com/goliatone/go-userkit/redisstore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type gateway struct {
	codes map[userkit.CodePurpose]string
}

func (g *gateway) SendEmailConfirmationMessage(_ context.Context, _ userkit.ManagedUser, code string) error {
	g.codes[userkit.PurposeEmailConfirmation] = code
	return nil
}

func (g *gateway) SendPasswordRedefinitionMessage(_ context.Context, _ userkit.ManagedUser, code string) error {
	g.codes[userkit.PurposePasswordRedefinition] = code
	return nil
}

func (g *gateway) SendTwoFactorAuthenticationMessage(_ context.Context, _ userkit.ManagedUser, code string) error {
	g.codes[userkit.PurposeTwoFactorAuthentication] = code
	return nil
}

func TestCodeRepositoryRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := redisstore.NewCodeRepository(client, "test:codes")
	ctx := context.Background()
	userID := uuid.New()

	record := &userkit.VerificationCode{
		UserID:    userID,
		Code:      "123456",
		Purpose:   userkit.PurposeEmailConfirmation,
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, repo.AddCodeTx(ctx, nil, record))

	key := "test:codes:" + string(userkit.PurposeEmailConfirmation) + ":" + userID.String() + ":123456"
	assert.True(t, mr.Exists(key))
	assert.InDelta(t, time.Minute.Seconds(), mr.TTL(key).Seconds(), 2)

	found, err := repo.FindCodeTx(ctx, nil, userID, "123456", userkit.PurposeEmailConfirmation)
	require.NoError(t, err)
	assert.Equal(t, record.Code, found.Code)
	assert.True(t, record.ExpiresAt.Equal(found.ExpiresAt))

	_, err = repo.FindCodeTx(ctx, nil, userID, "123456", userkit.PurposeTwoFactorAuthentication)
	assert.True(t, repository.IsRecordNotFound(err))

	removed, err := repo.RemoveCodeTx(ctx, nil, record)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveCodeTx(ctx, nil, record)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCodeRepositorySkipsExpiredRecords(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := redisstore.NewCodeRepository(client, "")

	err := repo.AddCodeTx(context.Background(), nil, &userkit.VerificationCode{
		UserID:    uuid.New(),
		Code:      "123456",
		Purpose:   userkit.PurposeEmailConfirmation,
		ExpiresAt: time.Now().Add(-time.Second),
	})
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestCodeRepositoryRemoveCodes(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := redisstore.NewCodeRepository(client, "")
	ctx := context.Background()
	userID := uuid.New()
	expires := time.Now().Add(time.Minute)

	for _, rec := range []*userkit.VerificationCode{
		{UserID: userID, Code: "111111", Purpose: userkit.PurposeEmailConfirmation, ExpiresAt: expires},
		{UserID: userID, Code: "222222", Purpose: userkit.PurposeEmailConfirmation, ExpiresAt: expires},
		{UserID: userID, Code: "333333", Purpose: userkit.PurposePasswordRedefinition, ExpiresAt: expires},
		{UserID: uuid.New(), Code: "444444", Purpose: userkit.PurposeEmailConfirmation, ExpiresAt: expires},
	} {
		require.NoError(t, repo.AddCodeTx(ctx, nil, rec))
	}

	require.NoError(t, repo.RemoveCodesTx(ctx, nil, userID, userkit.PurposeEmailConfirmation))
	assert.Len(t, mr.Keys(), 2)
}

func TestCodeStoreOnRedis(t *testing.T) {
	mr, client := newTestRedis(t)
	store := userkit.NewCodeStore(redisstore.NewCodeRepository(client, "")).WithTTL(time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	code, _, err := store.IssueTx(ctx, nil, userID, userkit.PurposeTwoFactorAuthentication)
	require.NoError(t, err)

	status, err := store.ConsumeTx(ctx, nil, userID, code, userkit.PurposeTwoFactorAuthentication, true)
	require.NoError(t, err)
	assert.Equal(t, userkit.StatusOK, status)

	status, err = store.ConsumeTx(ctx, nil, userID, code, userkit.PurposeTwoFactorAuthentication, true)
	require.NoError(t, err)
	assert.Equal(t, userkit.StatusInvalidToken, status)

	code, _, err = store.IssueTx(ctx, nil, userID, userkit.PurposeTwoFactorAuthentication)
	require.NoError(t, err)

	mr.FastForward(time.Minute + time.Second)

	status, err = store.ConsumeTx(ctx, nil, userID, code, userkit.PurposeTwoFactorAuthentication, true)
	require.NoError(t, err)
	assert.Equal(t, userkit.StatusInvalidToken, status, "expired keys are gone")
}

func TestCodeRepositoryUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := redisstore.NewCodeRepository(client, "")
	mr.Close()

	_, err := repo.FindCodeTx(context.Background(), nil, uuid.New(), "123456", userkit.PurposeEmailConfirmation)
	require.Error(t, err)
	assert.False(t, repository.IsRecordNotFound(err))
}

type flakyUsers struct {
	userkit.UserRepository[*userkit.User]
	failSave bool
}

func (u *flakyUsers) SaveUserTx(ctx context.Context, tx bun.IDB, user *userkit.User) error {
	if u.failSave {
		return errors.New("disk full")
	}
	return u.UserRepository.SaveUserTx(ctx, tx, user)
}

type flakyRepositories struct {
	userkit.RepositoryManager[*userkit.User]
	users *flakyUsers
}

func (r flakyRepositories) Users() userkit.UserRepository[*userkit.User] {
	return r.users
}

type redisFixture struct {
	manager *userkit.Manager[*userkit.User]
	gateway *gateway
	users   *flakyUsers
	redis   *miniredis.Miniredis
}

func newRedisFixture(t *testing.T) *redisFixture {
	t.Helper()
	mr, client := newTestRedis(t)

	db, err := userkit.OpenDB(userkit.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	newRecord := func() *userkit.User { return &userkit.User{} }
	require.NoError(t, userkit.CreateSchema(context.Background(), db, newRecord))

	tokens, err := userkit.NewTokenService(userkit.TokenParams{
		SigningKey:    []byte("redis-signing-key-0123456789abcdef"),
		EncryptionKey: []byte("redis-encryption-key-0123456789a"),
	}, nil)
	require.NoError(t, err)

	hasher, err := userkit.NewPBKDF2Hasher(userkit.HasherConfig{
		PRF:        userkit.PRFSHA256,
		Iterations: userkit.MinPBKDF2Iterations,
		KeyLength:  userkit.MinPBKDF2KeyLength,
		SaltLength: userkit.MinSaltLength,
	})
	require.NoError(t, err)

	base := userkit.NewRepositoryManager(db, newRecord,
		userkit.WithCodeRepository(redisstore.NewCodeRepository(client, "")))
	users := &flakyUsers{UserRepository: base.Users()}
	gw := &gateway{codes: map[userkit.CodePurpose]string{}}
	manager := userkit.NewManager[*userkit.User](flakyRepositories{RepositoryManager: base, users: users}, tokens, gw).
		WithHasher(hasher)

	created, err := manager.CreateUser(context.Background(), userkit.FindByEmail("a@x.com"), func() (*userkit.User, error) {
		return userkit.NewUser(manager.Hasher(), "a@x.com", "Pw1!")
	})
	require.NoError(t, err)
	require.True(t, created.OK())

	return &redisFixture{manager: manager, gateway: gw, users: users, redis: mr}
}

func TestManagerWithRedisCodes(t *testing.T) {
	f := newRedisFixture(t)
	ctx := context.Background()

	confirmed, err := f.manager.ConfirmEmail(ctx, userkit.FindByEmail("a@x.com"), f.gateway.codes[userkit.PurposeEmailConfirmation])
	require.NoError(t, err)
	require.True(t, confirmed.OK())
	assert.True(t, confirmed.User().EmailConfirmed)
}

func TestRedefinePasswordEmptyPasswordKeepsRedisCode(t *testing.T) {
	f := newRedisFixture(t)
	ctx := context.Background()
	finder := userkit.FindByEmail("a@x.com")

	_, err := f.manager.SendPasswordRedefinition(ctx, finder)
	require.NoError(t, err)
	code := f.gateway.codes[userkit.PurposePasswordRedefinition]

	_, err = f.manager.RedefinePassword(ctx, finder, code, "")
	require.Error(t, err)
	assert.True(t, userkit.HasTextCode(err, userkit.TextCodeEmptyPassword))

	result, err := f.manager.RedefinePassword(ctx, finder, code, "NewPw1!")
	require.NoError(t, err)
	assert.True(t, result.OK(), "a rejected password must not burn the code")

	login, err := f.manager.ValidateUser(ctx, finder, "NewPw1!", "")
	require.NoError(t, err)
	assert.True(t, login.OK())
}

func TestRolledBackRedemptionRestoresRedisCode(t *testing.T) {
	f := newRedisFixture(t)
	ctx := context.Background()
	finder := userkit.FindByEmail("a@x.com")

	_, err := f.manager.SendPasswordRedefinition(ctx, finder)
	require.NoError(t, err)
	code := f.gateway.codes[userkit.PurposePasswordRedefinition]

	f.users.failSave = true
	_, err = f.manager.RedefinePassword(ctx, finder, code, "NewPw1!")
	require.Error(t, err)
	assert.Len(t, f.redis.Keys(), 2, "both issued codes are still stored")

	f.users.failSave = false
	result, err := f.manager.RedefinePassword(ctx, finder, code, "NewPw1!")
	require.NoError(t, err)
	assert.True(t, result.OK())

	again, err := f.manager.RedefinePassword(ctx, finder, code, "Other1!")
	require.NoError(t, err)
	assert.Equal(t, userkit.StatusInvalidToken, again.Status(), "a committed redemption stays spent")
}

func TestRolledBackConfirmationRestoresRedisCode(t *testing.T) {
	f := newRedisFixture(t)
	ctx := context.Background()
	finder := userkit.FindByEmail("a@x.com")
	code := f.gateway.codes[userkit.PurposeEmailConfirmation]

	f.users.failSave = true
	_, err := f.manager.ConfirmEmail(ctx, finder, code)
	require.Error(t, err)

	f.users.failSave = false
	confirmed, err := f.manager.ConfirmEmail(ctx, finder, code)
	require.NoError(t, err)
	require.True(t, confirmed.OK())
	assert.True(t, confirmed.User().EmailConfirmed)
}
