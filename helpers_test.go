package userkit_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	userkit "github.com/goliatone/go-userkit"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var (
	testSigningKey    = []byte("test-signing-key-0123456789abcdef")
	testEncryptionKey = []byte("test-encryption-key-0123456789ab")
)

// quickHasher keeps tests fast; the PBKDF2 hasher has its own tests.
type quickHasher struct{}

func (quickHasher) SetPassword(password string) ([]byte, []byte, error) {
	if password == "" {
		return nil, nil, userkit.ErrEmptyPassword
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}
	return salt, digest(salt, password), nil
}

func (quickHasher) ValidatePassword(password string, salt, hash []byte) (bool, error) {
	if len(salt) == 0 || len(hash) == 0 {
		return false, userkit.ErrMalformedCredentials
	}
	return bytes.Equal(digest(salt, password), hash), nil
}

func digest(salt []byte, password string) []byte {
	sum := sha256.Sum256(append(append([]byte{}, salt...), password...))
	return sum[:]
}

type sentMessage struct {
	purpose userkit.CodePurpose
	email   string
	code    string
}

// recordingGateway keeps every dispatched code
type recordingGateway struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (g *recordingGateway) SendEmailConfirmationMessage(_ context.Context, user userkit.ManagedUser, code string) error {
	return g.add(userkit.PurposeEmailConfirmation, user, code)
}

func (g *recordingGateway) SendPasswordRedefinitionMessage(_ context.Context, user userkit.ManagedUser, code string) error {
	return g.add(userkit.PurposePasswordRedefinition, user, code)
}

func (g *recordingGateway) SendTwoFactorAuthenticationMessage(_ context.Context, user userkit.ManagedUser, code string) error {
	return g.add(userkit.PurposeTwoFactorAuthentication, user, code)
}

func (g *recordingGateway) add(purpose userkit.CodePurpose, user userkit.ManagedUser, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, sentMessage{purpose: purpose, email: user.GetEmail(), code: code})
	return nil
}

func (g *recordingGateway) last(t *testing.T, purpose userkit.CodePurpose) string {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.sent) - 1; i >= 0; i-- {
		if g.sent[i].purpose == purpose {
			return g.sent[i].code
		}
	}
	t.Fatalf("no %s message was sent", purpose)
	return ""
}

func (g *recordingGateway) count(purpose userkit.CodePurpose) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, m := range g.sent {
		if m.purpose == purpose {
			n++
		}
	}
	return n
}

type capturingSink struct {
	mu     sync.Mutex
	events []userkit.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt userkit.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []userkit.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]userkit.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

// testClock is a settable time source
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

func newUserRecord() *userkit.User { return &userkit.User{} }

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := userkit.OpenDB(userkit.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, userkit.CreateSchema(context.Background(), db, newUserRecord))
	return db
}

func newTestTokens(t *testing.T) *userkit.TokenService {
	t.Helper()
	tokens, err := userkit.NewTokenService(userkit.TokenParams{
		SigningKey:    testSigningKey,
		EncryptionKey: testEncryptionKey,
	}, silentLogger{})
	require.NoError(t, err)
	return tokens
}

type fixture struct {
	db      *bun.DB
	repo    userkit.RepositoryManager[*userkit.User]
	tokens  *userkit.TokenService
	gateway *recordingGateway
	sink    *capturingSink
	clock   *testClock
	manager *userkit.Manager[*userkit.User]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	repo := userkit.NewRepositoryManager(db, newUserRecord)
	tokens := newTestTokens(t)
	gateway := &recordingGateway{}
	sink := &capturingSink{}
	clock := newTestClock()

	manager := userkit.NewManager(repo, tokens, gateway).
		WithLogger(silentLogger{}).
		WithHasher(quickHasher{}).
		WithActivitySink(sink).
		WithClock(clock.Now)

	return &fixture{
		db:      db,
		repo:    repo,
		tokens:  tokens,
		gateway: gateway,
		sink:    sink,
		clock:   clock,
		manager: manager,
	}
}

func (f *fixture) signUp(t *testing.T, email, password string) *userkit.User {
	t.Helper()
	result, err := f.manager.CreateUser(context.Background(), userkit.FindByEmail(email), func() (*userkit.User, error) {
		return userkit.NewUser(f.manager.Hasher(), email, password)
	})
	require.NoError(t, err)
	require.True(t, result.OK(), "sign up returned %s", result.Status())
	return result.User()
}
