package userkit_test

import (
	"strings"
	"testing"
	"time"

	userkit "github.com/goliatone/go-userkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := userkit.LoadConfigFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, userkit.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Token.Expiration)
	assert.Equal(t, 15*time.Minute, cfg.Codes.TTL)
	assert.Equal(t, 6, cfg.Codes.Digits)
	assert.True(t, cfg.Codes.InvalidatePrevious)
	assert.True(t, cfg.Codes.SingleUseTwoFactor)
	assert.Equal(t, userkit.TransportLog, cfg.Mail.Transport)
	assert.Empty(t, cfg.Redis.Addr)

	assert.Equal(t, userkit.DefaultHasherConfig(), cfg.HasherConfig())

	_, err = userkit.NewTokenService(cfg.TokenParams(), silentLogger{})
	assert.NoError(t, err, "default keys must satisfy the codec")
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := userkit.LoadConfigFrom(map[string]string{
		"USERKIT_DATABASE_DRIVER":             "postgres",
		"USERKIT_DATABASE_DSN":                "postgres://localhost/userkit",
		"USERKIT_TOKEN_EXPIRATION":            "30m",
		"USERKIT_TOKEN_ISSUER":                "userkit",
		"USERKIT_TOKEN_AUDIENCE":              "web,mobile",
		"USERKIT_TOKEN_VALIDATE_AUDIENCE":     "true",
		"USERKIT_HASHER_PRF":                  "SHA256",
		"USERKIT_CODES_TTL":                   "5m",
		"USERKIT_CODES_DIGITS":                "8",
		"USERKIT_CODES_SINGLE_USE_TWO_FACTOR": "false",
		"USERKIT_MAIL_TRANSPORT":              "smtp",
		"USERKIT_MAIL_SMTP_URI":               "smtps://mail.example.com:465",
		"USERKIT_MAIL_CONFIRMATION_ENDPOINT":  "https://app.example.com/confirm",
		"USERKIT_REDIS_ADDR":                  "localhost:6379",
	})
	require.NoError(t, err)

	assert.Equal(t, userkit.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Codes.TTL)
	assert.False(t, cfg.Codes.SingleUseTwoFactor)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "userkit:codes", cfg.Redis.Prefix)

	params := cfg.TokenParams()
	assert.Equal(t, 30*time.Minute, params.ExpirationDuration)
	assert.Equal(t, "userkit", params.Issuer)
	assert.Equal(t, []string{"web", "mobile"}, params.Audience)
	assert.True(t, params.Validation.ValidateAudience)
	assert.False(t, params.Validation.ValidateIssuer)

	assert.Equal(t, userkit.PRFSHA256, cfg.HasherConfig().PRF)
	assert.Equal(t, "smtps://mail.example.com:465", cfg.SMTPConfig().URI)

	messenger, err := cfg.NewMessenger(silentLogger{})
	require.NoError(t, err)
	assert.NotNil(t, messenger)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{name: "short signing key", vars: map[string]string{"USERKIT_TOKEN_SIGNING_KEY": "short"}},
		{name: "bad encryption key", vars: map[string]string{"USERKIT_TOKEN_ENCRYPTION_KEY": "short"}},
		{name: "unknown driver", vars: map[string]string{"USERKIT_DATABASE_DRIVER": "oracle"}},
		{name: "few digits", vars: map[string]string{"USERKIT_CODES_DIGITS": "2"}},
		{name: "unknown transport", vars: map[string]string{"USERKIT_MAIL_TRANSPORT": "pigeon"}},
		{name: "bad sender", vars: map[string]string{"USERKIT_MAIL_FROM": "nobody"}},
		{name: "bad smtp uri", vars: map[string]string{
			"USERKIT_MAIL_TRANSPORT": "smtp",
			"USERKIT_MAIL_SMTP_URI":  "http://mail.example.com",
		}},
		{name: "bad endpoint", vars: map[string]string{"USERKIT_MAIL_CONFIRMATION_ENDPOINT": "not a url"}},
		{name: "unparsable duration", vars: map[string]string{"USERKIT_CODES_TTL": "soon"}},
		{name: "multi-byte encryption key", vars: map[string]string{
			"USERKIT_TOKEN_ENCRYPTION_KEY": "é" + strings.Repeat("k", 31),
		}},
		{name: "multi-byte short signing key", vars: map[string]string{
			"USERKIT_TOKEN_SIGNING_KEY": strings.Repeat("é", 15) + "k",
		}},
		{name: "issuer check without issuer", vars: map[string]string{"USERKIT_TOKEN_VALIDATE_ISSUER": "true"}},
		{name: "audience check without audience", vars: map[string]string{"USERKIT_TOKEN_VALIDATE_AUDIENCE": "true"}},
		{name: "verification keys without key id", vars: map[string]string{
			"USERKIT_TOKEN_VERIFICATION_KEYS": "2025:retired-signing-key-0123456789abcdef",
		}},
		{name: "short verification key", vars: map[string]string{
			"USERKIT_TOKEN_KEY_ID":            "2026",
			"USERKIT_TOKEN_VERIFICATION_KEYS": "2025:short",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := userkit.LoadConfigFrom(tt.vars)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadConfigKeysMeasuredInBytes(t *testing.T) {
	cfg, err := userkit.LoadConfigFrom(map[string]string{
		"USERKIT_TOKEN_SIGNING_KEY":    strings.Repeat("é", 16),
		"USERKIT_TOKEN_ENCRYPTION_KEY": strings.Repeat("é", 16),
	})
	require.NoError(t, err, "sixteen two-byte runes are 32 bytes")

	params := cfg.TokenParams()
	assert.Len(t, params.SigningKey, userkit.MinSigningKeyLength)
	assert.Len(t, params.EncryptionKey, userkit.EncryptionKeyLength)
}

func TestLoadConfigKeyRotation(t *testing.T) {
	cfg, err := userkit.LoadConfigFrom(map[string]string{
		"USERKIT_TOKEN_KEY_ID":            "2026",
		"USERKIT_TOKEN_VERIFICATION_KEYS": "2025:retired-signing-key-0123456789abcdef",
	})
	require.NoError(t, err)

	params := cfg.TokenParams()
	assert.Equal(t, "2026", params.KeyID)
	assert.Equal(t, map[string][]byte{"2025": []byte("retired-signing-key-0123456789abcdef")}, params.VerificationKeys)

	_, err = userkit.NewTokenService(params, silentLogger{})
	assert.NoError(t, err)
}

func TestConfigureCodeStore(t *testing.T) {
	cfg, err := userkit.LoadConfigFrom(map[string]string{
		"USERKIT_CODES_TTL":    "90s",
		"USERKIT_CODES_DIGITS": "8",
	})
	require.NoError(t, err)

	store := cfg.ConfigureCodeStore(userkit.NewCodeStore(userkit.NewCodesRepository(newTestDB(t))))
	assert.Equal(t, 90*time.Second, store.TTL())
}
