package userkit

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const EnvPrefix = "USERKIT_"

var smtpURIPattern = regexp.MustCompile(`^smtps?://[^/\s]+$`)

const (
	TransportLog  = "log"
	TransportSMTP = "smtp"
)

// Config holds the settings needed to assemble a Manager. The defaults are
// meant for local development only.
type Config struct {
	Database DatabaseConfig  `envPrefix:"DATABASE_"`
	Token    TokenConfig     `envPrefix:"TOKEN_"`
	Hasher   HasherEnvConfig `envPrefix:"HASHER_"`
	Codes    CodesConfig     `envPrefix:"CODES_"`
	Mail     MailConfig      `envPrefix:"MAIL_"`
	Redis    RedisConfig     `envPrefix:"REDIS_"`
}

type DatabaseConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"file:userkit.db?cache=shared"`
}

type TokenConfig struct {
	SigningKey       string            `env:"SIGNING_KEY" envDefault:"dev-signing-key-change-me-in-production"`
	EncryptionKey    string            `env:"ENCRYPTION_KEY" envDefault:"dev-encryption-key-32-bytes-long"`
	KeyID            string            `env:"KEY_ID"`
	VerificationKeys map[string]string `env:"VERIFICATION_KEYS"`
	Expiration       time.Duration     `env:"EXPIRATION" envDefault:"2h"`
	Issuer           string            `env:"ISSUER"`
	Audience         []string          `env:"AUDIENCE" envSeparator:","`
	ValidateIssuer   bool              `env:"VALIDATE_ISSUER" envDefault:"false"`
	ValidateAudience bool              `env:"VALIDATE_AUDIENCE" envDefault:"false"`
	Leeway           time.Duration     `env:"LEEWAY" envDefault:"0s"`
}

type HasherEnvConfig struct {
	PRF        string `env:"PRF" envDefault:"sha512"`
	Iterations int    `env:"ITERATIONS" envDefault:"262140"`
	KeyLength  int    `env:"KEY_LENGTH" envDefault:"128"`
	SaltLength int    `env:"SALT_LENGTH" envDefault:"32"`
}

type CodesConfig struct {
	TTL                time.Duration `env:"TTL" envDefault:"15m"`
	Digits             int           `env:"DIGITS" envDefault:"6"`
	Secret             string        `env:"SECRET"`
	InvalidatePrevious bool          `env:"INVALIDATE_PREVIOUS" envDefault:"true"`
	SingleUseTwoFactor bool          `env:"SINGLE_USE_TWO_FACTOR" envDefault:"true"`
}

type MailConfig struct {
	Transport            string `env:"TRANSPORT" envDefault:"log"`
	From                 string `env:"FROM" envDefault:"no-reply@localhost.dev"`
	SMTPURI              string `env:"SMTP_URI" envDefault:"smtp://localhost:2525"`
	SMTPUsername         string `env:"SMTP_USERNAME"`
	SMTPPassword         string `env:"SMTP_PASSWORD"`
	ConfirmationEndpoint string `env:"CONFIRMATION_ENDPOINT"`
	RedefinitionEndpoint string `env:"REDEFINITION_ENDPOINT"`
}

// RedisConfig enables the redis code repository when Addr is set
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"userkit:codes"`
}

// LoadConfig reads USERKIT_ prefixed variables from the process environment
func LoadConfig() (*Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFrom reads configuration from vars instead of the process
// environment. Keys carry the USERKIT_ prefix.
func LoadConfigFrom(vars map[string]string) (*Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func loadConfig(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings that would otherwise fail late at runtime
func (c *Config) Validate() error {
	issuerRules := []validation.Rule{}
	if c.Token.ValidateIssuer {
		issuerRules = append(issuerRules, validation.Required)
	}

	audienceRules := []validation.Rule{}
	if c.Token.ValidateAudience {
		audienceRules = append(audienceRules, validation.Required)
	}

	keyIDRules := []validation.Rule{}
	if len(c.Token.VerificationKeys) > 0 {
		keyIDRules = append(keyIDRules, validation.Required)
	}

	err := validation.ValidateStruct(&c.Token,
		validation.Field(&c.Token.SigningKey, validation.Required, byteLength(MinSigningKeyLength, 0)),
		validation.Field(&c.Token.EncryptionKey, validation.Required, byteLength(EncryptionKeyLength, EncryptionKeyLength)),
		validation.Field(&c.Token.Expiration, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Token.Issuer, issuerRules...),
		validation.Field(&c.Token.Audience, audienceRules...),
		validation.Field(&c.Token.KeyID, keyIDRules...),
		validation.Field(&c.Token.VerificationKeys, validation.By(verificationKeys)),
	)
	if err != nil {
		return invalidConfig("token", err)
	}

	err = validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.Database.DSN, validation.Required),
	)
	if err != nil {
		return invalidConfig("database", err)
	}

	err = validation.ValidateStruct(&c.Codes,
		validation.Field(&c.Codes.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Codes.Digits, validation.Required, validation.Min(4), validation.Max(12)),
	)
	if err != nil {
		return invalidConfig("codes", err)
	}

	smtpRules := []validation.Rule{}
	if c.Mail.Transport == TransportSMTP {
		smtpRules = append(smtpRules, validation.Required, validation.Match(smtpURIPattern))
	}

	err = validation.ValidateStruct(&c.Mail,
		validation.Field(&c.Mail.Transport, validation.Required, validation.In(TransportLog, TransportSMTP)),
		validation.Field(&c.Mail.From, validation.Required, is.Email),
		validation.Field(&c.Mail.SMTPURI, smtpRules...),
		validation.Field(&c.Mail.ConfirmationEndpoint, is.URL),
		validation.Field(&c.Mail.RedefinitionEndpoint, is.URL),
	)
	if err != nil {
		return invalidConfig("mail", err)
	}

	return nil
}

// byteLength checks the encoded size of a string key. validation.Length
// counts runes, which lets multi-byte keys through with the wrong size.
// A zero max means no upper bound.
func byteLength(min, max int) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		n := len([]byte(s))
		if n < min || (max > 0 && n > max) {
			if min == max {
				return fmt.Errorf("must be exactly %d bytes", min)
			}
			return fmt.Errorf("must be at least %d bytes", min)
		}
		return nil
	})
}

func verificationKeys(value any) error {
	keys, _ := value.(map[string]string)
	for kid, key := range keys {
		if kid == "" {
			return errors.New("key ids must not be empty")
		}
		if len([]byte(key)) < MinSigningKeyLength {
			return fmt.Errorf("key %q must be at least %d bytes", kid, MinSigningKeyLength)
		}
	}
	return nil
}

func invalidConfig(section string, err error) error {
	return goerrors.New("invalid "+section+" configuration", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"section": section, "error": err.Error()})
}

// TokenParams converts the token section
func (c *Config) TokenParams() TokenParams {
	var verification map[string][]byte
	if len(c.Token.VerificationKeys) > 0 {
		verification = make(map[string][]byte, len(c.Token.VerificationKeys))
		for kid, key := range c.Token.VerificationKeys {
			verification[kid] = []byte(key)
		}
	}

	return TokenParams{
		SigningKey:         []byte(c.Token.SigningKey),
		EncryptionKey:      []byte(c.Token.EncryptionKey),
		KeyID:              c.Token.KeyID,
		VerificationKeys:   verification,
		ExpirationDuration: c.Token.Expiration,
		Issuer:             c.Token.Issuer,
		Audience:           c.Token.Audience,
		Validation: ValidationOptions{
			ValidateIssuer:   c.Token.ValidateIssuer,
			ValidateAudience: c.Token.ValidateAudience,
			Leeway:           c.Token.Leeway,
		},
	}
}

// HasherConfig converts the hasher section
func (c *Config) HasherConfig() HasherConfig {
	return HasherConfig{
		PRF:        strings.ToLower(c.Hasher.PRF),
		Iterations: c.Hasher.Iterations,
		KeyLength:  c.Hasher.KeyLength,
		SaltLength: c.Hasher.SaltLength,
	}
}

// SMTPConfig converts the mail section
func (c *Config) SMTPConfig() SMTPConfig {
	return SMTPConfig{
		URI:      c.Mail.SMTPURI,
		Username: c.Mail.SMTPUsername,
		Password: c.Mail.SMTPPassword,
	}
}

// ConfigureCodeStore applies the codes section to store
func (c *Config) ConfigureCodeStore(store *CodeStore) *CodeStore {
	gen := NumericCodeGenerator(c.Codes.Digits)
	if c.Codes.Secret != "" {
		gen = TokenCodeGenerator([]byte(c.Codes.Secret))
	}
	return store.
		WithGenerator(gen).
		WithTTL(c.Codes.TTL).
		WithInvalidatePrevious(c.Codes.InvalidatePrevious)
}

// NewMessenger builds the messenger described by the mail section
func (c *Config) NewMessenger(logger Logger) (*Messenger, error) {
	var transport Transport = NewLogTransport(logger)
	if c.Mail.Transport == TransportSMTP {
		smtp, err := NewSMTPTransport(c.SMTPConfig(), logger)
		if err != nil {
			return nil, err
		}
		transport = smtp
	}

	return NewMessenger(transport, c.Mail.From).
		WithLogger(logger).
		WithLinkEndpoint(PurposeEmailConfirmation, c.Mail.ConfirmationEndpoint).
		WithLinkEndpoint(PurposePasswordRedefinition, c.Mail.RedefinitionEndpoint), nil
}
