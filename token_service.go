package userkit

import (
	"bytes"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultTokenExpiration = 2 * time.Hour
	// EncryptionKeyLength is the key size required by A128CBC-HS256
	EncryptionKeyLength = 32
	MinSigningKeyLength = 32
)

// registered claims owned by the codec, never returned from Validate
var codecClaims = []string{"exp", "iat", "nbf", "iss", "aud"}

// ValidationOptions toggles optional checks applied by Validate
type ValidationOptions struct {
	ValidateIssuer   bool
	ValidateAudience bool
	Leeway           time.Duration
}

// TokenParams configures the token codec. When KeyID is set tokens carry
// it in their kid header, and VerificationKeys holds retired signing keys,
// by kid, that are still accepted during a rotation.
type TokenParams struct {
	SigningKey         []byte
	EncryptionKey      []byte
	KeyID              string
	VerificationKeys   map[string][]byte
	ExpirationDuration time.Duration
	Issuer             string
	Audience           []string
	Validation         ValidationOptions
}

// TokenService builds HS256 signed tokens wrapped in a direct-key JWE
type TokenService struct {
	params    TokenParams
	encrypter jose.Encrypter
	keyfunc   jwt.Keyfunc
	now       func() time.Time
	logger    Logger
}

var _ TokenCodec = (*TokenService)(nil)

// NewTokenService validates params and returns a codec
func NewTokenService(params TokenParams, logger Logger) (*TokenService, error) {
	if len(params.SigningKey) < MinSigningKeyLength {
		return nil, goerrors.New(
			fmt.Sprintf("token signing key must be at least %d bytes", MinSigningKeyLength),
			goerrors.CategoryValidation,
		)
	}

	if len(params.EncryptionKey) != EncryptionKeyLength {
		return nil, goerrors.New(
			fmt.Sprintf("token encryption key must be exactly %d bytes", EncryptionKeyLength),
			goerrors.CategoryValidation,
		)
	}

	if bytes.Equal(params.SigningKey, params.EncryptionKey) {
		return nil, goerrors.New("token signing and encryption keys must differ", goerrors.CategoryValidation)
	}

	if params.Validation.ValidateIssuer && params.Issuer == "" {
		return nil, goerrors.New("issuer validation requires an issuer", goerrors.CategoryValidation)
	}

	if params.Validation.ValidateAudience && len(params.Audience) == 0 {
		return nil, goerrors.New("audience validation requires an audience", goerrors.CategoryValidation)
	}

	kf, err := signingKeyfunc(params)
	if err != nil {
		return nil, err
	}

	if params.ExpirationDuration <= 0 {
		params.ExpirationDuration = DefaultTokenExpiration
	}

	enc, err := jose.NewEncrypter(
		jose.A128CBC_HS256,
		jose.Recipient{Algorithm: jose.DIRECT, Key: params.EncryptionKey},
		(&jose.EncrypterOptions{}).WithContentType("JWT"),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create token encrypter")
	}

	return &TokenService{
		params:    params,
		encrypter: enc,
		keyfunc:   kf,
		now:       time.Now,
		logger:    normalizeLogger(logger),
	}, nil
}

// WithClock overrides the time source, mostly for tests
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Expiration returns the configured token lifetime
func (ts *TokenService) Expiration() time.Duration {
	return ts.params.ExpirationDuration
}

// Build signs claims and encrypts the result. Registered time claims in
// the input are replaced by the codec.
func (ts *TokenService) Build(claims Claims) (string, error) {
	now := ts.now()

	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = jwt.NewNumericDate(now)
	mc["nbf"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(now.Add(ts.params.ExpirationDuration))
	if ts.params.Issuer != "" {
		mc["iss"] = ts.params.Issuer
	}
	if len(ts.params.Audience) > 0 {
		mc["aud"] = jwt.ClaimStrings(ts.params.Audience)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	if ts.params.KeyID != "" {
		token.Header["kid"] = ts.params.KeyID
	}

	signed, err := token.SignedString(ts.params.SigningKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	obj, err := ts.encrypter.Encrypt([]byte(signed))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt token")
	}

	out, err := obj.CompactSerialize()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to serialize token")
	}

	return out, nil
}

// Validate decrypts token, verifies its signature and lifetime and returns
// the claims it was built from. Any failure returns nil.
func (ts *TokenService) Validate(token string) Claims {
	claims, err := ts.parse(token)
	if err != nil {
		ts.logger.Debug("token validation failed: %v", err)
		return nil
	}
	return claims
}

func (ts *TokenService) parse(token string) (Claims, error) {
	obj, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{jose.DIRECT}, []jose.ContentEncryption{jose.A128CBC_HS256})
	if err != nil {
		return nil, err
	}

	payload, err := obj.Decrypt(ts.params.EncryptionKey)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.params.Validation.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(ts.params.Validation.Leeway))
	}
	if ts.params.Validation.ValidateIssuer {
		opts = append(opts, jwt.WithIssuer(ts.params.Issuer))
	}
	if ts.params.Validation.ValidateAudience {
		opts = append(opts, jwt.WithAudience(ts.params.Audience...))
	}

	mc := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(string(payload), mc, ts.keyfunc, opts...)
	if err != nil {
		return nil, err
	}

	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	for _, name := range codecClaims {
		delete(mc, name)
	}

	out := make(Claims, len(mc))
	for k, v := range mc {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}

	return out, nil
}

// signingKeyfunc resolves verification keys. Without a key id every token
// is checked against the signing key; with one, the kid header selects the
// current or a retired key.
func signingKeyfunc(params TokenParams) (jwt.Keyfunc, error) {
	if params.KeyID == "" {
		if len(params.VerificationKeys) > 0 {
			return nil, goerrors.New("verification keys require a signing key id", goerrors.CategoryValidation)
		}
		return func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return params.SigningKey, nil
		}, nil
	}

	alg := jwt.SigningMethodHS256.Alg()
	given := make(map[string]keyfunc.GivenKey, len(params.VerificationKeys)+1)
	given[params.KeyID] = keyfunc.NewGivenCustom(params.SigningKey, keyfunc.GivenKeyOptions{Algorithm: alg})

	for kid, key := range params.VerificationKeys {
		if kid == "" || kid == params.KeyID {
			return nil, goerrors.New("verification key ids must be set and differ from the signing key id", goerrors.CategoryValidation).
				WithMetadata(map[string]any{"kid": kid})
		}
		if len(key) < MinSigningKeyLength {
			return nil, goerrors.New(
				fmt.Sprintf("verification keys must be at least %d bytes", MinSigningKeyLength),
				goerrors.CategoryValidation,
			).WithMetadata(map[string]any{"kid": kid})
		}
		given[kid] = keyfunc.NewGivenCustom(key, keyfunc.GivenKeyOptions{Algorithm: alg})
	}

	return keyfunc.NewGiven(given).Keyfunc, nil
}
