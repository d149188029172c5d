package userkit

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultPBKDF2Iterations = 262140
	DefaultPBKDF2KeyLength  = 128
	DefaultSaltLength       = 32

	MinPBKDF2Iterations = 250000
	MinPBKDF2KeyLength  = 128
	MinSaltLength       = 16
)

// PRF names accepted by HasherConfig
const (
	PRFSHA512 = "sha512"
	PRFSHA256 = "sha256"
	PRFSHA1   = "sha1"
)

// HasherConfig tunes the PBKDF2 derivation
type HasherConfig struct {
	PRF        string
	Iterations int
	KeyLength  int
	SaltLength int
}

// DefaultHasherConfig returns HMAC-SHA512, 262140 rounds, 128 byte keys
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		PRF:        PRFSHA512,
		Iterations: DefaultPBKDF2Iterations,
		KeyLength:  DefaultPBKDF2KeyLength,
		SaltLength: DefaultSaltLength,
	}
}

// PBKDF2Hasher implements PasswordHasher
type PBKDF2Hasher struct {
	prf        func() hash.Hash
	iterations int
	keyLength  int
	saltLength int
	rand       io.Reader
}

var _ PasswordHasher = (*PBKDF2Hasher)(nil)

// NewPBKDF2Hasher validates cfg and returns a hasher
func NewPBKDF2Hasher(cfg HasherConfig) (*PBKDF2Hasher, error) {
	prf, err := resolvePRF(cfg.PRF)
	if err != nil {
		return nil, err
	}

	if cfg.Iterations < MinPBKDF2Iterations {
		return nil, goerrors.New(
			fmt.Sprintf("pbkdf2 iterations must be at least %d", MinPBKDF2Iterations),
			goerrors.CategoryValidation,
		).WithMetadata(map[string]any{"iterations": cfg.Iterations})
	}

	if cfg.KeyLength < MinPBKDF2KeyLength {
		return nil, goerrors.New(
			fmt.Sprintf("pbkdf2 key length must be at least %d bytes", MinPBKDF2KeyLength),
			goerrors.CategoryValidation,
		).WithMetadata(map[string]any{"key_length": cfg.KeyLength})
	}

	if cfg.SaltLength < MinSaltLength {
		return nil, goerrors.New(
			fmt.Sprintf("salt length must be at least %d bytes", MinSaltLength),
			goerrors.CategoryValidation,
		).WithMetadata(map[string]any{"salt_length": cfg.SaltLength})
	}

	return &PBKDF2Hasher{
		prf:        prf,
		iterations: cfg.Iterations,
		keyLength:  cfg.KeyLength,
		saltLength: cfg.SaltLength,
		rand:       rand.Reader,
	}, nil
}

// MustPBKDF2Hasher is NewPBKDF2Hasher that panics on a bad config
func MustPBKDF2Hasher(cfg HasherConfig) *PBKDF2Hasher {
	h, err := NewPBKDF2Hasher(cfg)
	if err != nil {
		panic(err)
	}
	return h
}

// SetPassword generates a fresh salt and derives the hash for password
func (h *PBKDF2Hasher) SetPassword(password string) (salt, hash []byte, err error) {
	if password == "" {
		return nil, nil, ErrEmptyPassword
	}

	salt = make([]byte, h.saltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password salt")
	}

	return salt, h.derive(password, salt), nil
}

// ValidatePassword re-derives the hash and compares in constant time.
// A wrong password is (false, nil); an unusable salt or hash is an error.
// Stored hashes shorter than MinPBKDF2KeyLength are treated as unusable.
func (h *PBKDF2Hasher) ValidatePassword(password string, salt, expected []byte) (bool, error) {
	if len(salt) == 0 || len(expected) < MinPBKDF2KeyLength {
		return false, ErrMalformedCredentials
	}

	computed := pbkdf2.Key([]byte(password), salt, h.iterations, len(expected), h.prf)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *PBKDF2Hasher) derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, h.iterations, h.keyLength, h.prf)
}

func resolvePRF(name string) (func() hash.Hash, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PRFSHA512:
		return sha512.New, nil
	case PRFSHA256:
		return sha256.New, nil
	case PRFSHA1:
		return sha1.New, nil
	}
	return nil, goerrors.New("unsupported pbkdf2 pseudorandom function", goerrors.CategoryValidation).
		WithMetadata(map[string]any{"prf": name})
}
