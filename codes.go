package userkit

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	DefaultCodeTTL    = 15 * time.Minute
	DefaultCodeDigits = 6
	// MaxCodeAttempts bounds regeneration when a fresh code collides
	MaxCodeAttempts = 5
)

// CodeGenerator produces the secret sent to the user
type CodeGenerator interface {
	Generate(userID uuid.UUID, purpose CodePurpose) (string, error)
}

// CodeGeneratorFunc adapts a function into a CodeGenerator
type CodeGeneratorFunc func(userID uuid.UUID, purpose CodePurpose) (string, error)

func (f CodeGeneratorFunc) Generate(userID uuid.UUID, purpose CodePurpose) (string, error) {
	return f(userID, purpose)
}

// NumericCodeGenerator returns zero padded decimal codes, easy to type
// from a phone.
func NumericCodeGenerator(digits int) CodeGenerator {
	if digits <= 0 {
		digits = DefaultCodeDigits
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	format := fmt.Sprintf("%%0%dd", digits)

	return CodeGeneratorFunc(func(uuid.UUID, CodePurpose) (string, error) {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(format, n), nil
	})
}

// TokenCodeGenerator derives URL safe codes from secret, the user key, the
// purpose and a random nonce. Suited for links rather than typed codes.
func TokenCodeGenerator(secret []byte) CodeGenerator {
	return CodeGeneratorFunc(func(userID uuid.UUID, purpose CodePurpose) (string, error) {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return "", err
		}
		mac := hmac.New(sha256.New, secret)
		mac.Write(userID[:])
		mac.Write([]byte(purpose))
		mac.Write(nonce)
		return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
	})
}

// CodeStore issues and redeems purpose bound verification codes
type CodeStore struct {
	repo               CodeRepository
	detached           bool
	generator          CodeGenerator
	ttl                time.Duration
	invalidatePrevious bool
	now                func() time.Time
	logger             Logger
}

func NewCodeStore(repo CodeRepository) *CodeStore {
	detached := false
	if d, ok := repo.(DetachedCodeRepository); ok {
		detached = d.DetachedFromTx()
	}

	return &CodeStore{
		repo:               repo,
		detached:           detached,
		generator:          NumericCodeGenerator(DefaultCodeDigits),
		ttl:                DefaultCodeTTL,
		invalidatePrevious: true,
		now:                time.Now,
		logger:             defLogger{},
	}
}

func (s *CodeStore) WithGenerator(g CodeGenerator) *CodeStore {
	if g != nil {
		s.generator = g
	}
	return s
}

func (s *CodeStore) WithTTL(ttl time.Duration) *CodeStore {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithInvalidatePrevious controls whether issuing a code discards the
// outstanding codes of the same user and purpose.
func (s *CodeStore) WithInvalidatePrevious(v bool) *CodeStore {
	s.invalidatePrevious = v
	return s
}

func (s *CodeStore) WithClock(now func() time.Time) *CodeStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *CodeStore) WithLogger(logger Logger) *CodeStore {
	s.logger = normalizeLogger(logger)
	return s
}

// TTL returns the lifetime given to new codes
func (s *CodeStore) TTL() time.Duration {
	return s.ttl
}

// IssueTx creates and stores a fresh code for userID and purpose
func (s *CodeStore) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose CodePurpose) (string, time.Time, error) {
	if !purpose.Valid() {
		return "", time.Time{}, goerrors.New("unknown verification code purpose", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"purpose": string(purpose)})
	}

	if s.invalidatePrevious {
		if err := s.repo.RemoveCodesTx(ctx, tx, userID, purpose); err != nil {
			return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invalidate previous codes")
		}
	}

	for attempt := 1; attempt <= MaxCodeAttempts; attempt++ {
		code, err := s.generator.Generate(userID, purpose)
		if err != nil {
			return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
		}

		_, err = s.repo.FindCodeTx(ctx, tx, userID, code, purpose)
		if err == nil {
			s.logger.Debug("verification code collision for %s, attempt %d", purpose, attempt)
			continue
		}
		if !repository.IsRecordNotFound(err) {
			return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up verification code")
		}

		now := s.now().UTC()
		record := &VerificationCode{
			UserID:    userID,
			Code:      code,
			Purpose:   purpose,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: &now,
		}
		if err := s.repo.AddCodeTx(ctx, tx, record); err != nil {
			return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification code")
		}

		return code, record.ExpiresAt, nil
	}

	return "", time.Time{}, goerrors.New("could not generate a unique verification code", goerrors.CategoryInternal).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"attempts": MaxCodeAttempts, "purpose": string(purpose)})
}

// ConsumeTx redeems code. StatusInvalidToken covers unknown, expired and
// already redeemed codes. The error is reserved for storage faults.
func (s *CodeStore) ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string, purpose CodePurpose, singleUse bool) (Status, error) {
	status, _, err := s.consumeTx(ctx, tx, userID, code, purpose, singleUse)
	return status, err
}

// consumeTx also returns the record this call removed, if any
func (s *CodeStore) consumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string, purpose CodePurpose, singleUse bool) (Status, *VerificationCode, error) {
	if code == "" {
		return StatusInvalidToken, nil, nil
	}

	record, err := s.repo.FindCodeTx(ctx, tx, userID, code, purpose)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return StatusInvalidToken, nil, nil
		}
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up verification code")
	}

	if record.Expired(s.now()) {
		// expired codes are dead weight
		if _, err := s.repo.RemoveCodeTx(ctx, tx, record); err != nil {
			s.logger.Warn("failed to remove expired verification code: %v", err)
		}
		return StatusInvalidToken, nil, nil
	}

	if !singleUse {
		return StatusOK, nil, nil
	}

	removed, err := s.repo.RemoveCodeTx(ctx, tx, record)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem verification code")
	}
	if !removed {
		return StatusInvalidToken, nil, nil
	}

	return StatusOK, record, nil
}

// restore writes back codes redeemed by a transaction that rolled back.
// Repositories that share the transaction need nothing: the rollback
// already undid the removal.
func (s *CodeStore) restore(ctx context.Context, records []*VerificationCode) {
	if !s.detached {
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, record := range records {
		if err := s.repo.AddCodeTx(ctx, nil, record); err != nil {
			s.logger.Error("failed to restore %s verification code for user %s: %v", record.Purpose, record.UserID, err)
			continue
		}
		s.logger.Debug("restored %s verification code for user %s", record.Purpose, record.UserID)
	}
}
