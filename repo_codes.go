package userkit

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CodeRepository persists verification codes. Implementations that do not
// live in the relational store may ignore tx.
type CodeRepository interface {
	// FindCodeTx returns a record-not-found error when no code matches.
	FindCodeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string, purpose CodePurpose) (*VerificationCode, error)
	AddCodeTx(ctx context.Context, tx bun.IDB, record *VerificationCode) error
	// RemoveCodeTx reports whether this call removed the record.
	RemoveCodeTx(ctx context.Context, tx bun.IDB, record *VerificationCode) (bool, error)
	RemoveCodesTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose CodePurpose) error
}

// DetachedCodeRepository marks a CodeRepository whose writes take effect
// immediately instead of joining tx. Codes it redeems are written back when
// the surrounding transaction rolls back.
type DetachedCodeRepository interface {
	CodeRepository
	DetachedFromTx() bool
}

type codes struct {
	db *bun.DB
}

var _ CodeRepository = (*codes)(nil)

// NewCodesRepository stores codes in the verification_codes table
func NewCodesRepository(db *bun.DB) CodeRepository {
	return &codes{db: db}
}

func (c *codes) FindCodeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string, purpose CodePurpose) (*VerificationCode, error) {
	if tx == nil {
		tx = c.db
	}

	record := &VerificationCode{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.code = ?", code).
		Where("?TableAlias.purpose = ?", purpose).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
					"purpose": string(purpose),
				})
		}
		return nil, err
	}

	return record, nil
}

func (c *codes) AddCodeTx(ctx context.Context, tx bun.IDB, record *VerificationCode) error {
	if tx == nil {
		tx = c.db
	}
	if record.CreatedAt == nil {
		now := time.Now().UTC()
		record.CreatedAt = &now
	}
	_, err := tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func (c *codes) RemoveCodeTx(ctx context.Context, tx bun.IDB, record *VerificationCode) (bool, error) {
	if tx == nil {
		tx = c.db
	}

	res, err := tx.NewDelete().
		Model((*VerificationCode)(nil)).
		Where("user_id = ?", record.UserID).
		Where("code = ?", record.Code).
		Where("purpose = ?", record.Purpose).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (c *codes) RemoveCodesTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose CodePurpose) error {
	if tx == nil {
		tx = c.db
	}

	_, err := tx.NewDelete().
		Model((*VerificationCode)(nil)).
		Where("user_id = ?", userID).
		Where("purpose = ?", purpose).
		Exec(ctx)
	return err
}
