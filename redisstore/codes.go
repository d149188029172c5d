// Package redisstore keeps verification codes in redis, letting expiry be
// handled by key TTLs instead of the relational store.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	userkit "github.com/goliatone/go-userkit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

const DefaultPrefix = "userkit:codes"

const scanBatch = 100

// CodeRepository implements userkit.CodeRepository on redis. The bun
// transaction passed to each method is ignored, so writes land right away
// and the code store restores redeemed codes when a transaction fails.
type CodeRepository struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ userkit.DetachedCodeRepository = (*CodeRepository)(nil)

func NewCodeRepository(client redis.UniversalClient, prefix string) *CodeRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CodeRepository{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the clock used to compute key TTLs
func (r *CodeRepository) WithClock(now func() time.Time) *CodeRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// DetachedFromTx reports that redis writes never join a bun transaction
func (r *CodeRepository) DetachedFromTx() bool {
	return true
}

func (r *CodeRepository) key(userID uuid.UUID, purpose userkit.CodePurpose, code string) string {
	return r.prefix + ":" + string(purpose) + ":" + userID.String() + ":" + code
}

func (r *CodeRepository) FindCodeTx(ctx context.Context, _ bun.IDB, userID uuid.UUID, code string, purpose userkit.CodePurpose) (*userkit.VerificationCode, error) {
	data, err := r.redis.Get(ctx, r.key(userID, purpose, code)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
					"purpose": string(purpose),
				})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "redis code lookup failed")
	}

	record := &userkit.VerificationCode{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "stored verification code is malformed")
	}

	return record, nil
}

func (r *CodeRepository) AddCodeTx(ctx context.Context, _ bun.IDB, record *userkit.VerificationCode) error {
	ttl := record.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		// already expired, nothing worth storing
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode verification code")
	}

	key := r.key(record.UserID, record.Purpose, record.Code)
	if err := r.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "redis code write failed")
	}

	return nil
}

// RemoveCodeTx relies on DEL being atomic: only one caller observes a
// deleted key.
func (r *CodeRepository) RemoveCodeTx(ctx context.Context, _ bun.IDB, record *userkit.VerificationCode) (bool, error) {
	n, err := r.redis.Del(ctx, r.key(record.UserID, record.Purpose, record.Code)).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "redis code delete failed")
	}
	return n == 1, nil
}

func (r *CodeRepository) RemoveCodesTx(ctx context.Context, _ bun.IDB, userID uuid.UUID, purpose userkit.CodePurpose) error {
	pattern := r.prefix + ":" + string(purpose) + ":" + userID.String() + ":*"

	var cursor uint64
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "redis code scan failed")
		}

		if len(keys) > 0 {
			if err := r.redis.Del(ctx, keys...).Err(); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "redis code delete failed")
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
