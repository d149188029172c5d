package userkit

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager[U ManagedUser] interface {
	repository.Validator
	repository.TransactionManager
	Users() UserRepository[U]
	Codes() CodeRepository
}

// RepositoryOption customizes NewRepositoryManager
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	codes CodeRepository
}

// WithCodeRepository stores verification codes outside the relational db
func WithCodeRepository(codes CodeRepository) RepositoryOption {
	return func(o *repositoryOptions) {
		o.codes = codes
	}
}

type mngr[U ManagedUser] struct {
	db        *bun.DB
	newRecord func() U
	users     UserRepository[U]
	codes     CodeRepository
}

func NewRepositoryManager[U ManagedUser](db *bun.DB, newRecord func() U, opts ...RepositoryOption) RepositoryManager[U] {
	o := &repositoryOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.codes == nil {
		o.codes = NewCodesRepository(db)
	}

	return &mngr[U]{
		db:        db,
		newRecord: newRecord,
		users:     NewUsersRepository(db, newRecord),
		codes:     o.codes,
	}
}

func (m mngr[U]) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.codes == nil {
		return errors.New("repository codes should be initialized")
	}

	return nil
}

func (m mngr[U]) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr[U]) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr[U]) Users() UserRepository[U] {
	return m.users
}

func (m mngr[U]) Codes() CodeRepository {
	return m.codes
}

// CreateSchema creates the user and verification code tables when missing.
// Production deployments are expected to own their migrations.
func CreateSchema[U ManagedUser](ctx context.Context, db *bun.DB, newRecord func() U) error {
	models := []any{newRecord(), (*VerificationCode)(nil)}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
