package userkit

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRepository persists managed users
type UserRepository[U ManagedUser] interface {
	repository.Repository[U]

	FindUser(ctx context.Context, finder UserFinder) (U, error)
	// FindUserTx returns a record-not-found error when finder matches nothing.
	FindUserTx(ctx context.Context, tx bun.IDB, finder UserFinder) (U, error)
	AddUserTx(ctx context.Context, tx bun.IDB, user U) (U, error)
	SaveUserTx(ctx context.Context, tx bun.IDB, user U) error
}

type users[U ManagedUser] struct {
	repository.Repository[U]
	db        *bun.DB
	newRecord func() U
}

// NewUsersRepository builds a repository for the bun model produced by newRecord
func NewUsersRepository[U ManagedUser](db *bun.DB, newRecord func() U) UserRepository[U] {
	repo := repository.NewRepository[U](db, repository.ModelHandlers[U]{
		NewRecord: newRecord,
		GetID: func(u U) uuid.UUID {
			if isNilUser(u) {
				return uuid.Nil
			}
			return u.GetID()
		},
		SetID: func(u U, id uuid.UUID) {
			if !isNilUser(u) {
				u.SetID(id)
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users[U]{
		Repository: repo,
		db:         db,
		newRecord:  newRecord,
	}
}

func (r *users[U]) FindUser(ctx context.Context, finder UserFinder) (U, error) {
	return r.FindUserTx(ctx, r.db, finder)
}

func (r *users[U]) FindUserTx(ctx context.Context, tx bun.IDB, finder UserFinder) (U, error) {
	var zero U
	if tx == nil {
		tx = r.db
	}

	record := r.newRecord()
	q := tx.NewSelect().Model(record)
	if finder != nil {
		q = finder(q)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return zero, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"query": "user finder",
				})
		}
		return zero, err
	}

	return record, nil
}

func (r *users[U]) AddUserTx(ctx context.Context, tx bun.IDB, user U) (U, error) {
	if tx == nil {
		tx = r.db
	}
	if user.GetID() == uuid.Nil {
		user.SetID(uuid.New())
	}
	return r.Repository.CreateTx(ctx, tx, user)
}

// SaveUserTx writes every column of user by primary key, so flags can be
// reset to their zero value.
func (r *users[U]) SaveUserTx(ctx context.Context, tx bun.IDB, user U) error {
	if tx == nil {
		tx = r.db
	}

	res, err := tx.NewUpdate().Model(user).WherePK().Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": user.GetID().String(),
			})
	}

	return nil
}
