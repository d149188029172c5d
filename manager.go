package userkit

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Manager orchestrates the user lifecycle: sign up, login, email
// confirmation, password redefinition and two factor authentication.
//
// Every operation runs its reads and writes inside a single transaction and
// returns a Result. Expected outcomes such as a wrong password are reported
// through the Result status; the error return is reserved for
// infrastructure faults and invalid input.
//
// Messages are dispatched after the transaction commits. When dispatch
// fails the committed Result is returned together with the error.
type Manager[U ManagedUser] struct {
	repo      RepositoryManager[U]
	tokens    TokenCodec
	messenger MessageGateway
	hasher    PasswordHasher
	codes     *CodeStore
	logger    Logger
	activity  ActivitySink
	decorator ClaimsDecorator
	now       func() time.Time

	sendConfirmationOnCreate bool
	singleUseTwoFactor       bool
}

// NewManager wires a manager with a PBKDF2 hasher and a code store backed
// by repo.Codes().
func NewManager[U ManagedUser](repo RepositoryManager[U], tokens TokenCodec, messenger MessageGateway) *Manager[U] {
	return &Manager[U]{
		repo:                     repo,
		tokens:                   tokens,
		messenger:                messenger,
		hasher:                   MustPBKDF2Hasher(DefaultHasherConfig()),
		codes:                    NewCodeStore(repo.Codes()),
		logger:                   defLogger{},
		activity:                 noopActivitySink{},
		decorator:                noopClaimsDecorator{},
		now:                      time.Now,
		sendConfirmationOnCreate: true,
		singleUseTwoFactor:       true,
	}
}

func (m *Manager[U]) WithLogger(logger Logger) *Manager[U] {
	m.logger = normalizeLogger(logger)
	m.codes.WithLogger(m.logger)
	return m
}

func (m *Manager[U]) WithHasher(hasher PasswordHasher) *Manager[U] {
	if hasher != nil {
		m.hasher = hasher
	}
	return m
}

func (m *Manager[U]) WithCodeStore(codes *CodeStore) *Manager[U] {
	if codes != nil {
		m.codes = codes
	}
	return m
}

func (m *Manager[U]) WithActivitySink(sink ActivitySink) *Manager[U] {
	m.activity = normalizeActivitySink(sink)
	return m
}

func (m *Manager[U]) WithClaimsDecorator(decorator ClaimsDecorator) *Manager[U] {
	m.decorator = normalizeClaimsDecorator(decorator)
	return m
}

// WithClock overrides the time source of the manager and its code store
func (m *Manager[U]) WithClock(now func() time.Time) *Manager[U] {
	if now != nil {
		m.now = now
		m.codes.WithClock(now)
	}
	return m
}

// WithSendConfirmationOnCreate controls whether CreateUser emails a
// confirmation code. Enabled by default.
func (m *Manager[U]) WithSendConfirmationOnCreate(v bool) *Manager[U] {
	m.sendConfirmationOnCreate = v
	return m
}

// WithSingleUseTwoFactor controls whether a two factor code is consumed on
// a successful login. Enabled by default; disabling it lets a code be
// replayed until it expires.
func (m *Manager[U]) WithSingleUseTwoFactor(v bool) *Manager[U] {
	m.singleUseTwoFactor = v
	return m
}

// Hasher returns the hasher used for password operations, handy when
// building users for CreateUser.
func (m *Manager[U]) Hasher() PasswordHasher {
	return m.hasher
}

// CreateUser persists the user returned by build unless finder already
// matches a record.
func (m *Manager[U]) CreateUser(ctx context.Context, finder UserFinder, build UserBuilder[U]) (Result[U], error) {
	var (
		result Result[U]
		code   string
	)

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := m.repo.Users().FindUserTx(ctx, tx, finder)
		if err == nil {
			result = Failure[U](StatusUserAlreadyExists)
			return nil
		}
		if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
		}

		user, err := build()
		if err != nil {
			return err
		}

		created, err := m.repo.Users().AddUserTx(ctx, tx, user)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user")
		}

		if m.sendConfirmationOnCreate {
			code, _, err = m.codes.IssueTx(ctx, tx, created.GetID(), PurposeEmailConfirmation)
			if err != nil {
				return err
			}
		}

		result = Success(created)
		return nil
	})
	if err != nil {
		return Result[U]{}, m.richError(err, "failed to create user")
	}

	if !result.OK() {
		return result, nil
	}

	m.record(ctx, ActivityEventUserCreated, result.User(), UserState{}, nil)

	if code != "" {
		if err := m.messenger.SendEmailConfirmationMessage(ctx, result.User(), code); err != nil {
			return result, err
		}
		m.record(ctx, ActivityEventCodeIssued, result.User(), StateOf(result.User()), map[string]any{
			"purpose": string(PurposeEmailConfirmation),
		})
	}

	return result, nil
}

// ValidateUser checks password and, for users with two factor enabled,
// twoFactorCode. An empty code on such a user yields TwoFactorRequired.
func (m *Manager[U]) ValidateUser(ctx context.Context, finder UserFinder, password, twoFactorCode string) (Result[U], error) {
	var result Result[U]

	err := m.redeemInTx(ctx, func(ctx context.Context, tx bun.Tx, redeem redeemFunc) error {
		user, status, err := m.findTx(ctx, tx, finder)
		if err != nil || status != StatusOK {
			result = failureOrZero[U](status)
			return err
		}

		ok, err := m.hasher.ValidatePassword(password, user.GetSalt(), user.GetPasswordHash())
		if err != nil {
			return err
		}
		if !ok {
			result = Failure[U](StatusInvalidPassword)
			return nil
		}

		if user.IsTwoFactorEnabled() {
			if twoFactorCode == "" {
				result = Failure[U](StatusTwoFactorRequired)
				return nil
			}

			status, err := redeem(ctx, tx, user.GetID(), twoFactorCode, PurposeTwoFactorAuthentication, m.singleUseTwoFactor)
			if err != nil {
				return err
			}
			if status != StatusOK {
				result = Failure[U](status)
				return nil
			}
		}

		result = Success(user)
		return nil
	})
	if err != nil {
		return Result[U]{}, m.richError(err, "failed to validate user")
	}

	switch {
	case result.OK():
		m.record(ctx, ActivityEventLoginSuccess, result.User(), StateOf(result.User()), nil)
	case result.Status() == StatusTwoFactorRequired:
		m.recordFailure(ctx, ActivityEventTwoFactorChallenged, result.Status())
	default:
		m.recordFailure(ctx, ActivityEventLoginFailure, result.Status())
	}

	return result, nil
}

// ConfirmEmail redeems an email confirmation code and marks the user as
// confirmed. Redeeming a valid code for a user that is already confirmed
// succeeds without changes.
func (m *Manager[U]) ConfirmEmail(ctx context.Context, finder UserFinder, code string) (Result[U], error) {
	var (
		result Result[U]
		from   UserState
	)

	err := m.redeemInTx(ctx, func(ctx context.Context, tx bun.Tx, redeem redeemFunc) error {
		user, status, err := m.findTx(ctx, tx, finder)
		if err != nil || status != StatusOK {
			result = failureOrZero[U](status)
			return err
		}

		status, err = redeem(ctx, tx, user.GetID(), code, PurposeEmailConfirmation, true)
		if err != nil {
			return err
		}
		if status != StatusOK {
			result = Failure[U](status)
			return nil
		}

		from = StateOf(user)
		if !user.IsEmailConfirmed() {
			user.SetEmailConfirmed(true)
			if err := m.repo.Users().SaveUserTx(ctx, tx, user); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save user")
			}
		}

		result = Success(user)
		return nil
	})
	if err != nil {
		return Result[U]{}, m.richError(err, "failed to confirm email")
	}

	if result.OK() {
		m.record(ctx, ActivityEventEmailConfirmed, result.User(), from, nil)
	}

	return result, nil
}

// RedefinePassword redeems a password redefinition code and stores a hash
// of newPassword under a fresh salt. The email confirmation flag is left
// untouched.
func (m *Manager[U]) RedefinePassword(ctx context.Context, finder UserFinder, code, newPassword string) (Result[U], error) {
	var result Result[U]

	err := m.redeemInTx(ctx, func(ctx context.Context, tx bun.Tx, redeem redeemFunc) error {
		user, status, err := m.findTx(ctx, tx, finder)
		if err != nil || status != StatusOK {
			result = failureOrZero[U](status)
			return err
		}

		// hash first so a rejected password never touches the code
		salt, hash, err := m.hasher.SetPassword(newPassword)
		if err != nil {
			return err
		}

		status, err = redeem(ctx, tx, user.GetID(), code, PurposePasswordRedefinition, true)
		if err != nil {
			return err
		}
		if status != StatusOK {
			result = Failure[U](status)
			return nil
		}

		user.SetCredentials(salt, hash)

		if err := m.repo.Users().SaveUserTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save user")
		}

		result = Success(user)
		return nil
	})
	if err != nil {
		return Result[U]{}, m.richError(err, "failed to redefine password")
	}

	if result.OK() {
		m.record(ctx, ActivityEventPasswordRedefined, result.User(), StateOf(result.User()), nil)
	}

	return result, nil
}

// SendEmailConfirmation issues and dispatches a new email confirmation
// code. Confirmed users get UserAlreadyConfirmed.
func (m *Manager[U]) SendEmailConfirmation(ctx context.Context, finder UserFinder) (Result[U], error) {
	return m.sendCode(ctx, finder, PurposeEmailConfirmation, m.messenger.SendEmailConfirmationMessage)
}

// SendPasswordRedefinition issues and dispatches a password redefinition code
func (m *Manager[U]) SendPasswordRedefinition(ctx context.Context, finder UserFinder) (Result[U], error) {
	return m.sendCode(ctx, finder, PurposePasswordRedefinition, m.messenger.SendPasswordRedefinitionMessage)
}

// SendTwoFactorAuthentication issues and dispatches a two factor code
func (m *Manager[U]) SendTwoFactorAuthentication(ctx context.Context, finder UserFinder) (Result[U], error) {
	return m.sendCode(ctx, finder, PurposeTwoFactorAuthentication, m.messenger.SendTwoFactorAuthenticationMessage)
}

type dispatchFunc func(ctx context.Context, user ManagedUser, code string) error

type redeemFunc func(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string, purpose CodePurpose, singleUse bool) (Status, error)

// redeemInTx runs fn in a transaction. Codes fn redeems through redeem are
// handed back to the code store when the transaction fails, so stores
// outside the database can put them back.
func (m *Manager[U]) redeemInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx, redeem redeemFunc) error) error {
	var redeemed []*VerificationCode

	redeem := func(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string, purpose CodePurpose, singleUse bool) (Status, error) {
		status, record, err := m.codes.consumeTx(ctx, tx, userID, code, purpose, singleUse)
		if record != nil {
			redeemed = append(redeemed, record)
		}
		return status, err
	}

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		redeemed = redeemed[:0]
		return fn(ctx, tx, redeem)
	})
	if err != nil && len(redeemed) > 0 {
		m.codes.restore(ctx, redeemed)
	}

	return err
}

func (m *Manager[U]) sendCode(ctx context.Context, finder UserFinder, purpose CodePurpose, dispatch dispatchFunc) (Result[U], error) {
	var (
		result Result[U]
		code   string
	)

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, status, err := m.findTx(ctx, tx, finder)
		if err != nil || status != StatusOK {
			result = failureOrZero[U](status)
			return err
		}

		if purpose == PurposeEmailConfirmation && user.IsEmailConfirmed() {
			result = Failure[U](StatusUserAlreadyConfirmed)
			return nil
		}

		code, _, err = m.codes.IssueTx(ctx, tx, user.GetID(), purpose)
		if err != nil {
			return err
		}

		result = Success(user)
		return nil
	})
	if err != nil {
		return Result[U]{}, m.richError(err, "failed to issue verification code")
	}

	if !result.OK() {
		return result, nil
	}

	if err := dispatch(ctx, result.User(), code); err != nil {
		return result, err
	}

	m.record(ctx, ActivityEventCodeIssued, result.User(), StateOf(result.User()), map[string]any{
		"purpose": string(purpose),
	})

	return result, nil
}

// SetTwoFactor enables or disables two factor authentication
func (m *Manager[U]) SetTwoFactor(ctx context.Context, finder UserFinder, enabled bool) (Result[U], error) {
	var (
		result Result[U]
		from   UserState
	)

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, status, err := m.findTx(ctx, tx, finder)
		if err != nil || status != StatusOK {
			result = failureOrZero[U](status)
			return err
		}

		from = StateOf(user)
		if user.IsTwoFactorEnabled() != enabled {
			user.SetTwoFactorEnabled(enabled)
			if err := m.repo.Users().SaveUserTx(ctx, tx, user); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save user")
			}
		}

		result = Success(user)
		return nil
	})
	if err != nil {
		return Result[U]{}, m.richError(err, "failed to update two factor setting")
	}

	if result.OK() {
		m.record(ctx, ActivityEventTwoFactorChanged, result.User(), from, nil)
	}

	return result, nil
}

// FindUser returns the user matched by finder
func (m *Manager[U]) FindUser(ctx context.Context, finder UserFinder) (Result[U], error) {
	user, err := m.repo.Users().FindUser(ctx, finder)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return Failure[U](StatusUserNotFound), nil
		}
		return Result[U]{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}
	return Success(user), nil
}

// GetToken builds a bearer token from the user claims, the configured
// decorator and overrides, applied in that order.
func (m *Manager[U]) GetToken(ctx context.Context, user U, overrides Claims) (string, error) {
	if isNilUser(user) {
		return "", goerrors.New("cannot build a token without a user", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	claims := user.Claims()
	if err := m.decorator.Decorate(ctx, user, claims); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decorate claims")
	}

	return m.tokens.Build(claims.Merge(overrides))
}

// ValidateToken returns the claims of a valid token, nil otherwise
func (m *Manager[U]) ValidateToken(token string) Claims {
	return m.tokens.Validate(token)
}

func (m *Manager[U]) findTx(ctx context.Context, tx bun.IDB, finder UserFinder) (U, Status, error) {
	user, err := m.repo.Users().FindUserTx(ctx, tx, finder)
	if err != nil {
		var zero U
		if repository.IsRecordNotFound(err) {
			return zero, StatusUserNotFound, nil
		}
		return zero, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}
	return user, StatusOK, nil
}

// failureOrZero keeps the zero Result when the lookup hit an infra fault
func failureOrZero[U ManagedUser](status Status) Result[U] {
	if status == 0 || status == StatusOK {
		return Result[U]{}
	}
	return Failure[U](status)
}

func (m *Manager[U]) richError(err error, msg string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

func (m *Manager[U]) record(ctx context.Context, eventType ActivityEventType, user U, from UserState, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     user.GetID().String(),
		FromState:  from,
		ToState:    StateOf(user),
		Metadata:   metadata,
		OccurredAt: m.now().UTC(),
	}
	if err := m.activity.Record(ctx, event); err != nil {
		m.logger.Warn("failed to record %s activity: %v", eventType, err)
	}
}

func (m *Manager[U]) recordFailure(ctx context.Context, eventType ActivityEventType, status Status) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   map[string]any{"status": status.String()},
		OccurredAt: m.now().UTC(),
	}
	if err := m.activity.Record(ctx, event); err != nil {
		m.logger.Warn("failed to record %s activity: %v", eventType, err)
	}
}
