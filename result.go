package userkit

import (
	"fmt"
	"reflect"
)

// Status is the closed set of lifecycle outcomes
type Status int

// The zero Status is never produced by an operation, so a zero Result is
// neither successful nor carries a user.
const (
	StatusOK Status = iota + 1
	StatusUserNotFound
	StatusInvalidPassword
	StatusInvalidToken
	StatusTwoFactorRequired
	StatusUserAlreadyConfirmed
	StatusUserAlreadyExists
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUserNotFound:
		return "user_not_found"
	case StatusInvalidPassword:
		return "invalid_password"
	case StatusInvalidToken:
		return "invalid_token"
	case StatusTwoFactorRequired:
		return "two_factor_required"
	case StatusUserAlreadyConfirmed:
		return "user_already_confirmed"
	case StatusUserAlreadyExists:
		return "user_already_exists"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Description is the human readable text for a status
func (s Status) Description() string {
	switch s {
	case StatusOK:
		return "Success"
	case StatusUserNotFound:
		return "The user was not found."
	case StatusInvalidPassword:
		return "The validation for this user and password failed."
	case StatusInvalidToken:
		return "The validation for this user and token failed."
	case StatusTwoFactorRequired:
		return "The user has 2FA enabled, but no code was provided."
	case StatusUserAlreadyConfirmed:
		return "This user was already confirmed."
	case StatusUserAlreadyExists:
		return "This user was already created."
	}
	return "Unknown status."
}

// Result is the tagged outcome of a lifecycle operation. A successful
// result always holds a user, a failed one never does.
type Result[U ManagedUser] struct {
	user   U
	status Status
}

// Success wraps user. It panics when user is nil.
func Success[U ManagedUser](user U) Result[U] {
	if isNilUser(user) {
		panic(fmt.Sprintf("userkit: success result requires a user, got %T(nil)", user))
	}
	return Result[U]{user: user, status: StatusOK}
}

// Failure wraps a failure status. It panics on StatusOK.
func Failure[U ManagedUser](status Status) Result[U] {
	if status == StatusOK {
		panic("userkit: failure result cannot carry StatusOK")
	}
	return Result[U]{status: status}
}

func (r Result[U]) OK() bool { return r.status == StatusOK }

func (r Result[U]) Status() Status { return r.status }

// User returns the wrapped user. Reading the user of a failed result is a
// programming error and panics with ErrResultHasNoUser.
func (r Result[U]) User() U {
	if r.status != StatusOK {
		panic(ErrResultHasNoUser.Clone().WithMetadata(map[string]any{
			"status": r.status.String(),
		}))
	}
	return r.user
}

// Err returns nil for successful results and the rich error for the
// failure status otherwise.
func (r Result[U]) Err() error {
	return ErrorForStatus(r.status)
}

func (r Result[U]) String() string {
	return r.status.String()
}

func isNilUser(u any) bool {
	if u == nil {
		return true
	}
	v := reflect.ValueOf(u)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
