package userkit

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeInvalidPassword      = "INVALID_PASSWORD"
	TextCodeInvalidToken         = "INVALID_TOKEN"
	TextCodeTwoFactorRequired    = "TWO_FACTOR_REQUIRED"
	TextCodeUserAlreadyConfirmed = "USER_ALREADY_CONFIRMED"
	TextCodeUserAlreadyExists    = "USER_ALREADY_EXISTS"
	TextCodeEmptyPassword        = "EMPTY_PASSWORD"
	TextCodeInvalidEmail         = "INVALID_EMAIL"
	TextCodeMalformedCredentials = "MALFORMED_CREDENTIALS"
	TextCodeResultHasNoUser      = "RESULT_HAS_NO_USER"
)

// ErrEmptyPassword is returned when hashing an empty password
var ErrEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidEmail is returned by NewUser for unusable addresses
var ErrInvalidEmail = goerrors.New("email address is not valid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrMalformedCredentials signals a stored salt or hash that cannot be used
var ErrMalformedCredentials = goerrors.New("stored password salt or hash is malformed", goerrors.CategoryInternal).
	WithTextCode(TextCodeMalformedCredentials).
	WithCode(goerrors.CodeInternal)

// ErrResultHasNoUser is the panic value when reading the user of a failed result
var ErrResultHasNoUser = goerrors.New("operation result does not hold a user", goerrors.CategoryInternal).
	WithTextCode(TextCodeResultHasNoUser).
	WithCode(goerrors.CodeInternal)

var (
	ErrUserNotFound = goerrors.New(StatusUserNotFound.Description(), goerrors.CategoryNotFound).
			WithTextCode(TextCodeUserNotFound).
			WithCode(goerrors.CodeNotFound)

	ErrInvalidPassword = goerrors.New(StatusInvalidPassword.Description(), goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidPassword).
				WithCode(goerrors.CodeUnauthorized)

	ErrInvalidToken = goerrors.New(StatusInvalidToken.Description(), goerrors.CategoryAuth).
			WithTextCode(TextCodeInvalidToken).
			WithCode(goerrors.CodeUnauthorized)

	ErrTwoFactorRequired = goerrors.New(StatusTwoFactorRequired.Description(), goerrors.CategoryAuth).
				WithTextCode(TextCodeTwoFactorRequired).
				WithCode(goerrors.CodeUnauthorized)

	ErrUserAlreadyConfirmed = goerrors.New(StatusUserAlreadyConfirmed.Description(), goerrors.CategoryConflict).
				WithTextCode(TextCodeUserAlreadyConfirmed).
				WithCode(goerrors.CodeConflict)

	ErrUserAlreadyExists = goerrors.New(StatusUserAlreadyExists.Description(), goerrors.CategoryConflict).
				WithTextCode(TextCodeUserAlreadyExists).
				WithCode(goerrors.CodeConflict)
)

// ErrorForStatus maps a failure status to its rich error. StatusOK maps to nil.
func ErrorForStatus(status Status) error {
	var base *goerrors.Error
	switch status {
	case StatusOK:
		return nil
	case StatusUserNotFound:
		base = ErrUserNotFound
	case StatusInvalidPassword:
		base = ErrInvalidPassword
	case StatusInvalidToken:
		base = ErrInvalidToken
	case StatusTwoFactorRequired:
		base = ErrTwoFactorRequired
	case StatusUserAlreadyConfirmed:
		base = ErrUserAlreadyConfirmed
	case StatusUserAlreadyExists:
		base = ErrUserAlreadyExists
	default:
		return goerrors.New("unknown operation status", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"status": int(status)})
	}
	return base.Clone()
}

// HasTextCode reports whether err is a rich error carrying textCode
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCode
	}
	return false
}
