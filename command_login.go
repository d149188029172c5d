package userkit

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type LoginMessage struct {
	Email         string `json:"email" example:"pepe.rone@example.com" doc:"User email."`
	Password      string `json:"password" example:"some_secret_word" doc:"Password"`
	TwoFactorCode string `json:"code,omitempty" example:"042117" doc:"Two factor code, when enabled"`
	OnResponse    func(resp *LoginResponse)
}

func (e LoginMessage) Type() string { return "user.login" }

type LoginResponse struct {
	User  *User
	Token string
}

// LoginHandler validates credentials and returns a bearer token. When the
// user has two factor enabled and no code was given, a code is sent and
// ErrTwoFactorRequired is returned.
type LoginHandler struct {
	manager       *Manager[*User]
	sendTwoFactor bool
	logger        Logger
}

func NewLoginHandler(manager *Manager[*User]) *LoginHandler {
	return &LoginHandler{
		manager:       manager,
		sendTwoFactor: true,
		logger:        defLogger{},
	}
}

// WithTwoFactorDispatch controls whether a challenge triggers a new code
func (h *LoginHandler) WithTwoFactorDispatch(v bool) *LoginHandler {
	h.sendTwoFactor = v
	return h
}

func (h *LoginHandler) WithLogger(logger Logger) *LoginHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during login")
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	finder := FindByEmail(strings.TrimSpace(event.Email))

	result, err := h.manager.ValidateUser(ctx, finder, event.Password, strings.TrimSpace(event.TwoFactorCode))
	if err != nil {
		return h.richError(err, "failed to validate credentials")
	}

	if result.Status() == StatusTwoFactorRequired && h.sendTwoFactor {
		if _, err := h.manager.SendTwoFactorAuthentication(ctx, finder); err != nil {
			h.logger.Error("failed to send two factor code: %v", err)
			return h.richError(err, "failed to send two factor code")
		}
	}

	if !result.OK() {
		return result.Err()
	}

	token, err := h.manager.GetToken(ctx, result.User(), nil)
	if err != nil {
		return h.richError(err, "failed to build token")
	}

	if event.OnResponse != nil {
		event.OnResponse(&LoginResponse{User: result.User(), Token: token})
	}

	return nil
}

func (h *LoginHandler) richError(err error, msg string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
