package userkit

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

const commandTimeout = time.Second * 10

type RegisterUserMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"User email."`
	Password   string `json:"password" example:"some_secret_word" doc:"Password"`
	UseHashid  bool   `json:"-"`
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User *User
}

type RegisterUserHandler struct {
	manager *Manager[*User]
	logger  Logger
}

func NewRegisterUserHandler(manager *Manager[*User]) *RegisterUserHandler {
	return &RegisterUserHandler{
		manager: manager,
		logger:  defLogger{},
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	email := strings.TrimSpace(event.Email)

	result, err := h.manager.CreateUser(ctx, FindByEmail(email), func() (*User, error) {
		user, err := NewUser(h.manager.Hasher(), email, event.Password)
		if err != nil {
			return nil, err
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				user.ID = id
			}
		}
		return user, nil
	})

	if err != nil {
		// the user row is committed when only the dispatch failed
		if result.OK() {
			h.logger.Warn("user %s registered but confirmation was not sent: %v", result.User().ID, err)
		}
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration failed")
	}

	if !result.OK() {
		return result.Err()
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{User: result.User()})
	}

	return nil
}
