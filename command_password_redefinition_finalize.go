package userkit

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordRedefinitionMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"User email."`
	Code       string `json:"code" example:"042117" doc:"Password redefinition code"`
	Password   string `json:"password" example:"some_secret_word" doc:"Password"`
	OnResponse func(resp *FinalizePasswordRedefinitionResponse)
}

func (p FinalizePasswordRedefinitionMessage) Type() string { return "user.password_redefinition.finalize" }

type FinalizePasswordRedefinitionResponse struct {
	User *User
}

type FinalizePasswordRedefinitionHandler struct {
	manager *Manager[*User]
}

// NewFinalizePasswordRedefinitionHandler creates a handler with sane defaults.
func NewFinalizePasswordRedefinitionHandler(manager *Manager[*User]) *FinalizePasswordRedefinitionHandler {
	return &FinalizePasswordRedefinitionHandler{manager: manager}
}

func (h *FinalizePasswordRedefinitionHandler) Execute(ctx context.Context, event FinalizePasswordRedefinitionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password redefinition finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordRedefinitionHandler) execute(ctx context.Context, event FinalizePasswordRedefinitionMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	result, err := h.manager.RedefinePassword(
		ctx,
		FindByEmail(strings.TrimSpace(event.Email)),
		strings.TrimSpace(event.Code),
		event.Password,
	)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password redefinition")
	}

	if !result.OK() {
		return result.Err()
	}

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordRedefinitionResponse{User: result.User()})
	}

	return nil
}
