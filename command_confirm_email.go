package userkit

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type ConfirmEmailMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"User email."`
	Code       string `json:"code" example:"042117" doc:"Email confirmation code"`
	OnResponse func(resp *ConfirmEmailResponse)
}

func (e ConfirmEmailMessage) Type() string { return "user.email.confirm" }

type ConfirmEmailResponse struct {
	User *User
}

type ConfirmEmailHandler struct {
	manager *Manager[*User]
}

func NewConfirmEmailHandler(manager *Manager[*User]) *ConfirmEmailHandler {
	return &ConfirmEmailHandler{manager: manager}
}

func (h *ConfirmEmailHandler) Execute(ctx context.Context, event ConfirmEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailHandler) execute(ctx context.Context, event ConfirmEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	result, err := h.manager.ConfirmEmail(ctx, FindByEmail(strings.TrimSpace(event.Email)), strings.TrimSpace(event.Code))
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute email confirmation")
	}

	if !result.OK() {
		return result.Err()
	}

	if event.OnResponse != nil {
		event.OnResponse(&ConfirmEmailResponse{User: result.User()})
	}

	return nil
}
