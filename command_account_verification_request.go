package userkit

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// AccountVerificationMessage asks for a new email confirmation code
type AccountVerificationMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"User email."`
	OnResponse func(a *AccountVerificationResponse)
}

func (e AccountVerificationMessage) Type() string { return "user.email.verification_request" }

type AccountVerificationResponse struct {
	Found            bool `json:"found" example:"true" doc:"Has the user been found?"`
	AlreadyConfirmed bool `json:"already_confirmed" example:"false" doc:"Was the email confirmed before?"`
	Sent             bool `json:"sent" example:"true" doc:"Has a new code been sent?"`
}

type AccountVerificationHandler struct {
	manager *Manager[*User]
}

func NewAccountVerificationHandler(manager *Manager[*User]) *AccountVerificationHandler {
	return &AccountVerificationHandler{manager: manager}
}

func (h *AccountVerificationHandler) Execute(ctx context.Context, event AccountVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationHandler) execute(ctx context.Context, event AccountVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	resp := &AccountVerificationResponse{}

	result, err := h.manager.SendEmailConfirmation(ctx, FindByEmail(strings.TrimSpace(event.Email)))
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute account verification")
	}

	switch result.Status() {
	case StatusOK:
		resp.Found = true
		resp.Sent = true
	case StatusUserAlreadyConfirmed:
		resp.Found = true
		resp.AlreadyConfirmed = true
	case StatusUserNotFound:
	default:
		return result.Err()
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
