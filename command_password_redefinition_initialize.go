package userkit

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordRedefinitionMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"User email."`
	OnResponse func(resp *InitializePasswordRedefinitionResponse)
}

func (p InitializePasswordRedefinitionMessage) Type() string { return "user.password_redefinition" }

type InitializePasswordRedefinitionResponse struct {
	// Success is true even for unknown emails so callers cannot probe
	// which addresses have an account.
	Success bool
}

type InitializePasswordRedefinitionHandler struct {
	manager *Manager[*User]
	logger  Logger
}

func NewInitializePasswordRedefinitionHandler(manager *Manager[*User]) *InitializePasswordRedefinitionHandler {
	return &InitializePasswordRedefinitionHandler{
		manager: manager,
		logger:  defLogger{},
	}
}

func (h *InitializePasswordRedefinitionHandler) WithLogger(logger Logger) *InitializePasswordRedefinitionHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *InitializePasswordRedefinitionHandler) Execute(ctx context.Context, event InitializePasswordRedefinitionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password redefinition initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordRedefinitionHandler) execute(ctx context.Context, event InitializePasswordRedefinitionMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	email := strings.TrimSpace(event.Email)

	result, err := h.manager.SendPasswordRedefinition(ctx, FindByEmail(email))
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password redefinition")
	}

	if result.Status() == StatusUserNotFound {
		h.logger.Debug("password redefinition requested for unknown email")
	} else if !result.OK() {
		return result.Err()
	}

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordRedefinitionResponse{Success: true})
	}

	return nil
}
