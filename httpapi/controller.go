// Package httpapi exposes the user lifecycle as a JSON API on fiber. The
// session endpoint can also be mounted on a go-router group.
package httpapi

import (
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	userkit "github.com/goliatone/go-userkit"
	"github.com/google/uuid"
)

type Routes struct {
	Register             string
	ConfirmEmail         string
	RequestConfirmation  string
	Login                string
	PasswordRedefinition string
	PasswordReset        string
	TwoFactor            string
	Me                   string
}

// DefaultRoutes returns the paths used when no Routes are configured
func DefaultRoutes() *Routes {
	return &Routes{
		Register:             "/register",
		ConfirmEmail:         "/email/confirm",
		RequestConfirmation:  "/email/confirmation",
		Login:                "/login",
		PasswordRedefinition: "/password-redefinition",
		PasswordReset:        "/password-redefinition/finalize",
		TwoFactor:            "/two-factor",
		Me:                   "/me",
	}
}

type Controller struct {
	Logger             userkit.Logger
	Routes             *Routes
	ErrorHandler       fiber.ErrorHandler
	RouterErrorHandler router.ErrorHandler
	Tokens             userkit.TokenValidator

	manager *userkit.Manager[*userkit.User]
}

type ControllerOption func(*Controller) *Controller

func WithLogger(logger userkit.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithRoutes(routes *Routes) ControllerOption {
	return func(c *Controller) *Controller {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func WithErrorHandler(handler fiber.ErrorHandler) ControllerOption {
	return func(c *Controller) *Controller {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// WithTokenValidator lets protected routes accept tokens from several codecs
func WithTokenValidator(validator userkit.TokenValidator) ControllerOption {
	return func(c *Controller) *Controller {
		if validator != nil {
			c.Tokens = validator
		}
		return c
	}
}

func NewController(manager *userkit.Manager[*userkit.User], opts ...ControllerOption) *Controller {
	if manager == nil {
		panic("httpapi: missing user manager")
	}

	c := &Controller{
		Logger:  userkit.DefaultLogger(),
		Routes:  DefaultRoutes(),
		Tokens:  userkit.TokenValidatorFunc(manager.ValidateToken),
		manager: manager,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = DefaultErrorHandler(c.Logger)
	}

	if c.RouterErrorHandler == nil {
		c.RouterErrorHandler = RouterErrorHandler(c.Logger)
	}

	return c
}

// RegisterRoutes mounts the lifecycle endpoints on r
func (a *Controller) RegisterRoutes(r fiber.Router) {
	r.Post(a.Routes.Register, a.RegistrationCreate)
	r.Post(a.Routes.ConfirmEmail, a.EmailConfirm)
	r.Post(a.Routes.RequestConfirmation, a.ConfirmationRequest)
	r.Post(a.Routes.Login, a.LoginPost)
	r.Post(a.Routes.PasswordRedefinition, a.PasswordRedefinitionPost)
	r.Post(a.Routes.PasswordReset, a.PasswordResetExecute)

	protected := Protected(a.Tokens, a.ErrorHandler)
	r.Get(a.Routes.Me, protected, a.MeGet)
	r.Put(a.Routes.TwoFactor, protected, a.TwoFactorPut)
}

type validatable interface {
	Validate() error
}

func (a *Controller) bind(c *fiber.Ctx, payload validatable) error {
	if err := c.BodyParser(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest)
	}

	if err := payload.Validate(); err != nil {
		return goerrors.New("invalid request payload", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": FormatValidationErrorToMap(err)})
	}

	return nil
}

func (a *Controller) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	var user *userkit.User
	handler := userkit.NewRegisterUserHandler(a.manager).WithLogger(a.Logger)
	err := handler.Execute(c.UserContext(), userkit.RegisterUserMessage{
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(resp *userkit.RegisterUserResponse) {
			user = resp.User
		},
	})
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

func (a *Controller) EmailConfirm(c *fiber.Ctx) error {
	payload := new(ConfirmEmailPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	var user *userkit.User
	err := userkit.NewConfirmEmailHandler(a.manager).Execute(c.UserContext(), userkit.ConfirmEmailMessage{
		Email: payload.Email,
		Code:  payload.Code,
		OnResponse: func(resp *userkit.ConfirmEmailResponse) {
			user = resp.User
		},
	})
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{"user": user})
}

// ConfirmationRequest sends a new confirmation code. The response is the
// same whether or not the address has an account.
func (a *Controller) ConfirmationRequest(c *fiber.Ctx) error {
	payload := new(EmailPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	err := userkit.NewAccountVerificationHandler(a.manager).Execute(c.UserContext(), userkit.AccountVerificationMessage{
		Email: payload.Email,
		OnResponse: func(resp *userkit.AccountVerificationResponse) {
			if !resp.Sent {
				a.Logger.Debug("confirmation not sent: found=%t already_confirmed=%t", resp.Found, resp.AlreadyConfirmed)
			}
		},
	})
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
}

func (a *Controller) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	var resp *userkit.LoginResponse
	handler := userkit.NewLoginHandler(a.manager).WithLogger(a.Logger)
	err := handler.Execute(c.UserContext(), userkit.LoginMessage{
		Email:         payload.Email,
		Password:      payload.Password,
		TwoFactorCode: payload.Code,
		OnResponse: func(r *userkit.LoginResponse) {
			resp = r
		},
	})
	if err != nil {
		if userkit.HasTextCode(err, userkit.TextCodeUserNotFound) || userkit.HasTextCode(err, userkit.TextCodeInvalidPassword) {
			err = ErrInvalidCredentials.Clone()
		}
		return a.ErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{
		"token": resp.Token,
		"user":  resp.User,
	})
}

// PasswordRedefinitionPost starts a password redefinition. Unknown
// addresses get the same response as known ones.
func (a *Controller) PasswordRedefinitionPost(c *fiber.Ctx) error {
	payload := new(EmailPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	handler := userkit.NewInitializePasswordRedefinitionHandler(a.manager).WithLogger(a.Logger)
	if err := handler.Execute(c.UserContext(), userkit.InitializePasswordRedefinitionMessage{Email: payload.Email}); err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
}

func (a *Controller) PasswordResetExecute(c *fiber.Ctx) error {
	payload := new(PasswordResetPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	var user *userkit.User
	err := userkit.NewFinalizePasswordRedefinitionHandler(a.manager).Execute(c.UserContext(), userkit.FinalizePasswordRedefinitionMessage{
		Email:    payload.Email,
		Code:     payload.Code,
		Password: payload.Password,
		OnResponse: func(resp *userkit.FinalizePasswordRedefinitionResponse) {
			user = resp.User
		},
	})
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{"user": user})
}

func (a *Controller) MeGet(c *fiber.Ctx) error {
	finder, err := a.currentUser(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	result, err := a.manager.FindUser(c.UserContext(), finder)
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	if !result.OK() {
		return a.ErrorHandler(c, result.Err())
	}

	claims, _ := GetClaims(c)
	return c.JSON(fiber.Map{
		"user":   result.User(),
		"claims": claims,
	})
}

func (a *Controller) TwoFactorPut(c *fiber.Ctx) error {
	finder, err := a.currentUser(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	payload := new(TwoFactorPayload)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	result, err := a.manager.SetTwoFactor(c.UserContext(), finder, *payload.Enabled)
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	if !result.OK() {
		return a.ErrorHandler(c, result.Err())
	}

	return c.JSON(fiber.Map{"user": result.User()})
}

func (a *Controller) currentUser(c *fiber.Ctx) (userkit.UserFinder, error) {
	claims, ok := userkit.GetClaims(c.UserContext())
	if !ok {
		return nil, ErrMissingOrMalformedToken.Clone()
	}
	return finderFromClaims(claims)
}

func finderFromClaims(claims userkit.Claims) (userkit.UserFinder, error) {
	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, userkit.ErrInvalidToken.Clone().WithMetadata(map[string]any{
			"reason": "subject is not a user id",
		})
	}

	return userkit.FindByID(id), nil
}
