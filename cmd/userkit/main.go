// Command userkit drives the user lifecycle from a terminal. Configuration is
// read from USERKIT_ prefixed environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	userkit "github.com/goliatone/go-userkit"
	"github.com/goliatone/go-userkit/httpapi"
	"github.com/goliatone/go-userkit/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

const shutdownTimeout = 5 * time.Second

const usage = `usage: userkit [-debug] <command> [args]

commands:
  schema                              create the tables
  signup <email> <password>           register a user and send a confirmation code
  confirm <email> <code>              confirm an email address
  send-confirmation <email>           send a new confirmation code
  login <email> <password> [code]     validate credentials and print a token
  send-reset <email>                  send a password redefinition code
  reset <email> <code> <password>     set a new password
  two-factor <email> <on|off>         toggle two factor authentication
  validate-token <token>              print the claims of a token
  serve [addr]                        expose the JSON API (default :8080)
`

type app struct {
	db      *bun.DB
	manager *userkit.Manager[*userkit.User]
	logger  userkit.Logger
}

func main() {
	fs := flag.NewFlagSet("userkit", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	logger, sync, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, fs.Args()); err != nil {
		logger.Error("%v", err)
		sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger zapLogger, args []string) error {
	cfg, err := userkit.LoadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.db.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "schema":
		return userkit.CreateSchema(ctx, a.db, newUser)
	case "signup":
		return a.signup(ctx, rest)
	case "confirm":
		return a.confirm(ctx, rest)
	case "send-confirmation":
		return a.sendConfirmation(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "send-reset":
		return a.sendReset(ctx, rest)
	case "reset":
		return a.reset(ctx, rest)
	case "two-factor":
		return a.twoFactor(ctx, rest)
	case "validate-token":
		return a.validateToken(rest)
	case "serve":
		return a.serve(ctx, rest)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newUser() *userkit.User { return &userkit.User{} }

func newApp(cfg *userkit.Config, logger zapLogger) (*app, error) {
	db, err := userkit.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var opts []userkit.RepositoryOption
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts = append(opts, userkit.WithCodeRepository(redisstore.NewCodeRepository(client, cfg.Redis.Prefix)))
	}

	repo := userkit.NewRepositoryManager(db, newUser, opts...)
	if err := repo.Validate(); err != nil {
		return nil, err
	}

	tokens, err := userkit.NewTokenService(cfg.TokenParams(), logger)
	if err != nil {
		return nil, err
	}

	hasher, err := userkit.NewPBKDF2Hasher(cfg.HasherConfig())
	if err != nil {
		return nil, err
	}

	messenger, err := cfg.NewMessenger(logger)
	if err != nil {
		return nil, err
	}

	codes := cfg.ConfigureCodeStore(userkit.NewCodeStore(repo.Codes())).WithLogger(logger)

	manager := userkit.NewManager(repo, tokens, messenger).
		WithLogger(logger).
		WithHasher(hasher).
		WithCodeStore(codes).
		WithActivitySink(auditSink(logger)).
		WithSingleUseTwoFactor(cfg.Codes.SingleUseTwoFactor)

	return &app{db: db, manager: manager, logger: logger}, nil
}

func expectArgs(args []string, min, max int, form string) error {
	if len(args) < min || len(args) > max {
		return fmt.Errorf("expected arguments: %s", form)
	}
	return nil
}

func (a *app) signup(ctx context.Context, args []string) error {
	if err := expectArgs(args, 2, 2, "<email> <password>"); err != nil {
		return err
	}
	return userkit.NewRegisterUserHandler(a.manager).
		WithLogger(a.logger).
		Execute(ctx, userkit.RegisterUserMessage{
			Email:    args[0],
			Password: args[1],
			OnResponse: func(resp *userkit.RegisterUserResponse) {
				fmt.Printf("registered %s (%s)\n", resp.User.Email, resp.User.ID)
			},
		})
}

func (a *app) confirm(ctx context.Context, args []string) error {
	if err := expectArgs(args, 2, 2, "<email> <code>"); err != nil {
		return err
	}
	return userkit.NewConfirmEmailHandler(a.manager).Execute(ctx, userkit.ConfirmEmailMessage{
		Email: args[0],
		Code:  args[1],
		OnResponse: func(resp *userkit.ConfirmEmailResponse) {
			fmt.Printf("confirmed %s\n", resp.User.Email)
		},
	})
}

func (a *app) sendConfirmation(ctx context.Context, args []string) error {
	if err := expectArgs(args, 1, 1, "<email>"); err != nil {
		return err
	}
	return userkit.NewAccountVerificationHandler(a.manager).Execute(ctx, userkit.AccountVerificationMessage{
		Email: args[0],
		OnResponse: func(resp *userkit.AccountVerificationResponse) {
			switch {
			case resp.Sent:
				fmt.Println("confirmation code sent")
			case resp.AlreadyConfirmed:
				fmt.Println("email already confirmed")
			default:
				fmt.Println("user not found")
			}
		},
	})
}

func (a *app) login(ctx context.Context, args []string) error {
	if err := expectArgs(args, 2, 3, "<email> <password> [code]"); err != nil {
		return err
	}
	msg := userkit.LoginMessage{
		Email:    args[0],
		Password: args[1],
		OnResponse: func(resp *userkit.LoginResponse) {
			fmt.Println(resp.Token)
		},
	}
	if len(args) == 3 {
		msg.TwoFactorCode = args[2]
	}

	err := userkit.NewLoginHandler(a.manager).WithLogger(a.logger).Execute(ctx, msg)
	if userkit.HasTextCode(err, userkit.TextCodeTwoFactorRequired) {
		return errors.New("two factor code sent, run login again with the code")
	}
	return err
}

func (a *app) sendReset(ctx context.Context, args []string) error {
	if err := expectArgs(args, 1, 1, "<email>"); err != nil {
		return err
	}
	return userkit.NewInitializePasswordRedefinitionHandler(a.manager).
		WithLogger(a.logger).
		Execute(ctx, userkit.InitializePasswordRedefinitionMessage{
			Email: args[0],
			OnResponse: func(*userkit.InitializePasswordRedefinitionResponse) {
				fmt.Println("if the account exists a code was sent")
			},
		})
}

func (a *app) reset(ctx context.Context, args []string) error {
	if err := expectArgs(args, 3, 3, "<email> <code> <password>"); err != nil {
		return err
	}
	return userkit.NewFinalizePasswordRedefinitionHandler(a.manager).Execute(ctx, userkit.FinalizePasswordRedefinitionMessage{
		Email:    args[0],
		Code:     args[1],
		Password: args[2],
		OnResponse: func(resp *userkit.FinalizePasswordRedefinitionResponse) {
			fmt.Printf("password updated for %s\n", resp.User.Email)
		},
	})
}

func (a *app) twoFactor(ctx context.Context, args []string) error {
	if err := expectArgs(args, 2, 2, "<email> <on|off>"); err != nil {
		return err
	}

	var enabled bool
	switch args[1] {
	case "on":
		enabled = true
	case "off":
	default:
		return fmt.Errorf("expected on or off, got %q", args[1])
	}

	result, err := a.manager.SetTwoFactor(ctx, userkit.FindByEmail(args[0]), enabled)
	if err != nil {
		return err
	}
	if !result.OK() {
		return result.Err()
	}

	fmt.Printf("two factor for %s: %s\n", args[0], args[1])
	return nil
}

func (a *app) validateToken(args []string) error {
	if err := expectArgs(args, 1, 1, "<token>"); err != nil {
		return err
	}

	claims := a.manager.ValidateToken(args[0])
	if claims == nil {
		return userkit.ErrorForStatus(userkit.StatusInvalidToken)
	}

	for k, v := range claims {
		fmt.Printf("%s=%s\n", k, v)
	}
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	if err := expectArgs(args, 0, 1, "serve [addr]"); err != nil {
		return err
	}

	addr := ":8080"
	if len(args) == 1 {
		addr = args[0]
	}

	server := fiber.New(fiber.Config{DisableStartupMessage: true})
	httpapi.NewController(a.manager, httpapi.WithLogger(a.logger)).RegisterRoutes(server.Group("/api"))

	go func() {
		<-ctx.Done()
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			a.logger.Error("shutdown: %v", err)
		}
	}()

	a.logger.Info("listening on %s", addr)
	return server.Listen(addr)
}
