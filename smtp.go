package userkit

import (
	"context"
	"net/url"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"
)

const DefaultSMTPURI = "smtp://localhost:2525"

// SMTPConfig holds the connection details of an SMTP relay. URI uses the
// smtp:// scheme, or smtps:// for implicit TLS.
type SMTPConfig struct {
	URI      string
	Username string
	Password string
}

// SMTPTransport delivers messages through an SMTP relay
type SMTPTransport struct {
	client *mail.Client
	logger Logger
}

var _ Transport = (*SMTPTransport)(nil)

func NewSMTPTransport(cfg SMTPConfig, logger Logger) (*SMTPTransport, error) {
	if cfg.URI == "" {
		cfg.URI = DefaultSMTPURI
	}

	u, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid smtp uri")
	}

	opts := []mail.Option{}
	switch u.Scheme {
	case "smtp":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "smtps":
		opts = append(opts, mail.WithSSL())
	default:
		return nil, goerrors.New("smtp uri scheme must be smtp or smtps", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"scheme": u.Scheme})
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid smtp port")
		}
		opts = append(opts, mail.WithPort(port))
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(u.Hostname(), opts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create smtp client")
	}

	return &SMTPTransport{
		client: client,
		logger: normalizeLogger(logger),
	}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sender address")
	}
	if err := m.To(msg.To); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid recipient address")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		t.logger.Error("smtp delivery to %s failed: %v", msg.To, err)
		return err
	}

	return nil
}
