package userkit

import (
	"context"
	"fmt"
	"net/url"

	goerrors "github.com/goliatone/go-errors"
)

// Message is a rendered plain text notification
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// MessageTemplate renders the message for address. content is the code, or
// the confirmation link when the messenger runs in link mode.
type MessageTemplate func(address, content string) Message

// Transport delivers rendered messages
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function into a Transport
type TransportFunc func(ctx context.Context, msg Message) error

func (f TransportFunc) Send(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// LogTransport writes messages to a logger instead of delivering them.
// Meant for development.
type LogTransport struct {
	logger Logger
}

func NewLogTransport(logger Logger) *LogTransport {
	return &LogTransport{logger: normalizeLogger(logger)}
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info("====== SENDING EMAIL NOTIFICATION =======")
	t.logger.Info("to: %s", msg.To)
	t.logger.Info("subject: %s", msg.Subject)
	t.logger.Info("%s", msg.Body)
	return nil
}

const messageFooter = "If you didn't make this request, then you can ignore this email."

// DefaultEmailConfirmationTemplate is used when no template is configured
func DefaultEmailConfirmationTemplate(address, code string) Message {
	return Message{
		To:      address,
		Subject: "Validate your email",
		Body: "Hello,\n\nYour account has been registered.\n\n" +
			"Please confirm that it was you by entering this code:\n\n" +
			code + "\n\n" + messageFooter + "\n",
	}
}

// DefaultPasswordRedefinitionTemplate is used when no template is configured
func DefaultPasswordRedefinitionTemplate(address, code string) Message {
	return Message{
		To:      address,
		Subject: "Reset your password",
		Body: "Hello,\n\nA new password was requested for your account.\n\n" +
			"Please confirm that it was you by entering this code:\n\n" +
			code + "\n\n" + messageFooter + "\n",
	}
}

// DefaultTwoFactorTemplate is used when no template is configured
func DefaultTwoFactorTemplate(address, code string) Message {
	return Message{
		To:      address,
		Subject: "Your sign in code",
		Body: "Hello,\n\nThere was an attempt to authenticate a device.\n\n" +
			"Please confirm that it was you by entering this code:\n\n" +
			code + "\n\n" + messageFooter + "\n",
	}
}

// Messenger is the default MessageGateway. It renders a template per code
// purpose and hands the result to a Transport.
type Messenger struct {
	transport Transport
	fallback  *LogTransport
	from      string
	templates map[CodePurpose]MessageTemplate
	endpoints map[CodePurpose]string
	logger    Logger
}

var _ MessageGateway = (*Messenger)(nil)

func NewMessenger(transport Transport, from string) *Messenger {
	m := &Messenger{
		transport: transport,
		from:      from,
		templates: map[CodePurpose]MessageTemplate{
			PurposeEmailConfirmation:       DefaultEmailConfirmationTemplate,
			PurposePasswordRedefinition:    DefaultPasswordRedefinitionTemplate,
			PurposeTwoFactorAuthentication: DefaultTwoFactorTemplate,
		},
		endpoints: map[CodePurpose]string{},
		logger:    defLogger{},
	}
	if m.transport == nil {
		m.fallback = NewLogTransport(m.logger)
		m.transport = m.fallback
	}
	return m
}

// WithLogger sets the messenger logger. A log transport created by
// NewMessenger follows it.
func (m *Messenger) WithLogger(logger Logger) *Messenger {
	m.logger = normalizeLogger(logger)
	if m.fallback != nil {
		m.fallback.logger = m.logger
	}
	return m
}

// WithTemplate replaces the template used for purpose
func (m *Messenger) WithTemplate(purpose CodePurpose, tpl MessageTemplate) *Messenger {
	if tpl != nil {
		m.templates[purpose] = tpl
	}
	return m
}

// WithLinkEndpoint switches purpose to link mode: the template receives
// endpoint with the email and code appended as query parameters.
func (m *Messenger) WithLinkEndpoint(purpose CodePurpose, endpoint string) *Messenger {
	if endpoint == "" {
		delete(m.endpoints, purpose)
		return m
	}
	m.endpoints[purpose] = endpoint
	return m
}

func (m *Messenger) SendEmailConfirmationMessage(ctx context.Context, user ManagedUser, code string) error {
	return m.send(ctx, PurposeEmailConfirmation, user, code)
}

func (m *Messenger) SendPasswordRedefinitionMessage(ctx context.Context, user ManagedUser, code string) error {
	return m.send(ctx, PurposePasswordRedefinition, user, code)
}

func (m *Messenger) SendTwoFactorAuthenticationMessage(ctx context.Context, user ManagedUser, code string) error {
	return m.send(ctx, PurposeTwoFactorAuthentication, user, code)
}

func (m *Messenger) send(ctx context.Context, purpose CodePurpose, user ManagedUser, code string) error {
	address := user.GetEmail()
	if address == "" {
		return goerrors.New("user has no email address", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"user_id": user.GetID().String()})
	}

	content := code
	if endpoint, ok := m.endpoints[purpose]; ok {
		link, err := BuildLink(endpoint, address, code)
		if err != nil {
			return err
		}
		content = link
	}

	msg := m.templates[purpose](address, content)
	if msg.From == "" {
		msg.From = m.from
	}
	if msg.To == "" {
		msg.To = address
	}

	if err := m.transport.Send(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, fmt.Sprintf("failed to deliver %s message to user %s", purpose, user.GetID()))
	}

	m.logger.Debug("sent %s message to user %s", purpose, user.GetID())
	return nil
}

// BuildLink appends email and code to endpoint as query parameters
func BuildLink(endpoint, email, code string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid link endpoint "+endpoint)
	}
	q := u.Query()
	q.Set("email", email)
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
