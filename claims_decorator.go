package userkit

import "context"

// ClaimsDecorator can add application claims before a token is built.
// Decorators should leave the identity claims (sub, email, email-confirmed)
// untouched so token consumers keep stable semantics.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, user ManagedUser, claims Claims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, user ManagedUser, claims Claims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, user ManagedUser, claims Claims) error {
	if f == nil {
		return nil
	}
	return f(ctx, user, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, ManagedUser, Claims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}
