package userkit

import "strconv"

// Claim names used in bearer tokens
const (
	ClaimUserID           = "sub"
	ClaimEmail            = "email"
	ClaimEmailConfirmed   = "email-confirmed"
	ClaimTwoFactorEnabled = "two-factor-enabled"
	ClaimAdmin            = "is-admin"
)

// Claims is the set of facts carried by a bearer token
type Claims map[string]string

// UserID returns the primary identifier claim
func (c Claims) UserID() string {
	return c[ClaimUserID]
}

// Email returns the email claim
func (c Claims) Email() string {
	return c[ClaimEmail]
}

// EmailConfirmed parses the email-confirmed claim
func (c Claims) EmailConfirmed() bool {
	return c.Bool(ClaimEmailConfirmed)
}

// IsAdmin parses the is-admin claim
func (c Claims) IsAdmin() bool {
	return c.Bool(ClaimAdmin)
}

// Bool parses a boolean-as-string claim, false when missing or invalid
func (c Claims) Bool(name string) bool {
	v, err := strconv.ParseBool(c[name])
	return err == nil && v
}

// Merge returns a copy of c overridden by each of others in order
func (c Claims) Merge(others ...Claims) Claims {
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}
