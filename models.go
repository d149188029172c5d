package userkit

import (
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the default user model
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email            string            `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash     []byte            `bun:"password_hash" json:"-"`
	Salt             []byte            `bun:"salt" json:"-"`
	EmailConfirmed   bool              `bun:"is_email_confirmed" json:"is_email_confirmed"`
	TwoFactorEnabled bool              `bun:"is_two_factor_enabled" json:"is_two_factor_enabled"`
	IsAdmin          bool              `bun:"is_admin" json:"is_admin"`
	ExtraClaims      map[string]string `bun:"extra_claims" json:"extra_claims,omitempty"`
	CreatedAt        *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

var _ ManagedUser = (*User)(nil)

// NewUser validates the email and hashes the password into a new record.
func NewUser(hasher PasswordHasher, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, ErrInvalidEmail.Clone().WithMetadata(map[string]any{
			"email": email,
			"error": err.Error(),
		})
	}

	salt, hash, err := hasher.SetPassword(password)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:           uuid.New(),
		Email:        email,
		Salt:         salt,
		PasswordHash: hash,
	}, nil
}

func (u *User) GetID() uuid.UUID        { return u.ID }
func (u *User) SetID(id uuid.UUID)      { u.ID = id }
func (u *User) GetEmail() string        { return u.Email }
func (u *User) GetSalt() []byte         { return u.Salt }
func (u *User) GetPasswordHash() []byte { return u.PasswordHash }
func (u *User) IsEmailConfirmed() bool  { return u.EmailConfirmed }
func (u *User) IsTwoFactorEnabled() bool {
	return u.TwoFactorEnabled
}

func (u *User) SetCredentials(salt, hash []byte) {
	u.Salt = salt
	u.PasswordHash = hash
}

func (u *User) SetEmailConfirmed(confirmed bool) {
	u.EmailConfirmed = confirmed
}

func (u *User) SetTwoFactorEnabled(enabled bool) {
	u.TwoFactorEnabled = enabled
}

// AddClaim stores an application defined claim on the record
func (u *User) AddClaim(key, val string) *User {
	if u.ExtraClaims == nil {
		u.ExtraClaims = make(map[string]string)
	}
	u.ExtraClaims[key] = val
	return u
}

// Claims returns the claim set embedded in bearer tokens. Identity claims
// win over extra claims with the same name.
func (u *User) Claims() Claims {
	claims := make(Claims, len(u.ExtraClaims)+5)
	for k, v := range u.ExtraClaims {
		claims[k] = v
	}
	claims[ClaimUserID] = u.ID.String()
	claims[ClaimEmail] = u.Email
	claims[ClaimEmailConfirmed] = strconv.FormatBool(u.EmailConfirmed)
	claims[ClaimTwoFactorEnabled] = strconv.FormatBool(u.TwoFactorEnabled)
	claims[ClaimAdmin] = strconv.FormatBool(u.IsAdmin)
	return claims
}

// CodePurpose binds a verification code to a single flow
type CodePurpose string

const (
	PurposeEmailConfirmation       CodePurpose = "email-confirmation-token"
	PurposePasswordRedefinition    CodePurpose = "password-redefinition-token"
	PurposeTwoFactorAuthentication CodePurpose = "two-factor-token"
)

// Valid reports whether p is one of the known purposes
func (p CodePurpose) Valid() bool {
	switch p {
	case PurposeEmailConfirmation, PurposePasswordRedefinition, PurposeTwoFactorAuthentication:
		return true
	}
	return false
}

// VerificationCode is a single use proof of access to the user's address
type VerificationCode struct {
	bun.BaseModel `bun:"table:verification_codes,alias:vcode"`
	UserID        uuid.UUID   `bun:"user_id,pk,type:uuid" json:"user_id"`
	Code          string      `bun:"code,pk" json:"code"`
	Purpose       CodePurpose `bun:"purpose,pk" json:"purpose"`
	ExpiresAt     time.Time   `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the code is no longer redeemable at now
func (c *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// UserState is the lifecycle position of a user
type UserState struct {
	Confirmed bool
	TwoFactor bool
}

// StateOf reads the lifecycle state from the user flags
func StateOf(u ManagedUser) UserState {
	return UserState{
		Confirmed: u.IsEmailConfirmed(),
		TwoFactor: u.IsTwoFactorEnabled(),
	}
}

func (s UserState) String() string {
	confirmed := "unconfirmed"
	if s.Confirmed {
		confirmed = "confirmed"
	}
	twoFactor := "2fa-off"
	if s.TwoFactor {
		twoFactor = "2fa-on"
	}
	return confirmed + "/" + twoFactor
}
