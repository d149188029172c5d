package userkit

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific codec.
type TokenValidator interface {
	Validate(token string) Claims
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(token string) Claims

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(token string) Claims {
	if f == nil {
		return nil
	}
	return f(token)
}

// MultiTokenValidator tries validators in order until one returns claims.
// Useful while rotating keys: keep the previous codec until issued tokens
// have expired.
type MultiTokenValidator struct {
	validators []TokenValidator
}

var _ TokenValidator = (*MultiTokenValidator)(nil)

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(token string) Claims {
	for _, v := range m.validators {
		if claims := v.Validate(token); claims != nil {
			return claims
		}
	}
	return nil
}
