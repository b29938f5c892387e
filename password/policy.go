package password

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// Symbols is the set of characters that satisfy the symbol requirement.
const Symbols = `!@#$%^&*(),.?":{}|<>`

// ErrPolicy is wrapped by every Policy violation.
var ErrPolicy = errors.New("password policy violation")

// PolicyError lists every rule a candidate password failed.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "password must " + strings.Join(e.Violations, ", ")
}

func (e *PolicyError) Unwrap() error { return ErrPolicy }

// Policy is the account password rule enforced at signup.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires 10 characters with an upper, a lower, a digit and a symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     10,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Check returns a *PolicyError when pw violates p.
func (p Policy) Check(pw string) error {
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}

	var violations []string
	if len([]rune(pw)) < p.MinLength {
		violations = append(violations, "be at least "+strconv.Itoa(p.MinLength)+" characters")
	}
	if p.RequireUpper && !upper {
		violations = append(violations, "contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		violations = append(violations, "contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "contain a digit")
	}
	if p.RequireSymbol && !symbol {
		violations = append(violations, "contain a symbol")
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}
