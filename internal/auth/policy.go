package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// Password rule descriptions reported in WEAK_PASSWORD errors.
const (
	RuleLowercase = "Password must contain at least one lowercase letter"
	RuleUppercase = "Password must contain at least one uppercase letter"
	RuleNumber    = "Password must contain at least one number"
	RuleMaxLength = "Password must be at most 72 bytes long"
)

// PasswordPolicy is the strength rule set applied at registration.
type PasswordPolicy struct {
	MinLength    int
	SpecialChars string
}

// DefaultPasswordPolicy requires 8 characters with lower, upper, digit and
// one of !@#$%^&*.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, SpecialChars: "!@#$%^&*"}
}

// Check returns the description of every rule pw fails, in a fixed order.
// A nil result means the password is acceptable.
func (p PasswordPolicy) Check(pw string) []string {
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
		if strings.ContainsRune(p.SpecialChars, r) {
			special = true
		}
	}

	var unmet []string
	if len([]rune(pw)) < p.MinLength {
		unmet = append(unmet, fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}
	if len(pw) > MaxPasswordBytes {
		unmet = append(unmet, RuleMaxLength)
	}
	if !lower {
		unmet = append(unmet, RuleLowercase)
	}
	if !upper {
		unmet = append(unmet, RuleUppercase)
	}
	if !digit {
		unmet = append(unmet, RuleNumber)
	}
	if !special {
		unmet = append(unmet, fmt.Sprintf("Password must contain at least one special character (%s)", p.SpecialChars))
	}
	return unmet
}
