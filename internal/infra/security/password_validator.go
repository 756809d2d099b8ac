package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	defaultMinPasswordLength   = 12
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies a sequence of password rules and stops at the first violation.
type PasswordValidator struct {
	rules []PasswordRule
}

func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// AdminPasswordValidator returns the policy applied to the administrator password before it is hashed.
// The username is fed to zxcvbn and must not appear in the password.
func AdminPasswordValidator(username string) *PasswordValidator {
	rules := []PasswordRule{
		MinLengthRule(defaultMinPasswordLength),
		RequireCharacterClassesRule(defaultMinCharacterClasses),
	}
	inputs := []string{}
	if username = strings.TrimSpace(username); username != "" {
		rules = append(rules, ForbidSubstringRule(username))
		inputs = append(inputs, username)
	}
	rules = append(rules, RequirePasswordStrengthRule(defaultMinZxcvbnScore, inputs...))
	return NewPasswordValidator(rules...)
}

func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// RequireCharacterClassesRule counts upper, lower, digit and symbol classes.
func RequireCharacterClassesRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if min <= 0 {
			return nil
		}

		var seen [4]bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				seen[0] = true
			case unicode.IsLower(r):
				seen[1] = true
			case unicode.IsDigit(r):
				seen[2] = true
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				seen[3] = true
			}
		}

		classes := 0
		for _, ok := range seen {
			if ok {
				classes++
			}
		}
		if classes >= min {
			return nil
		}

		return &PasswordValidationError{
			Code:    "character_classes",
			Message: fmt.Sprintf("password must include at least %d character types", min),
		}
	})
}

// ForbidSubstringRule rejects passwords containing value, case-insensitively.
func ForbidSubstringRule(value string) PasswordRule {
	needle := strings.ToLower(value)
	return PasswordRuleFunc(func(password string) error {
		if needle != "" && strings.Contains(strings.ToLower(password), needle) {
			return &PasswordValidationError{
				Code:    "contains_username",
				Message: "password must not contain the username",
			}
		}
		return nil
	})
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score to reject weak passwords.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	if minScore > 4 {
		minScore = 4
	}
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	})
}
