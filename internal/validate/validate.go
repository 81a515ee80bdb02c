// Package validate holds the shape rules applied to credentials before any
// store or hash is touched.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/MrEthical07/goSignIn/autherr"
)

// DefaultMinPasswordLength applies when Policy.MinLength is zero.
const DefaultMinPasswordLength = 8

// Specials is the set of characters that satisfy the special-character
// complexity rule.
const Specials = "@$!%*?&"

var (
	emailRule    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRule = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
)

// Policy configures password shape rules.
type Policy struct {
	MinLength         int
	RequireComplexity bool
}

// Error lists every rule an input broke. It matches autherr.ErrValidation.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", autherr.ErrValidation.Error(), strings.Join(e.Problems, "; "))
}

// Unwrap ties Error to the validation kind.
func (e *Error) Unwrap() error {
	return autherr.ErrValidation
}

// Email reports whether s looks like an email address.
func Email(s string) bool {
	return emailRule.MatchString(s)
}

// Username reports whether s is 3 to 20 letters, digits, or underscores.
func Username(s string) bool {
	return usernameRule.MatchString(s)
}

// Password returns the rules s breaks under p.
func Password(s string, p Policy) []string {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}

	var problems []string
	if len([]rune(s)) < minLen {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minLen))
	}
	if !p.RequireComplexity {
		return problems
	}

	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(Specials, r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		problems = append(problems, "password must mix upper and lower case letters, a digit, and one of "+Specials)
	}
	return problems
}

// SignIn checks an email and password pair.
func SignIn(email, password string, p Policy) error {
	var problems []string
	if !Email(email) {
		problems = append(problems, "invalid email address")
	}
	if len([]rune(password)) < minLength(p) {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minLength(p)))
	}
	return result(problems)
}

// Registration is the input to Register.
type Registration struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
}

// Register checks a new account request. An empty username is allowed.
func Register(r Registration, p Policy) error {
	var problems []string
	if !Email(r.Email) {
		problems = append(problems, "invalid email address")
	}
	if r.Username != "" && !Username(r.Username) {
		problems = append(problems, "username must be 3-20 characters (letters, numbers, underscore)")
	}
	problems = append(problems, Password(r.Password, p)...)
	if r.Password != r.ConfirmPassword {
		problems = append(problems, "passwords do not match")
	}
	return result(problems)
}

// NewPassword checks a replacement password.
func NewPassword(password string, p Policy) error {
	return result(Password(password, p))
}

func minLength(p Policy) int {
	if p.MinLength <= 0 {
		return DefaultMinPasswordLength
	}
	return p.MinLength
}

func result(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &Error{Problems: problems}
}
