package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxShortText = 255
	maxLongText  = 10000
)

// maxPasswordBytes is the longest input bcrypt will hash.
const maxPasswordBytes = 72

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, message string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: message})
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// normalizeEmail trims and lower-cases an address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxShortText {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}
	_, domain, _ := strings.Cut(email, "@")
	return strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".")
}

func (v *validator) email(email string) {
	if !validEmail(email) {
		v.add("email", "Please provide a valid email")
	}
}

func (v *validator) username(username string) {
	if utf8.RuneCountInString(username) < 3 || utf8.RuneCountInString(username) > 50 {
		v.add("username", "Username must be between 3 and 50 characters")
		return
	}
	if !usernamePattern.MatchString(username) {
		v.add("username", "Username can only contain letters, numbers, and underscores")
	}
}

// password enforces the policy for new passwords.
func (v *validator) password(password string) {
	if utf8.RuneCountInString(password) < 8 {
		v.add("password", "Password must be at least 8 characters long")
		return
	}
	if len(password) > maxPasswordBytes {
		v.add("password", "Password must be at most 72 bytes")
		return
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		v.add("password", "Password must contain at least one lowercase letter, one uppercase letter, and one number")
	}
}

func (v *validator) required(field, value, message string) {
	if value == "" {
		v.add(field, message)
	}
}

func (v *validator) maxLen(field, value string, max int, message string) {
	if utf8.RuneCountInString(value) > max {
		v.add(field, message)
	}
}
