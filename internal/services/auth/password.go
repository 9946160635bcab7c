// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	_ "embed"
	"fmt"
	"strings"
	"unicode"
)

// DefaultMinPasswordLength is used when no minimum length is configured.
const DefaultMinPasswordLength = 8

//go:embed common_passwords.txt
var commonPasswordList string

var commonPasswords = loadCommonPasswords(commonPasswordList)

func loadCommonPasswords(list string) map[string]struct{} {
	set := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(list))
	for scanner.Scan() {
		if pw := strings.ToLower(strings.TrimSpace(scanner.Text())); pw != "" {
			set[pw] = struct{}{}
		}
	}
	return set
}

// PasswordValidator checks new passwords against the password policy.
type PasswordValidator struct {
	MinLength            int
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// NewPasswordValidator returns a validator with the given minimum length and
// all other checks enabled.
func NewPasswordValidator(minLength int) *PasswordValidator {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	return &PasswordValidator{
		MinLength:            minLength,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// ValidationError is a single violated password rule. Code is stable and
// used as the translation key suffix, Params fills the translated template.
type ValidationError struct {
	Code    string
	Message string
	Params  map[string]any
}

func (e ValidationError) Error() string {
	return e.Message
}

// PasswordValidationError collects every violated rule of a password.
type PasswordValidationError struct {
	Errors []ValidationError
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return e.Errors[0].Message
}

// Codes returns the codes of all violated rules.
func (e *PasswordValidationError) Codes() []string {
	codes := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		codes[i] = err.Code
	}
	return codes
}

// Validate returns nil if password satisfies the policy, otherwise a
// *PasswordValidationError. userAttributes are values such as email and
// name the password must not resemble.
func (v *PasswordValidator) Validate(password string, userAttributes ...string) error {
	var errs []ValidationError

	if len([]rune(password)) < v.MinLength {
		errs = append(errs, ValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("Password must be at least %d characters long.", v.MinLength),
			Params:  map[string]any{"Min": v.MinLength},
		})
	}

	if isEntirelyNumeric(password) {
		errs = append(errs, ValidationError{
			Code:    "entirely_numeric",
			Message: "Password cannot be entirely numeric.",
		})
	}

	if v.CheckCommonPasswords && isCommonPassword(password) {
		errs = append(errs, ValidationError{
			Code:    "common_password",
			Message: "This password is too common.",
		})
	}

	if v.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		errs = append(errs, ValidationError{
			Code:    "too_similar",
			Message: "Password is too similar to your personal information.",
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return &PasswordValidationError{Errors: errs}
}

func isEntirelyNumeric(password string) bool {
	if password == "" {
		return false
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isCommonPassword(password string) bool {
	_, ok := commonPasswords[strings.ToLower(password)]
	return ok
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	pw := strings.ToLower(password)
	if pw == "" {
		return false
	}

	for _, attr := range attributes {
		// The local part of an address is what people reuse.
		attr, _, _ = strings.Cut(strings.ToLower(attr), "@")
		if len(attr) < 3 {
			continue
		}
		if strings.Contains(pw, attr) || strings.Contains(attr, pw) {
			return true
		}
		if similarity(pw, attr) > 0.7 {
			return true
		}
	}
	return false
}

// similarity is the length of the longest common subsequence relative to
// the longer input.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return float64(prev[len(b)]) / float64(max(len(a), len(b)))
}
