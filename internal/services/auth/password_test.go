// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"testing"

	"codeberg.org/oliverandrich/go-social-auth/internal/services/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationCodes(t *testing.T, err error) []string {
	t.Helper()
	var verr *auth.PasswordValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Codes()
}

func TestNewPasswordValidator_Defaults(t *testing.T) {
	v := auth.NewPasswordValidator(0)

	assert.Equal(t, auth.DefaultMinPasswordLength, v.MinLength)
	assert.True(t, v.CheckCommonPasswords)
	assert.True(t, v.CheckUserSimilarity)
}

func TestValidate_Valid(t *testing.T) {
	v := auth.NewPasswordValidator(12)

	assert.NoError(t, v.Validate("violet-kettle-harbor", "alice@example.com", "Alice"))
}

func TestValidate_TooShort(t *testing.T) {
	v := auth.NewPasswordValidator(12)

	codes := validationCodes(t, v.Validate("kettle"))
	assert.Contains(t, codes, "min_length")
}

func TestValidate_CountsRunes(t *testing.T) {
	v := auth.NewPasswordValidator(8)

	assert.NoError(t, v.Validate("äöüßäöüß"))
}

func TestValidate_EntirelyNumeric(t *testing.T) {
	v := auth.NewPasswordValidator(8)

	codes := validationCodes(t, v.Validate("8264019375"))
	assert.Contains(t, codes, "entirely_numeric")
}

func TestValidate_CommonPassword(t *testing.T) {
	v := auth.NewPasswordValidator(8)

	codes := validationCodes(t, v.Validate("Password123"))
	assert.Contains(t, codes, "common_password")
}

func TestValidate_CommonPasswordDisabled(t *testing.T) {
	v := auth.NewPasswordValidator(8)
	v.CheckCommonPasswords = false

	assert.NoError(t, v.Validate("password123"))
}

func TestValidate_SimilarToEmail(t *testing.T) {
	v := auth.NewPasswordValidator(8)

	codes := validationCodes(t, v.Validate("alicewonder1", "alicewonder@example.com"))
	assert.Contains(t, codes, "too_similar")
}

func TestValidate_ShortAttributesIgnored(t *testing.T) {
	v := auth.NewPasswordValidator(8)

	assert.NoError(t, v.Validate("violet-kettle-harbor", "al@example.com", ""))
}

func TestValidate_MultipleErrors(t *testing.T) {
	v := auth.NewPasswordValidator(8)

	err := v.Validate("123456")
	codes := validationCodes(t, err)
	assert.ElementsMatch(t, []string{"min_length", "entirely_numeric", "common_password"}, codes)
	assert.Equal(t, "Password must be at least 8 characters long.", err.Error())
}
