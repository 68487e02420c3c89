package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ncc/pkg/domain-errors"
)

func validInfo() PersonalInfo {
	return PersonalInfo{
		FullName:         "Alice Wonder",
		Email:            "alice@example.com",
		Phone:            "+62 812-3456-7890",
		Institution:      "Universitas Indonesia",
		StudentID:        "2106700001",
		EmergencyContact: "Bob 0812345678",
	}
}

func TestPersonalInfo_Validate(t *testing.T) {
	require.NoError(t, validInfo().Normalize().Validate())

	tests := []struct {
		name    string
		mutate  func(*PersonalInfo)
		message string
	}{
		{"name too short", func(p *PersonalInfo) { p.FullName = " A " }, "fullName must be at least 2 characters"},
		{"bad email", func(p *PersonalInfo) { p.Email = "alice.example.com" }, "email must be a valid email address"},
		{"phone with 9 digits", func(p *PersonalInfo) { p.Phone = "081-234-567" }, "phone must contain at least 10 digits"},
		{"blank institution", func(p *PersonalInfo) { p.Institution = "   " }, "institution is required"},
		{"missing student id", func(p *PersonalInfo) { p.StudentID = "" }, "studentId is required"},
		{"missing emergency contact", func(p *PersonalInfo) { p.EmergencyContact = "" }, "emergencyContact is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := validInfo()
			tt.mutate(&info)
			err := info.Normalize().Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	t.Run("reports every failing field", func(t *testing.T) {
		err := PersonalInfo{}.Validate()
		require.Error(t, err)
		for _, field := range []string{"fullName", "email", "phone", "institution", "studentId", "emergencyContact"} {
			assert.Contains(t, err.Error(), field)
		}
	})
}

func TestPersonalInfo_Normalize(t *testing.T) {
	got := PersonalInfo{FullName: "  Alice ", Email: " Alice@Example.COM "}.Normalize()
	assert.Equal(t, "Alice", got.FullName)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestCredentials_Validate(t *testing.T) {
	assert.NoError(t, Credentials{Password: "secret1", ConfirmPassword: "secret1"}.Validate())

	err := Credentials{Password: "12345", ConfirmPassword: "12345"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password must be at least 6 characters")

	err = Credentials{Password: "secret1", ConfirmPassword: "secret2"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passwords do not match")
}
