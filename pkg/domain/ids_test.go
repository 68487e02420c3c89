package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ncc/pkg/domain-errors"
)

func TestParseUserID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE users;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Braced UUID", "{550e8400-e29b-41d4-a716-446655440000}", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}

	t.Run("canonicalises case", func(t *testing.T) {
		id, err := ParseUserID("550E8400-E29B-41D4-A716-446655440000")
		require.NoError(t, err)
		assert.Equal(t, UserID("550e8400-e29b-41d4-a716-446655440000"), id)
	})
}

func TestNewRegistrationID(t *testing.T) {
	now := time.UnixMilli(1718000000000)

	t.Run("embeds epoch millis and a 9 character upper alnum suffix", func(t *testing.T) {
		id, err := NewRegistrationID(now)
		require.NoError(t, err)

		parts := strings.Split(id.String(), "-")
		require.Len(t, parts, 3)
		assert.Equal(t, "NCC", parts[0])
		assert.Equal(t, "1718000000000", parts[1])
		assert.Len(t, parts[2], 9)
		assert.Equal(t, strings.ToUpper(parts[2]), parts[2])
	})

	t.Run("round-trips through ParseRegistrationID", func(t *testing.T) {
		id, err := NewRegistrationID(now)
		require.NoError(t, err)
		parsed, err := ParseRegistrationID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("two ids for the same instant differ", func(t *testing.T) {
		a, err := NewRegistrationID(now)
		require.NoError(t, err)
		b, err := NewRegistrationID(now)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestParseRegistrationID(t *testing.T) {
	invalid := []string{
		"",
		"NCC-1718000000000-abcdefghi",
		"NCC-1718000000000-ABCDEFGH",
		"XYZ-1718000000000-ABCDEFGHI",
		"NCC--ABCDEFGHI",
		"NCC-1718000000000-ABCDEFGHI-extra",
		"ncc-1718000000000-ABCDEFGHI",
	}
	for _, input := range invalid {
		t.Run("rejects "+input, func(t *testing.T) {
			_, err := ParseRegistrationID(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}

	_, err := ParseRegistrationID("NCC-1718000000000-A1B2C3D4E")
	require.NoError(t, err)
}
