package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	dErrors "ncc/pkg/domain-errors"
)

// UserID is the identity-provider user id. It doubles as the profile document id.
type UserID string

// RegistrationID is the human-facing registration number (NCC-<epoch-ms>-<9 chars>).
// It is distinct from the registration document's store id.
type RegistrationID string

const (
	registrationPrefix   = "NCC"
	registrationAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	registrationRandLen  = 9
)

var registrationIDPattern = regexp.MustCompile(`^NCC-\d{1,15}-[A-Z0-9]{9}$`)

// NewUserID returns a fresh random user id.
func NewUserID() UserID {
	return UserID(uuid.NewString())
}

// ParseUserID validates a user id at a trust boundary.
// User ids are canonical lowercase UUIDs; the nil UUID is rejected.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user ID required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil || strings.ContainsAny(s, " {}") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid user ID")
	}
	if parsed == uuid.Nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid user ID")
	}
	return UserID(parsed.String()), nil
}

func (id UserID) String() string { return string(id) }

// IsNil reports whether the id is unset.
func (id UserID) IsNil() bool { return id == "" }

// NewRegistrationID synthesizes a registration number for the given instant.
func NewRegistrationID(now time.Time) (RegistrationID, error) {
	suffix, err := gonanoid.Generate(registrationAlphabet, registrationRandLen)
	if err != nil {
		return "", fmt.Errorf("generate registration id: %w", err)
	}
	return RegistrationID(fmt.Sprintf("%s-%d-%s", registrationPrefix, now.UnixMilli(), suffix)), nil
}

// ParseRegistrationID validates a registration number.
func ParseRegistrationID(s string) (RegistrationID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration ID required")
	}
	if !registrationIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid registration ID")
	}
	return RegistrationID(s), nil
}

func (id RegistrationID) String() string { return string(id) }

// IsNil reports whether the id is unset.
func (id RegistrationID) IsNil() bool { return id == "" }
