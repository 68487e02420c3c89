package models

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	dErrors "ncc/pkg/domain-errors"
)

const minPhoneDigits = 10

// PersonalInfo is the applicant data captured in the first wizard step.
type PersonalInfo struct {
	FullName         string `bson:"full_name" json:"fullName" validate:"required,min=2"`
	Email            string `bson:"email" json:"email" validate:"required,email"`
	Phone            string `bson:"phone" json:"phone" validate:"required,phone"`
	Institution      string `bson:"institution" json:"institution" validate:"required"`
	StudentID        string `bson:"student_id" json:"studentId" validate:"required"`
	EmergencyContact string `bson:"emergency_contact" json:"emergencyContact" validate:"required"`
}

// Credentials are required when the applicant has no account yet.
type Credentials struct {
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		digits := 0
		for _, r := range fl.Field().String() {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		return digits >= minPhoneDigits
	})
	return v
}

// Normalize trims surrounding whitespace and lower-cases the email.
func (p PersonalInfo) Normalize() PersonalInfo {
	return PersonalInfo{
		FullName:         strings.TrimSpace(p.FullName),
		Email:            strings.ToLower(strings.TrimSpace(p.Email)),
		Phone:            strings.TrimSpace(p.Phone),
		Institution:      strings.TrimSpace(p.Institution),
		StudentID:        strings.TrimSpace(p.StudentID),
		EmergencyContact: strings.TrimSpace(p.EmergencyContact),
	}
}

// Validate checks a normalized PersonalInfo.
func (p PersonalInfo) Validate() error {
	return translate(validate.Struct(p))
}

// IsZero reports whether nothing was captured.
func (p PersonalInfo) IsZero() bool {
	return p == PersonalInfo{}
}

// Validate checks the password rules.
func (c Credentials) Validate() error {
	return translate(validate.Struct(c))
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid input")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, message(fe))
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if field == "password" {
			return "password must be at least " + fe.Param() + " characters"
		}
		return field + " must be at least " + fe.Param() + " characters"
	case "email":
		return field + " must be a valid email address"
	case "phone":
		return field + " must contain at least 10 digits"
	case "eqfield":
		return "passwords do not match"
	default:
		return field + " is invalid"
	}
}
