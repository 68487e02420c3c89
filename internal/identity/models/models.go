package models

import (
	"strings"
	"time"

	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
)

// Account is a local identity: the credentials an applicant signs in with.
// Profile data lives in the registration module.
type Account struct {
	ID           id.UserID
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is the identity behind a valid access token.
type Session struct {
	UserID    id.UserID `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginResult is returned on successful sign-in.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Session     Session   `json:"session"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}
