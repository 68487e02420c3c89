package store

import (
	"context"
	"errors"
	"fmt"

	"ncc/internal/docstore"
	identity "ncc/internal/identity/models"
	"ncc/internal/registration/models"
	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
	"ncc/pkg/email"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/requestcontext"
)

// AccountProvider is the part of the identity service the seed needs.
type AccountProvider interface {
	CreateAccount(ctx context.Context, email, password, name string) (id.UserID, error)
	Login(ctx context.Context, req *identity.LoginRequest) (*identity.LoginResult, error)
}

// SeedAdmin makes sure a staff account exists with the admin role. It is
// safe to run on every start: an existing account is signed in to recover
// its id and its profile is promoted.
func SeedAdmin(ctx context.Context, accounts AccountProvider, profiles *Profiles, address, password, name string) (id.UserID, error) {
	address = email.Normalize(address)
	userID, err := accounts.CreateAccount(ctx, address, password, name)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		res, loginErr := accounts.Login(ctx, &identity.LoginRequest{Email: address, Password: password})
		if loginErr != nil {
			return "", fmt.Errorf("sign in existing admin: %w", loginErr)
		}
		userID, err = res.Session.UserID, nil
	}
	if err != nil {
		return "", fmt.Errorf("create admin account: %w", err)
	}

	now := requestcontext.Now(ctx)
	err = profiles.Create(ctx, &models.Profile{
		ID:        userID,
		Name:      name,
		Email:     address,
		Role:      models.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, sentinel.ErrConflict) {
		err = profiles.Update(ctx, userID, docstore.Fields{
			models.FieldRole:      models.RoleAdmin,
			models.FieldUpdatedAt: now,
		})
	}
	if err != nil {
		return "", fmt.Errorf("promote admin profile: %w", err)
	}
	return userID, nil
}
