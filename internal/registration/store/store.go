// Package store adapts the generic document collections to the profile and
// registration records.
package store

import (
	"context"
	"errors"
	"fmt"

	"ncc/internal/docstore"
	"ncc/internal/registration/models"
	id "ncc/pkg/domain"
	"ncc/pkg/platform/sentinel"
)

// Profiles is the users collection, keyed by identity-provider user id.
type Profiles struct {
	coll docstore.Collection[models.Profile]
}

func NewProfiles(coll docstore.Collection[models.Profile]) *Profiles {
	return &Profiles{coll: coll}
}

func (p *Profiles) Get(ctx context.Context, userID id.UserID) (*models.Profile, error) {
	return p.coll.Get(ctx, string(userID))
}

// Create stores a profile under its user id. A second create for the same
// user returns sentinel.ErrConflict.
func (p *Profiles) Create(ctx context.Context, profile *models.Profile) error {
	_, err := p.coll.Create(ctx, string(profile.ID), profile)
	return err
}

func (p *Profiles) Update(ctx context.Context, userID id.UserID, fields docstore.Fields) error {
	return p.coll.Update(ctx, string(userID), fields)
}

// IsAdmin re-reads the caller's role. A missing profile is not an admin.
func (p *Profiles) IsAdmin(ctx context.Context, userID id.UserID) (bool, error) {
	profile, err := p.Get(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.IsAdmin(), nil
}

// Registrations is the registrations collection, keyed by a store-generated id.
type Registrations struct {
	coll docstore.Collection[models.Registration]
}

func NewRegistrations(coll docstore.Collection[models.Registration]) *Registrations {
	return &Registrations{coll: coll}
}

func (r *Registrations) Get(ctx context.Context, docID string) (*models.Registration, error) {
	return r.coll.Get(ctx, docID)
}

// ListByUser returns a user's registrations oldest first. More than one
// only happens for records created before the unique index existed.
func (r *Registrations) ListByUser(ctx context.Context, userID id.UserID) ([]models.Registration, error) {
	return r.coll.List(ctx, docstore.Where(models.FieldUserID, userID))
}

// GetByRegistrationID looks a registration up by its human-facing number.
func (r *Registrations) GetByRegistrationID(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	found, err := r.coll.List(ctx, docstore.Where(models.FieldRegistrationID, regID).Take(1))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &found[0], nil
}

// Create stores a registration under a generated id and returns it.
func (r *Registrations) Create(ctx context.Context, reg *models.Registration) (string, error) {
	if reg.RegistrationID.IsNil() {
		return "", fmt.Errorf("create registration: missing registration id")
	}
	return r.coll.Create(ctx, "", reg)
}

func (r *Registrations) Update(ctx context.Context, docID string, fields docstore.Fields) error {
	return r.coll.Update(ctx, docID, fields)
}

// ListFilter narrows the staff registration list.
type ListFilter struct {
	Status        models.Status
	PaymentStatus models.PaymentStatus
	Limit         int
}

// List returns registrations newest first.
func (r *Registrations) List(ctx context.Context, filter ListFilter) ([]models.Registration, error) {
	q := docstore.Query{}.Newest().Take(filter.Limit)
	if filter.Status != "" {
		q = q.And(models.FieldStatus, filter.Status)
	}
	if filter.PaymentStatus != "" {
		q = q.And(models.FieldPaymentStatus, filter.PaymentStatus)
	}
	return r.coll.List(ctx, q)
}
