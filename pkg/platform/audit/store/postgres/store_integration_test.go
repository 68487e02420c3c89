//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "ncc/pkg/domain"
	"ncc/pkg/platform/audit"
	auditpostgres "ncc/pkg/platform/audit/store/postgres"
	txcontext "ncc/pkg/platform/tx"
	"ncc/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
	t0       time.Time
}

func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpostgres.New(s.postgres.DB)
	s.t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *StoreSuite) transition(eventID string, reg id.RegistrationID, action audit.AuditEvent, from, to string, at time.Time) audit.Event {
	return audit.Event{
		ID:             eventID,
		Timestamp:      at,
		UserID:         "user-1",
		RegistrationID: reg,
		Action:         string(action),
		From:           from,
		To:             to,
		ActorID:        "operator",
	}
}

func (s *StoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	event := s.transition("evt-1", "NCC-1-AAAAAAAAA", audit.EventRegistrationStatusChanged, "pending_verification", "approved", s.t0)
	s.Require().NoError(s.store.Append(ctx, event))
	s.Require().NoError(s.store.Append(ctx, event))

	got, err := s.store.ListByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(audit.CategoryCompliance, got[0].Category)
	s.Equal("operator", got[0].ActorID)
	s.True(got[0].Timestamp.Equal(s.t0))
}

func (s *StoreSuite) TestRegistrationHistory() {
	ctx := context.Background()
	reg := id.RegistrationID("NCC-1-AAAAAAAAA")
	other := id.RegistrationID("NCC-1-BBBBBBBBB")

	s.Require().NoError(s.store.Append(ctx, s.transition("e3", reg, audit.EventPaymentStatusChanged, "verification_pending", "approved", s.t0.Add(2*time.Hour))))
	s.Require().NoError(s.store.Append(ctx, s.transition("e1", reg, audit.EventRegistrationCreated, "", "incomplete", s.t0)))
	s.Require().NoError(s.store.Append(ctx, s.transition("e2", reg, audit.EventDocumentUploaded, "", "", s.t0.Add(time.Hour))))
	s.Require().NoError(s.store.Append(ctx, s.transition("e4", other, audit.EventRegistrationCreated, "", "incomplete", s.t0)))

	s.Run("single registration keeps transitions oldest first", func() {
		got, err := s.store.ListByRegistration(ctx, reg)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("e1", got[0].ID)
		s.Equal("e3", got[1].ID)
		s.Equal("approved", got[1].To)
	})

	s.Run("batch groups by registration", func() {
		got, err := s.store.ListByRegistrations(ctx, []id.RegistrationID{reg, other, "NCC-1-ZZZZZZZZZ"})
		s.Require().NoError(err)
		s.Len(got[reg], 2)
		s.Len(got[other], 1)
		s.Empty(got["NCC-1-ZZZZZZZZZ"])
	})

	s.Run("recent is newest first", func() {
		got, err := s.store.ListRecent(ctx, 2)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("e3", got[0].ID)
	})
}

func (s *StoreSuite) TestAppendJoinsContextTransaction() {
	ctx := context.Background()
	boom := errors.New("boom")

	err := txcontext.Run(ctx, s.postgres.DB, func(ctx context.Context) error {
		s.Require().NoError(s.store.Append(ctx, s.transition("rolled-back", "NCC-1-AAAAAAAAA", audit.EventRegistrationStatusChanged, "pending", "approved", s.t0)))
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Empty(got)
}
