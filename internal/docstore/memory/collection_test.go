package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ncc/internal/docstore"
	"ncc/pkg/platform/sentinel"
)

type state string

type nested struct {
	City string `bson:"city"`
}

type widget struct {
	ID        string    `bson:"_id,omitempty"`
	Owner     string    `bson:"owner"`
	Serial    string    `bson:"serial,omitempty"`
	State     state     `bson:"state"`
	Address   nested    `bson:"address"`
	Tags      []string  `bson:"tags,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

type CollectionSuite struct {
	suite.Suite
	ctx  context.Context
	coll *Collection[widget]
	t0   time.Time
}

func TestCollectionSuite(t *testing.T) {
	suite.Run(t, new(CollectionSuite))
}

func (s *CollectionSuite) SetupTest() {
	s.ctx = context.Background()
	s.coll = New[widget](WithUnique("owner", "serial"))
	s.t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *CollectionSuite) create(id string, w widget) string {
	got, err := s.coll.Create(s.ctx, id, &w)
	s.Require().NoError(err)
	return got
}

func (s *CollectionSuite) TestCreateAndGet() {
	s.Run("generates an id when none is given", func() {
		id := s.create("", widget{Owner: "a", State: "new", CreatedAt: s.t0})
		s.NotEmpty(id)

		got, err := s.coll.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(id, got.ID)
		s.Equal(state("new"), got.State)
		s.True(got.CreatedAt.Equal(s.t0))
	})

	s.Run("uses the caller supplied id", func() {
		id := s.create("user-1", widget{Owner: "b", CreatedAt: s.t0})
		s.Equal("user-1", id)

		_, err := s.coll.Create(s.ctx, "user-1", &widget{Owner: "c"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing document is not found", func() {
		_, err := s.coll.Get(s.ctx, "nope")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *CollectionSuite) TestUniqueFields() {
	s.create("", widget{Owner: "alice", Serial: "S1", CreatedAt: s.t0})

	s.Run("create with taken unique value conflicts", func() {
		_, err := s.coll.Create(s.ctx, "", &widget{Owner: "alice"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("empty values are not unique constrained", func() {
		s.create("", widget{Owner: "bob", CreatedAt: s.t0})
		s.create("", widget{Owner: "carol", CreatedAt: s.t0})
	})

	s.Run("update into a taken unique value conflicts", func() {
		id := s.create("", widget{Owner: "dave", CreatedAt: s.t0})
		err := s.coll.Update(s.ctx, id, docstore.Fields{"serial": "S1"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *CollectionSuite) TestUpdate() {
	id := s.create("", widget{Owner: "a", State: "new", Address: nested{City: "Jakarta"}, CreatedAt: s.t0})

	s.Run("partial update keeps other fields", func() {
		s.Require().NoError(s.coll.Update(s.ctx, id, docstore.Fields{
			"state":   state("approved"),
			"address": nested{City: "Bandung"},
		}))
		got, err := s.coll.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(state("approved"), got.State)
		s.Equal("Bandung", got.Address.City)
		s.Equal("a", got.Owner)
	})

	s.Run("missing document is not found", func() {
		err := s.coll.Update(s.ctx, "missing", docstore.Fields{"state": "x"})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("injected failure applies once", func() {
		boom := errors.New("boom")
		s.coll.FailNext("update", boom)
		s.ErrorIs(s.coll.Update(s.ctx, id, docstore.Fields{"state": "x"}), boom)
		s.NoError(s.coll.Update(s.ctx, id, docstore.Fields{"state": "x"}))
	})
}

func (s *CollectionSuite) TestList() {
	first := s.create("", widget{Owner: "o1", State: "pending", CreatedAt: s.t0.Add(2 * time.Hour)})
	second := s.create("", widget{Owner: "o2", State: "pending", CreatedAt: s.t0})
	s.create("", widget{Owner: "o3", State: "approved", CreatedAt: s.t0.Add(time.Hour)})

	s.Run("filters on typed values and orders oldest first", func() {
		got, err := s.coll.List(s.ctx, docstore.Where("state", state("pending")))
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(second, got[0].ID)
		s.Equal(first, got[1].ID)
	})

	s.Run("newest first with limit", func() {
		got, err := s.coll.List(s.ctx, docstore.Query{}.Newest().Take(2))
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(first, got[0].ID)
	})

	s.Run("multiple filters are conjunctive", func() {
		got, err := s.coll.List(s.ctx, docstore.Where("state", "pending").And("owner", "o2"))
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(second, got[0].ID)
	})

	s.Run("no match returns empty", func() {
		got, err := s.coll.List(s.ctx, docstore.Where("owner", "nobody"))
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *CollectionSuite) TestDelete() {
	id := s.create("", widget{Owner: "a", CreatedAt: s.t0})
	s.Require().NoError(s.coll.Delete(s.ctx, id))
	s.ErrorIs(s.coll.Delete(s.ctx, id), sentinel.ErrNotFound)
	s.Equal(0, s.coll.Len())
}

func (s *CollectionSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.coll.Get(ctx, "x")
	s.ErrorIs(err, context.Canceled)
}
