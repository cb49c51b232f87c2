package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"libreg/internal/library/models"
	id "libreg/pkg/domain"
	"libreg/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) newLibrary(opdsURL string) *models.Library {
	lib := models.NewLibrary(opdsURL, time.Now())
	lib.Name = "Test Library"
	lib.ServiceAreas = []models.ServiceArea{{PlaceID: 5, Type: models.AreaFocus}}
	lib.Audiences = []models.Audience{models.AudiencePublic}
	lib.CollectionSummaries = []models.CollectionSummary{{Language: "eng", Size: 10}}
	return lib
}

func (s *InMemoryStoreSuite) TestSaveAndFind() {
	s.Run("finds a saved library by OPDS URL", func() {
		lib := s.newLibrary("http://one.example/")
		s.Require().NoError(s.store.Save(s.ctx, lib))

		found, err := s.store.FindByOPDSURL(s.ctx, "http://one.example/")
		s.Require().NoError(err)
		s.Equal(lib.ID, found.ID)
		s.Equal("Test Library", found.Name)
	})

	s.Run("finds a saved library by ID", func() {
		lib := s.newLibrary("http://two.example/")
		s.Require().NoError(s.store.Save(s.ctx, lib))

		found, err := s.store.FindByID(s.ctx, lib.ID)
		s.Require().NoError(err)
		s.Equal(lib.OPDSURL, found.OPDSURL)
	})

	s.Run("returns ErrNotFound for an unknown URL", func() {
		_, err := s.store.FindByOPDSURL(s.ctx, "http://unknown.example/")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound for an unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewLibraryID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestSaveAssignsRowIDs() {
	lib := s.newLibrary("http://rows.example/")
	s.Require().NoError(s.store.Save(s.ctx, lib))

	s.NotZero(lib.ServiceAreas[0].ID)
	s.NotZero(lib.CollectionSummaries[0].ID)

	areaID := lib.ServiceAreas[0].ID
	lib.ServiceAreas = append(lib.ServiceAreas, models.ServiceArea{PlaceID: 6, Type: models.AreaFocus})
	s.Require().NoError(s.store.Save(s.ctx, lib))

	found, err := s.store.FindByOPDSURL(s.ctx, lib.OPDSURL)
	s.Require().NoError(err)
	s.Require().Len(found.ServiceAreas, 2)
	s.Equal(areaID, found.ServiceAreas[0].ID)
	s.NotEqual(areaID, found.ServiceAreas[1].ID)
}

func (s *InMemoryStoreSuite) TestIsolation() {
	s.Run("mutating a found library does not change the store", func() {
		lib := s.newLibrary("http://isolated.example/")
		s.Require().NoError(s.store.Save(s.ctx, lib))

		found, err := s.store.FindByOPDSURL(s.ctx, lib.OPDSURL)
		s.Require().NoError(err)
		found.Name = "changed"
		found.Audiences[0] = models.AudienceResearch

		again, err := s.store.FindByOPDSURL(s.ctx, lib.OPDSURL)
		s.Require().NoError(err)
		s.Equal("Test Library", again.Name)
		s.Equal([]models.Audience{models.AudiencePublic}, again.Audiences)
	})

	s.Run("mutating a saved library after Save does not change the store", func() {
		lib := s.newLibrary("http://after-save.example/")
		s.Require().NoError(s.store.Save(s.ctx, lib))
		lib.SharedSecret = "leaked"

		found, err := s.store.FindByOPDSURL(s.ctx, lib.OPDSURL)
		s.Require().NoError(err)
		s.Empty(found.SharedSecret)
	})
}

func (s *InMemoryStoreSuite) TestURLUniqueness() {
	first := s.newLibrary("http://dup.example/")
	s.Require().NoError(s.store.Save(s.ctx, first))

	second := s.newLibrary("http://dup.example/")
	err := s.store.Save(s.ctx, second)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}
