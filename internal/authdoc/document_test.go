package authdoc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"libreg/internal/geo/coverage"
	"libreg/internal/geo/models"
	"libreg/internal/geo/store"
)

type DocumentSuite struct {
	suite.Suite
}

func TestDocumentSuite(t *testing.T) {
	suite.Run(t, new(DocumentSuite))
}

// =============================================================================
// Link extraction
// =============================================================================

func (s *DocumentSuite) TestExtractLink() {
	links := []Link{
		{Rel: "alternate", Href: "http://foo/", Type: "text/html"},
		{Rel: "alternate", Href: "http://bar/", Type: "text/plain;charset=utf-8"},
	}

	s.Run("no link with the rel", func() {
		s.Nil(ExtractLink(links, "self", "", ""))
	})

	s.Run("no link with the required type", func() {
		s.Nil(ExtractLink(links, "alternate", "", "application/json"))
	})

	s.Run("required type matches by prefix", func() {
		s.Equal(&links[1], ExtractLink(links, "alternate", "", "text/plain"))
	})

	s.Run("preferred type wins", func() {
		s.Equal(&links[1], ExtractLink(links, "alternate", "text/plain", ""))
		s.Equal(&links[0], ExtractLink(links, "alternate", "text/html", ""))
	})

	s.Run("falls back to the first link when the preferred type is missing", func() {
		s.Equal(&links[0], ExtractLink(links, "alternate", "application/xhtml+xml", ""))
	})
}

// =============================================================================
// Parsing
// =============================================================================

func (s *DocumentSuite) TestEmptyDocument() {
	doc, err := Parse([]byte(`{}`))
	s.Require().NoError(err)

	s.Empty(doc.ID)
	s.Empty(doc.Title)
	s.Empty(doc.ServiceDescription)
	s.Empty(doc.ColorScheme)
	s.Nil(doc.CollectionSize)
	s.Nil(doc.PublicKey)
	s.Nil(doc.Website)
	s.Nil(doc.Root)
	s.Empty(doc.Links)
	s.Empty(doc.Logo)
	s.Nil(doc.LogoLink)
	s.False(doc.OnlineRegistration)
	s.False(doc.AnonymousAccess)
	s.Nil(doc.Audience)
}

func (s *DocumentSuite) TestRealDocument() {
	raw := `{
		"id": "http://library/authentication-for-opds-file",
		"title": "Ansonia Public Library",
		"links": [
			{"rel": "logo", "href": "data:image/png;base64,some-image-data", "type": "image/png"},
			{"rel": "alternate", "href": "http://ansonialibrary.org", "type": "text/html"},
			{"rel": "register", "href": "http://example.com/get-a-card/", "type": "text/html"},
			{"rel": "start", "href": "http://catalog.example.com/", "type": "text/html/"},
			{"rel": "start", "href": "http://opds.example.com/", "type": "application/atom+xml;profile=opds-catalog"}
		],
		"service_description": "Serving Ansonia, CT",
		"color_scheme": "gold",
		"collection_size": {"eng": 100, "spa": 20},
		"public_key": "a public key",
		"features": {"disabled": [], "enabled": ["https://librarysimplified.org/rel/policy/reservations"]},
		"authentication": [
			{
				"type": "http://opds-spec.org/auth/basic",
				"description": "Log in with your library barcode",
				"inputs": {"login": {"keyboard": "Default"}, "password": {"keyboard": "Default"}},
				"labels": {"login": "Barcode", "password": "PIN"}
			}
		]
	}`

	doc, err := Parse([]byte(raw))
	s.Require().NoError(err)

	s.Equal("http://library/authentication-for-opds-file", doc.ID)
	s.Equal("Ansonia Public Library", doc.Title)
	s.Equal("Serving Ansonia, CT", doc.ServiceDescription)
	s.Equal("gold", doc.ColorScheme)
	s.Equal(map[string]any{"eng": json.Number("100"), "spa": json.Number("20")}, doc.CollectionSize)
	s.Equal(&PublicKey{Value: "a public key"}, doc.PublicKey)
	s.False(doc.PublicKey.IsRSA())
	s.Equal(&Link{Rel: "alternate", Href: "http://ansonialibrary.org", Type: "text/html"}, doc.Website)
	s.True(doc.OnlineRegistration)
	s.Equal(&Link{Rel: "start", Href: "http://opds.example.com/", Type: OPDSCatalogType}, doc.Root)
	s.Equal("data:image/png;base64,some-image-data", doc.Logo)
	s.Nil(doc.LogoLink)
	s.False(doc.AnonymousAccess)
	s.Equal([]string{"https://librarysimplified.org/rel/policy/reservations"}, doc.Features.Enabled)
}

func (s *DocumentSuite) TestStructuredPublicKey() {
	doc, err := Parse([]byte(`{"public_key": {"type": "RSA", "value": "-----BEGIN PUBLIC KEY-----"}}`))
	s.Require().NoError(err)
	s.True(doc.PublicKey.IsRSA())
	s.Equal("-----BEGIN PUBLIC KEY-----", doc.PublicKey.Value)
}

func (s *DocumentSuite) TestOnlineRegistrationFromMechanism() {
	doc, err := Parse([]byte(`{
		"authentication": [
			{"description": "You'll never guess the secret code.", "type": "http://opds-spec.org/auth/basic"},
			{
				"description": "But anyone can get a library card.",
				"type": "http://opds-spec.org/auth/basic",
				"links": [{"rel": "register", "href": "http://get-a-library-card/"}]
			}
		]
	}`))
	s.Require().NoError(err)
	s.True(doc.OnlineRegistration)
}

func (s *DocumentSuite) TestNameTreatedAsTitle() {
	doc, err := Parse([]byte(`{"name": "My library"}`))
	s.Require().NoError(err)
	s.Equal("My library", doc.Title)
}

func (s *DocumentSuite) TestLogoLink() {
	doc, err := Parse([]byte(`{"links": [{"rel": "logo", "href": "http://logo.com/logo.jpg"}]}`))
	s.Require().NoError(err)
	s.Empty(doc.Logo)
	s.Equal(&Link{Rel: "logo", Href: "http://logo.com/logo.jpg"}, doc.LogoLink)
}

func (s *DocumentSuite) TestAudiences() {
	doc, err := Parse([]byte(`{"audience": ["educational-secondary", "research"]}`))
	s.Require().NoError(err)
	s.Equal([]any{"educational-secondary", "research"}, doc.Audience)
}

func (s *DocumentSuite) TestAnonymousAccess() {
	doc, err := Parse([]byte(`{"authentication": [
		{"type": "http://opds-spec.org/auth/basic"},
		{"type": "https://librarysimplified.org/rel/auth/anonymous"}
	]}`))
	s.Require().NoError(err)
	s.True(doc.AnonymousAccess)
}

func (s *DocumentSuite) TestInvalidDocuments() {
	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"not JSON", `this is not json`},
		{"a JSON array", `["id"]`},
		{"empty body", ``},
		{"mistyped id", `{"id": 12}`},
		{"mistyped links", `{"links": "http://example.com/"}`},
	} {
		s.Run(tc.name, func() {
			_, err := Parse([]byte(tc.raw))
			s.Error(err)
		})
	}
}

// =============================================================================
// Coverage
// =============================================================================

func (s *DocumentSuite) TestCoverageDefaults() {
	ctx := context.Background()
	g := store.NewGazetteer()
	everywhere, err := g.Everywhere(ctx)
	s.Require().NoError(err)

	doc, err := Parse([]byte(`{}`))
	s.Require().NoError(err)

	service, focus, err := doc.Coverage(ctx, g, nil)
	s.Require().NoError(err)
	s.Equal([]*models.Place{everywhere}, service.Places)
	s.Equal([]*models.Place{everywhere}, focus.Places)
}

func (s *DocumentSuite) TestCoverageFocusDefaultsToServiceArea() {
	ctx := context.Background()
	g := store.NewGazetteer()
	c1 := g.Add(nil, "Country One", "C1", models.PlaceTypeNation)
	c2 := g.Add(nil, "Country Two", "C2", models.PlaceTypeNation)

	doc, err := Parse([]byte(`{"service_area": {"C1": "everywhere"}}`))
	s.Require().NoError(err)
	service, focus, err := doc.Coverage(ctx, g, nil)
	s.Require().NoError(err)
	s.Equal([]int64{c1.ID}, service.PlaceIDs())
	s.Equal([]int64{c1.ID}, focus.PlaceIDs())

	doc, err = Parse([]byte(`{"service_area": "everywhere", "focus_area": {"C1": "everywhere", "C2": "everywhere"}}`))
	s.Require().NoError(err)
	service, focus, err = doc.Coverage(ctx, g, nil)
	s.Require().NoError(err)
	s.Len(service.Places, 1)
	s.True(service.Places[0].IsEverywhere())
	s.Equal([]int64{c1.ID, c2.ID}, focus.PlaceIDs())
	s.True(focus.Valid())
}

func (s *DocumentSuite) TestCoverageKeepsDeclaredOrder() {
	ctx := context.Background()
	g := store.NewGazetteer()
	c1 := g.Add(nil, "Country One", "C1", models.PlaceTypeNation)
	c2 := g.Add(nil, "Country Two", "C2", models.PlaceTypeNation)

	doc, err := Parse([]byte(`{"service_area": {"C2": "everywhere", "C1": "everywhere"}, "focus_area": null}`))
	s.Require().NoError(err)
	s.Equal(coverage.Countries{
		{Code: "C2", Value: "everywhere"},
		{Code: "C1", Value: "everywhere"},
	}, doc.ServiceArea)
	s.Nil(doc.FocusArea)

	service, focus, err := doc.Coverage(ctx, g, nil)
	s.Require().NoError(err)
	s.Equal([]int64{c2.ID, c1.ID}, service.PlaceIDs())
	s.Equal([]int64{c2.ID, c1.ID}, focus.PlaceIDs())
}
