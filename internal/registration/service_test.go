package registration

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"libreg/internal/audit"
	geomodels "libreg/internal/geo/models"
	geostore "libreg/internal/geo/store"
	"libreg/internal/library/models"
	libstore "libreg/internal/library/store"
	"libreg/internal/registration/fetch"
	"libreg/internal/registration/fetch/mocks"
	"libreg/internal/registration/metrics"
	dErrors "libreg/pkg/domain-errors"
)

type RegistrationSuite struct {
	suite.Suite
	ctx        context.Context
	privateKey *rsa.PrivateKey
	publicPEM  string

	server    *httptest.Server
	routesMu  sync.RWMutex
	routes    map[string]http.HandlerFunc
	libraries *libstore.InMemory
	places    *geostore.Gazetteer
	events    *audit.MemoryStore
	metrics   *metrics.Metrics
	service   *Service
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func (s *RegistrationSuite) SetupSuite() {
	s.ctx = context.Background()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.privateKey = key
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	s.Require().NoError(err)
	s.publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func (s *RegistrationSuite) SetupTest() {
	s.routes = make(map[string]http.HandlerFunc)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.routesMu.RLock()
		h, ok := s.routes[r.URL.Path]
		s.routesMu.RUnlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	s.libraries = libstore.NewInMemory()
	s.places = geostore.NewGazetteer()
	s.events = audit.NewMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = s.newService(fetch.NewHTTPFetcher())
}

func (s *RegistrationSuite) TearDownTest() {
	s.server.Close()
}

func (s *RegistrationSuite) newService(fetcher fetch.Fetcher) *Service {
	return New(fetcher, s.libraries, s.places,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditPublisher(audit.NewPublisher(s.events)),
	)
}

// =============================================================================
// Fixtures
// =============================================================================

func (s *RegistrationSuite) rootURL() string {
	return s.server.URL + "/root"
}

func (s *RegistrationSuite) authURL() string {
	return s.server.URL + "/auth"
}

func (s *RegistrationSuite) route(path string, h http.HandlerFunc) {
	s.routesMu.Lock()
	defer s.routesMu.Unlock()
	s.routes[path] = h
}

func (s *RegistrationSuite) serveJSON(path, contentType string, status int, body any) {
	s.route(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

// authDocument returns a valid document served from /auth, with overrides applied.
func (s *RegistrationSuite) authDocument(overrides map[string]any) map[string]any {
	doc := map[string]any{
		"id":         s.authURL(),
		"title":      "Ansonia Public Library",
		"public_key": map[string]any{"type": "RSA", "value": s.publicPEM},
		"links": []map[string]any{
			{"rel": "alternate", "href": "/about", "type": "text/html"},
		},
	}
	for k, v := range overrides {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	return doc
}

func (s *RegistrationSuite) serveDirectCatalog(doc map[string]any) {
	s.serveJSON("/root", "application/opds+json", http.StatusOK, map[string]any{
		"links": map[string]any{
			AuthDocumentRel: map[string]any{"href": "/auth"},
		},
	})
	s.serveJSON("/auth", AuthDocumentType, http.StatusOK, doc)
}

func (s *RegistrationSuite) decrypt(encoded string) string {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	s.Require().NoError(err)
	plaintext, err := rsa.DecryptOAEP(sha1.New(), nil, s.privateKey, ciphertext, nil)
	s.Require().NoError(err)
	return string(plaintext)
}

func (s *RegistrationSuite) requireProblem(err error, code dErrors.Code) *dErrors.Error {
	s.Require().Error(err)
	problem, ok := dErrors.As(err)
	s.Require().True(ok, "expected a domain error, got %v", err)
	s.Require().Equal(code, problem.Code, "detail: %s", problem.Detail)
	return problem
}

// =============================================================================
// Happy path
// =============================================================================

func (s *RegistrationSuite) TestRegisterThenReRegister() {
	s.serveDirectCatalog(s.authDocument(nil))

	first, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.True(first.Created)
	s.Equal(models.StageRegistered, first.Library.Stage)
	s.Equal("Ansonia Public Library", first.Library.Name)
	s.Equal(s.server.URL+"/about", first.Library.WebURL)
	s.Len(first.Library.ShortName, 6)
	s.Equal(first.Library.ShortName, first.Catalog.Metadata.ShortName)
	s.Require().NotEmpty(first.Catalog.Metadata.SharedSecret)
	secret := s.decrypt(first.Catalog.Metadata.SharedSecret)
	s.Len(secret, 48)
	s.Equal([]models.Audience{models.AudiencePublic}, first.Library.Audiences)

	second, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.False(second.Created)
	s.Equal(first.Library.ID, second.Library.ID)
	s.Equal(first.Library.ShortName, second.Library.ShortName)
	s.Equal(secret, s.decrypt(second.Catalog.Metadata.SharedSecret))

	stored, err := s.libraries.FindByOPDSURL(s.ctx, s.rootURL())
	s.Require().NoError(err)
	s.Equal(secret, stored.SharedSecret)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Registrations.WithLabelValues(metrics.OutcomeCreated)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Registrations.WithLabelValues(metrics.OutcomeUpdated)))

	events, err := s.events.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.EventLibraryRegistered, events[0].Type)
	s.Equal(first.Library.ID.String(), events[0].LibraryID)
}

func (s *RegistrationSuite) TestWrongBearerKeepsSecret() {
	s.serveDirectCatalog(s.authDocument(nil))
	first, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	secret := s.decrypt(first.Catalog.Metadata.SharedSecret)

	second, err := s.service.Register(s.ctx, s.rootURL(), "not-the-secret")
	s.Require().NoError(err)
	s.Equal(secret, s.decrypt(second.Catalog.Metadata.SharedSecret))
}

func (s *RegistrationSuite) TestProofOfPossessionRotatesSecret() {
	s.serveDirectCatalog(s.authDocument(nil))
	first, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	secret := s.decrypt(first.Catalog.Metadata.SharedSecret)

	second, err := s.service.Register(s.ctx, s.rootURL(), secret)
	s.Require().NoError(err)
	rotated := s.decrypt(second.Catalog.Metadata.SharedSecret)
	s.NotEqual(secret, rotated)
	s.Len(rotated, 48)
	s.Equal(first.Library.ShortName, second.Library.ShortName)

	events, err := s.events.ListByLibrary(s.ctx, s.rootURL())
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.EventLibrarySecretRotated, events[1].Type)
}

func (s *RegistrationSuite) TestPKCS1PublicKey() {
	pkcs1 := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&s.privateKey.PublicKey),
	}))
	s.serveDirectCatalog(s.authDocument(map[string]any{
		"public_key": map[string]any{"type": "RSA", "value": pkcs1},
	}))

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.Len(s.decrypt(result.Catalog.Metadata.SharedSecret), 48)
}

func (s *RegistrationSuite) TestNoPublicKeyIssuesNoCredentials() {
	s.serveDirectCatalog(s.authDocument(map[string]any{"public_key": nil}))

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.True(result.Created)
	s.Empty(result.Library.ShortName)
	s.Empty(result.Library.SharedSecret)
	s.Empty(result.Catalog.Metadata.ShortName)
	s.Empty(result.Catalog.Metadata.SharedSecret)
}

func (s *RegistrationSuite) TestDeclarationsApplied() {
	us := s.places.Add(nil, "United States", "US", geomodels.PlaceTypeNation)
	s.serveDirectCatalog(s.authDocument(map[string]any{
		"service_area":    map[string]any{"US": "everywhere"},
		"audience":        []string{"research", "a secret society"},
		"collection_size": map[string]any{"eng": 100, "spa": 20},
	}))

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.Equal([]int64{us.ID}, result.Library.AreaPlaceIDs(models.AreaFocus))
	s.Empty(result.Library.AreaPlaceIDs(models.AreaEligibility))
	s.ElementsMatch([]models.Audience{models.AudienceResearch, models.AudienceOther}, result.Library.Audiences)
	s.Len(result.Library.CollectionSummaries, 2)
}

// =============================================================================
// Locating the authentication document
// =============================================================================

func (s *RegistrationSuite) TestLinkHeaderOnUnauthorizedRoot() {
	s.route("/root", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Add("Link", `</ignored>; rel="`+AuthDocumentRel+`"; type="application/json"`)
		w.Header().Add("Link", `</auth>; rel="`+AuthDocumentRel+`"; type="`+AuthDocumentType+`"`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	s.serveJSON("/auth", AuthDocumentType, http.StatusOK, s.authDocument(nil))

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.True(result.Created)
}

func (s *RegistrationSuite) TestShelfUnauthorizedIsTheDocument() {
	s.serveJSON("/root", "application/opds+json", http.StatusOK, map[string]any{
		"links": []map[string]any{{"rel": ShelfRel, "href": "/shelf"}},
	})
	doc := s.authDocument(nil)
	doc["id"] = s.server.URL + "/shelf"
	s.serveJSON("/shelf", AuthDocumentType, http.StatusUnauthorized, doc)

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.Equal("Ansonia Public Library", result.Library.Name)
}

func (s *RegistrationSuite) TestShelfFeedIsRescanned() {
	s.route("/root", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml;profile=opds-catalog;kind=navigation")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <id>root</id>
  <title>Root</title>
  <link rel="http://opds-spec.org/shelf" href="/shelf"/>
</feed>`)
	})
	s.route("/shelf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml;profile=opds-catalog;kind=acquisition")
		w.Header().Add("Link", `</not-rescanned>; rel="`+AuthDocumentRel+`"; type="`+AuthDocumentType+`"`)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <id>shelf</id>
  <title>Shelf</title>
  <link rel="http://opds-spec.org/auth/document" href="/auth"/>
</feed>`)
	})
	s.serveJSON("/auth", AuthDocumentType, http.StatusOK, s.authDocument(nil))

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.True(result.Created)
}

func (s *RegistrationSuite) TestFailingCandidateFallsThrough() {
	s.serveJSON("/root", "application/opds+json", http.StatusOK, map[string]any{
		"links": []map[string]any{
			{"rel": AuthDocumentRel, "href": "/gone"},
			{"rel": AuthDocumentRel, "href": "/auth"},
		},
	})
	s.serveJSON("/auth", AuthDocumentType, http.StatusOK, s.authDocument(nil))

	_, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
}

func (s *RegistrationSuite) TestHandshakeDeadlineWhileTryingCandidates() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	var secondTried atomic.Bool
	s.serveJSON("/root", "application/opds+json", http.StatusOK, map[string]any{
		"links": []map[string]any{
			{"rel": AuthDocumentRel, "href": "/slow"},
			{"rel": AuthDocumentRel, "href": "/auth"},
		},
	})
	s.route("/slow", func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	s.route("/auth", func(w http.ResponseWriter, _ *http.Request) {
		secondTried.Store(true)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := s.service.Register(ctx, s.rootURL(), "")
	problem := s.requireProblem(err, dErrors.CodeFeedTimeout)
	s.Equal("Timed out looking for the authentication document of "+s.rootURL()+".", problem.Detail)
	s.False(secondTried.Load())
}

func (s *RegistrationSuite) TestAuthDocumentNotFound() {
	s.serveJSON("/root", "application/opds+json", http.StatusOK, map[string]any{"links": map[string]any{}})

	_, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.requireProblem(err, dErrors.CodeAuthDocumentNotFound)

	events, listErr := s.events.List(s.ctx)
	s.Require().NoError(listErr)
	s.Require().Len(events, 1)
	s.Equal(audit.EventRegistrationRejected, events[0].Type)
	s.Equal(string(dErrors.CodeAuthDocumentNotFound), events[0].Code)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Registrations.WithLabelValues(metrics.OutcomeRejected)))
}

// =============================================================================
// Root fetch failures
// =============================================================================

func (s *RegistrationSuite) TestNoURLSubmitted() {
	_, err := s.service.Register(s.ctx, "  ", "")
	s.requireProblem(err, dErrors.CodeNoURLSubmitted)
}

func (s *RegistrationSuite) TestRootFetchFailures() {
	ctrl := gomock.NewController(s.T())
	fetcher := mocks.NewMockFetcher(ctrl)
	service := s.newService(fetcher)

	s.Run("timeout", func() {
		fetcher.EXPECT().Get(gomock.Any(), "http://timeout/", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, opts fetch.Options) (*fetch.Response, error) {
				s.Equal(defaultRootTimeout, opts.Timeout)
				s.Equal(int64(defaultMaxFeedBytes), opts.MaxBytes)
				s.True(opts.Accepts(http.StatusUnauthorized))
				return nil, fetch.NewError(fetch.CategoryTimeout, "http://timeout/", "timed out", context.DeadlineExceeded)
			})
		_, err := service.Register(s.ctx, "http://timeout/", "")
		s.requireProblem(err, dErrors.CodeFeedTimeout)
	})

	s.Run("connection failure", func() {
		fetcher.EXPECT().Get(gomock.Any(), "http://refused/", gomock.Any()).
			Return(nil, fetch.NewError(fetch.CategoryFailed, "http://refused/", "request failed", errors.New("connection refused")))
		_, err := service.Register(s.ctx, "http://refused/", "")
		s.requireProblem(err, dErrors.CodeFeedFetchFailed)
	})

	s.Run("disallowed status", func() {
		fetcher.EXPECT().Get(gomock.Any(), "http://broken/", gomock.Any()).
			Return(nil, fetch.NewError(fetch.CategoryBadStatus, "http://broken/", "unexpected status 500", nil))
		_, err := service.Register(s.ctx, "http://broken/", "")
		s.requireProblem(err, dErrors.CodeFeedFetchFailed)
	})

	s.Run("oversized feed", func() {
		s.route("/root", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/opds+json")
			_, _ = io.WriteString(w, `{"links": [`+strings.Repeat(`{"rel": "self", "href": "/"},`, 100)+`{}]}`)
		})
		capped := New(fetch.NewHTTPFetcher(), s.libraries, s.places, WithMaxFeedBytes(256))

		_, err := capped.Register(s.ctx, s.rootURL(), "")
		problem := s.requireProblem(err, dErrors.CodeFeedFetchFailed)
		s.Equal("Could not retrieve an OPDS feed from "+s.rootURL()+".", problem.Detail)
	})
}

// =============================================================================
// Document validation
// =============================================================================

func (s *RegistrationSuite) TestUnparseableDocument() {
	s.serveJSON("/root", "application/opds+json", http.StatusOK, map[string]any{
		"links": map[string]any{AuthDocumentRel: map[string]any{"href": "/auth"}},
	})
	s.route("/auth", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not json")
	})

	_, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.requireProblem(err, dErrors.CodeAuthDocumentInvalid)
}

func (s *RegistrationSuite) TestDocumentValidation() {
	mismatch := func(id string) string {
		return "The OPDS authentication document's id (" + id + ") doesn't match its url (" + s.authURL() + ")."
	}
	for _, tc := range []struct {
		name      string
		overrides map[string]any
		detail    func() string
	}{
		{"missing id reports the url mismatch", map[string]any{"id": nil}, func() string { return mismatch("") }},
		{"missing title", map[string]any{"title": nil}, func() string {
			return "The OPDS authentication document is missing a title."
		}},
		{"id does not match url", map[string]any{"id": "http://elsewhere/auth"}, func() string {
			return mismatch("http://elsewhere/auth")
		}},
		{"mismatch outranks missing title", map[string]any{"id": "http://elsewhere/auth", "title": nil}, func() string {
			return mismatch("http://elsewhere/auth")
		}},
	} {
		s.Run(tc.name, func() {
			s.serveDirectCatalog(s.authDocument(tc.overrides))
			_, err := s.service.Register(s.ctx, s.rootURL(), "")
			problem := s.requireProblem(err, dErrors.CodeAuthDocumentInvalid)
			s.Equal(tc.detail(), problem.Detail)
		})
	}
	_, err := s.libraries.FindByOPDSURL(s.ctx, s.rootURL())
	s.Error(err)
}

func (s *RegistrationSuite) TestMalformedPublicKey() {
	s.serveDirectCatalog(s.authDocument(map[string]any{
		"public_key": map[string]any{"type": "RSA", "value": "not a key"},
	}))

	_, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.requireProblem(err, dErrors.CodeAuthDocumentInvalid)
}

// =============================================================================
// Logos
// =============================================================================

func (s *RegistrationSuite) TestInlineLogo() {
	s.serveDirectCatalog(s.authDocument(map[string]any{
		"links": []map[string]any{{"rel": "logo", "href": "data:image/png;base64,AAAA"}},
	}))

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.Equal("data:image/png;base64,AAAA", result.Library.Logo)
	s.Empty(result.Library.WebURL)
}

func (s *RegistrationSuite) TestInlineJPEGLogoKeepsItsType() {
	s.serveDirectCatalog(s.authDocument(map[string]any{
		"links": []map[string]any{{"rel": "logo", "href": "data:image/jpeg;base64,/9j/"}},
	}))

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.Require().Len(result.Catalog.Images, 1)
	s.Equal("data:image/jpeg;base64,/9j/", result.Catalog.Images[0].Href)
	s.Equal("image/jpeg", result.Catalog.Images[0].Type)
}

func (s *RegistrationSuite) TestLogoLinkConvertedToPNG() {
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), []color.Color{color.Black, color.White})
	var gifBytes bytes.Buffer
	s.Require().NoError(gif.Encode(&gifBytes, img, nil))
	s.route("/logo.gif", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write(gifBytes.Bytes())
	})
	s.serveDirectCatalog(s.authDocument(map[string]any{
		"links": []map[string]any{{"rel": "logo", "href": "/logo.gif"}},
	}))

	result, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	s.Require().True(strings.HasPrefix(result.Library.Logo, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(result.Library.Logo, "data:image/png;base64,"))
	s.Require().NoError(err)
	decoded, err := png.Decode(bytes.NewReader(raw))
	s.Require().NoError(err)
	s.Equal(image.Rect(0, 0, 2, 2), decoded.Bounds())
}

func (s *RegistrationSuite) TestUnreadableLogo() {
	s.route("/logo.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not an image")
	})
	s.serveDirectCatalog(s.authDocument(map[string]any{
		"links": []map[string]any{{"rel": "logo", "href": "/logo.png"}},
	}))

	_, err := s.service.Register(s.ctx, s.rootURL(), "")
	problem := s.requireProblem(err, dErrors.CodeLogoFetchFailed)
	s.Equal("Could not read logo image /logo.png", problem.Detail)
}

func (s *RegistrationSuite) TestMissingLogo() {
	s.serveDirectCatalog(s.authDocument(map[string]any{
		"links": []map[string]any{{"rel": "logo", "href": "/missing.png"}},
	}))

	_, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.requireProblem(err, dErrors.CodeLogoFetchFailed)
}

// =============================================================================
// Atomicity
// =============================================================================

func (s *RegistrationSuite) TestReconcilerFailureCommitsNothing() {
	s.serveDirectCatalog(s.authDocument(map[string]any{"collection_size": 100}))
	first, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.Require().NoError(err)
	secret := s.decrypt(first.Catalog.Metadata.SharedSecret)

	s.serveDirectCatalog(s.authDocument(map[string]any{
		"title":           "Renamed",
		"collection_size": -100,
	}))
	_, err = s.service.Register(s.ctx, s.rootURL(), secret)
	problem := s.requireProblem(err, dErrors.CodeCollectionSizeInvalid)
	s.Equal("Collection size cannot be negative.", problem.Detail)

	stored, err := s.libraries.FindByOPDSURL(s.ctx, s.rootURL())
	s.Require().NoError(err)
	s.Equal("Ansonia Public Library", stored.Name)
	s.Equal(secret, stored.SharedSecret)
	s.Require().Len(stored.CollectionSummaries, 1)
	s.Equal(int64(100), stored.CollectionSummaries[0].Size)
}

func (s *RegistrationSuite) TestUnknownServiceAreaRejected() {
	s.serveDirectCatalog(s.authDocument(map[string]any{"service_area": map[string]any{"ZZ": "everywhere"}}))

	_, err := s.service.Register(s.ctx, s.rootURL(), "")
	s.requireProblem(err, dErrors.CodeServiceAreaInvalid)
	_, err = s.libraries.FindByOPDSURL(s.ctx, s.rootURL())
	s.Error(err)
}

type failingLibraryStore struct {
	*libstore.InMemory
}

func (failingLibraryStore) Save(context.Context, *models.Library) error {
	return errors.New("database is down")
}

func (s *RegistrationSuite) TestStoreFailureIsInternal() {
	s.serveDirectCatalog(s.authDocument(nil))
	service := New(fetch.NewHTTPFetcher(), failingLibraryStore{libstore.NewInMemory()}, s.places, WithMetrics(s.metrics))

	_, err := service.Register(s.ctx, s.rootURL(), "")
	s.requireProblem(err, dErrors.CodeInternal)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Registrations.WithLabelValues(metrics.OutcomeError)))
}
