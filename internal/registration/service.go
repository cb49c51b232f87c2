// Package registration implements the handshake through which an OPDS server
// registers with the directory: the server's authentication document is
// located, validated and applied to its library record, and a shared secret is
// issued under the server's public key.
package registration

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libreg/internal/audit"
	"libreg/internal/authdoc"
	"libreg/internal/geo"
	geomodels "libreg/internal/geo/models"
	"libreg/internal/library/models"
	"libreg/internal/library/reconcile"
	"libreg/internal/registration/fetch"
	"libreg/internal/registration/metrics"
	dErrors "libreg/pkg/domain-errors"
	"libreg/pkg/platform/sentinel"
	"libreg/pkg/requestcontext"
)

const (
	defaultRootTimeout  = 30 * time.Second
	defaultFetchTimeout = 30 * time.Second
	defaultMaxLogoBytes = 5 << 20
	defaultMaxDocBytes  = 2 << 20
	defaultMaxFeedBytes = 10 << 20
)

// LibraryStore persists the library aggregate.
type LibraryStore interface {
	FindByOPDSURL(ctx context.Context, opdsURL string) (*models.Library, error)
	Save(ctx context.Context, lib *models.Library) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Result is the outcome of a successful registration.
type Result struct {
	Library *models.Library
	// Created is true when this call created the library record.
	Created bool
	Catalog *Catalog
}

// Service runs registration handshakes.
type Service struct {
	fetcher        fetch.Fetcher
	libraries      LibraryStore
	places         geo.Resolver
	codec          LogoCodec
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	defaultNation  *geomodels.Place
	rootTimeout    time.Duration
	fetchTimeout   time.Duration
	maxLogoBytes   int64
	maxFeedBytes   int64
	random         io.Reader
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithDefaultNation scopes bare place names in coverage declarations.
func WithDefaultNation(nation *geomodels.Place) Option {
	return func(s *Service) {
		s.defaultNation = nation
	}
}

// WithTimeouts overrides the root feed timeout and the timeout of every other fetch.
func WithTimeouts(root, other time.Duration) Option {
	return func(s *Service) {
		if root > 0 {
			s.rootTimeout = root
		}
		if other > 0 {
			s.fetchTimeout = other
		}
	}
}

func WithMaxLogoBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLogoBytes = n
		}
	}
}

// WithMaxFeedBytes caps the size of the root feed the handshake will read.
func WithMaxFeedBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFeedBytes = n
		}
	}
}

func WithLogoCodec(codec LogoCodec) Option {
	return func(s *Service) {
		s.codec = codec
	}
}

// WithRandom replaces the entropy source used for identifiers, secrets and
// encryption padding.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		s.random = r
	}
}

// New constructs a Service.
func New(fetcher fetch.Fetcher, libraries LibraryStore, places geo.Resolver, opts ...Option) *Service {
	s := &Service{
		fetcher:      fetcher,
		libraries:    libraries,
		places:       places,
		codec:        PNGLogoCodec{},
		tracer:       otel.Tracer("libreg/registration"),
		rootTimeout:  defaultRootTimeout,
		fetchTimeout: defaultFetchTimeout,
		maxLogoBytes: defaultMaxLogoBytes,
		maxFeedBytes: defaultMaxFeedBytes,
		random:       rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register runs the handshake for the catalog at opdsURL. bearer is the secret
// the caller presented, if any; presenting the current secret rotates it.
//
// Every failure is a *dErrors.Error. Nothing is stored unless every step
// succeeds.
func (s *Service) Register(ctx context.Context, opdsURL, bearer string) (*Result, error) {
	start := time.Now()
	opdsURL = strings.TrimSpace(opdsURL)
	ctx, span := s.tracer.Start(ctx, "registration.Register",
		trace.WithAttributes(attribute.String("opds_url", opdsURL)))
	defer span.End()

	result, rotated, err := s.register(ctx, opdsURL, bearer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		s.reject(ctx, opdsURL, start, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("library_id", result.Library.ID.String()),
		attribute.Bool("created", result.Created),
	)
	s.succeed(ctx, result, rotated, start)
	return result, nil
}

func (s *Service) register(ctx context.Context, opdsURL, bearer string) (*Result, bool, error) {
	if opdsURL == "" {
		return nil, false, dErrors.New(dErrors.CodeNoURLSubmitted, "No OPDS URL was submitted.")
	}

	root, err := s.fetchRoot(ctx, opdsURL)
	if err != nil {
		return nil, false, err
	}
	authResp, err := s.locateAuthDocument(ctx, opdsURL, root)
	if err != nil {
		return nil, false, err
	}

	doc, err := authdoc.Parse(authResp.Body)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeAuthDocumentInvalid,
			fmt.Sprintf("Could not parse the authentication document at %s.", authResp.URL))
	}
	if err := validateDocument(doc, authResp.URL); err != nil {
		return nil, false, err
	}

	lib, created, err := s.findOrCreate(ctx, opdsURL)
	if err != nil {
		return nil, false, err
	}
	if err := s.applyMetadata(ctx, lib, doc); err != nil {
		return nil, false, err
	}
	if err := s.applyDeclarations(ctx, lib, doc); err != nil {
		return nil, false, err
	}
	creds, err := s.issueCredentials(lib, doc.PublicKey, bearer)
	if err != nil {
		return nil, false, err
	}

	lib.UpdatedAt = requestcontext.Now(ctx)
	if err := s.libraries.Save(ctx, lib); err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save library")
	}

	catalog := libraryCatalog(lib)
	if creds != nil {
		catalog.Metadata.ShortName = lib.ShortName
		catalog.Metadata.SharedSecret = creds.encryptedSecret
	}
	rotated := creds != nil && creds.rotated
	return &Result{Library: lib, Created: created, Catalog: catalog}, rotated, nil
}

func (s *Service) fetchRoot(ctx context.Context, opdsURL string) (*fetch.Response, error) {
	resp, err := s.get(ctx, "root", opdsURL, fetch.Options{
		Accept:   []string{fetch.Accept2xx, fetch.Accept3xx, "401"},
		Timeout:  s.rootTimeout,
		MaxBytes: s.maxFeedBytes,
	})
	if err == nil {
		return resp, nil
	}
	if fetch.IsTimeout(err) {
		return nil, dErrors.Wrap(err, dErrors.CodeFeedTimeout,
			fmt.Sprintf("Timed out retrieving the OPDS feed at %s.", opdsURL))
	}
	return nil, dErrors.Wrap(err, dErrors.CodeFeedFetchFailed,
		fmt.Sprintf("Could not retrieve an OPDS feed from %s.", opdsURL))
}

// locateAuthDocument follows the root response's links to the authentication
// document: a direct link first, then the shelf link, whose 401 response is
// itself the document and whose feed is rescanned for a direct link. Running
// out of the handshake deadline while trying candidates is a timeout, not a
// missing document.
func (s *Service) locateAuthDocument(ctx context.Context, opdsURL string, root *fetch.Response) (*fetch.Response, error) {
	docAccept := []string{fetch.Accept2xx, fetch.Accept3xx}
	links := candidateLinks(root, true)

	if resp := s.followFirst(ctx, opdsURL, links, AuthDocumentRel, docAccept); resp != nil {
		return resp, nil
	}

	shelf := s.followFirst(ctx, opdsURL, links, ShelfRel, []string{fetch.Accept2xx, fetch.Accept3xx, "401"})
	if shelf != nil {
		if shelf.StatusCode == http.StatusUnauthorized {
			return shelf, nil
		}
		if resp := s.followFirst(ctx, opdsURL, candidateLinks(shelf, false), AuthDocumentRel, docAccept); resp != nil {
			return resp, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeFeedTimeout,
			fmt.Sprintf("Timed out looking for the authentication document of %s.", opdsURL))
	}
	return nil, dErrors.Newf(dErrors.CodeAuthDocumentNotFound,
		"No authentication document could be found for %s.", opdsURL)
}

// followFirst fetches links with rel in order and returns the first response
// that succeeds. Failed candidates are skipped.
func (s *Service) followFirst(ctx context.Context, opdsURL string, links []authdoc.Link, rel string, accept []string) *fetch.Response {
	for _, link := range links {
		if link.Rel != rel {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		target := resolveHref(opdsURL, link.Href)
		resp, err := s.get(ctx, purposeOf(rel), target, fetch.Options{
			Accept:   accept,
			Timeout:  s.fetchTimeout,
			MaxBytes: defaultMaxDocBytes,
		})
		if err != nil {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "candidate link failed",
					"opds_url", opdsURL,
					"rel", rel,
					"href", target,
					"error", err,
				)
			}
			continue
		}
		return resp
	}
	return nil
}

func purposeOf(rel string) string {
	if rel == ShelfRel {
		return "shelf"
	}
	return "auth_document"
}

// validateDocument checks the fields the registry relies on. The id must be
// exactly the URL the document was served from. Every check runs and the last
// failure is reported, so a document without an id is described by the id/url
// mismatch.
func validateDocument(doc *authdoc.Document, servedFrom string) error {
	var detail string
	if doc.ID == "" {
		detail = "The OPDS authentication document is missing an id."
	}
	if doc.Title == "" {
		detail = "The OPDS authentication document is missing a title."
	}
	if doc.ID != servedFrom {
		detail = fmt.Sprintf("The OPDS authentication document's id (%s) doesn't match its url (%s).", doc.ID, servedFrom)
	}
	if detail == "" {
		return nil
	}
	return dErrors.New(dErrors.CodeAuthDocumentInvalid, detail)
}

func (s *Service) findOrCreate(ctx context.Context, opdsURL string) (*models.Library, bool, error) {
	lib, err := s.libraries.FindByOPDSURL(ctx, opdsURL)
	if err == nil {
		return lib, false, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.NewLibrary(opdsURL, requestcontext.Now(ctx)), true, nil
	}
	return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load library")
}

func (s *Service) applyMetadata(ctx context.Context, lib *models.Library, doc *authdoc.Document) error {
	lib.Name = doc.Title
	lib.Description = doc.ServiceDescription
	lib.AnonymousAccess = doc.AnonymousAccess
	lib.OnlineRegistration = doc.OnlineRegistration

	lib.WebURL = ""
	if doc.Website != nil && doc.Website.Href != "" {
		lib.WebURL = resolveHref(lib.OPDSURL, doc.Website.Href)
	}

	switch {
	case doc.Logo != "":
		lib.Logo = doc.Logo
	case doc.LogoLink != nil:
		logo, err := s.fetchLogo(ctx, lib.OPDSURL, doc.LogoLink.Href)
		if err != nil {
			return err
		}
		lib.Logo = logo
	default:
		lib.Logo = ""
	}
	return nil
}

func (s *Service) fetchLogo(ctx context.Context, opdsURL, href string) (string, error) {
	problem := func(err error) error {
		return dErrors.Wrap(err, dErrors.CodeLogoFetchFailed, fmt.Sprintf("Could not read logo image %s", href))
	}
	resp, err := s.get(ctx, "logo", resolveHref(opdsURL, href), fetch.Options{
		Timeout:  s.fetchTimeout,
		MaxBytes: s.maxLogoBytes,
	})
	if err != nil {
		return "", problem(err)
	}
	png, err := s.codec.ToPNG(resp.Body)
	if err != nil {
		return "", problem(err)
	}
	return pngDataURI(png), nil
}

// applyDeclarations runs the three reconcilers. The library is only held in
// memory here, so a failure leaves nothing half-applied.
func (s *Service) applyDeclarations(ctx context.Context, lib *models.Library, doc *authdoc.Document) error {
	serviceArea, focusArea, err := doc.Coverage(ctx, s.places, s.defaultNation)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve places")
	}
	if err := reconcile.ServiceAreas(lib, serviceArea, focusArea); err != nil {
		return err
	}
	if err := reconcile.Audiences(lib, doc.Audience); err != nil {
		return err
	}
	return reconcile.CollectionSize(lib, doc.CollectionSize)
}

type credentials struct {
	encryptedSecret string
	rotated         bool
}

// issueCredentials assigns a short name and shared secret when the document
// publishes an RSA key. The secret is regenerated only when none exists or the
// caller proved possession of the current one.
func (s *Service) issueCredentials(lib *models.Library, key *authdoc.PublicKey, bearer string) (*credentials, error) {
	if !key.IsRSA() {
		return nil, nil
	}
	publicKey, err := parsePublicKey(key.Value)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthDocumentInvalid,
			"The authentication document's public key could not be read.")
	}

	if lib.ShortName == "" {
		if lib.ShortName, err = randomHex(s.random, shortNameBytes); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate short name")
		}
	}

	creds := &credentials{}
	if !lib.HasSharedSecret() || provesPossession(bearer, lib.SharedSecret) {
		creds.rotated = lib.HasSharedSecret()
		if lib.SharedSecret, err = randomHex(s.random, sharedSecretBytes); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate shared secret")
		}
	}

	if creds.encryptedSecret, err = encryptSecret(s.random, publicKey, lib.SharedSecret); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt shared secret")
	}
	return creds, nil
}

// get wraps the fetcher with a span and a fetch counter.
func (s *Service) get(ctx context.Context, purpose, url string, opts fetch.Options) (*fetch.Response, error) {
	ctx, span := s.tracer.Start(ctx, "registration.fetch", trace.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("url", url),
	))
	defer span.End()

	resp, err := s.fetcher.Get(ctx, url, opts)
	result := "ok"
	if err != nil {
		result = string(fetch.GetCategory(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	} else {
		span.SetAttributes(attribute.Int("status", resp.StatusCode))
	}
	if s.metrics != nil {
		s.metrics.RecordFetch(purpose, result)
	}
	return resp, err
}

func (s *Service) succeed(ctx context.Context, result *Result, rotated bool, start time.Time) {
	lib := result.Library
	outcome := metrics.OutcomeUpdated
	if result.Created {
		outcome = metrics.OutcomeCreated
	}
	if s.metrics != nil {
		s.metrics.ObserveRegistration(outcome, start)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "library registered",
			"opds_url", lib.OPDSURL,
			"library_id", lib.ID.String(),
			"created", result.Created,
			"secret_rotated", rotated,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	if result.Created {
		s.emit(ctx, audit.Event{Type: audit.EventLibraryRegistered, LibraryID: lib.ID.String(), OPDSURL: lib.OPDSURL})
	}
	if rotated {
		s.emit(ctx, audit.Event{Type: audit.EventLibrarySecretRotated, LibraryID: lib.ID.String(), OPDSURL: lib.OPDSURL})
	}
}

func (s *Service) reject(ctx context.Context, opdsURL string, start time.Time, err error) {
	problem, ok := dErrors.As(err)
	if !ok {
		problem = dErrors.Wrap(err, dErrors.CodeInternal, "")
	}
	outcome := metrics.OutcomeRejected
	if problem.Code == dErrors.CodeInternal {
		outcome = metrics.OutcomeError
	}
	if s.metrics != nil {
		s.metrics.ObserveRegistration(outcome, start)
	}
	if s.logger != nil {
		level := slog.LevelWarn
		if outcome == metrics.OutcomeError {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "registration failed",
			"opds_url", opdsURL,
			"code", string(problem.Code),
			"detail", problem.Detail,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	s.emit(ctx, audit.Event{
		Type:    audit.EventRegistrationRejected,
		OPDSURL: opdsURL,
		Code:    string(problem.Code),
		Detail:  problem.Detail,
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event", "type", event.Type, "error", err)
	}
}
