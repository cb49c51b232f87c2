// Package authdoc parses Authentication for OPDS documents.
//
// Only the fields the registry acts on are modelled. Declarations that the
// reconcilers validate (coverage, audience, collection size) are kept as raw
// JSON values, with numbers preserved as json.Number.
package authdoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"libreg/internal/geo"
	"libreg/internal/geo/coverage"
	"libreg/internal/geo/models"
)

const (
	// AnonymousAccessType is the mechanism type that grants access without credentials.
	AnonymousAccessType = "https://librarysimplified.org/rel/auth/anonymous"
	// OPDSCatalogType is the media type of an OPDS 1 catalog feed.
	OPDSCatalogType = "application/atom+xml;profile=opds-catalog"

	relLogo      = "logo"
	relAlternate = "alternate"
	relRegister  = "register"
	relStart     = "start"
)

// PublicKey is the key a library publishes to receive its shared secret.
// A bare string in the document becomes a key with an empty Type.
type PublicKey struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		*k = PublicKey{Value: bare}
		return nil
	}
	type plain PublicKey
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("public_key: %w", err)
	}
	*k = PublicKey(p)
	return nil
}

// IsRSA reports whether the key declares itself as an RSA key.
func (k *PublicKey) IsRSA() bool {
	return k != nil && k.Type == "RSA" && k.Value != ""
}

// Mechanism is one entry of the authentication array.
type Mechanism struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Links       []Link `json:"links,omitempty"`
}

// Features lists the optional behaviours a server has switched on or off.
type Features struct {
	Enabled  []string `json:"enabled,omitempty"`
	Disabled []string `json:"disabled,omitempty"`
}

// Document is a parsed authentication document plus the values derived from it.
type Document struct {
	ID                 string
	Title              string
	ServiceDescription string
	ColorScheme        string
	PublicKey          *PublicKey
	Links              []Link
	Authentication     []Mechanism
	Features           Features

	// Raw declarations.
	CollectionSize any
	Audience       any
	ServiceArea    any
	FocusArea      any

	// Derived.
	Website            *Link
	Logo               string
	LogoLink           *Link
	Root               *Link
	OnlineRegistration bool
	AnonymousAccess    bool
}

type wireDocument struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	Name               string          `json:"name"`
	ServiceDescription string          `json:"service_description"`
	ColorScheme        string          `json:"color_scheme"`
	CollectionSize     any             `json:"collection_size"`
	PublicKey          *PublicKey      `json:"public_key"`
	Links              []Link          `json:"links"`
	Authentication     []Mechanism     `json:"authentication"`
	Features           Features        `json:"features"`
	Audience           any             `json:"audience"`
	ServiceArea        json.RawMessage `json:"service_area"`
	FocusArea          json.RawMessage `json:"focus_area"`
}

// Parse decodes data into a Document. Any JSON that is not an object, or an
// object with mistyped fields, is an error.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("authentication document is not a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var wire wireDocument
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode authentication document: %w", err)
	}

	doc := &Document{
		ID:                 wire.ID,
		Title:              wire.Title,
		ServiceDescription: wire.ServiceDescription,
		ColorScheme:        wire.ColorScheme,
		PublicKey:          wire.PublicKey,
		Links:              wire.Links,
		Authentication:     wire.Authentication,
		Features:           wire.Features,
		CollectionSize:     wire.CollectionSize,
		Audience:           wire.Audience,
	}
	var err error
	if doc.ServiceArea, err = decodeCoverage(wire.ServiceArea); err != nil {
		return nil, fmt.Errorf("service_area: %w", err)
	}
	if doc.FocusArea, err = decodeCoverage(wire.FocusArea); err != nil {
		return nil, fmt.Errorf("focus_area: %w", err)
	}
	if doc.Title == "" {
		doc.Title = wire.Name
	}
	doc.derive()
	return doc, nil
}

// decodeCoverage keeps the declared order of country keys. An absent
// declaration stays nil.
func decodeCoverage(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return coverage.Decode(raw)
}

func (d *Document) derive() {
	d.Website = ExtractLink(d.Links, relAlternate, "text/html", "")
	d.Root = ExtractLink(d.Links, relStart, OPDSCatalogType, "")

	if logo := ExtractLink(d.Links, relLogo, "", ""); logo != nil {
		if strings.HasPrefix(logo.Href, "data:") {
			d.Logo = logo.Href
		} else {
			d.LogoLink = logo
		}
	}

	d.OnlineRegistration = ExtractLink(d.Links, relRegister, "", "") != nil
	for _, m := range d.Authentication {
		if m.Type == AnonymousAccessType {
			d.AnonymousAccess = true
		}
		if ExtractLink(m.Links, relRegister, "", "") != nil {
			d.OnlineRegistration = true
		}
	}
}

// Coverage resolves the service and focus areas. A missing service area means
// everywhere; a missing focus area means the same as the service area.
func (d *Document) Coverage(ctx context.Context, r geo.Resolver, defaultNation *models.Place) (service, focus coverage.Result, err error) {
	serviceDecl := d.ServiceArea
	if serviceDecl == nil {
		serviceDecl = coverage.Everywhere
	}
	focusDecl := d.FocusArea
	if focusDecl == nil {
		focusDecl = serviceDecl
	}

	service, err = coverage.Parse(ctx, r, serviceDecl, defaultNation)
	if err != nil {
		return coverage.Result{}, coverage.Result{}, fmt.Errorf("service area: %w", err)
	}
	focus, err = coverage.Parse(ctx, r, focusDecl, defaultNation)
	if err != nil {
		return coverage.Result{}, coverage.Result{}, fmt.Errorf("focus area: %w", err)
	}
	return service, focus, nil
}
