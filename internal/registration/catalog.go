package registration

import (
	"strings"
	"time"

	"libreg/internal/authdoc"
	"libreg/internal/library/models"
)

// CatalogMediaType is the content type of a registration response.
const CatalogMediaType = "application/opds+json;profile=https://librarysimplified.org/rel/profile/directory"

const (
	relCatalog      = "http://opds-spec.org/catalog"
	relThumbnail    = "http://opds-spec.org/image/thumbnail"
	acquisitionType = "application/atom+xml;profile=opds-catalog;kind=acquisition"
)

// Catalog is the OPDS 2 representation of one registered library.
type Catalog struct {
	Metadata CatalogMetadata `json:"metadata"`
	Links    []authdoc.Link  `json:"links"`
	Images   []authdoc.Link  `json:"images,omitempty"`
}

// CatalogMetadata carries the issued credentials alongside the descriptive
// fields. ShortName and SharedSecret are set only when the library published
// an RSA key.
type CatalogMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Updated      time.Time `json:"updated"`
	ShortName    string    `json:"short_name,omitempty"`
	SharedSecret string    `json:"shared_secret,omitempty"`
}

func libraryCatalog(lib *models.Library) *Catalog {
	c := &Catalog{
		Metadata: CatalogMetadata{
			ID:          "urn:uuid:" + lib.ID.String(),
			Title:       lib.Name,
			Description: lib.Description,
			Updated:     lib.UpdatedAt,
		},
		Links: []authdoc.Link{
			{Rel: relCatalog, Href: lib.OPDSURL, Type: acquisitionType},
		},
	}
	if lib.WebURL != "" {
		c.Links = append(c.Links, authdoc.Link{Rel: "alternate", Href: lib.WebURL, Type: "text/html"})
	}
	if lib.Logo != "" {
		c.Images = []authdoc.Link{{Rel: relThumbnail, Href: lib.Logo, Type: dataURIMediaType(lib.Logo)}}
	}
	return c
}

// dataURIMediaType returns the media type declared by a data: URI, or "" when
// there is none.
func dataURIMediaType(uri string) string {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return ""
	}
	end := strings.IndexAny(rest, ";,")
	if end < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(rest[:end]))
}
