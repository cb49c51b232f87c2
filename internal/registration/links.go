package registration

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/url"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed/atom"
	"github.com/tomnomnom/linkheader"

	"libreg/internal/authdoc"
	"libreg/internal/registration/fetch"
)

const (
	// AuthDocumentRel links a catalog to its authentication document.
	AuthDocumentRel = "http://opds-spec.org/auth/document"
	// AuthDocumentType is the media type an authentication document Link header must carry.
	AuthDocumentType = "application/vnd.opds.authentication.v1.0+json"
	// ShelfRel links to the patron's bookshelf, which normally demands authentication.
	ShelfRel = "http://opds-spec.org/shelf"

	opds2Type       = "application/opds+json"
	opds1TypePrefix = "application/atom+xml;profile=opds-catalog"
)

// candidateLinks gathers every link a root response offers: catalog links and,
// when withHeaders is set, Link headers pointing at the authentication document.
func candidateLinks(resp *fetch.Response, withHeaders bool) []authdoc.Link {
	links := catalogLinks(resp)
	if withHeaders {
		links = append(links, headerLinks(resp)...)
	}
	return links
}

// catalogLinks extracts links from an OPDS 2 or OPDS 1 body. Unparseable
// bodies yield no links.
func catalogLinks(resp *fetch.Response) []authdoc.Link {
	contentType := resp.ContentType()
	switch {
	case mediaType(contentType) == opds2Type:
		return opds2Links(resp.Body)
	case strings.HasPrefix(contentType, opds1TypePrefix):
		return opds1Links(resp.Body)
	default:
		return nil
	}
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

type opds2Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
	Type string `json:"type"`
}

func opds2Links(body []byte) []authdoc.Link {
	var catalog struct {
		Links json.RawMessage `json:"links"`
	}
	if err := json.Unmarshal(body, &catalog); err != nil || len(catalog.Links) == 0 {
		return nil
	}

	var list []opds2Link
	if err := json.Unmarshal(catalog.Links, &list); err == nil {
		links := make([]authdoc.Link, 0, len(list))
		for _, l := range list {
			links = append(links, authdoc.Link{Rel: l.Rel, Href: l.Href, Type: l.Type})
		}
		return links
	}

	var byRel map[string]opds2Link
	if err := json.Unmarshal(catalog.Links, &byRel); err != nil {
		return nil
	}
	rels := make([]string, 0, len(byRel))
	for rel := range byRel {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	links := make([]authdoc.Link, 0, len(rels))
	for _, rel := range rels {
		l := byRel[rel]
		links = append(links, authdoc.Link{Rel: rel, Href: l.Href, Type: l.Type})
	}
	return links
}

func opds1Links(body []byte) []authdoc.Link {
	parser := &atom.Parser{}
	feed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	links := make([]authdoc.Link, 0, len(feed.Links))
	for _, l := range feed.Links {
		if l == nil {
			continue
		}
		links = append(links, authdoc.Link{Rel: l.Rel, Href: l.Href, Type: l.Type})
	}
	return links
}

// headerLinks returns Link headers with the authentication document rel and
// exactly the authentication document media type.
func headerLinks(resp *fetch.Response) []authdoc.Link {
	var links []authdoc.Link
	for _, l := range linkheader.ParseMultiple(resp.Header.Values("Link")).FilterByRel(AuthDocumentRel) {
		if l.Param("type") != AuthDocumentType {
			continue
		}
		links = append(links, authdoc.Link{Rel: AuthDocumentRel, Href: l.URL, Type: AuthDocumentType})
	}
	return links
}

// resolveHref expands href against base. An unparseable href is returned as is
// so the fetch reports it.
func resolveHref(base, href string) string {
	if href == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
