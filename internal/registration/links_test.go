package registration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"libreg/internal/authdoc"
	"libreg/internal/registration/fetch"
)

func response(contentType, body string, links ...string) *fetch.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	for _, l := range links {
		header.Add("Link", l)
	}
	return &fetch.Response{StatusCode: http.StatusOK, Header: header, Body: []byte(body)}
}

func TestCandidateLinks(t *testing.T) {
	t.Run("opds 2 object form is ordered by rel", func(t *testing.T) {
		resp := response("application/opds+json; charset=utf-8",
			`{"links": {"self": {"href": "/"}, "http://opds-spec.org/auth/document": {"href": "/auth", "type": "x"}}}`)
		assert.Equal(t, []authdoc.Link{
			{Rel: AuthDocumentRel, Href: "/auth", Type: "x"},
			{Rel: "self", Href: "/"},
		}, candidateLinks(resp, true))
	})

	t.Run("opds 2 array form", func(t *testing.T) {
		resp := response("application/opds+json", `{"links": [{"rel": "http://opds-spec.org/shelf", "href": "/shelf"}]}`)
		assert.Equal(t, []authdoc.Link{{Rel: ShelfRel, Href: "/shelf"}}, candidateLinks(resp, true))
	})

	t.Run("opds 1 feed", func(t *testing.T) {
		resp := response("application/atom+xml;profile=opds-catalog;kind=navigation",
			`<feed xmlns="http://www.w3.org/2005/Atom"><link rel="start" href="/start" type="application/atom+xml"/></feed>`)
		assert.Equal(t, []authdoc.Link{{Rel: "start", Href: "/start", Type: "application/atom+xml"}}, candidateLinks(resp, true))
	})

	t.Run("other content types contribute no body links", func(t *testing.T) {
		assert.Empty(t, candidateLinks(response("text/html", `{"links": []}`), true))
		assert.Empty(t, candidateLinks(response("application/opds+json", `not json`), true))
	})

	t.Run("link headers need the exact rel and type", func(t *testing.T) {
		resp := response("",
			"",
			`</a>; rel="http://opds-spec.org/auth/document"; type="application/vnd.opds.authentication.v1.0+json"`,
			`</b>; rel="http://opds-spec.org/auth/document"; type="application/json"`,
			`</c>; rel="alternate"; type="application/vnd.opds.authentication.v1.0+json"`,
		)
		assert.Equal(t, []authdoc.Link{{Rel: AuthDocumentRel, Href: "/a", Type: AuthDocumentType}}, candidateLinks(resp, true))
		assert.Empty(t, candidateLinks(resp, false))
	})
}

func TestResolveHref(t *testing.T) {
	assert.Equal(t, "http://lib.org/auth", resolveHref("http://lib.org/feed/root", "/auth"))
	assert.Equal(t, "http://lib.org/feed/auth", resolveHref("http://lib.org/feed/root", "auth"))
	assert.Equal(t, "https://other.org/x", resolveHref("http://lib.org/", "https://other.org/x"))
	assert.Equal(t, "http://lib.org/", resolveHref("http://lib.org/", ""))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Equal(t, "abc", BearerToken("  BEARER   abc "))
	assert.Empty(t, BearerToken("Basic dXNlcjpwYXNz"))
	assert.Empty(t, BearerToken("Bearer"))
	assert.Empty(t, BearerToken(""))
}

func TestProvesPossession(t *testing.T) {
	assert.True(t, provesPossession("s3cret", "s3cret"))
	assert.False(t, provesPossession("s3cret", "other"))
	assert.False(t, provesPossession("", ""))
	assert.False(t, provesPossession("s3cret", ""))
}
