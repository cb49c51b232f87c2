package authdoc

import "strings"

// Link is one entry of a document's links array.
type Link struct {
	Rel  string `json:"rel,omitempty"`
	Href string `json:"href,omitempty"`
	Type string `json:"type,omitempty"`
}

// ExtractLink returns the first link with the given rel.
//
// With requireType set, only links whose type starts with requireType qualify.
// With preferType set, a link whose type starts with preferType wins; otherwise
// the first link with the rel is returned.
func ExtractLink(links []Link, rel, preferType, requireType string) *Link {
	var goodEnough *Link
	for i := range links {
		link := &links[i]
		if link.Rel != rel {
			continue
		}
		if requireType == "" && preferType == "" {
			return link
		}
		if requireType != "" && strings.HasPrefix(link.Type, requireType) {
			return link
		}
		if preferType != "" && strings.HasPrefix(link.Type, preferType) {
			return link
		}
		if requireType == "" && goodEnough == nil {
			goodEnough = link
		}
	}
	return goodEnough
}
