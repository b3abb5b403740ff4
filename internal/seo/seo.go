// Package seo builds head metadata and schema.org payloads for public pages.
package seo

import (
	"net/url"
	"strings"
)

type OpenGraph struct {
	Title       string
	Description string
	Image       string
	Type        string
}

// Alternate is one hreflang link.
type Alternate struct {
	Lang string
	URL  string
}

type Meta struct {
	Title       string
	Description string
	Canonical   string
	OG          OpenGraph
	Alternates  []Alternate
	// Schemas are rendered as application/ld+json blocks.
	Schemas []map[string]any
}

// Absolute joins path onto base. A path that already carries a scheme is
// returned unchanged; an empty base yields the path.
func Absolute(base, path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Localized returns the absolute URL of path with lang set, keeping the
// other query parameters.
func Localized(base, path string, query url.Values, lang string) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if lang != "" {
		q.Set("lang", lang)
	}
	u := url.URL{Path: path, RawQuery: q.Encode()}
	return Absolute(base, u.String())
}
