package models

import (
	"net/url"
	"strconv"
)

// PageLocation is the page address as seen from inside the document.
type PageLocation struct {
	Origin   string `json:"origin"`
	Pathname string `json:"pathname"`
	Href     string `json:"href"`
}

// LocationOf builds a PageLocation from a parsed URL.
func LocationOf(u *url.URL) PageLocation {
	if u == nil {
		return PageLocation{}
	}
	origin := u.Scheme + "://" + u.Host
	if u.Scheme == "" || u.Host == "" {
		origin = "null"
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return PageLocation{Origin: origin, Pathname: path, Href: u.String()}
}

// ScriptKind tells a remote script from an inline one.
type ScriptKind string

const (
	ScriptRemote ScriptKind = "remote"
	ScriptInline ScriptKind = "inline"
)

// ScriptPosition is the parent element a script was found under.
type ScriptPosition string

const (
	PositionHead ScriptPosition = "head"
	PositionBody ScriptPosition = "body"
)

// ScriptDescriptor describes one script element found during a settle cycle.
type ScriptDescriptor struct {
	Kind       ScriptKind
	RemoteURL  *url.URL // set for remote scripts
	InlineText string   // set for inline scripts
	Position   ScriptPosition
	Ordinal    int // index within the parent's children
}

// Name returns a short label for logs and script stack traces.
func (d ScriptDescriptor) Name() string {
	if d.Kind == ScriptRemote && d.RemoteURL != nil {
		return d.RemoteURL.String()
	}
	return "inline:" + string(d.Position) + "#" + strconv.Itoa(d.Ordinal)
}

// RedirectDirective is a parsed meta-refresh instruction.
type RedirectDirective struct {
	DelaySeconds int
	Target       string // raw target as written in the document
}

// Credentials are the secrets handed to the portal login script.
// Values are opaque and passed through verbatim.
type Credentials struct {
	Username string
	Password string
	Domain   string
}
