package engine

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/wlanlogin/models"
	"golang.org/x/net/html"
)

// refreshURL matches the ";url=" separator of a meta refresh content value.
var refreshURL = regexp.MustCompile(`(?i)\s*;\s*url\s*=\s*`)

// RedirectResolver finds and resolves meta-refresh directives.
type RedirectResolver struct{}

// Extract returns the first meta refresh among the head's direct children,
// or nil when the document has none.
func (RedirectResolver) Extract(doc *html.Node) *models.RedirectDirective {
	if doc == nil {
		return nil
	}
	var directive *models.RedirectDirective
	goquery.NewDocumentFromNode(doc).Find("head").First().ChildrenFiltered("meta").
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if equiv, _ := s.Attr("http-equiv"); !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
				return true
			}
			content, _ := s.Attr("content")
			directive = ParseRefresh(content)
			return directive == nil
		})
	return directive
}

// ParseRefresh parses "<delay>;url=<target>". Content without a url part
// yields nil.
func ParseRefresh(content string) *models.RedirectDirective {
	loc := refreshURL.FindStringIndex(content)
	if loc == nil {
		return nil
	}
	target := strings.Trim(content[loc[1]:], " \t\r\n'\"")
	if target == "" {
		return nil
	}
	return &models.RedirectDirective{
		DelaySeconds: leadingInt(content[:loc[0]]),
		Target:       target,
	}
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// Resolve turns a directive target into an absolute URL relative to the
// current document's origin.
func (RedirectResolver) Resolve(loc models.PageLocation, d *models.RedirectDirective) (*url.URL, error) {
	return resolveAgainstOrigin(loc, d.Target)
}

// resolveAgainstOrigin resolves ref against the root of loc's origin.
func resolveAgainstOrigin(loc models.PageLocation, ref string) (*url.URL, error) {
	if loc.Origin == "" || loc.Origin == "null" {
		return nil, errors.New("document has no origin")
	}
	base, err := url.Parse(loc.Origin + "/")
	if err != nil {
		return nil, err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(r), nil
}
