// Package snapshot renders the page a login run ended on into something a
// person can read in a log line or an API response.
package snapshot

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/use-agent/wlanlogin/models"
	"golang.org/x/net/html"
)

const (
	// maxSummary bounds Snapshot.Summary in runes.
	maxSummary = 280

	// maxMarkdown bounds Snapshot.Markdown in bytes.
	maxMarkdown = 16 << 10
)

// Snapshot is a readable rendering of one document.
type Snapshot struct {
	Title         string `json:"title,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Markdown      string `json:"markdown,omitempty"`
	PortalMessage string `json:"portal_message,omitempty"`
	Fingerprint   uint64 `json:"fingerprint"`
}

// Taker produces snapshots. It is safe for concurrent use.
type Taker struct {
	conv     *converter.Converter
	errorSel cascadia.SelectorGroup
	log      *slog.Logger
}

// NewTaker compiles errorSelector, the selector of the portal's own error
// message element. An empty selector disables error extraction.
func NewTaker(errorSelector string, log *slog.Logger) (*Taker, error) {
	if log == nil {
		log = slog.Default()
	}
	t := &Taker{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
		log: log,
	}
	if strings.TrimSpace(errorSelector) != "" {
		sel, err := cascadia.ParseGroup(errorSelector)
		if err != nil {
			return nil, models.NewLoginError(models.ErrCodeConfiguration, "invalid error selector "+errorSelector, err)
		}
		t.errorSel = sel
	}
	return t, nil
}

// Take renders doc, which was loaded from loc. It never fails: parts that
// cannot be produced are left empty.
func (t *Taker) Take(doc *html.Node, loc models.PageLocation) *Snapshot {
	s := &Snapshot{}
	if doc == nil {
		return s
	}
	s.Fingerprint = Structure(doc)
	s.PortalMessage = t.PortalMessage(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		t.log.Debug("snapshot: render failed", "error", err)
		return s
	}
	raw := buf.String()

	if u, err := url.Parse(loc.Href); err == nil && u.Host != "" {
		article, err := readability.FromReader(strings.NewReader(raw), u)
		if err == nil {
			s.Title = strings.TrimSpace(article.Title)
			s.Summary = strings.TrimSpace(article.Excerpt)
			if s.Summary == "" {
				s.Summary = strings.TrimSpace(article.TextContent)
			}
		} else {
			t.log.Debug("snapshot: readability failed", "url", loc.Href, "error", err)
		}
	}
	if s.Title == "" {
		if n := htmlquery.FindOne(doc, "//title"); n != nil {
			s.Title = strings.TrimSpace(htmlquery.InnerText(n))
		}
	}
	if s.Summary == "" {
		if body := htmlquery.FindOne(doc, "//body"); body != nil {
			s.Summary = htmlquery.InnerText(body)
		}
	}
	s.Summary = truncateRunes(strings.Join(strings.Fields(s.Summary), " "), maxSummary)

	md, err := t.conv.ConvertString(raw, converter.WithDomain(loc.Origin))
	if err != nil {
		t.log.Debug("snapshot: markdown conversion failed", "error", err)
	} else {
		s.Markdown = truncateBytes(strings.TrimSpace(md), maxMarkdown)
	}
	return s
}

// PortalMessage returns the text of the first non-empty element matching
// the error selector.
func (t *Taker) PortalMessage(doc *html.Node) string {
	if t.errorSel == nil || doc == nil {
		return ""
	}
	for _, n := range cascadia.QueryAll(doc, t.errorSel) {
		if text := strings.Join(strings.Fields(htmlquery.InnerText(n)), " "); text != "" {
			return text
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
