package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/wlanlogin/browser"
	"github.com/use-agent/wlanlogin/models"
	"golang.org/x/net/html"
)

// ScriptReport is what one RunAll pass did.
type ScriptReport struct {
	Scripts  []models.ScriptDescriptor
	Ran      int
	Skipped  []string
	Failures []ScriptFailure
}

// ScriptFailure records a script that could not be fetched or run.
type ScriptFailure struct {
	Script string
	Err    error
}

// namedRunner is implemented by pages that can label evaluated code.
type namedRunner interface {
	RunScript(ctx context.Context, name, text string) error
}

// ScriptExecutor runs a document's head and body scripts in source order.
type ScriptExecutor struct {
	page    browser.Page
	fetcher *ScriptFetcher
	skip    SkipList
	log     *slog.Logger
}

func NewScriptExecutor(page browser.Page, fetcher *ScriptFetcher, skip SkipList, log *slog.Logger) *ScriptExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &ScriptExecutor{page: page, fetcher: fetcher, skip: skip, log: log}
}

// Collect lists the classic scripts that are direct children of head and
// body, head first. Remote sources resolve against the origin root.
func (e *ScriptExecutor) Collect(doc *html.Node, loc models.PageLocation) []models.ScriptDescriptor {
	var out []models.ScriptDescriptor
	d := goquery.NewDocumentFromNode(doc)
	for _, pos := range []models.ScriptPosition{models.PositionHead, models.PositionBody} {
		d.Find(string(pos)).First().Children().Each(func(i int, s *goquery.Selection) {
			if goquery.NodeName(s) != "script" || !browser.ClassicScript(s.Get(0)) {
				return
			}
			desc := models.ScriptDescriptor{Position: pos, Ordinal: i}
			if src, ok := s.Attr("src"); ok {
				desc.Kind = models.ScriptRemote
				if strings.TrimSpace(src) != "" {
					if u, err := resolveAgainstOrigin(loc, src); err == nil {
						desc.RemoteURL = u
					}
				}
			} else {
				desc.Kind = models.ScriptInline
				desc.InlineText = s.Text()
			}
			out = append(out, desc)
		})
	}
	return out
}

// RunAll executes every collected script in order. A failure aborts only
// that script; the rest still run.
func (e *ScriptExecutor) RunAll(ctx context.Context, doc *html.Node, loc models.PageLocation) ScriptReport {
	report := ScriptReport{Scripts: e.Collect(doc, loc)}

	for _, d := range report.Scripts {
		if ctx.Err() != nil {
			return report
		}
		name := d.Name()

		var text string
		switch d.Kind {
		case models.ScriptRemote:
			if d.RemoteURL == nil {
				e.fail(&report, name, errors.New("script has an empty or invalid src"))
				continue
			}
			if e.skip.Match(d.RemoteURL) {
				e.log.Debug("skipping script", "url", name)
				report.Skipped = append(report.Skipped, name)
				continue
			}
			fetched, err := e.fetcher.Fetch(ctx, d.RemoteURL, loc.Href)
			if err != nil {
				e.fail(&report, name, err)
				continue
			}
			text = fetched
		case models.ScriptInline:
			if strings.TrimSpace(d.InlineText) == "" {
				continue
			}
			text = d.InlineText
		}

		if err := e.run(ctx, name, text); err != nil {
			e.fail(&report, name, err)
			continue
		}
		report.Ran++
	}
	return report
}

func (e *ScriptExecutor) run(ctx context.Context, name, text string) error {
	if r, ok := e.page.(namedRunner); ok {
		return r.RunScript(ctx, name, text)
	}
	return e.page.Scripting().Run(ctx, text)
}

func (e *ScriptExecutor) fail(report *ScriptReport, name string, err error) {
	lerr := models.NewLoginError(models.ErrCodeScriptLoad, "script "+name+" failed", err)
	e.log.Warn("script failed, continuing",
		"code", lerr.Code,
		"script", name,
		"error", err,
	)
	report.Failures = append(report.Failures, ScriptFailure{Script: name, Err: lerr})
}
