package engine

import (
	"strings"
	"testing"

	"github.com/use-agent/wlanlogin/models"
	"golang.org/x/net/html"
)

func TestParseRefresh(t *testing.T) {
	tests := []struct {
		name    string
		content string
		delay   int
		target  string
		nilWant bool
	}{
		{"plain", "0;url=/step2", 0, "/step2", false},
		{"spaces and case", " 3 ; URL = /a/b.html ", 3, "/a/b.html", false},
		{"quoted", `1;url='https://portal.example/x'`, 1, "https://portal.example/x", false},
		{"double quoted", `0; url="/y"`, 0, "/y", false},
		{"bad delay", "soon;url=/z", 0, "/z", false},
		{"no url", "5", 0, "", true},
		{"empty target", "0;url=", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ParseRefresh(tt.content)
			if tt.nilWant {
				if d != nil {
					t.Fatalf("ParseRefresh(%q) = %+v, want nil", tt.content, d)
				}
				return
			}
			if d == nil {
				t.Fatalf("ParseRefresh(%q) = nil", tt.content)
			}
			if d.DelaySeconds != tt.delay || d.Target != tt.target {
				t.Errorf("ParseRefresh(%q) = {%d %q}, want {%d %q}", tt.content, d.DelaySeconds, d.Target, tt.delay, tt.target)
			}
		})
	}
}

func TestExtractOnlyHeadChildren(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		target string
	}{
		{"head meta", `<html><head><meta http-equiv="Refresh" content="0;url=/next"></head><body></body></html>`, "/next"},
		{"body meta ignored", `<html><head></head><body><div><meta http-equiv="refresh" content="0;url=/next"></div></body></html>`, ""},
		{"other meta", `<html><head><meta charset="utf-8"><meta name="viewport" content="0;url=/x"></head></html>`, ""},
		{"first valid wins", `<html><head><meta http-equiv="refresh" content="10"><meta http-equiv="refresh" content="0;url=/second"></head></html>`, "/second"},
	}
	var r RedirectResolver
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatal(err)
			}
			d := r.Extract(doc)
			got := ""
			if d != nil {
				got = d.Target
			}
			if got != tt.target {
				t.Errorf("Extract() target = %q, want %q", got, tt.target)
			}
		})
	}
}

func TestResolveAgainstOrigin(t *testing.T) {
	loc := models.PageLocation{Origin: "http://portal.example:8080", Pathname: "/deep/page.html", Href: "http://portal.example:8080/deep/page.html"}
	var r RedirectResolver

	tests := []struct {
		target string
		want   string
	}{
		{"/step2", "http://portal.example:8080/step2"},
		{"step2", "http://portal.example:8080/step2"},
		{"https://other.example/a?b=1", "https://other.example/a?b=1"},
	}
	for _, tt := range tests {
		u, err := r.Resolve(loc, &models.RedirectDirective{Target: tt.target})
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.target, err)
		}
		if u.String() != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.target, u, tt.want)
		}
	}

	if _, err := r.Resolve(models.PageLocation{Origin: "null"}, &models.RedirectDirective{Target: "/x"}); err == nil {
		t.Error("Resolve with null origin: expected error")
	}
}
