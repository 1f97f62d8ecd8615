package snapshot

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestFingerprint(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("identical texts produced different fingerprints")
	}
	if d := Distance(Fingerprint(text), Fingerprint("the quick brown fox leaps over the lazy dog")); d > 10 {
		t.Errorf("similar texts have too large distance: %d", d)
	}
	if d := Distance(Fingerprint(text), Fingerprint("completely unrelated content about quantum physics and mathematics")); d < 5 {
		t.Errorf("different texts have too small distance: %d", d)
	}
	if fp := Fingerprint("   \t\n  "); fp != 0 {
		t.Errorf("whitespace-only input should produce 0, got %064b", fp)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestStructureIgnoresText(t *testing.T) {
	before := parse(t, `<html><head><title>Portal</title></head><body><form id="login"><input id="username"><input id="password" value=""><button id="login-account">Go</button></form></body></html>`)
	after := parse(t, `<html><head><title>Portal!</title></head><body><form id="login"><input id="username" value="alice"><input id="password" value="secret"><button id="login-account">Wait</button></form></body></html>`)

	if a, b := Structure(before), Structure(after); a != b {
		t.Errorf("filled form changed the fingerprint (distance %d)", Distance(a, b))
	}
}

func TestStructureDetectsPageSwap(t *testing.T) {
	login := parse(t, `<html><body><form id="login"><input id="username"><input id="password"><select id="domain"><option>a</option><option>b</option></select><button id="login-account">Go</button></form></body></html>`)
	success := parse(t, `<html><body><div id="success"><h1>Online</h1><table><tr><td>IP</td><td>10.0.0.2</td></tr><tr><td>Used</td><td>1GB</td></tr></table><a id="logout">Logout</a></div></body></html>`)

	if !Changed(Structure(login), Structure(success)) {
		t.Error("login and success pages should differ")
	}
	if Changed(Structure(login), Structure(login)) {
		t.Error("a page should not differ from itself")
	}
}

func TestElementTokens(t *testing.T) {
	doc := parse(t, `<html><head><title>T</title></head><body><div id="main"><p>Hello</p></div></body></html>`)
	want := []string{"html", "head", "title", "body", "div#main", "p"}
	got := elementTokens(doc)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("elementTokens() = %v, want %v", got, want)
	}
}

func TestMakeShingles(t *testing.T) {
	got := makeShingles([]string{"a", "b", "c", "d"}, 3)
	if strings.Join(got, ",") != "a_b_c,b_c_d" {
		t.Errorf("makeShingles() = %v", got)
	}
	if makeShingles([]string{"a", "b"}, 3) != nil {
		t.Error("expected nil for fewer tokens than n")
	}
}
