package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/use-agent/wlanlogin/models"
)

func refreshPage(target string) string {
	return `<html><head><meta http-equiv="refresh" content="0;url=` + target + `"></head><body></body></html>`
}

func newTestNavigator(p *fakePage, maxRedirects int, skip ...string) *Navigator {
	return NewNavigator(p, Options{
		MaxRedirects:   maxRedirects,
		SkipList:       NewSkipList(skip...),
		AcceptLanguage: "zh-CN,en-US;q=0.7,en;q=0.3",
		Logger:         discardLogger(),
	})
}

func TestSettleFollowsRedirectChain(t *testing.T) {
	const maxHops = 3
	tests := []struct {
		name    string
		hops    int
		wantErr bool
	}{
		{"no redirect", 0, false},
		{"single hop", 1, false},
		{"at max", maxHops, false},
		{"one past max", maxHops + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePage()
			for i := 0; i < tt.hops; i++ {
				p.pages[fmt.Sprintf("/hop%d", i)] = refreshPage(fmt.Sprintf("/hop%d", i+1))
			}
			p.pages[fmt.Sprintf("/hop%d", tt.hops)] = `<html><head></head><body>done</body></html>`

			res, err := newTestNavigator(p, maxHops).Settle(context.Background(), "http://portal.example/hop0")
			if tt.wantErr {
				var le *models.LoginError
				if !errors.As(err, &le) || le.Code != models.ErrCodeNavigation || le.Reason != models.ReasonRedirectLoop {
					t.Fatalf("Settle() error = %v, want redirect-loop", err)
				}
				if len(p.navigated) != maxHops+1 {
					t.Errorf("navigations = %d, want %d", len(p.navigated), maxHops+1)
				}
				return
			}
			if err != nil {
				t.Fatalf("Settle() error = %v", err)
			}
			if len(res.Redirects) != tt.hops {
				t.Errorf("redirects = %v, want %d hops", res.Redirects, tt.hops)
			}
			want := fmt.Sprintf("/hop%d", tt.hops)
			if res.Location.Pathname != want {
				t.Errorf("final path = %q, want %q", res.Location.Pathname, want)
			}
			if len(p.navigated) != tt.hops+1 {
				t.Errorf("navigations = %v, want %d", p.navigated, tt.hops+1)
			}
		})
	}
}

func TestSettleIntermediateScriptsNeverRun(t *testing.T) {
	p := newFakePage()
	p.pages["/"] = `<html><head><meta http-equiv="refresh" content="0;url=/step2"><script>first()</script></head><body></body></html>`
	p.pages["/step2"] = `<html><head><script>second()</script></head><body></body></html>`

	if _, err := newTestNavigator(p, 10).Settle(context.Background(), "http://portal.example/"); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(p.ran, []string{"second()"}) {
		t.Errorf("ran = %v, want [second()]", p.ran)
	}
}

func TestSettleScriptOrder(t *testing.T) {
	p := newFakePage()
	p.pages["/"] = `<html><head>
<script src="/a.js"></script>
<script>B</script>
</head><body>
<div><script>nested</script></div>
<script src="c.js"></script>
<script type="text/template">template</script>
<script>D</script>
<script>   </script>
</body></html>`
	p.scripts["/a.js"] = "A"
	p.scripts["/c.js"] = "C"

	res, err := newTestNavigator(p, 10).Settle(context.Background(), "http://portal.example/")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"A", "B", "C", "D"}; !slices.Equal(p.ran, want) {
		t.Errorf("ran = %v, want %v", p.ran, want)
	}
	if res.Scripts.Ran != 4 {
		t.Errorf("report.Ran = %d, want 4", res.Scripts.Ran)
	}
	// Navigate wait plus the post-script wait.
	if p.waits != 2 {
		t.Errorf("waits = %d, want 2", p.waits)
	}
}

func TestSettleSkipListNeverFetched(t *testing.T) {
	p := newFakePage()
	p.pages["/"] = `<html><head><script src="/static/js/tracker.js"></script><script src="/portal.js"></script></head></html>`
	p.scripts["/static/js/tracker.js"] = "tracker"
	p.scripts["/portal.js"] = "portal"

	res, err := newTestNavigator(p, 10, "tracker.js").Settle(context.Background(), "http://portal.example/")
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(p.fetched, "/static/js/tracker.js") {
		t.Errorf("skip-listed script was fetched: %v", p.fetched)
	}
	if !slices.Equal(p.ran, []string{"portal"}) {
		t.Errorf("ran = %v, want [portal]", p.ran)
	}
	if len(res.Scripts.Skipped) != 1 {
		t.Errorf("skipped = %v, want one entry", res.Scripts.Skipped)
	}
}

func TestSettleScriptFailuresContinue(t *testing.T) {
	p := newFakePage()
	p.pages["/"] = `<html><head><script src="/missing.js"></script><script>bad</script><script src=""></script></head><body><script>good</script></body></html>`
	p.failing["bad"] = true

	res, err := newTestNavigator(p, 10).Settle(context.Background(), "http://portal.example/")
	if err != nil {
		t.Fatalf("Settle() error = %v, script failures must not fail the settle", err)
	}
	if len(res.Scripts.Failures) != 3 {
		t.Fatalf("failures = %+v, want 3", res.Scripts.Failures)
	}
	for _, f := range res.Scripts.Failures {
		var le *models.LoginError
		if !errors.As(f.Err, &le) || le.Code != models.ErrCodeScriptLoad {
			t.Errorf("failure %s: err = %v, want SCRIPT_LOAD_FAILED", f.Script, f.Err)
		}
	}
	if !slices.Contains(p.ran, "good") {
		t.Errorf("ran = %v, want good to run", p.ran)
	}
	if st := res.Stats(); len(st.ScriptFailures) != 3 || st.ScriptsRun != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestSettleNativeScripts(t *testing.T) {
	p := newFakePage()
	p.native = true
	p.pages["/"] = `<html><head><script>A</script></head></html>`

	res, err := newTestNavigator(p, 10).Settle(context.Background(), "http://portal.example/")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.ran) != 0 || !res.NativeScripts {
		t.Errorf("ran = %v native = %v, want no script pass", p.ran, res.NativeScripts)
	}
}

func TestSettleErrors(t *testing.T) {
	p := newFakePage()
	_, err := newTestNavigator(p, 10).Settle(context.Background(), "http://nowhere.example/")
	var le *models.LoginError
	if !errors.As(err, &le) || le.Reason != models.ReasonUnreachable {
		t.Errorf("unknown host: err = %v, want unreachable", err)
	}

	p.pages["/"] = `<html></html>`
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestNavigator(p, 10).Settle(ctx, "http://portal.example/")
	if !errors.As(err, &le) || le.Code != models.ErrCodeTimeout {
		t.Errorf("canceled: err = %v, want LOGIN_TIMEOUT", err)
	}
}
