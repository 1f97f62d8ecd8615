package browser

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

var classicScriptTypes = map[string]bool{
	"":                         true,
	"text/javascript":          true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"text/ecmascript":          true,
	"application/ecmascript":   true,
	"text/jscript":             true,
	"text/livescript":          true,
}

// ClassicScript reports whether a script element holds classic
// JavaScript. Modules, templates and data blocks are not run.
func ClassicScript(n *html.Node) bool {
	t, _ := attr(n, "type")
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if !classicScriptTypes[t] {
		return false
	}
	if lang, ok := attr(n, "language"); ok && t == "" {
		l := strings.ToLower(lang)
		return l == "" || strings.HasPrefix(l, "javascript") || l == "jscript" || l == "ecmascript"
	}
	return true
}

// startScripts runs the scripts in a subtree just connected to the
// document. Inline scripts run at once; src scripts are fetched as
// queued tasks.
func (r *realm) startScripts(root *html.Node) {
	var scripts []*html.Node
	if root.Type == html.ElementNode && root.Data == "script" {
		scripts = append(scripts, root)
	}
	scripts = append(scripts, elementsByTag(root, "script")...)

	for _, n := range scripts {
		if r.started[n] {
			continue
		}
		r.started[n] = true
		if !ClassicScript(n) {
			continue
		}
		if src, ok := attr(n, "src"); ok {
			r.queueScript(n, src)
			continue
		}
		if text := htmlText(n); strings.TrimSpace(text) != "" {
			r.evalNested("inline:dynamic", text)
		}
	}
}

// markScripts flags scripts that must never run, such as those parsed
// from innerHTML.
func (r *realm) markScripts(root *html.Node) {
	if root.Type == html.ElementNode && root.Data == "script" {
		r.started[root] = true
	}
	for _, n := range elementsByTag(root, "script") {
		r.started[n] = true
	}
}

func (r *realm) queueScript(n *html.Node, src string) {
	if !r.page.opts.DynamicScripts {
		r.log.Debug("dynamic script loading disabled", "src", src)
		return
	}
	u, err := r.page.resolve(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		r.log.Warn("dynamic script has an invalid URL", "src", src, "error", err)
		return
	}
	if r.page.opts.SkipScript != nil && r.page.opts.SkipScript(u) {
		r.log.Debug("skipping dynamic script", "url", u.String())
		return
	}
	r.sched.add(0, 0, func() { r.loadScript(n, u) })
}

// loadScript fetches and runs a dynamically inserted script, then fires
// load or error at its element.
func (r *realm) loadScript(n *html.Node, u *url.URL) {
	el := r.wrap(n).(*goja.Object)
	header := http.Header{}
	header.Set("User-Agent", r.page.opts.UserAgent)
	header.Set("Accept", "*/*")
	if r.page.opts.AcceptLanguage != "" {
		header.Set("Accept-Language", r.page.opts.AcceptLanguage)
	}
	header.Set("Sec-GPC", "1")
	header.Set("Sec-Fetch-Dest", "script")
	header.Set("Sec-Fetch-Mode", "no-cors")
	header.Set("Sec-Fetch-Site", "same-origin")
	header.Set("Referer", r.page.url.String())

	resp, err := r.page.Fetch(r.page.ctx, &Request{Method: http.MethodGet, URL: u.String(), Header: header})
	if err == nil && resp.StatusCode >= 400 {
		err = &statusError{code: resp.StatusCode}
	}
	if err != nil {
		r.log.Warn("dynamic script load failed", "url", u.String(), "error", err)
		r.fire(el, "error", false, false)
		return
	}

	text := DecodeText(resp.Body, resp.Header.Get("Content-Type"), false)
	if err := r.run(r.page.ctx, u.String(), text); err != nil {
		r.log.Warn("dynamic script failed", "url", u.String(), "error", err)
	}
	r.fire(el, "load", false, false)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected HTTP status " + strconv.Itoa(e.code)
}

func htmlText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// installNetwork defines XMLHttpRequest and fetch.
func (r *realm) installNetwork() {
	vm := r.vm
	states := map[string]int{"UNSENT": 0, "OPENED": 1, "HEADERS_RECEIVED": 2, "LOADING": 3, "DONE": 4}

	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		x := &xhr{r: r, obj: call.This, header: http.Header{}, async: true}
		x.install(states)
		return nil
	}).(*goja.Object)
	for k, v := range states {
		_ = ctor.Set(k, v)
	}
	_ = r.window.Set("XMLHttpRequest", ctor)
	_ = r.window.Set("fetch", r.fetch)
}

// xhr is one XMLHttpRequest instance.
type xhr struct {
	r   *realm
	obj *goja.Object

	method     string
	url        *url.URL
	async      bool
	header     http.Header
	readyState int
	sent       bool
	aborted    bool
	task       int64

	status     int
	statusText string
	respHeader http.Header
	respURL    string
	text       string
}

func (x *xhr) install(states map[string]int) {
	r, vm, o := x.r, x.r.vm, x.obj
	for k, v := range states {
		_ = o.Set(k, v)
	}
	_ = o.Set("responseType", "")
	_ = o.Set("timeout", 0)
	_ = o.Set("withCredentials", false)
	_ = o.Set("upload", vm.NewObject())

	r.accessor(o, "readyState", func() goja.Value { return vm.ToValue(x.readyState) }, nil)
	r.accessor(o, "status", func() goja.Value { return vm.ToValue(x.status) }, nil)
	r.accessor(o, "statusText", func() goja.Value { return vm.ToValue(x.statusText) }, nil)
	r.accessor(o, "responseURL", func() goja.Value { return vm.ToValue(x.respURL) }, nil)
	r.accessor(o, "responseXML", func() goja.Value { return goja.Null() }, nil)
	r.accessor(o, "responseText", func() goja.Value { return vm.ToValue(x.text) }, nil)
	r.accessor(o, "response", func() goja.Value {
		if x.readyState != 4 {
			return vm.ToValue("")
		}
		if rt := o.Get("responseType"); rt != nil && rt.String() == "json" {
			v, err := r.jsonParse(x.text)
			if err != nil {
				return goja.Null()
			}
			return v
		}
		return vm.ToValue(x.text)
	}, nil)

	_ = o.Set("open", func(call goja.FunctionCall) goja.Value {
		u, err := r.page.resolve(call.Argument(1).String())
		if err != nil {
			panic(vm.NewTypeError("XMLHttpRequest.open: invalid URL %q", call.Argument(1).String()))
		}
		if x.task != 0 {
			r.sched.cancel(x.task)
			x.task = 0
		}
		x.method = strings.ToUpper(call.Argument(0).String())
		x.url = u
		x.async = len(call.Arguments) < 3 || call.Argument(2).ToBoolean()
		x.header = http.Header{}
		x.sent, x.aborted = false, false
		x.status, x.statusText, x.text, x.respHeader, x.respURL = 0, "", "", nil, ""
		x.setState(1)
		return goja.Undefined()
	})
	_ = o.Set("setRequestHeader", func(call goja.FunctionCall) goja.Value {
		if x.readyState != 1 || x.sent {
			panic(vm.NewTypeError("XMLHttpRequest.setRequestHeader: object state must be OPENED"))
		}
		x.header.Add(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = o.Set("overrideMimeType", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = o.Set("send", func(call goja.FunctionCall) goja.Value {
		if x.readyState != 1 || x.sent {
			panic(vm.NewTypeError("XMLHttpRequest.send: object state must be OPENED"))
		}
		x.sent = true
		var body []byte
		if b := call.Argument(0); !goja.IsUndefined(b) && !goja.IsNull(b) && x.method != http.MethodGet && x.method != http.MethodHead {
			body = []byte(b.String())
			if x.header.Get("Content-Type") == "" {
				x.header.Set("Content-Type", "text/plain;charset=UTF-8")
			}
		}
		if x.async {
			r.fire(o, "loadstart", false, false)
			x.task = r.sched.add(0, 0, func() {
				x.task = 0
				x.perform(body)
			})
			return goja.Undefined()
		}
		x.perform(body)
		return goja.Undefined()
	})
	_ = o.Set("abort", func(goja.FunctionCall) goja.Value {
		if x.task != 0 {
			r.sched.cancel(x.task)
			x.task = 0
		}
		if x.sent && x.readyState != 4 {
			x.aborted = true
			x.sent = false
			x.setState(4)
			r.fire(o, "abort", false, false)
			r.fire(o, "loadend", false, false)
		}
		x.readyState = 0
		return goja.Undefined()
	})
	_ = o.Set("getResponseHeader", func(call goja.FunctionCall) goja.Value {
		if x.respHeader == nil {
			return goja.Null()
		}
		vals := x.respHeader.Values(call.Argument(0).String())
		if len(vals) == 0 {
			return goja.Null()
		}
		return vm.ToValue(strings.Join(vals, ", "))
	})
	_ = o.Set("getAllResponseHeaders", func(goja.FunctionCall) goja.Value {
		var keys []string
		for k := range x.respHeader {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			b.WriteString(strings.ToLower(k) + ": " + strings.Join(x.respHeader[k], ", ") + "\r\n")
		}
		return vm.ToValue(b.String())
	})
	_ = o.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		r.addListener(o, call)
		return goja.Undefined()
	})
	_ = o.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		r.removeListener(o, call)
		return goja.Undefined()
	})
}

func (x *xhr) setState(s int) {
	x.readyState = s
	x.r.fire(x.obj, "readystatechange", false, false)
}

// perform runs the exchange and fires the completion events.
func (x *xhr) perform(body []byte) {
	r := x.r
	header := x.header.Clone()
	if header.Get("Accept") == "" {
		header.Set("Accept", "*/*")
	}
	if r.page.opts.AcceptLanguage != "" && header.Get("Accept-Language") == "" {
		header.Set("Accept-Language", r.page.opts.AcceptLanguage)
	}
	header.Set("Referer", r.page.url.String())
	header.Set("Sec-Fetch-Dest", "empty")
	header.Set("Sec-Fetch-Mode", "cors")
	header.Set("Sec-Fetch-Site", "same-origin")

	resp, err := r.page.Fetch(r.page.ctx, &Request{Method: x.method, URL: x.url.String(), Header: header, Body: body})
	if x.aborted {
		return
	}
	if err != nil {
		r.log.Debug("XMLHttpRequest failed", "url", x.url.String(), "error", err)
		x.setState(4)
		r.fire(x.obj, "error", false, false)
		r.fire(x.obj, "loadend", false, false)
		return
	}

	x.status = resp.StatusCode
	x.statusText = http.StatusText(resp.StatusCode)
	x.respHeader = resp.Header
	x.respURL = resp.URL
	x.text = DecodeText(resp.Body, resp.Header.Get("Content-Type"), false)
	x.setState(2)
	x.setState(3)
	x.setState(4)
	r.fire(x.obj, "load", false, false)
	r.fire(x.obj, "loadend", false, false)
}

// fetch implements window.fetch on top of the task queue.
func (r *realm) fetch(call goja.FunctionCall) goja.Value {
	vm := r.vm
	promise, resolve, reject := vm.NewPromise()

	rawURL := call.Argument(0).String()
	if o, ok := call.Argument(0).(*goja.Object); ok {
		if v := o.Get("url"); v != nil && !goja.IsUndefined(v) {
			rawURL = v.String()
		}
	}
	u, err := r.page.resolve(rawURL)
	if err != nil {
		_ = reject(vm.NewTypeError("fetch: invalid URL %q", rawURL))
		return vm.ToValue(promise)
	}

	req := &Request{Method: http.MethodGet, URL: u.String(), Header: http.Header{}}
	if init, ok := call.Argument(1).(*goja.Object); ok {
		if m := init.Get("method"); m != nil && !goja.IsUndefined(m) {
			req.Method = strings.ToUpper(m.String())
		}
		if h, ok := init.Get("headers").(*goja.Object); ok {
			for _, k := range h.Keys() {
				req.Header.Set(k, h.Get(k).String())
			}
		}
		if b := init.Get("body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
			req.Body = []byte(b.String())
			if req.Header.Get("Content-Type") == "" {
				req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
			}
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	req.Header.Set("Referer", r.page.url.String())
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")

	r.sched.add(0, 0, func() {
		resp, err := r.page.Fetch(r.page.ctx, req)
		settle := func() error {
			if err != nil {
				return reject(vm.NewTypeError("NetworkError when attempting to fetch resource: %v", err))
			}
			return resolve(r.response(resp))
		}
		if err := r.guard(r.page.ctx, settle); err != nil {
			r.log.Warn("fetch continuation failed", "url", req.URL, "error", scriptError(err))
		}
	})
	return vm.ToValue(promise)
}

// response builds a fetch Response object.
func (r *realm) response(resp *Response) *goja.Object {
	vm := r.vm
	text := DecodeText(resp.Body, resp.Header.Get("Content-Type"), false)
	o := vm.NewObject()
	_ = o.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
	_ = o.Set("status", resp.StatusCode)
	_ = o.Set("statusText", http.StatusText(resp.StatusCode))
	_ = o.Set("url", resp.URL)
	_ = o.Set("redirected", false)
	_ = o.Set("type", "basic")

	headers := vm.NewObject()
	_ = headers.Set("get", func(call goja.FunctionCall) goja.Value {
		vals := resp.Header.Values(call.Argument(0).String())
		if len(vals) == 0 {
			return goja.Null()
		}
		return vm.ToValue(strings.Join(vals, ", "))
	})
	_ = headers.Set("has", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(len(resp.Header.Values(call.Argument(0).String())) > 0)
	})
	_ = o.Set("headers", headers)

	_ = o.Set("text", func(goja.FunctionCall) goja.Value {
		p, res, _ := vm.NewPromise()
		_ = res(text)
		return vm.ToValue(p)
	})
	_ = o.Set("json", func(goja.FunctionCall) goja.Value {
		p, res, rej := vm.NewPromise()
		v, err := r.jsonParse(text)
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				_ = rej(ex.Value())
			} else {
				_ = rej(vm.NewGoError(err))
			}
		} else {
			_ = res(v)
		}
		return vm.ToValue(p)
	})
	return o
}
