package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	gojaurl "github.com/dop251/goja_nodejs/url"
	"golang.org/x/net/html"
)

// errScriptTimeout is the interrupt value used when a script exceeds
// Options.ScriptTimeout.
var errScriptTimeout = errors.New("script execution timed out")

// realm is the global scope of one document: its goja runtime, the DOM
// bridge state and the task queue. A navigation replaces the whole realm.
type realm struct {
	page  *EmulatedPage
	vm    *goja.Runtime
	doc   *html.Node
	sched *scheduler
	log   *slog.Logger

	objects   map[*html.Node]*goja.Object
	nodes     map[*goja.Object]*html.Node
	controls  map[*html.Node]*control
	styles    map[*html.Node]*goja.Object
	started   map[*html.Node]bool
	fragments map[*html.Node]bool
	listeners map[*goja.Object][]*listener
	events    map[*goja.Object]*eventState
	selectors map[string]cascadia.SelectorGroup

	nodeProto, elementProto, documentProto, eventProto *goja.Object

	window   *goja.Object
	document *goja.Object
	location *goja.Object

	// depth counts nested guarded evaluations; only the outermost one
	// arms the interrupt timer.
	depth int
}

func newRealm(p *EmulatedPage, doc *html.Node) *realm {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	r := &realm{
		page:      p,
		vm:        vm,
		doc:       doc,
		sched:     newScheduler(),
		log:       p.log,
		objects:   make(map[*html.Node]*goja.Object),
		nodes:     make(map[*goja.Object]*html.Node),
		controls:  make(map[*html.Node]*control),
		styles:    make(map[*html.Node]*goja.Object),
		started:   make(map[*html.Node]bool),
		fragments: make(map[*html.Node]bool),
		listeners: make(map[*goja.Object][]*listener),
		events:    make(map[*goja.Object]*eventState),
		selectors: make(map[string]cascadia.SelectorGroup),
		window:    vm.GlobalObject(),
	}

	r.installConsole()
	r.installDOM()
	r.installEvents()
	r.installWindow()
	r.installNetwork()

	r.document = r.wrap(doc).(*goja.Object)
	_ = vm.Set("document", r.document)
	return r
}

// consolePrinter routes page console output to slog.
type consolePrinter struct {
	log *slog.Logger
}

func (c consolePrinter) Log(s string)   { c.log.Debug("console.log", "message", s) }
func (c consolePrinter) Info(s string)  { c.log.Debug("console.info", "message", s) }
func (c consolePrinter) Debug(s string) { c.log.Debug("console.debug", "message", s) }
func (c consolePrinter) Warn(s string)  { c.log.Warn("console.warn", "message", s) }
func (c consolePrinter) Error(s string) { c.log.Error("console.error", "message", s) }

func (r *realm) installConsole() {
	reg := require.NewRegistry()
	reg.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(consolePrinter{log: r.log}))
	reg.Enable(r.vm)
	console.Enable(r.vm)
	gojaurl.Enable(r.vm)
}

// guard runs fn with the script time budget and ctx cancellation wired to
// Runtime.Interrupt. Nested calls run unguarded inside the outer budget.
func (r *realm) guard(ctx context.Context, fn func() error) error {
	if r.depth > 0 {
		r.depth++
		defer func() { r.depth-- }()
		return fn()
	}

	vm := r.vm
	timer := time.AfterFunc(r.page.opts.ScriptTimeout, func() {
		vm.Interrupt(errScriptTimeout)
	})
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	r.depth++
	defer func() {
		r.depth--
		timer.Stop()
		stop()
		vm.ClearInterrupt()
	}()
	return fn()
}

// run evaluates src as a classic script named name.
func (r *realm) run(ctx context.Context, name, src string) error {
	err := r.guard(ctx, func() error {
		_, err := r.vm.RunScript(name, src)
		return err
	})
	return scriptError(err)
}

// callback invokes a page callback, reporting rather than returning
// script exceptions, as a browser does for listeners and timers. An
// interrupt is propagated to the enclosing evaluation.
func (r *realm) callback(label string, fn goja.Callable, this goja.Value, args ...goja.Value) goja.Value {
	var ret goja.Value
	err := r.guard(r.page.ctx, func() error {
		var err error
		ret, err = fn(this, args...)
		return err
	})
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && r.depth > 0 {
			panic(interrupted)
		}
		r.log.Warn("uncaught page script error", "source", label, "error", scriptError(err))
		return goja.Undefined()
	}
	return ret
}

// evalNested runs code from inside another evaluation (inline scripts
// inserted by page code, javascript: URLs).
func (r *realm) evalNested(name, src string) {
	err := r.guard(r.page.ctx, func() error {
		_, err := r.vm.RunScript(name, src)
		return err
	})
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && r.depth > 0 {
			panic(interrupted)
		}
		r.log.Warn("uncaught page script error", "source", name, "error", scriptError(err))
	}
}

// scriptError converts goja errors into plain Go errors.
func scriptError(err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("script interrupted: %w", cause)
		}
		return fmt.Errorf("script interrupted: %v", interrupted.Value())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return fmt.Errorf("javascript exception: %s", ex.Error())
	}
	return err
}

// get reads a global by dotted path and exports it to Go.
func (r *realm) get(path string) (any, error) {
	var out any
	ex := r.vm.Try(func() {
		var v goja.Value = r.window
		for _, part := range strings.Split(path, ".") {
			obj, ok := v.(*goja.Object)
			if !ok {
				return
			}
			v = obj.Get(part)
			if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
				return
			}
		}
		out = v.Export()
	})
	if ex != nil {
		return nil, scriptError(ex)
	}
	return out, nil
}

// set assigns a JSON-compatible Go value to a global, as a plain JS value.
func (r *realm) set(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("browser: encode %s: %w", name, err)
	}
	v, err := r.jsonParse(string(data))
	if err != nil {
		return scriptError(err)
	}
	return r.window.Set(name, v)
}

func (r *realm) jsonParse(text string) (goja.Value, error) {
	parse, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("parse"))
	if !ok {
		return nil, errors.New("browser: JSON.parse unavailable")
	}
	return parse(goja.Undefined(), r.vm.ToValue(text))
}

// installWindow defines window-level globals other than the DOM.
func (r *realm) installWindow() {
	vm, w := r.vm, r.window
	for _, alias := range []string{"window", "self", "top", "parent", "frames"} {
		_ = w.Set(alias, w)
	}

	r.location = r.newLocation()
	r.accessor(w, "location",
		func() goja.Value { return r.location },
		func(v goja.Value) { r.navigate(v.String()) })

	nav := vm.NewObject()
	_ = nav.Set("userAgent", r.page.opts.UserAgent)
	_ = nav.Set("appName", "Netscape")
	_ = nav.Set("appVersion", strings.TrimPrefix(r.page.opts.UserAgent, "Mozilla/"))
	_ = nav.Set("platform", "MacIntel")
	_ = nav.Set("vendor", "")
	_ = nav.Set("product", "Gecko")
	_ = nav.Set("language", primaryLanguage(r.page.opts.AcceptLanguage))
	_ = nav.Set("languages", languages(r.page.opts.AcceptLanguage))
	_ = nav.Set("cookieEnabled", true)
	_ = nav.Set("onLine", true)
	_ = nav.Set("webdriver", false)
	_ = nav.Set("doNotTrack", "1")
	_ = nav.Set("hardwareConcurrency", 8)
	_ = w.Set("navigator", nav)

	screen := vm.NewObject()
	for k, v := range map[string]int{"width": 1440, "height": 900, "availWidth": 1440, "availHeight": 875, "colorDepth": 24, "pixelDepth": 24} {
		_ = screen.Set(k, v)
	}
	_ = w.Set("screen", screen)
	_ = w.Set("innerWidth", 1440)
	_ = w.Set("innerHeight", 789)
	_ = w.Set("outerWidth", 1440)
	_ = w.Set("outerHeight", 875)
	_ = w.Set("devicePixelRatio", 2)
	_ = w.Set("name", "")
	_ = w.Set("closed", false)

	origin := r.page.Location().Origin
	local, ok := r.page.storage[origin]
	if !ok {
		local = make(map[string]string)
		r.page.storage[origin] = local
	}
	_ = w.Set("localStorage", r.newStorage(local))
	_ = w.Set("sessionStorage", r.newStorage(make(map[string]string)))

	_ = w.Set("setTimeout", func(call goja.FunctionCall) goja.Value { return r.setTimer(call, false) })
	_ = w.Set("setInterval", func(call goja.FunctionCall) goja.Value { return r.setTimer(call, true) })
	clearTimer := func(call goja.FunctionCall) goja.Value {
		r.sched.cancel(call.Argument(0).ToInteger())
		return goja.Undefined()
	}
	_ = w.Set("clearTimeout", clearTimer)
	_ = w.Set("clearInterval", clearTimer)
	_ = w.Set("requestAnimationFrame", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("requestAnimationFrame: callback is not a function"))
		}
		id := r.sched.add(16*time.Millisecond, 0, func() {
			r.callback("requestAnimationFrame", fn, goja.Undefined(), vm.ToValue(16))
		})
		return vm.ToValue(id)
	})
	_ = w.Set("cancelAnimationFrame", clearTimer)
	_ = w.Set("queueMicrotask", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("queueMicrotask: callback is not a function"))
		}
		r.sched.add(0, 0, func() { r.callback("queueMicrotask", fn, goja.Undefined()) })
		return goja.Undefined()
	})

	_ = w.Set("alert", func(call goja.FunctionCall) goja.Value {
		r.log.Info("page alert", "message", call.Argument(0).String())
		return goja.Undefined()
	})
	_ = w.Set("confirm", func(call goja.FunctionCall) goja.Value {
		r.log.Info("page confirm accepted", "message", call.Argument(0).String())
		return vm.ToValue(true)
	})
	_ = w.Set("prompt", func(call goja.FunctionCall) goja.Value {
		r.log.Info("page prompt dismissed", "message", call.Argument(0).String())
		return goja.Null()
	})

	_ = w.Set("btoa", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		b := make([]byte, 0, len(s))
		for _, c := range s {
			if c > 0xff {
				panic(vm.NewTypeError("btoa: string contains characters outside of the Latin1 range"))
			}
			b = append(b, byte(c))
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(b))
	})
	_ = w.Set("atob", func(call goja.FunctionCall) goja.Value {
		s := strings.Map(func(c rune) rune {
			if c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '\f' {
				return -1
			}
			return c
		}, call.Argument(0).String())
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
			if err != nil {
				panic(vm.NewTypeError("atob: invalid base64"))
			}
		}
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return vm.ToValue(string(runes))
	})

	_ = w.Set("getComputedStyle", func(call goja.FunctionCall) goja.Value {
		if n := r.node(call.Argument(0)); n != nil {
			return r.styleOf(n)
		}
		return vm.NewObject()
	})
	_ = w.Set("matchMedia", func(call goja.FunctionCall) goja.Value {
		mq := vm.NewObject()
		_ = mq.Set("matches", false)
		_ = mq.Set("media", call.Argument(0).String())
		noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
		for _, m := range []string{"addListener", "removeListener", "addEventListener", "removeEventListener"} {
			_ = mq.Set(m, noop)
		}
		return mq
	})
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, m := range []string{"scrollTo", "scroll", "scrollBy", "focus", "blur", "print", "postMessage", "close", "stop"} {
		_ = w.Set(m, noop)
	}
	_ = w.Set("open", func(call goja.FunctionCall) goja.Value {
		r.log.Debug("window.open ignored", "url", call.Argument(0).String())
		return goja.Null()
	})

	start := time.Now()
	perf := vm.NewObject()
	_ = perf.Set("now", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(float64(time.Since(start).Microseconds()) / 1000)
	})
	_ = perf.Set("timeOrigin", float64(start.UnixMilli()))
	_ = w.Set("performance", perf)
}

// setTimer implements setTimeout and setInterval.
func (r *realm) setTimer(call goja.FunctionCall, repeat bool) goja.Value {
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	var fn func()
	if f, ok := goja.AssertFunction(call.Argument(0)); ok {
		fn = func() { r.callback("timer", f, goja.Undefined(), args...) }
	} else {
		src := call.Argument(0).String()
		fn = func() { r.evalNested("timer", src) }
	}

	var interval time.Duration
	if repeat {
		interval = delay
		if interval < minInterval {
			interval = minInterval
		}
	}
	return r.vm.ToValue(r.sched.add(delay, interval, fn))
}

// accessor defines a getter/setter pair on obj. A nil set makes the
// property read-only.
func (r *realm) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := r.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// newLocation builds the live location object of the document.
func (r *realm) newLocation() *goja.Object {
	loc := r.vm.NewObject()
	u := func() string { return r.page.url.String() }
	part := func(get func() string) func() goja.Value {
		return func() goja.Value { return r.vm.ToValue(get()) }
	}
	r.accessor(loc, "href", part(u), func(v goja.Value) { r.navigate(v.String()) })
	r.accessor(loc, "origin", part(func() string { return r.page.Location().Origin }), nil)
	r.accessor(loc, "protocol", part(func() string { return r.page.url.Scheme + ":" }), nil)
	r.accessor(loc, "host", part(func() string { return r.page.url.Host }), nil)
	r.accessor(loc, "hostname", part(func() string { return r.page.url.Hostname() }), nil)
	r.accessor(loc, "port", part(func() string { return r.page.url.Port() }), nil)
	r.accessor(loc, "pathname", part(func() string { return r.page.Location().Pathname }),
		func(v goja.Value) {
			next := *r.page.url
			next.Path, next.RawPath = v.String(), ""
			r.navigate(next.String())
		})
	r.accessor(loc, "search",
		part(func() string {
			if r.page.url.RawQuery == "" {
				return ""
			}
			return "?" + r.page.url.RawQuery
		}),
		func(v goja.Value) {
			next := *r.page.url
			next.RawQuery = strings.TrimPrefix(v.String(), "?")
			r.navigate(next.String())
		})
	r.accessor(loc, "hash",
		part(func() string {
			if r.page.url.Fragment == "" {
				return ""
			}
			return "#" + r.page.url.Fragment
		}),
		func(v goja.Value) { r.page.url.Fragment = strings.TrimPrefix(v.String(), "#") })

	nav := func(call goja.FunctionCall) goja.Value {
		r.navigate(call.Argument(0).String())
		return goja.Undefined()
	}
	_ = loc.Set("assign", nav)
	_ = loc.Set("replace", nav)
	_ = loc.Set("reload", func(goja.FunctionCall) goja.Value {
		r.navigate(u())
		return goja.Undefined()
	})
	_ = loc.Set("toString", func(goja.FunctionCall) goja.Value { return r.vm.ToValue(u()) })
	return loc
}

// navigate handles a location change requested by page code.
func (r *realm) navigate(raw string) {
	if code, ok := strings.CutPrefix(raw, "javascript:"); ok {
		r.evalNested("javascript-url", code)
		return
	}
	target, err := r.page.resolve(raw)
	if err != nil {
		r.log.Warn("ignoring navigation to invalid URL", "url", raw, "error", err)
		return
	}
	cur := r.page.url
	if target.Fragment != "" && cur != nil && target.Scheme == cur.Scheme &&
		target.Host == cur.Host && target.Path == cur.Path && target.RawQuery == cur.RawQuery {
		cur.Fragment = target.Fragment
		return
	}
	r.page.requestNavigation(&navigation{method: http.MethodGet, url: target})
}

// storage is the Web Storage object backed by a Go map.
type storage struct {
	r       *realm
	data    map[string]string
	methods map[string]goja.Value
}

func (r *realm) newStorage(data map[string]string) *goja.Object {
	s := &storage{r: r, data: data}
	vm := r.vm
	s.methods = map[string]goja.Value{
		"getItem": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if v, ok := s.data[call.Argument(0).String()]; ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		}),
		"setItem": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			s.data[call.Argument(0).String()] = call.Argument(1).String()
			return goja.Undefined()
		}),
		"removeItem": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			delete(s.data, call.Argument(0).String())
			return goja.Undefined()
		}),
		"clear": vm.ToValue(func(goja.FunctionCall) goja.Value {
			clear(s.data)
			return goja.Undefined()
		}),
		"key": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			keys := s.Keys()
			i := int(call.Argument(0).ToInteger())
			if i < 0 || i >= len(keys) {
				return goja.Null()
			}
			return vm.ToValue(keys[i])
		}),
	}
	return vm.NewDynamicObject(s)
}

func (s *storage) Get(key string) goja.Value {
	if m, ok := s.methods[key]; ok {
		return m
	}
	if key == "length" {
		return s.r.vm.ToValue(len(s.data))
	}
	if v, ok := s.data[key]; ok {
		return s.r.vm.ToValue(v)
	}
	return nil
}

func (s *storage) Set(key string, val goja.Value) bool {
	s.data[key] = val.String()
	return true
}

func (s *storage) Has(key string) bool {
	_, ok := s.data[key]
	return ok || key == "length" || s.methods[key] != nil
}

func (s *storage) Delete(key string) bool {
	delete(s.data, key)
	return true
}

func (s *storage) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func primaryLanguage(acceptLanguage string) string {
	if l := languages(acceptLanguage); len(l) > 0 {
		return l[0]
	}
	return "en-US"
}

func languages(acceptLanguage string) []string {
	var out []string
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		out = []string{"en-US", "en"}
	}
	return out
}
