package browser

import (
	"strings"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

const (
	phaseNone = iota
	phaseCapturing
	phaseAtTarget
	phaseBubbling
)

type listener struct {
	typ     string
	fn      goja.Value
	capture bool
	once    bool
	removed bool
}

// eventState is the Go side of an Event object.
type eventState struct {
	typ        string
	bubbles    bool
	cancelable bool
	prevented  bool
	stopped    bool
	immediate  bool
	dispatched bool
	phase      int
	target     *goja.Object
	current    *goja.Object
	path       []*goja.Object
	stamp      float64
	detail     goja.Value
}

func (r *realm) newEvent(typ string, bubbles, cancelable bool) *goja.Object {
	obj := r.vm.CreateObject(r.eventProto)
	r.events[obj] = &eventState{
		typ:        typ,
		bubbles:    bubbles,
		cancelable: cancelable,
		stamp:      float64(time.Now().UnixMilli()),
	}
	return obj
}

func (r *realm) eventOf(v goja.Value) *eventState {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return r.events[obj]
}

// installEvents defines Event, CustomEvent and EventTarget support on
// nodes and window.
func (r *realm) installEvents() {
	vm := r.vm
	p := vm.NewObject()
	r.eventProto = p

	get := func(name string, fn func(*eventState) goja.Value) {
		getter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			st := r.eventOf(call.This)
			if st == nil {
				return goja.Undefined()
			}
			return fn(st)
		})
		_ = p.DefineAccessorProperty(name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}
	obj := func(o *goja.Object) goja.Value {
		if o == nil {
			return goja.Null()
		}
		return o
	}
	get("type", func(st *eventState) goja.Value { return vm.ToValue(st.typ) })
	get("bubbles", func(st *eventState) goja.Value { return vm.ToValue(st.bubbles) })
	get("cancelable", func(st *eventState) goja.Value { return vm.ToValue(st.cancelable) })
	get("defaultPrevented", func(st *eventState) goja.Value { return vm.ToValue(st.prevented) })
	get("eventPhase", func(st *eventState) goja.Value { return vm.ToValue(st.phase) })
	get("target", func(st *eventState) goja.Value { return obj(st.target) })
	get("srcElement", func(st *eventState) goja.Value { return obj(st.target) })
	get("currentTarget", func(st *eventState) goja.Value { return obj(st.current) })
	get("timeStamp", func(st *eventState) goja.Value { return vm.ToValue(st.stamp) })
	get("isTrusted", func(*eventState) goja.Value { return vm.ToValue(false) })
	get("detail", func(st *eventState) goja.Value {
		if st.detail == nil {
			return goja.Null()
		}
		return st.detail
	})
	returnValue := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if st := r.eventOf(call.This); st != nil {
			return vm.ToValue(!st.prevented)
		}
		return goja.Undefined()
	})
	setReturnValue := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if st := r.eventOf(call.This); st != nil && !call.Argument(0).ToBoolean() && st.cancelable {
			st.prevented = true
		}
		return goja.Undefined()
	})
	_ = p.DefineAccessorProperty("returnValue", returnValue, setReturnValue, goja.FLAG_TRUE, goja.FLAG_TRUE)

	method := func(name string, fn func(*eventState, goja.FunctionCall) goja.Value) {
		_ = p.Set(name, func(call goja.FunctionCall) goja.Value {
			st := r.eventOf(call.This)
			if st == nil {
				panic(vm.NewTypeError("Illegal invocation"))
			}
			return fn(st, call)
		})
	}
	method("preventDefault", func(st *eventState, _ goja.FunctionCall) goja.Value {
		if st.cancelable {
			st.prevented = true
		}
		return goja.Undefined()
	})
	method("stopPropagation", func(st *eventState, _ goja.FunctionCall) goja.Value {
		st.stopped = true
		return goja.Undefined()
	})
	method("stopImmediatePropagation", func(st *eventState, _ goja.FunctionCall) goja.Value {
		st.stopped, st.immediate = true, true
		return goja.Undefined()
	})
	method("initEvent", func(st *eventState, call goja.FunctionCall) goja.Value {
		if !st.dispatched {
			st.typ = call.Argument(0).String()
			st.bubbles = call.Argument(1).ToBoolean()
			st.cancelable = call.Argument(2).ToBoolean()
		}
		return goja.Undefined()
	})
	method("composedPath", func(st *eventState, _ goja.FunctionCall) goja.Value {
		items := make([]any, len(st.path))
		for i, o := range st.path {
			items[i] = o
		}
		return vm.NewArray(items...)
	})

	ctor := func(custom bool) func(goja.ConstructorCall) *goja.Object {
		return func(call goja.ConstructorCall) *goja.Object {
			if len(call.Arguments) == 0 {
				panic(vm.NewTypeError("Event constructor: type argument required"))
			}
			_ = call.This.SetPrototype(p)
			st := &eventState{typ: call.Argument(0).String(), stamp: float64(time.Now().UnixMilli())}
			if init, ok := call.Argument(1).(*goja.Object); ok {
				st.bubbles = init.Get("bubbles") != nil && init.Get("bubbles").ToBoolean()
				st.cancelable = init.Get("cancelable") != nil && init.Get("cancelable").ToBoolean()
				if custom {
					st.detail = init.Get("detail")
				}
			}
			r.events[call.This] = st
			return nil
		}
	}
	for _, name := range []string{"Event", "UIEvent", "MouseEvent", "KeyboardEvent", "FocusEvent", "InputEvent", "SubmitEvent", "CustomEvent"} {
		c := vm.ToValue(ctor(name == "CustomEvent")).(*goja.Object)
		_ = c.Set("prototype", p)
		_ = r.window.Set(name, c)
	}

	// EventTarget methods on nodes resolve the target from this; the
	// window versions are bound to the global object.
	for _, target := range []struct {
		proto *goja.Object
		bind  *goja.Object
	}{{r.nodeProto, nil}, {r.window, r.window}} {
		bind := target.bind
		self := func(call goja.FunctionCall) *goja.Object {
			if bind != nil {
				return bind
			}
			o, ok := call.This.(*goja.Object)
			if !ok {
				panic(vm.NewTypeError("Illegal invocation"))
			}
			return o
		}
		_ = target.proto.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
			r.addListener(self(call), call)
			return goja.Undefined()
		})
		_ = target.proto.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
			r.removeListener(self(call), call)
			return goja.Undefined()
		})
		_ = target.proto.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
			ev, ok := call.Argument(0).(*goja.Object)
			if !ok || r.events[ev] == nil {
				panic(vm.NewTypeError("dispatchEvent: parameter is not of type 'Event'"))
			}
			return vm.ToValue(r.dispatch(self(call), ev))
		})
	}

	// Element interaction methods that fire events.
	r.method(r.elementProto, "click", func(n *html.Node, _ goja.FunctionCall) goja.Value {
		r.click(n)
		return goja.Undefined()
	})
	for _, typ := range []string{"focus", "blur"} {
		r.method(r.elementProto, typ, func(n *html.Node, _ goja.FunctionCall) goja.Value {
			r.fire(r.wrap(n).(*goja.Object), typ, false, false)
			return goja.Undefined()
		})
	}
}

func listenerOptions(v goja.Value) (capture, once bool) {
	if o, ok := v.(*goja.Object); ok {
		if c := o.Get("capture"); c != nil {
			capture = c.ToBoolean()
		}
		if c := o.Get("once"); c != nil {
			once = c.ToBoolean()
		}
		return capture, once
	}
	if v != nil && !goja.IsUndefined(v) {
		capture = v.ToBoolean()
	}
	return capture, false
}

func (r *realm) addListener(target *goja.Object, call goja.FunctionCall) {
	fn := call.Argument(1)
	if goja.IsUndefined(fn) || goja.IsNull(fn) {
		return
	}
	typ := call.Argument(0).String()
	capture, once := listenerOptions(call.Argument(2))
	for _, l := range r.listeners[target] {
		if l.typ == typ && l.capture == capture && l.fn.SameAs(fn) && !l.removed {
			return
		}
	}
	r.listeners[target] = append(r.listeners[target], &listener{typ: typ, fn: fn, capture: capture, once: once})
}

func (r *realm) removeListener(target *goja.Object, call goja.FunctionCall) {
	typ := call.Argument(0).String()
	fn := call.Argument(1)
	capture, _ := listenerOptions(call.Argument(2))
	list := r.listeners[target]
	for i, l := range list {
		if l.typ == typ && l.capture == capture && l.fn.SameAs(fn) {
			l.removed = true
			r.listeners[target] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// fire dispatches a fresh event of typ at target.
func (r *realm) fire(target *goja.Object, typ string, bubbles, cancelable bool) bool {
	return r.dispatch(target, r.newEvent(typ, bubbles, cancelable))
}

// dispatch runs the capture, target and bubble phases and reports whether
// the default action may proceed.
func (r *realm) dispatch(target, ev *goja.Object) bool {
	st := r.events[ev]
	st.dispatched = true
	st.target = target
	st.stopped, st.immediate = false, false
	st.path = r.eventPath(target)

	for i := len(st.path) - 1; i > 0 && !st.stopped; i-- {
		st.phase = phaseCapturing
		r.invoke(st.path[i], ev, st, true)
	}
	if !st.stopped {
		st.phase = phaseAtTarget
		r.invoke(target, ev, st, false)
	}
	if st.bubbles {
		for i := 1; i < len(st.path) && !st.stopped; i++ {
			st.phase = phaseBubbling
			r.invoke(st.path[i], ev, st, false)
		}
	}

	st.phase = phaseNone
	st.current = nil
	return !st.prevented
}

// eventPath lists target then its ancestors, ending with window for
// nodes in the document.
func (r *realm) eventPath(target *goja.Object) []*goja.Object {
	path := []*goja.Object{target}
	n := r.nodes[target]
	if n == nil {
		return path
	}
	for c := n.Parent; c != nil; c = c.Parent {
		path = append(path, r.wrap(c).(*goja.Object))
	}
	if r.connected(n) {
		path = append(path, r.window)
	}
	return path
}

// invoke calls the listeners of cur for the current phase, then its
// on<type> handler property or attribute.
func (r *realm) invoke(cur, ev *goja.Object, st *eventState, capture bool) {
	st.current = cur
	atTarget := st.phase == phaseAtTarget
	list := append([]*listener(nil), r.listeners[cur]...)
	for _, l := range list {
		if l.removed || l.typ != st.typ || (!atTarget && l.capture != capture) {
			continue
		}
		if l.once {
			l.removed = true
			r.dropListener(cur, l)
		}
		r.callListener(l.fn, cur, ev)
		if st.immediate {
			return
		}
	}
	if capture {
		return
	}
	handler := r.handlerProperty(cur, st.typ)
	if handler == nil {
		return
	}
	ret := r.callback("on"+st.typ, handler, cur, ev)
	if ret != nil && ret.StrictEquals(r.vm.ToValue(false)) && st.cancelable {
		st.prevented = true
	}
}

func (r *realm) dropListener(target *goja.Object, drop *listener) {
	list := r.listeners[target]
	for i, l := range list {
		if l == drop {
			r.listeners[target] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (r *realm) callListener(fn goja.Value, this, ev *goja.Object) {
	if f, ok := goja.AssertFunction(fn); ok {
		r.callback("listener", f, this, ev)
		return
	}
	if o, ok := fn.(*goja.Object); ok {
		if f, ok := goja.AssertFunction(o.Get("handleEvent")); ok {
			r.callback("listener", f, o, ev)
		}
	}
}

// handlerProperty returns the on<type> handler of target. Inline
// attribute handlers are compiled on first use.
func (r *realm) handlerProperty(target *goja.Object, typ string) goja.Callable {
	name := "on" + typ
	if v := target.Get(name); v != nil {
		if f, ok := goja.AssertFunction(v); ok {
			return f
		}
	}
	n := r.nodes[target]
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	code, ok := attr(n, name)
	if !ok || strings.TrimSpace(code) == "" {
		return nil
	}
	v, err := r.vm.RunString("(function(event) {\n" + code + "\n})")
	if err != nil {
		r.log.Warn("invalid inline event handler", "handler", name, "error", scriptError(err))
		return nil
	}
	f, _ := goja.AssertFunction(v)
	_ = target.Set(name, v)
	return f
}
