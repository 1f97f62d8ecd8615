package browser

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// control is the dirty state of a form control. Nil fields fall back to
// the content attributes.
type control struct {
	value    *string
	checked  *bool
	selected *bool
}

func (r *realm) ctl(n *html.Node) *control {
	c, ok := r.controls[n]
	if !ok {
		c = &control{}
		r.controls[n] = c
	}
	return c
}

func controlType(n *html.Node) string {
	t, _ := attr(n, "type")
	t = strings.ToLower(strings.TrimSpace(t))
	switch n.Data {
	case "input":
		if t == "" {
			return "text"
		}
		return t
	case "button":
		if t == "reset" || t == "button" {
			return t
		}
		return "submit"
	case "select":
		if _, ok := attr(n, "multiple"); ok {
			return "select-multiple"
		}
		return "select-one"
	case "textarea":
		return "textarea"
	}
	return t
}

func isCheckable(n *html.Node) bool {
	if n.Data != "input" {
		return false
	}
	t := controlType(n)
	return t == "checkbox" || t == "radio"
}

func (r *realm) valueOf(n *html.Node) string {
	switch n.Data {
	case "select":
		for _, o := range r.options(n) {
			if r.selectedOf(o) {
				return r.valueOf(o)
			}
		}
		return ""
	case "option":
		if v, ok := attr(n, "value"); ok {
			return v
		}
		return strings.Join(strings.Fields(innerText(n)), " ")
	case "textarea":
		if c := r.controls[n]; c != nil && c.value != nil {
			return *c.value
		}
		return strings.TrimPrefix(textOf(n), "\n")
	}
	if c := r.controls[n]; c != nil && c.value != nil {
		return *c.value
	}
	v, ok := attr(n, "value")
	if !ok && isCheckable(n) {
		return "on"
	}
	return v
}

func (r *realm) setValue(n *html.Node, v string) {
	switch n.Data {
	case "select":
		for _, o := range r.options(n) {
			r.setSelected(n, o, r.valueOf(o) == v)
		}
	case "option":
		setAttr(n, "value", v)
	case "input":
		if isCheckable(n) {
			setAttr(n, "value", v)
			return
		}
		r.ctl(n).value = &v
	default:
		r.ctl(n).value = &v
	}
}

func (r *realm) checkedOf(n *html.Node) bool {
	if c := r.controls[n]; c != nil && c.checked != nil {
		return *c.checked
	}
	_, ok := attr(n, "checked")
	return ok
}

// setChecked updates a checkbox or radio; checking a radio unchecks the
// rest of its group.
func (r *realm) setChecked(n *html.Node, on bool) {
	r.ctl(n).checked = &on
	if !on || controlType(n) != "radio" {
		return
	}
	name, _ := attr(n, "name")
	if name == "" {
		return
	}
	scope := r.formOf(n)
	if scope == nil {
		scope = r.doc
	}
	for _, other := range elementsByTag(scope, "input") {
		if other == n || controlType(other) != "radio" {
			continue
		}
		if otherName, _ := attr(other, "name"); otherName == name && r.formOf(other) == r.formOf(n) {
			off := false
			r.ctl(other).checked = &off
		}
	}
}

func (r *realm) options(sel *html.Node) []*html.Node {
	return elementsByTag(sel, "option")
}

func (r *realm) selectedOf(o *html.Node) bool {
	if c := r.controls[o]; c != nil && c.selected != nil {
		return *c.selected
	}
	if _, ok := attr(o, "selected"); ok {
		return true
	}
	// A single select without an explicit choice shows its first option.
	sel := enclosing(o, "select")
	if sel == nil || controlType(sel) != "select-one" {
		return false
	}
	for _, other := range r.options(sel) {
		if other == o {
			return true
		}
		if c := r.controls[other]; c != nil && c.selected != nil && *c.selected {
			return false
		}
		if _, ok := attr(other, "selected"); ok {
			return false
		}
	}
	return false
}

func (r *realm) setSelected(sel, o *html.Node, on bool) {
	if on && sel != nil && controlType(sel) == "select-one" {
		for _, other := range r.options(sel) {
			off := false
			r.ctl(other).selected = &off
		}
	}
	r.ctl(o).selected = &on
}

func (r *realm) selectedIndex(sel *html.Node) int {
	for i, o := range r.options(sel) {
		if r.selectedOf(o) {
			return i
		}
	}
	return -1
}

func enclosing(n *html.Node, tag string) *html.Node {
	for c := n.Parent; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}

// formOf resolves a control's form owner from its form attribute or
// its ancestors.
func (r *realm) formOf(n *html.Node) *html.Node {
	if id, ok := attr(n, "form"); ok {
		if f := elementByID(r.doc, id); f != nil && f.Data == "form" {
			return f
		}
		return nil
	}
	return enclosing(n, "form")
}

func isListedControl(n *html.Node) bool {
	switch n.Data {
	case "input", "select", "textarea", "button", "fieldset", "object", "output":
		return true
	}
	return false
}

// formControls lists the controls owned by form in tree order.
func (r *realm) formControls(form *html.Node) []*html.Node {
	var out []*html.Node
	walk(r.doc, func(c *html.Node) bool {
		if c.Type == html.ElementNode && isListedControl(c) && r.formOf(c) == form {
			out = append(out, c)
		}
		return true
	})
	return out
}

func disabled(n *html.Node) bool {
	if _, ok := attr(n, "disabled"); ok {
		return true
	}
	for c := n.Parent; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && c.Data == "fieldset" {
			if _, ok := attr(c, "disabled"); ok {
				return true
			}
		}
	}
	return false
}

type formField struct {
	name, value string
}

// formData builds the form data set in tree order. submitter, when set,
// contributes its own name/value pair.
func (r *realm) formData(form, submitter *html.Node) []formField {
	var out []formField
	for _, c := range r.formControls(form) {
		name, _ := attr(c, "name")
		if name == "" || disabled(c) {
			continue
		}
		switch c.Data {
		case "button":
			if c == submitter {
				out = append(out, formField{name, r.valueOf(c)})
			}
		case "select":
			for _, o := range r.options(c) {
				if r.selectedOf(o) && !disabled(o) {
					out = append(out, formField{name, r.valueOf(o)})
				}
			}
		case "textarea":
			out = append(out, formField{name, r.valueOf(c)})
		case "input":
			switch t := controlType(c); t {
			case "submit", "image":
				if c == submitter {
					if t == "image" {
						out = append(out, formField{name + ".x", "0"}, formField{name + ".y", "0"})
					} else {
						out = append(out, formField{name, r.valueOf(c)})
					}
				}
			case "button", "reset", "file":
			case "checkbox", "radio":
				if r.checkedOf(c) {
					out = append(out, formField{name, r.valueOf(c)})
				}
			default:
				out = append(out, formField{name, r.valueOf(c)})
			}
		}
	}
	return out
}

func encodeForm(fields []formField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = url.QueryEscape(f.name) + "=" + url.QueryEscape(f.value)
	}
	return strings.Join(parts, "&")
}

func formMethod(form, submitter *html.Node) string {
	m, _ := attr(form, "method")
	if submitter != nil {
		if fm, ok := attr(submitter, "formmethod"); ok {
			m = fm
		}
	}
	if strings.EqualFold(strings.TrimSpace(m), "post") {
		return "post"
	}
	return "get"
}

// submitForm performs form submission. The submit event is skipped for
// programmatic form.submit().
func (r *realm) submitForm(form, submitter *html.Node, fireEvent bool) {
	if fireEvent {
		if !r.fire(r.wrap(form).(*goja.Object), "submit", true, true) {
			return
		}
	}

	action, _ := attr(form, "action")
	if submitter != nil {
		if fa, ok := attr(submitter, "formaction"); ok {
			action = fa
		}
	}
	target, err := r.page.resolve(action)
	if err != nil {
		r.log.Warn("form submission to invalid action ignored", "action", action, "error", err)
		return
	}
	if target.Scheme == "javascript" {
		r.navigate(action)
		return
	}

	body := encodeForm(r.formData(form, submitter))
	nav := &navigation{url: target}
	if formMethod(form, submitter) == "post" {
		nav.method = http.MethodPost
		nav.body = []byte(body)
		nav.contentType = "application/x-www-form-urlencoded"
	} else {
		next := *target
		next.RawQuery = body
		next.Fragment = ""
		nav.method = http.MethodGet
		nav.url = &next
	}
	r.log.Debug("form submitted", "method", nav.method, "action", nav.url.String())
	r.page.requestNavigation(nav)
}

// click fires a click event at n and runs its activation behaviour.
func (r *realm) click(n *html.Node) {
	if isListedControl(n) && disabled(n) {
		return
	}

	// Checkbox and radio state flips before listeners run and is restored
	// when the click is cancelled.
	var restore func()
	if isCheckable(n) {
		was := r.checkedOf(n)
		if controlType(n) == "checkbox" {
			r.setChecked(n, !was)
			restore = func() { r.setChecked(n, was) }
		} else if !was {
			var prior *html.Node
			name, _ := attr(n, "name")
			for _, o := range elementsByTag(r.doc, "input") {
				if oname, _ := attr(o, "name"); oname == name && controlType(o) == "radio" && r.checkedOf(o) {
					prior = o
				}
			}
			r.setChecked(n, true)
			restore = func() {
				r.setChecked(n, false)
				if prior != nil {
					r.setChecked(prior, true)
				}
			}
		}
	}

	ev := r.newEvent("click", true, true)
	if !r.dispatch(r.wrap(n).(*goja.Object), ev) {
		if restore != nil {
			restore()
		}
		return
	}
	if isCheckable(n) {
		el := r.wrap(n).(*goja.Object)
		r.fire(el, "input", true, false)
		r.fire(el, "change", true, false)
		return
	}
	r.activate(n)
}

// activate runs the default action of the nearest element with one.
func (r *realm) activate(n *html.Node) {
	for c := n; c != nil && c.Type == html.ElementNode; c = c.Parent {
		switch c.Data {
		case "a", "area":
			href, ok := attr(c, "href")
			if !ok {
				continue
			}
			if t, _ := attr(c, "target"); t != "" && t != "_self" && t != "_top" && t != "_parent" {
				r.log.Debug("link to another browsing context ignored", "href", href, "target", t)
				return
			}
			r.navigate(href)
			return
		case "button":
			switch controlType(c) {
			case "submit":
				if form := r.formOf(c); form != nil {
					r.submitForm(form, c, true)
				}
			case "reset":
				if form := r.formOf(c); form != nil {
					r.resetForm(form)
				}
			}
			return
		case "input":
			switch controlType(c) {
			case "submit", "image":
				if form := r.formOf(c); form != nil {
					r.submitForm(form, c, true)
				}
			case "reset":
				if form := r.formOf(c); form != nil {
					r.resetForm(form)
				}
			}
			return
		case "label":
			if id, ok := attr(c, "for"); ok {
				if target := elementByID(r.doc, id); target != nil && target != n {
					r.click(target)
				}
			}
			return
		}
	}
}

func (r *realm) resetForm(form *html.Node) {
	if !r.fire(r.wrap(form).(*goja.Object), "reset", true, true) {
		return
	}
	for _, c := range r.formControls(form) {
		delete(r.controls, c)
		for _, o := range elementsByTag(c, "option") {
			delete(r.controls, o)
		}
	}
}

// installControls defines the form-related element properties.
func (r *realm) installControls(p *goja.Object) {
	vm := r.vm
	r.prop(p, "value", func(n *html.Node) goja.Value {
		switch n.Data {
		case "input", "select", "textarea", "option", "button", "output":
			return vm.ToValue(r.valueOf(n))
		case "li", "param", "data", "meter", "progress":
			v, _ := attr(n, "value")
			return vm.ToValue(v)
		}
		return goja.Undefined()
	}, func(n *html.Node, v goja.Value) {
		s := ""
		if !goja.IsNull(v) && !goja.IsUndefined(v) {
			s = v.String()
		}
		switch n.Data {
		case "input", "select", "textarea", "option", "output":
			r.setValue(n, s)
		default:
			setAttr(n, "value", s)
		}
	})
	r.prop(p, "defaultValue", func(n *html.Node) goja.Value {
		if n.Data == "textarea" {
			return vm.ToValue(textOf(n))
		}
		v, _ := attr(n, "value")
		return vm.ToValue(v)
	}, func(n *html.Node, v goja.Value) { setAttr(n, "value", v.String()) })
	r.prop(p, "checked", func(n *html.Node) goja.Value { return vm.ToValue(r.checkedOf(n)) },
		func(n *html.Node, v goja.Value) { r.setChecked(n, v.ToBoolean()) })
	r.prop(p, "selected", func(n *html.Node) goja.Value { return vm.ToValue(r.selectedOf(n)) },
		func(n *html.Node, v goja.Value) { r.setSelected(enclosing(n, "select"), n, v.ToBoolean()) })
	r.prop(p, "defaultSelected", func(n *html.Node) goja.Value { _, ok := attr(n, "selected"); return vm.ToValue(ok) }, nil)
	r.prop(p, "disabled", func(n *html.Node) goja.Value { return vm.ToValue(disabled(n)) },
		func(n *html.Node, v goja.Value) {
			if v.ToBoolean() {
				setAttr(n, "disabled", "")
			} else {
				removeAttr(n, "disabled")
			}
		})
	r.prop(p, "selectedIndex", func(n *html.Node) goja.Value {
		if n.Data != "select" {
			return goja.Undefined()
		}
		return vm.ToValue(r.selectedIndex(n))
	}, func(n *html.Node, v goja.Value) {
		i := int(v.ToInteger())
		for j, o := range r.options(n) {
			r.setSelected(n, o, j == i)
		}
	})
	r.prop(p, "index", func(n *html.Node) goja.Value {
		if sel := enclosing(n, "select"); sel != nil {
			for i, o := range r.options(sel) {
				if o == n {
					return vm.ToValue(i)
				}
			}
		}
		return vm.ToValue(0)
	}, nil)
	r.prop(p, "options", func(n *html.Node) goja.Value {
		if n.Data != "select" {
			return goja.Undefined()
		}
		return r.wrapAll(r.options(n))
	}, nil)
	r.prop(p, "form", func(n *html.Node) goja.Value {
		if !isListedControl(n) && n.Data != "option" && n.Data != "label" {
			return goja.Undefined()
		}
		return r.wrap(r.formOf(n))
	}, nil)
	r.prop(p, "elements", func(n *html.Node) goja.Value {
		if n.Data != "form" {
			return goja.Undefined()
		}
		arr := r.wrapAll(r.formControls(n)).(*goja.Object)
		for _, c := range r.formControls(n) {
			for _, key := range []string{"id", "name"} {
				if k, ok := attr(c, key); ok && k != "" {
					if _, err := strconv.Atoi(k); err != nil && arr.Get(k) == nil {
						_ = arr.Set(k, r.wrap(c))
					}
				}
			}
		}
		return arr
	}, nil)
	r.prop(p, "length", func(n *html.Node) goja.Value {
		switch n.Data {
		case "form":
			return vm.ToValue(len(r.formControls(n)))
		case "select":
			return vm.ToValue(len(r.options(n)))
		}
		return goja.Undefined()
	}, nil)
	r.prop(p, "labels", func(n *html.Node) goja.Value {
		var out []*html.Node
		id, _ := attr(n, "id")
		for _, l := range elementsByTag(r.doc, "label") {
			if f, ok := attr(l, "for"); ok && f == id && id != "" {
				out = append(out, l)
			}
		}
		return r.wrapAll(out)
	}, nil)

	r.method(p, "submit", func(n *html.Node, _ goja.FunctionCall) goja.Value {
		if n.Data == "form" {
			r.submitForm(n, nil, false)
		}
		return goja.Undefined()
	})
	r.method(p, "requestSubmit", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if n.Data == "form" {
			r.submitForm(n, r.node(call.Argument(0)), true)
		}
		return goja.Undefined()
	})
	r.method(p, "reset", func(n *html.Node, _ goja.FunctionCall) goja.Value {
		if n.Data == "form" {
			r.resetForm(n)
		}
		return goja.Undefined()
	})
	r.method(p, "checkValidity", func(*html.Node, goja.FunctionCall) goja.Value { return vm.ToValue(true) })
	r.method(p, "reportValidity", func(*html.Node, goja.FunctionCall) goja.Value { return vm.ToValue(true) })
	r.method(p, "select", func(*html.Node, goja.FunctionCall) goja.Value { return goja.Undefined() })
	r.method(p, "setSelectionRange", func(*html.Node, goja.FunctionCall) goja.Value { return goja.Undefined() })
}

// textOf concatenates the direct text children of n.
func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
