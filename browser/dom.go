package browser

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node type constants as exposed to scripts.
const (
	elementNode  = 1
	textNode     = 3
	commentNode  = 8
	documentNode = 9
	doctypeNode  = 10
	fragmentNode = 11
)

// wrap returns the script object for n, creating it on first use. The same
// node always maps to the same object.
func (r *realm) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := r.objects[n]; ok {
		return obj
	}
	var obj *goja.Object
	switch {
	case r.fragments[n]:
		obj = r.vm.CreateObject(r.nodeProto)
	case n.Type == html.DocumentNode:
		obj = r.vm.CreateObject(r.documentProto)
	case n.Type == html.ElementNode:
		obj = r.vm.CreateObject(r.elementProto)
	default:
		obj = r.vm.CreateObject(r.nodeProto)
	}
	r.objects[n] = obj
	r.nodes[obj] = n
	return obj
}

// node returns the DOM node behind a script value, or nil.
func (r *realm) node(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return r.nodes[obj]
}

func (r *realm) wrapAll(nodes []*html.Node) goja.Value {
	items := make([]any, len(nodes))
	for i, n := range nodes {
		items[i] = r.wrap(n)
	}
	return r.vm.NewArray(items...)
}

func (r *realm) this(call goja.FunctionCall) *html.Node {
	return r.node(call.This)
}

// prop defines a node accessor on proto.
func (r *realm) prop(proto *goja.Object, name string, get func(*html.Node) goja.Value, set func(*html.Node, goja.Value)) {
	getter := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		n := r.this(call)
		if n == nil {
			return goja.Undefined()
		}
		return get(n)
	})
	var setter goja.Value
	if set != nil {
		setter = r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if n := r.this(call); n != nil {
				set(n, call.Argument(0))
			}
			return goja.Undefined()
		})
	}
	_ = proto.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// method defines a node method on proto.
func (r *realm) method(proto *goja.Object, name string, fn func(*html.Node, goja.FunctionCall) goja.Value) {
	_ = proto.Set(name, func(call goja.FunctionCall) goja.Value {
		n := r.this(call)
		if n == nil {
			panic(r.vm.NewTypeError("Illegal invocation"))
		}
		return fn(n, call)
	})
}

// stringAttr reflects a content attribute as a string property.
func (r *realm) stringAttr(proto *goja.Object, name, attrName string) {
	r.prop(proto, name,
		func(n *html.Node) goja.Value { v, _ := attr(n, attrName); return r.vm.ToValue(v) },
		func(n *html.Node, v goja.Value) { setAttr(n, attrName, v.String()) })
}

// boolAttr reflects a boolean content attribute.
func (r *realm) boolAttr(proto *goja.Object, name, attrName string) {
	r.prop(proto, name,
		func(n *html.Node) goja.Value { _, ok := attr(n, attrName); return r.vm.ToValue(ok) },
		func(n *html.Node, v goja.Value) {
			if v.ToBoolean() {
				setAttr(n, attrName, "")
			} else {
				removeAttr(n, attrName)
			}
		})
}

// urlAttr reflects an attribute holding a URL, resolved against the document.
func (r *realm) urlAttr(proto *goja.Object, name, attrName string) {
	r.prop(proto, name,
		func(n *html.Node) goja.Value {
			v, ok := attr(n, attrName)
			if !ok {
				return r.vm.ToValue("")
			}
			return r.vm.ToValue(r.absolute(v))
		},
		func(n *html.Node, v goja.Value) { setAttr(n, attrName, v.String()) })
}

func (r *realm) absolute(raw string) string {
	u, err := r.page.resolve(raw)
	if err != nil {
		return raw
	}
	return u.String()
}

func (r *realm) constructor(name string, proto *goja.Object) {
	ctor := r.vm.ToValue(func(goja.ConstructorCall) *goja.Object {
		panic(r.vm.NewTypeError("Illegal constructor"))
	}).(*goja.Object)
	_ = ctor.DefineDataProperty("prototype", proto, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	_ = proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = r.window.Set(name, ctor)
}

// installDOM builds the node, element and document prototypes.
func (r *realm) installDOM() {
	vm := r.vm
	r.nodeProto = vm.NewObject()
	r.elementProto = vm.CreateObject(r.nodeProto)
	r.documentProto = vm.CreateObject(r.nodeProto)

	r.installNode(r.nodeProto)
	r.installElement(r.elementProto)
	r.installDocument(r.documentProto)

	r.constructor("Node", r.nodeProto)
	r.constructor("Element", r.elementProto)
	r.constructor("HTMLElement", r.elementProto)
	r.constructor("Document", r.documentProto)
	r.constructor("HTMLDocument", r.documentProto)
	node := r.window.Get("Node").(*goja.Object)
	for k, v := range map[string]int{"ELEMENT_NODE": elementNode, "TEXT_NODE": textNode, "COMMENT_NODE": commentNode, "DOCUMENT_NODE": documentNode} {
		_ = node.Set(k, v)
	}

	_ = r.window.Set("Image", func(call goja.ConstructorCall) *goja.Object {
		img := &html.Node{Type: html.ElementNode, Data: "img", DataAtom: atom.Img}
		if w := call.Argument(0); !goja.IsUndefined(w) {
			setAttr(img, "width", w.String())
		}
		return r.wrap(img).(*goja.Object)
	})
}

func (r *realm) installNode(p *goja.Object) {
	vm := r.vm
	r.prop(p, "nodeType", func(n *html.Node) goja.Value {
		if r.fragments[n] {
			return vm.ToValue(fragmentNode)
		}
		return vm.ToValue(nodeType(n))
	}, nil)
	r.prop(p, "nodeName", func(n *html.Node) goja.Value {
		if r.fragments[n] {
			return vm.ToValue("#document-fragment")
		}
		return vm.ToValue(nodeName(n))
	}, nil)
	r.prop(p, "nodeValue", func(n *html.Node) goja.Value {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			return vm.ToValue(n.Data)
		}
		return goja.Null()
	}, func(n *html.Node, v goja.Value) {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			n.Data = v.String()
		}
	})
	r.prop(p, "data", func(n *html.Node) goja.Value { return vm.ToValue(n.Data) },
		func(n *html.Node, v goja.Value) {
			if n.Type == html.TextNode || n.Type == html.CommentNode {
				n.Data = v.String()
			}
		})
	r.prop(p, "ownerDocument", func(n *html.Node) goja.Value {
		if n.Type == html.DocumentNode {
			return goja.Null()
		}
		return r.document
	}, nil)
	r.prop(p, "parentNode", func(n *html.Node) goja.Value { return r.wrap(n.Parent) }, nil)
	r.prop(p, "parentElement", func(n *html.Node) goja.Value {
		if n.Parent != nil && n.Parent.Type == html.ElementNode {
			return r.wrap(n.Parent)
		}
		return goja.Null()
	}, nil)
	r.prop(p, "childNodes", func(n *html.Node) goja.Value { return r.wrapAll(childNodes(n)) }, nil)
	r.prop(p, "children", func(n *html.Node) goja.Value { return r.wrapAll(elementChildren(n)) }, nil)
	r.prop(p, "childElementCount", func(n *html.Node) goja.Value { return vm.ToValue(len(elementChildren(n))) }, nil)
	r.prop(p, "firstChild", func(n *html.Node) goja.Value { return r.wrap(n.FirstChild) }, nil)
	r.prop(p, "lastChild", func(n *html.Node) goja.Value { return r.wrap(n.LastChild) }, nil)
	r.prop(p, "nextSibling", func(n *html.Node) goja.Value { return r.wrap(n.NextSibling) }, nil)
	r.prop(p, "previousSibling", func(n *html.Node) goja.Value { return r.wrap(n.PrevSibling) }, nil)
	r.prop(p, "firstElementChild", func(n *html.Node) goja.Value { return r.wrap(firstElement(n.FirstChild)) }, nil)
	r.prop(p, "lastElementChild", func(n *html.Node) goja.Value { return r.wrap(lastElement(n.LastChild)) }, nil)
	r.prop(p, "nextElementSibling", func(n *html.Node) goja.Value { return r.wrap(firstElement(n.NextSibling)) }, nil)
	r.prop(p, "previousElementSibling", func(n *html.Node) goja.Value { return r.wrap(lastElement(n.PrevSibling)) }, nil)
	r.prop(p, "isConnected", func(n *html.Node) goja.Value { return vm.ToValue(r.connected(n)) }, nil)
	r.prop(p, "textContent", func(n *html.Node) goja.Value {
		switch n.Type {
		case html.DocumentNode, html.DoctypeNode:
			return goja.Null()
		case html.TextNode, html.CommentNode:
			return vm.ToValue(n.Data)
		}
		return vm.ToValue(htmlquery.InnerText(n))
	}, func(n *html.Node, v goja.Value) {
		switch n.Type {
		case html.TextNode, html.CommentNode:
			n.Data = v.String()
		case html.ElementNode:
			removeChildren(n)
			if s := v.String(); s != "" && !goja.IsNull(v) {
				n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
			}
		}
	})

	r.method(p, "hasChildNodes", func(n *html.Node, _ goja.FunctionCall) goja.Value {
		return vm.ToValue(n.FirstChild != nil)
	})
	r.method(p, "contains", func(n *html.Node, call goja.FunctionCall) goja.Value {
		other := r.node(call.Argument(0))
		for c := other; c != nil; c = c.Parent {
			if c == n {
				return vm.ToValue(true)
			}
		}
		return vm.ToValue(false)
	})
	r.method(p, "appendChild", func(n *html.Node, call goja.FunctionCall) goja.Value {
		child := r.mustNode(call.Argument(0))
		r.insert(n, child, nil)
		return call.Argument(0)
	})
	r.method(p, "insertBefore", func(n *html.Node, call goja.FunctionCall) goja.Value {
		child := r.mustNode(call.Argument(0))
		ref := r.node(call.Argument(1))
		if ref != nil && ref.Parent != n {
			panic(vm.NewTypeError("insertBefore: reference node is not a child"))
		}
		r.insert(n, child, ref)
		return call.Argument(0)
	})
	r.method(p, "removeChild", func(n *html.Node, call goja.FunctionCall) goja.Value {
		child := r.mustNode(call.Argument(0))
		if child.Parent != n {
			panic(vm.NewTypeError("removeChild: node is not a child"))
		}
		n.RemoveChild(child)
		return call.Argument(0)
	})
	r.method(p, "replaceChild", func(n *html.Node, call goja.FunctionCall) goja.Value {
		next := r.mustNode(call.Argument(0))
		old := r.mustNode(call.Argument(1))
		if old.Parent != n {
			panic(vm.NewTypeError("replaceChild: node is not a child"))
		}
		ref := old.NextSibling
		n.RemoveChild(old)
		r.insert(n, next, ref)
		return call.Argument(1)
	})
	r.method(p, "cloneNode", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrap(cloneNode(n, call.Argument(0).ToBoolean()))
	})
	r.method(p, "remove", func(n *html.Node, _ goja.FunctionCall) goja.Value {
		detach(n)
		return goja.Undefined()
	})
	r.method(p, "append", func(n *html.Node, call goja.FunctionCall) goja.Value {
		for _, a := range call.Arguments {
			r.insert(n, r.nodeOrText(a), nil)
		}
		return goja.Undefined()
	})
	r.method(p, "prepend", func(n *html.Node, call goja.FunctionCall) goja.Value {
		ref := n.FirstChild
		for _, a := range call.Arguments {
			r.insert(n, r.nodeOrText(a), ref)
		}
		return goja.Undefined()
	})

	r.method(p, "querySelector", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrap(cascadia.Query(n, r.selector(call.Argument(0).String())))
	})
	r.method(p, "querySelectorAll", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrapAll(cascadia.QueryAll(n, r.selector(call.Argument(0).String())))
	})
	r.method(p, "getElementsByTagName", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrapAll(elementsByTag(n, call.Argument(0).String()))
	})
	r.method(p, "getElementsByClassName", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrapAll(r.xpathAll(n, classExpr(call.Argument(0).String())))
	})
}

func (r *realm) installElement(p *goja.Object) {
	vm := r.vm
	r.prop(p, "tagName", func(n *html.Node) goja.Value { return vm.ToValue(nodeName(n)) }, nil)
	r.prop(p, "localName", func(n *html.Node) goja.Value { return vm.ToValue(n.Data) }, nil)
	r.stringAttr(p, "id", "id")
	r.stringAttr(p, "className", "class")
	r.stringAttr(p, "name", "name")
	r.stringAttr(p, "title", "title")
	r.stringAttr(p, "lang", "lang")
	r.stringAttr(p, "dir", "dir")
	r.stringAttr(p, "alt", "alt")
	r.stringAttr(p, "placeholder", "placeholder")
	r.stringAttr(p, "rel", "rel")
	r.stringAttr(p, "target", "target")
	r.stringAttr(p, "htmlFor", "for")
	r.stringAttr(p, "autocomplete", "autocomplete")
	r.stringAttr(p, "content", "content")
	r.stringAttr(p, "httpEquiv", "http-equiv")
	r.stringAttr(p, "charset", "charset")
	r.stringAttr(p, "enctype", "enctype")
	r.stringAttr(p, "accept", "accept")
	r.boolAttr(p, "hidden", "hidden")
	r.boolAttr(p, "readOnly", "readonly")
	r.boolAttr(p, "required", "required")
	r.boolAttr(p, "multiple", "multiple")
	r.boolAttr(p, "async", "async")
	r.boolAttr(p, "defer", "defer")
	r.boolAttr(p, "defaultChecked", "checked")
	r.urlAttr(p, "href", "href")
	r.urlAttr(p, "src", "src")
	r.prop(p, "action", func(n *html.Node) goja.Value {
		v, _ := attr(n, "action")
		return vm.ToValue(r.absolute(v))
	}, func(n *html.Node, v goja.Value) { setAttr(n, "action", v.String()) })
	r.prop(p, "method", func(n *html.Node) goja.Value {
		return vm.ToValue(formMethod(n, nil))
	}, func(n *html.Node, v goja.Value) { setAttr(n, "method", v.String()) })
	r.prop(p, "type", func(n *html.Node) goja.Value { return vm.ToValue(controlType(n)) },
		func(n *html.Node, v goja.Value) { setAttr(n, "type", v.String()) })
	r.prop(p, "text", func(n *html.Node) goja.Value { return vm.ToValue(htmlquery.InnerText(n)) },
		func(n *html.Node, v goja.Value) {
			removeChildren(n)
			n.AppendChild(&html.Node{Type: html.TextNode, Data: v.String()})
		})

	r.prop(p, "innerHTML", func(n *html.Node) goja.Value {
		return vm.ToValue(htmlquery.OutputHTML(n, false))
	}, func(n *html.Node, v goja.Value) { r.setInnerHTML(n, v.String()) })
	r.prop(p, "outerHTML", func(n *html.Node) goja.Value {
		return vm.ToValue(htmlquery.OutputHTML(n, true))
	}, nil)
	r.prop(p, "innerText", func(n *html.Node) goja.Value { return vm.ToValue(innerText(n)) },
		func(n *html.Node, v goja.Value) {
			removeChildren(n)
			n.AppendChild(&html.Node{Type: html.TextNode, Data: v.String()})
		})

	r.prop(p, "attributes", func(n *html.Node) goja.Value {
		items := make([]any, len(n.Attr))
		for i, a := range n.Attr {
			o := vm.NewObject()
			_ = o.Set("name", a.Key)
			_ = o.Set("value", a.Val)
			items[i] = o
		}
		return vm.NewArray(items...)
	}, nil)
	r.method(p, "getAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		if v, ok := attr(n, strings.ToLower(call.Argument(0).String())); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	r.method(p, "setAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		setAttr(n, strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
		return goja.Undefined()
	})
	r.method(p, "removeAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		removeAttr(n, strings.ToLower(call.Argument(0).String()))
		return goja.Undefined()
	})
	r.method(p, "hasAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		_, ok := attr(n, strings.ToLower(call.Argument(0).String()))
		return vm.ToValue(ok)
	})
	r.method(p, "hasAttributes", func(n *html.Node, _ goja.FunctionCall) goja.Value {
		return vm.ToValue(len(n.Attr) > 0)
	})
	r.method(p, "toggleAttribute", func(n *html.Node, call goja.FunctionCall) goja.Value {
		name := strings.ToLower(call.Argument(0).String())
		_, has := attr(n, name)
		want := !has
		if len(call.Arguments) > 1 {
			want = call.Argument(1).ToBoolean()
		}
		if want {
			setAttr(n, name, "")
		} else {
			removeAttr(n, name)
		}
		return vm.ToValue(want)
	})

	r.prop(p, "classList", func(n *html.Node) goja.Value { return r.classList(n) }, nil)
	r.prop(p, "dataset", func(n *html.Node) goja.Value { return vm.NewDynamicObject(&dataset{r: r, n: n}) }, nil)
	r.prop(p, "style", func(n *html.Node) goja.Value { return r.styleOf(n) },
		func(n *html.Node, v goja.Value) {
			setAttr(n, "style", v.String())
			delete(r.styles, n)
		})

	r.method(p, "matches", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return vm.ToValue(r.selector(call.Argument(0).String()).Match(n))
	})
	r.method(p, "closest", func(n *html.Node, call goja.FunctionCall) goja.Value {
		sel := r.selector(call.Argument(0).String())
		for c := n; c != nil && c.Type == html.ElementNode; c = c.Parent {
			if sel.Match(c) {
				return r.wrap(c)
			}
		}
		return goja.Null()
	})
	r.method(p, "insertAdjacentHTML", func(n *html.Node, call goja.FunctionCall) goja.Value {
		r.insertAdjacentHTML(n, strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
		return goja.Undefined()
	})
	r.method(p, "getBoundingClientRect", func(*html.Node, goja.FunctionCall) goja.Value {
		rect := vm.NewObject()
		for _, k := range []string{"x", "y", "top", "left", "right", "bottom", "width", "height"} {
			_ = rect.Set(k, 0)
		}
		return rect
	})
	for _, k := range []string{"offsetWidth", "offsetHeight", "offsetTop", "offsetLeft", "clientWidth", "clientHeight", "scrollTop", "scrollLeft", "scrollWidth", "scrollHeight"} {
		r.prop(p, k, func(*html.Node) goja.Value { return vm.ToValue(0) }, nil)
	}
	r.method(p, "scrollIntoView", func(*html.Node, goja.FunctionCall) goja.Value { return goja.Undefined() })

	r.installControls(p)
}

func (r *realm) installDocument(p *goja.Object) {
	vm := r.vm
	r.prop(p, "documentElement", func(n *html.Node) goja.Value { return r.wrap(firstElement(n.FirstChild)) }, nil)
	r.prop(p, "head", func(n *html.Node) goja.Value { return r.wrap(findTag(n, "head")) }, nil)
	r.prop(p, "body", func(n *html.Node) goja.Value { return r.wrap(findTag(n, "body")) }, nil)
	r.prop(p, "title", func(n *html.Node) goja.Value {
		if t := findTag(n, "title"); t != nil {
			return vm.ToValue(strings.TrimSpace(htmlquery.InnerText(t)))
		}
		return vm.ToValue("")
	}, func(n *html.Node, v goja.Value) {
		t := findTag(n, "title")
		if t == nil {
			head := findTag(n, "head")
			if head == nil {
				return
			}
			t = &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
			head.AppendChild(t)
		}
		removeChildren(t)
		t.AppendChild(&html.Node{Type: html.TextNode, Data: v.String()})
	})
	str := func(f func() string) func(*html.Node) goja.Value {
		return func(*html.Node) goja.Value { return vm.ToValue(f()) }
	}
	href := func() string { return r.page.url.String() }
	r.prop(p, "URL", str(href), nil)
	r.prop(p, "documentURI", str(href), nil)
	r.prop(p, "baseURI", str(href), nil)
	r.prop(p, "domain", str(func() string { return r.page.url.Hostname() }), nil)
	r.prop(p, "referrer", str(func() string { return r.page.referrer }), nil)
	r.prop(p, "readyState", str(func() string { return "complete" }), nil)
	r.prop(p, "characterSet", str(func() string { return "UTF-8" }), nil)
	r.prop(p, "charset", str(func() string { return "UTF-8" }), nil)
	r.prop(p, "contentType", str(func() string { return "text/html" }), nil)
	r.prop(p, "compatMode", str(func() string { return "CSS1Compat" }), nil)
	r.prop(p, "visibilityState", str(func() string { return "visible" }), nil)
	r.prop(p, "hidden", func(*html.Node) goja.Value { return vm.ToValue(false) }, nil)
	r.prop(p, "defaultView", func(*html.Node) goja.Value { return r.window }, nil)
	r.prop(p, "location", func(*html.Node) goja.Value { return r.location },
		func(_ *html.Node, v goja.Value) { r.navigate(v.String()) })
	r.prop(p, "cookie", func(*html.Node) goja.Value { return vm.ToValue(r.page.cookieString()) },
		func(_ *html.Node, v goja.Value) { r.page.setCookie(v.String()) })
	r.prop(p, "activeElement", func(n *html.Node) goja.Value { return r.wrap(findTag(n, "body")) }, nil)
	r.prop(p, "forms", func(n *html.Node) goja.Value { return r.wrapAll(elementsByTag(n, "form")) }, nil)
	r.prop(p, "scripts", func(n *html.Node) goja.Value { return r.wrapAll(elementsByTag(n, "script")) }, nil)
	r.prop(p, "images", func(n *html.Node) goja.Value { return r.wrapAll(elementsByTag(n, "img")) }, nil)
	r.prop(p, "links", func(n *html.Node) goja.Value {
		return r.wrapAll(cascadia.QueryAll(n, r.selector("a[href], area[href]")))
	}, nil)

	r.method(p, "getElementById", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrap(elementByID(n, call.Argument(0).String()))
	})
	r.method(p, "getElementsByName", func(n *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrapAll(r.xpathAll(n, ".//*[@name="+xpathLiteral(call.Argument(0).String())+"]"))
	})
	r.method(p, "createElement", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		return r.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
	})
	r.method(p, "createElementNS", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		tag := call.Argument(1).String()
		return r.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
	})
	r.method(p, "createTextNode", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	r.method(p, "createComment", func(_ *html.Node, call goja.FunctionCall) goja.Value {
		return r.wrap(&html.Node{Type: html.CommentNode, Data: call.Argument(0).String()})
	})
	r.method(p, "createDocumentFragment", func(*html.Node, goja.FunctionCall) goja.Value {
		return r.wrap(r.newFragment())
	})
	r.method(p, "createEvent", func(*html.Node, goja.FunctionCall) goja.Value {
		return r.newEvent("", false, false)
	})
	r.prop(p, "implementation", func(*html.Node) goja.Value {
		impl := vm.NewObject()
		_ = impl.Set("hasFeature", func(goja.FunctionCall) goja.Value { return vm.ToValue(true) })
		_ = impl.Set("createHTMLDocument", func(call goja.FunctionCall) goja.Value {
			doc, err := html.Parse(strings.NewReader("<!DOCTYPE html><title></title>"))
			if err != nil {
				panic(vm.NewGoError(err))
			}
			if t := findTag(doc, "title"); t != nil && !goja.IsUndefined(call.Argument(0)) {
				t.AppendChild(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
			}
			return r.wrap(doc)
		})
		return impl
	}, nil)
	write := func(n *html.Node, call goja.FunctionCall, suffix string) goja.Value {
		var b strings.Builder
		for _, a := range call.Arguments {
			b.WriteString(a.String())
		}
		b.WriteString(suffix)
		if body := findTag(n, "body"); body != nil {
			r.insertAdjacentHTML(body, "beforeend", b.String())
		}
		return goja.Undefined()
	}
	r.method(p, "write", func(n *html.Node, call goja.FunctionCall) goja.Value { return write(n, call, "") })
	r.method(p, "writeln", func(n *html.Node, call goja.FunctionCall) goja.Value { return write(n, call, "\n") })
	r.method(p, "open", func(n *html.Node, _ goja.FunctionCall) goja.Value { return r.wrap(n) })
	r.method(p, "close", func(*html.Node, goja.FunctionCall) goja.Value { return goja.Undefined() })
	r.method(p, "hasFocus", func(*html.Node, goja.FunctionCall) goja.Value { return vm.ToValue(true) })
	r.method(p, "execCommand", func(*html.Node, goja.FunctionCall) goja.Value { return vm.ToValue(false) })
}

// selector compiles and caches a CSS selector group. Invalid selectors
// throw a SyntaxError into the calling script.
func (r *realm) selector(src string) cascadia.SelectorGroup {
	if sel, ok := r.selectors[src]; ok {
		return sel
	}
	sel, err := cascadia.ParseGroup(src)
	if err != nil {
		ctor, _ := goja.AssertConstructor(r.vm.Get("SyntaxError"))
		if ctor != nil {
			if ex, cerr := ctor(nil, r.vm.ToValue("'"+src+"' is not a valid selector: "+err.Error())); cerr == nil {
				panic(ex)
			}
		}
		panic(r.vm.NewTypeError("%q is not a valid selector", src))
	}
	r.selectors[src] = sel
	return sel
}

// xpathAll evaluates expr relative to n.
func (r *realm) xpathAll(n *html.Node, expr string) []*html.Node {
	nodes, err := htmlquery.QueryAll(n, expr)
	if err != nil {
		r.log.Debug("xpath query failed", "expr", expr, "error", err)
		return nil
	}
	return nodes
}

// classExpr builds an XPath matching elements carrying every class in names.
func classExpr(names string) string {
	fields := strings.Fields(names)
	if len(fields) == 0 {
		return ".//*[false()]"
	}
	conds := make([]string, len(fields))
	for i, f := range fields {
		conds[i] = "contains(concat(' ', normalize-space(@class), ' '), " + xpathLiteral(" "+f+" ") + ")"
	}
	return ".//*[" + strings.Join(conds, " and ") + "]"
}

// xpathLiteral quotes s as an XPath string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

func (r *realm) mustNode(v goja.Value) *html.Node {
	n := r.node(v)
	if n == nil {
		panic(r.vm.NewTypeError("parameter is not of type 'Node'"))
	}
	return n
}

func (r *realm) nodeOrText(v goja.Value) *html.Node {
	if n := r.node(v); n != nil {
		return n
	}
	return &html.Node{Type: html.TextNode, Data: v.String()}
}

// insert places child under parent before ref (append when ref is nil),
// moving it from any previous position, and starts inserted scripts.
func (r *realm) insert(parent, child, ref *html.Node) {
	if parent.Type != html.ElementNode && parent.Type != html.DocumentNode {
		panic(r.vm.NewTypeError("node cannot have children"))
	}
	for c := parent; c != nil; c = c.Parent {
		if c == child {
			panic(r.vm.NewTypeError("the new child is an ancestor of the parent"))
		}
	}
	if r.fragments[child] {
		moved := childNodes(child)
		for _, c := range moved {
			child.RemoveChild(c)
			parent.InsertBefore(c, ref)
		}
		if r.connected(parent) {
			for _, c := range moved {
				r.startScripts(c)
			}
		}
		return
	}
	detach(child)
	parent.InsertBefore(child, ref)
	if r.connected(child) {
		r.startScripts(child)
	}
}

// newFragment creates a DocumentFragment. Fragments are document nodes
// tracked separately so they can hold any content.
func (r *realm) newFragment() *html.Node {
	n := &html.Node{Type: html.DocumentNode}
	r.fragments[n] = true
	return n
}

func (r *realm) setInnerHTML(n *html.Node, src string) {
	nodes, err := html.ParseFragment(strings.NewReader(src), fragmentContext(n))
	if err != nil {
		r.log.Debug("innerHTML parse failed", "error", err)
		return
	}
	removeChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
	// Scripts inserted through innerHTML never run.
	for _, c := range nodes {
		r.markScripts(c)
	}
}

func (r *realm) insertAdjacentHTML(n *html.Node, position, src string) {
	ctx := n
	if position == "beforebegin" || position == "afterend" {
		if n.Parent == nil {
			return
		}
		ctx = n.Parent
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), fragmentContext(ctx))
	if err != nil {
		r.log.Debug("insertAdjacentHTML parse failed", "error", err)
		return
	}
	for _, c := range nodes {
		switch position {
		case "beforebegin":
			n.Parent.InsertBefore(c, n)
		case "afterbegin":
			n.InsertBefore(c, n.FirstChild)
		case "beforeend":
			n.AppendChild(c)
		case "afterend":
			n.Parent.InsertBefore(c, n.NextSibling)
		default:
			panic(r.vm.NewTypeError("insertAdjacentHTML: invalid position %q", position))
		}
	}
	for _, c := range nodes {
		if r.connected(c) {
			r.startScripts(c)
		}
	}
}

func fragmentContext(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		return n
	}
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func (r *realm) connected(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == r.doc {
			return true
		}
	}
	return false
}

// classList returns a DOMTokenList view over the class attribute.
func (r *realm) classList(n *html.Node) *goja.Object {
	vm := r.vm
	tokens := func() []string { v, _ := attr(n, "class"); return strings.Fields(v) }
	store := func(t []string) { setAttr(n, "class", strings.Join(t, " ")) }
	has := func(t []string, c string) int {
		for i, x := range t {
			if x == c {
				return i
			}
		}
		return -1
	}
	list := vm.NewObject()
	r.accessor(list, "length", func() goja.Value { return vm.ToValue(len(tokens())) }, nil)
	r.accessor(list, "value", func() goja.Value { v, _ := attr(n, "class"); return vm.ToValue(v) },
		func(v goja.Value) { setAttr(n, "class", v.String()) })
	_ = list.Set("add", func(call goja.FunctionCall) goja.Value {
		t := tokens()
		for _, a := range call.Arguments {
			if c := a.String(); has(t, c) < 0 {
				t = append(t, c)
			}
		}
		store(t)
		return goja.Undefined()
	})
	_ = list.Set("remove", func(call goja.FunctionCall) goja.Value {
		t := tokens()
		for _, a := range call.Arguments {
			if i := has(t, a.String()); i >= 0 {
				t = append(t[:i], t[i+1:]...)
			}
		}
		store(t)
		return goja.Undefined()
	})
	_ = list.Set("contains", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(has(tokens(), call.Argument(0).String()) >= 0)
	})
	_ = list.Set("toggle", func(call goja.FunctionCall) goja.Value {
		t, c := tokens(), call.Argument(0).String()
		i := has(t, c)
		want := i < 0
		if len(call.Arguments) > 1 {
			want = call.Argument(1).ToBoolean()
		}
		switch {
		case want && i < 0:
			t = append(t, c)
		case !want && i >= 0:
			t = append(t[:i], t[i+1:]...)
		}
		store(t)
		return vm.ToValue(want)
	})
	_ = list.Set("replace", func(call goja.FunctionCall) goja.Value {
		t := tokens()
		i := has(t, call.Argument(0).String())
		if i < 0 {
			return vm.ToValue(false)
		}
		t[i] = call.Argument(1).String()
		store(t)
		return vm.ToValue(true)
	})
	_ = list.Set("item", func(call goja.FunctionCall) goja.Value {
		t := tokens()
		i := int(call.Argument(0).ToInteger())
		if i < 0 || i >= len(t) {
			return goja.Null()
		}
		return vm.ToValue(t[i])
	})
	_ = list.Set("toString", func(goja.FunctionCall) goja.Value { v, _ := attr(n, "class"); return vm.ToValue(v) })
	return list
}

// styleOf returns the inline style object of n, seeded from its style
// attribute. Declarations are kept in memory only.
func (r *realm) styleOf(n *html.Node) *goja.Object {
	if s, ok := r.styles[n]; ok {
		return s
	}
	vm := r.vm
	style := vm.NewObject()
	decl, _ := attr(n, "style")
	for _, d := range strings.Split(decl, ";") {
		k, v, ok := strings.Cut(d, ":")
		if !ok {
			continue
		}
		_ = style.Set(camelCase(strings.TrimSpace(k)), strings.TrimSpace(v))
	}
	_ = style.Set("setProperty", func(call goja.FunctionCall) goja.Value {
		_ = style.Set(camelCase(call.Argument(0).String()), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = style.Set("getPropertyValue", func(call goja.FunctionCall) goja.Value {
		v := style.Get(camelCase(call.Argument(0).String()))
		if v == nil || goja.IsUndefined(v) {
			return vm.ToValue("")
		}
		return v
	})
	_ = style.Set("removeProperty", func(call goja.FunctionCall) goja.Value {
		_ = style.Delete(camelCase(call.Argument(0).String()))
		return goja.Undefined()
	})
	r.styles[n] = style
	return style
}

// dataset exposes data-* attributes with camelCase keys.
type dataset struct {
	r *realm
	n *html.Node
}

func (d *dataset) Get(key string) goja.Value {
	if v, ok := attr(d.n, "data-"+kebabCase(key)); ok {
		return d.r.vm.ToValue(v)
	}
	return nil
}

func (d *dataset) Set(key string, val goja.Value) bool {
	setAttr(d.n, "data-"+kebabCase(key), val.String())
	return true
}

func (d *dataset) Has(key string) bool {
	_, ok := attr(d.n, "data-"+kebabCase(key))
	return ok
}

func (d *dataset) Delete(key string) bool {
	removeAttr(d.n, "data-"+kebabCase(key))
	return true
}

func (d *dataset) Keys() []string {
	var keys []string
	for _, a := range d.n.Attr {
		if k, ok := strings.CutPrefix(a.Key, "data-"); ok {
			keys = append(keys, camelCase(k))
		}
	}
	return keys
}

func camelCase(s string) string {
	parts := strings.Split(s, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func kebabCase(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= 'A' && c <= 'Z' {
			b.WriteByte('-')
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}

// ── tree helpers ──

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return elementNode
	case html.TextNode:
		return textNode
	case html.CommentNode:
		return commentNode
	case html.DocumentNode:
		return documentNode
	case html.DoctypeNode:
		return doctypeNode
	}
	return 0
}

func nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	}
	return n.Data
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func firstElement(n *html.Node) *html.Node {
	for c := n; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func lastElement(n *html.Node) *html.Node {
	for c := n; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func removeChildren(n *html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		Data:      n.Data,
		DataAtom:  n.DataAtom,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			c.AppendChild(cloneNode(ch, true))
		}
	}
	return c
}

// walk visits n's descendants in tree order until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !fn(c) || !walk(c, fn) {
			return false
		}
	}
	return true
}

func findTag(n *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && c.Data == tag {
			found = c
			return false
		}
		return true
	})
	return found
}

func elementByID(n *html.Node, id string) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			if v, ok := attr(c, "id"); ok && v == id {
				found = c
				return false
			}
		}
		return true
	})
	return found
}

func elementsByTag(n *html.Node, tag string) []*html.Node {
	tag = strings.ToLower(tag)
	var out []*html.Node
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && (tag == "*" || c.Data == tag) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// innerText approximates rendered text: script and style contents are
// left out and whitespace runs collapse.
func innerText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "template"):
			return
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
