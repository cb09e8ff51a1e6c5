package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrNoMatch is returned by mutations whose selector matches nothing.
var ErrNoMatch = errors.New("no element matches selector")

type element struct {
	doc *Document
	n   *html.Node
}

func (e *element) ID() string { return e.Attr("id") }

func (e *element) Attr(name string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.n, name)
}

func (e *element) SetAttr(_ context.Context, name, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i := range e.n.Attr {
		if e.n.Attr[i].Namespace == "" && e.n.Attr[i].Key == name {
			e.n.Attr[i].Val = value
			return nil
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

func (e *element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return textContent(e.n)
}

func (e *element) Matches(_ context.Context, selector string) (bool, error) {
	sel, err := compile(selector)
	if err != nil {
		return false, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return sel.Match(e.n), nil
}

func (e *element) BackgroundColor() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return backgroundOf(e.n)
}

var selectorCache sync.Map // string -> cascadia.Selector

// compile parses a selector or a comma-separated selector group.
func compile(selector string) (cascadia.Selector, error) {
	if v, ok := selectorCache.Load(selector); ok {
		return v.(cascadia.Selector), nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	selectorCache.Store(selector, sel)
	return sel, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val
		}
	}
	return ""
}

// walk visits n and its descendants depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

// backgroundOf reads background-color (or a background shorthand starting with a
// color) from the inline style. There is no cascade in an in-memory document.
func backgroundOf(n *html.Node) string {
	style := attr(n, "style")
	var shorthand string
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(val)
		switch prop {
		case "background-color":
			if val != "" {
				return val
			}
		case "background":
			shorthand = val
		}
	}
	if shorthand != "" {
		if strings.HasPrefix(shorthand, "rgb") || strings.HasPrefix(shorthand, "hsl") {
			if i := strings.Index(shorthand, ")"); i >= 0 {
				return shorthand[:i+1]
			}
		}
		return strings.Fields(shorthand)[0]
	}
	return transparent
}
