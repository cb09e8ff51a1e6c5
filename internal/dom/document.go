// Package dom implements domain.Page over an in-memory HTML document. It backs
// offline imports of saved chat pages and lets trackers run without a browser.
package dom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"chatmark/internal/domain"
	"chatmark/internal/identity"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// transparent is what browsers report as the computed background of an element
// without one.
const transparent = "rgba(0, 0, 0, 0)"

// Document is a mutable HTML document that notifies observers of inserted nodes the
// way a MutationObserver with {childList, subtree} does.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	url       string
	observers map[int]*observer
	nextID    int

	highlighted []string
}

type observer struct {
	target  *html.Node
	onAdded func()
}

// Parse reads an HTML document served at rawURL.
func Parse(rawURL string, r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root, url: rawURL, observers: make(map[int]*observer)}, nil
}

// ParseString is Parse over a string.
func ParseString(rawURL, s string) (*Document, error) {
	return Parse(rawURL, strings.NewReader(s))
}

var _ domain.Page = (*Document)(nil)

func (d *Document) URL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *Document) Title(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := cascadia.Query(d.root, titleSelector)
	if n == nil {
		return "", nil
	}
	return strings.TrimSpace(textContent(n)), nil
}

var titleSelector = cascadia.MustCompile("title")

func (d *Document) QueryAll(_ context.Context, selector string) ([]domain.Node, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	found := cascadia.QueryAll(d.root, sel)
	nodes := make([]domain.Node, len(found))
	for i, n := range found {
		nodes[i] = &element{doc: d, n: n}
	}
	return nodes, nil
}

func (d *Document) BackgroundColor(_ context.Context, selector string) (string, bool, error) {
	sel, err := compile(selector)
	if err != nil {
		return "", false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := cascadia.Query(d.root, sel)
	if n == nil {
		return "", false, nil
	}
	return backgroundOf(n), true, nil
}

func (d *Document) ObserveChildren(_ context.Context, selector string, onAdded func()) (func(), error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	target := cascadia.Query(d.root, sel)
	if target == nil {
		return nil, domain.ErrTargetNotFound
	}
	id := d.nextID
	d.nextID++
	d.observers[id] = &observer{target: target, onAdded: onAdded}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.observers, id)
			d.mu.Unlock()
		})
	}, nil
}

// Highlight records messageID as highlighted when an element carries it.
func (d *Document) Highlight(_ context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found bool
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, identity.StampAttribute) == messageID {
			found = true
			return false
		}
		return true
	})
	if found {
		d.highlighted = append(d.highlighted, messageID)
	}
	return found, nil
}

// Highlighted returns the message ids highlighted so far.
func (d *Document) Highlighted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.highlighted...)
}

// Navigate changes the document URL without reloading, like a history.pushState.
func (d *Document) Navigate(rawURL string) {
	d.mu.Lock()
	d.url = rawURL
	d.mu.Unlock()
}

// Append parses fragment and appends it to the first element matching
// parentSelector, then notifies observers watching that element or an ancestor.
func (d *Document) Append(parentSelector, fragment string) error {
	return d.insert(parentSelector, fragment, false)
}

// SetInnerHTML replaces the children of the first element matching selector.
func (d *Document) SetInnerHTML(selector, fragment string) error {
	return d.insert(selector, fragment, true)
}

func (d *Document) insert(selector, fragment string, replace bool) error {
	sel, err := compile(selector)
	if err != nil {
		return err
	}

	d.mu.Lock()
	parent := cascadia.Query(d.root, sel)
	if parent == nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoMatch, selector)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("parse fragment: %w", err)
	}
	if replace {
		for c := parent.FirstChild; c != nil; {
			next := c.NextSibling
			parent.RemoveChild(c)
			c = next
		}
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	notify := d.observersOf(parent, len(nodes) > 0)
	d.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

// Remove detaches every element matching selector. Removals do not notify
// observers: only insertions trigger a rescan.
func (d *Document) Remove(selector string) error {
	sel, err := compile(selector)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range cascadia.QueryAll(d.root, sel) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return nil
}

// Render serializes the current document.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// observersOf returns the callbacks whose target is n or one of its ancestors.
// Caller holds d.mu.
func (d *Document) observersOf(n *html.Node, added bool) []func() {
	if !added {
		return nil
	}
	var out []func()
	for _, o := range d.observers {
		for p := n; p != nil; p = p.Parent {
			if p == o.target {
				out = append(out, o.onAdded)
				break
			}
		}
	}
	return out
}
