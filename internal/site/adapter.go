// Package site maps supported chat websites to the selectors a tracker needs.
package site

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatmark/internal/domain"
)

// Selectors contains the CSS selectors for one chat website.
type Selectors struct {
	Message        string `json:"message,omitempty" yaml:"message,omitempty"`
	User           string `json:"user,omitempty" yaml:"user,omitempty"`
	Assistant      string `json:"assistant,omitempty" yaml:"assistant,omitempty"`
	IDAttribute    string `json:"idAttribute,omitempty" yaml:"idAttribute,omitempty"`
	ObserverTarget string `json:"observerTarget,omitempty" yaml:"observerTarget,omitempty"`
	ThemeElement   string `json:"themeElement,omitempty" yaml:"themeElement,omitempty"`
}

// Merge returns s with every non-empty field of o applied on top.
func (s Selectors) Merge(o Selectors) Selectors {
	if o.Message != "" {
		s.Message = o.Message
	}
	if o.User != "" {
		s.User = o.User
	}
	if o.Assistant != "" {
		s.Assistant = o.Assistant
	}
	if o.IDAttribute != "" {
		s.IDAttribute = o.IDAttribute
	}
	if o.ObserverTarget != "" {
		s.ObserverTarget = o.ObserverTarget
	}
	if o.ThemeElement != "" {
		s.ThemeElement = o.ThemeElement
	}
	return s
}

// Adapter describes how to track chats on one website. Adapters are immutable and
// shared by every tracker on that site.
type Adapter interface {
	Name() string
	Hostnames() []string
	// IsValidPage reports whether u is a conversation worth tracking.
	IsValidPage(u *url.URL) bool
	// ChatID derives the chat identifier for u. Sites without a stable id in the
	// URL fall back to a value built from now.
	ChatID(u *url.URL, now time.Time) string
	Selectors() Selectors
	DefaultThemeColor() string
}

// ThemeColor returns the computed background of the adapter's theme element, or the
// adapter default when the element is absent or unreadable.
func ThemeColor(ctx context.Context, page domain.Page, a Adapter) string {
	sel := a.Selectors().ThemeElement
	if sel == "" {
		return a.DefaultThemeColor()
	}
	color, ok, err := page.BackgroundColor(ctx, sel)
	if err != nil || !ok {
		return a.DefaultThemeColor()
	}
	return color
}

// Title strips the " - <site name>" suffix chat sites append to the document title.
func Title(docTitle string, a Adapter) string {
	return strings.TrimSpace(strings.Replace(docTitle, " - "+a.Name(), "", 1))
}

func lastPathSegment(u *url.URL) string {
	parts := strings.Split(u.Path, "/")
	return parts[len(parts)-1]
}

func timeFallback(prefix string, now time.Time) string {
	return prefix + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// overridden layers configured selectors over an adapter.
type overridden struct {
	Adapter
	sel Selectors
}

func (o overridden) Selectors() Selectors { return o.sel }

// WithSelectors returns a copy of a whose selectors have override applied.
func WithSelectors(a Adapter, override Selectors) Adapter {
	return overridden{Adapter: a, sel: a.Selectors().Merge(override)}
}

// ApplyOverrides wraps every adapter that has an entry in overrides, keyed by any of
// its hostnames.
func ApplyOverrides(adapters []Adapter, overrides map[string]Selectors) []Adapter {
	if len(overrides) == 0 {
		return adapters
	}
	out := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		for _, h := range a.Hostnames() {
			if o, ok := overrides[strings.ToLower(h)]; ok {
				a = WithSelectors(a, o)
				break
			}
		}
		out = append(out, a)
	}
	return out
}
