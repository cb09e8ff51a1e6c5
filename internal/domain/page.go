package domain

import (
	"context"
	"errors"
)

// ErrTargetNotFound is returned by ObserveChildren when no element matches the
// observer target yet.
var ErrTargetNotFound = errors.New("observer target not found")

// Page is the view of one browser tab that a tracker scans. Implementations exist
// for a live Chrome tab and for an in-memory HTML document.
type Page interface {
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// QueryAll returns the elements matching selector in document order.
	QueryAll(ctx context.Context, selector string) ([]Node, error)

	// BackgroundColor returns the computed background color of the first element
	// matching selector. ok is false when nothing matches.
	BackgroundColor(ctx context.Context, selector string) (color string, ok bool, err error)

	// ObserveChildren watches the subtree of the first element matching selector and
	// calls onAdded once per batch of mutations that inserted at least one node.
	ObserveChildren(ctx context.Context, selector string, onAdded func()) (stop func(), err error)

	// Highlight scrolls to the element stamped with messageID and flashes it.
	Highlight(ctx context.Context, messageID string) (bool, error)
}

// Node is one element returned by Page.QueryAll.
type Node interface {
	ID() string
	Attr(name string) string
	SetAttr(ctx context.Context, name, value string) error
	Text() string
	Matches(ctx context.Context, selector string) (bool, error)
	BackgroundColor() string
}
