// Package identity assigns stable identifiers to message elements.
package identity

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"chatmark/internal/domain"
)

const (
	// StampAttribute is written onto every identified node so later scans reuse the id.
	StampAttribute = "data-message-id"
	// ProcessedAttribute marks nodes a scan has already seen.
	ProcessedAttribute = "data-processed"

	prefix = "msg"
)

// Hash is the 31-multiplier rolling hash over the UTF-16 code units of s, wrapped
// to a signed 32-bit value and rendered as the hex of its absolute value.
func Hash(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	out := strconv.FormatInt(abs, 16)
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}

// Existing returns the identifier already carried by node, checking idAttribute,
// the element id and the stamp attribute in that order.
func Existing(node domain.Node, idAttribute string) string {
	if idAttribute != "" {
		if v := node.Attr(idAttribute); v != "" {
			return v
		}
	}
	if v := node.ID(); v != "" {
		return v
	}
	return node.Attr(StampAttribute)
}

// Identify returns the node's existing identifier, or derives a new one from its
// trimmed text and now. A derived id is not reproducible; call Stamp right after.
func Identify(node domain.Node, idAttribute string, now time.Time) string {
	if id := Existing(node, idAttribute); id != "" {
		return id
	}
	text := strings.TrimSpace(node.Text())
	return prefix + "-" + Hash(text) + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// Stamp writes id and the processed marker onto node.
func Stamp(ctx context.Context, node domain.Node, id string) error {
	if err := node.SetAttr(ctx, ProcessedAttribute, "true"); err != nil {
		return err
	}
	return node.SetAttr(ctx, StampAttribute, id)
}
