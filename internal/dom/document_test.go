package dom

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"chatmark/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html><head><title>Rust lifetimes - ChatGPT</title></head>
<body>
<nav style="background-color: rgb(32, 33, 35)">menu</nav>
<div class="chat-container">
  <div class="text-message-content" data-message-author-role="user" style="background: #f7f7f8 none">  Why does the borrow checker complain?  </div>
  <div class="text-message-content" data-message-author-role="assistant" id="turn-2">Because the reference outlives the value.</div>
</div>
</body></html>`

func load(t *testing.T) *Document {
	t.Helper()
	d, err := ParseString("https://chat.openai.com/c/abc", page)
	require.NoError(t, err)
	return d
}

func TestDocument_Queries(t *testing.T) {
	ctx := context.Background()
	d := load(t)

	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rust lifetimes - ChatGPT", title)

	nodes, err := d.QueryAll(ctx, ".text-message-content")
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "Why does the borrow checker complain?", strings.TrimSpace(nodes[0].Text()))
	assert.Equal(t, "#f7f7f8", nodes[0].BackgroundColor())
	assert.Equal(t, "turn-2", nodes[1].ID())
	assert.Equal(t, transparent, nodes[1].BackgroundColor())

	ok, err := nodes[0].Matches(ctx, ".text-message-content[data-message-author-role='user']")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = nodes[1].Matches(ctx, ".text-message-content[data-message-author-role='user']")
	require.NoError(t, err)
	assert.False(t, ok)

	color, found, err := d.BackgroundColor(ctx, "nav")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "rgb(32, 33, 35)", color)

	_, found, err = d.BackgroundColor(ctx, "header")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDocument_InvalidSelector(t *testing.T) {
	_, err := load(t).QueryAll(context.Background(), "div[")
	assert.Error(t, err)
}

func TestDocument_SetAttrAndHighlight(t *testing.T) {
	ctx := context.Background()
	d := load(t)
	nodes, err := d.QueryAll(ctx, ".text-message-content")
	require.NoError(t, err)

	require.NoError(t, nodes[0].SetAttr(ctx, "data-message-id", "msg-1"))
	assert.Equal(t, "msg-1", nodes[0].Attr("data-message-id"))

	found, err := d.Highlight(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = d.Highlight(ctx, "msg-404")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"msg-1"}, d.Highlighted())
}

func TestDocument_ObserveChildren(t *testing.T) {
	ctx := context.Background()
	d := load(t)

	_, err := d.ObserveChildren(ctx, ".missing", func() {})
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)

	var calls atomic.Int32
	stop, err := d.ObserveChildren(ctx, ".chat-container", func() { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, d.Append(".chat-container",
		`<div class="text-message-content" data-message-author-role="user">a</div><div>b</div>`))
	assert.EqualValues(t, 1, calls.Load(), "one batch of insertions notifies once")

	require.NoError(t, d.Append("body", `<footer>x</footer>`))
	assert.EqualValues(t, 1, calls.Load(), "insertions outside the target are ignored")

	require.NoError(t, d.Remove("footer"))
	assert.EqualValues(t, 1, calls.Load())

	nodes, err := d.QueryAll(ctx, ".text-message-content")
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	stop()
	require.NoError(t, d.Append(".chat-container", `<div>c</div>`))
	assert.EqualValues(t, 1, calls.Load())
}

func TestDocument_AppendNoMatch(t *testing.T) {
	err := load(t).Append(".nope", "<p>x</p>")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestDocument_Navigate(t *testing.T) {
	ctx := context.Background()
	d := load(t)
	d.Navigate("https://chat.openai.com/c/def")
	u, err := d.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.openai.com/c/def", u)
}
