package site

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(Builtin()...)

	a, ok := r.Resolve("chat.openai.com")
	require.True(t, ok)
	assert.Equal(t, "ChatGPT", a.Name())

	a, ok = r.Resolve("Gemini.Google.com")
	require.True(t, ok)
	assert.Equal(t, "Gemini", a.Name())

	_, ok = r.Resolve("example.com")
	assert.False(t, ok)
	assert.Equal(t, []string{"chat.openai.com", "chatgpt.com", "gemini.google.com"}, r.Hostnames())
}

func TestChatGPT_PageAndChatID(t *testing.T) {
	a := ChatGPT{}
	conv := mustURL(t, "https://chat.openai.com/c/6f1d2c3a-88aa")
	assert.True(t, a.IsValidPage(conv))
	assert.Equal(t, "6f1d2c3a-88aa", a.ChatID(conv, time.Now()))

	assert.False(t, a.IsValidPage(mustURL(t, "https://chat.openai.com/")))
}

func TestGemini_ChatIDFallsBackToTime(t *testing.T) {
	a := Gemini{}
	now := time.UnixMilli(1712345678901)

	assert.Equal(t, "abc123", a.ChatID(mustURL(t, "https://gemini.google.com/app?chatId=abc123"), now))
	assert.Equal(t, "gemini-1712345678901", a.ChatID(mustURL(t, "https://gemini.google.com/app"), now))
	assert.True(t, a.IsValidPage(mustURL(t, "https://gemini.google.com/")))
}

func TestTitle_StripsSiteSuffix(t *testing.T) {
	assert.Equal(t, "Rust lifetimes", Title("Rust lifetimes - ChatGPT", ChatGPT{}))
	assert.Equal(t, "Gemini", Title("Gemini", Gemini{}))
}

func TestApplyOverrides(t *testing.T) {
	adapters := ApplyOverrides(Builtin(), map[string]Selectors{
		"chatgpt.com": {ObserverTarget: "main"},
	})
	r := NewRegistry(adapters...)

	a, ok := r.Resolve("chat.openai.com")
	require.True(t, ok)
	assert.Equal(t, "main", a.Selectors().ObserverTarget)
	assert.Equal(t, ".text-message-content", a.Selectors().Message)
	assert.Equal(t, "ChatGPT", a.Name())

	g, _ := r.Resolve("gemini.google.com")
	assert.Equal(t, ".conversation-container", g.Selectors().ObserverTarget)
}

const claudeSites = `
sites:
  - name: Claude
    hostnames: [claude.ai]
    validPathContains: /chat/
    themeColor: "#d97757"
    selectors:
      message: .font-claude-message, .font-user-message
      user: .font-user-message
      assistant: .font-claude-message
      observerTarget: main
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(claudeSites), 0o644))

	adapters, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, adapters, 1)

	a := adapters[0]
	assert.Equal(t, "Claude", a.Name())
	assert.Equal(t, "#d97757", a.DefaultThemeColor())
	u := mustURL(t, "https://claude.ai/chat/9b1e")
	assert.True(t, a.IsValidPage(u))
	assert.Equal(t, "9b1e", a.ChatID(u, time.Now()))
	assert.False(t, a.IsValidPage(mustURL(t, "https://claude.ai/new")))
}

func TestLoadFile_MissingAndInvalid(t *testing.T) {
	adapters, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, adapters)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites:\n  - name: NoHosts\n"), 0o644))
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "hostname is required")
}

func TestDescriptor_QueryChatID(t *testing.T) {
	d := Descriptor{SiteName: "Mistral", ChatIDQuery: "conv"}
	now := time.UnixMilli(42)
	assert.Equal(t, "x1", d.ChatID(mustURL(t, "https://chat.mistral.ai/?conv=x1"), now))
	assert.Equal(t, "mistral-42", d.ChatID(mustURL(t, "https://chat.mistral.ai/"), now))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sites.yaml")
	r := NewRegistry(Builtin()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Watch(ctx, path, r, Builtin(), logger))

	require.NoError(t, os.WriteFile(path, []byte(claudeSites), 0o644))

	assert.Eventually(t, func() bool { return r.Supported("claude.ai") }, 5*time.Second, 50*time.Millisecond)
	assert.True(t, r.Supported("chatgpt.com"))
}
