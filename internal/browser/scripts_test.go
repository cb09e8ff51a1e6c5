package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptsQuoteUserInput(t *testing.T) {
	sel := `[data-message-author-role='user'] "x"`

	assert.Contains(t, queryScript(sel), `document.querySelectorAll("[data-message-author-role='user'] \"x\"")`)
	assert.Contains(t, matchesScript(".a", 2, sel), `document.querySelectorAll(".a")[2]`)
	assert.Contains(t, setAttrScript(".a", 0, "data-message-id", `</script>`), `el.setAttribute("data-message-id", "\u003c/script\u003e")`)
}

func TestObserveScriptsShareKey(t *testing.T) {
	install := observeScript(".chat-container", "k1")
	assert.Contains(t, install, `w.counts["k1"] = 0`)
	assert.Contains(t, install, `document.querySelector(".chat-container")`)
	assert.Contains(t, observeCountScript("k1"), `counts["k1"]`)
	assert.Contains(t, disconnectScript("k1"), `w.observers["k1"].disconnect()`)
}

func TestHighlightScriptTargetsStampAttribute(t *testing.T) {
	s := highlightScript("data-message-id", "msg-1-2")
	assert.Contains(t, s, `"data-message-id"`)
	assert.Contains(t, s, `JSON.stringify("msg-1-2")`)
	assert.Contains(t, s, "scrollIntoView")
}
