package browser

import (
	"encoding/json"
	"fmt"
)

// js renders v as a JavaScript literal.
func js(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("browser: cannot encode %T for script: %v", v, err))
	}
	return string(b)
}

// nodeInfo is what queryScript reports for each matching element.
type nodeInfo struct {
	ID         string            `json:"id"`
	Attrs      map[string]string `json:"attrs"`
	Text       string            `json:"text"`
	Background string            `json:"background"`
}

func queryScript(selector string) string {
	return fmt.Sprintf(`(() => Array.from(document.querySelectorAll(%s)).map(el => ({
	id: el.id || "",
	attrs: Object.fromEntries(Array.from(el.attributes).map(a => [a.name, a.value])),
	text: el.textContent || "",
	background: getComputedStyle(el).backgroundColor
})))()`, js(selector))
}

func nthScript(selector string, index int, body string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelectorAll(%s)[%d];
	if (!el) return {found: false};
	%s
})()`, js(selector), index, body)
}

// lookup is the result shape of scripts addressing a single element.
type lookup struct {
	Found bool `json:"found"`
	Value any  `json:"value"`
}

func setAttrScript(selector string, index int, name, value string) string {
	return nthScript(selector, index, fmt.Sprintf(`el.setAttribute(%s, %s); return {found: true};`, js(name), js(value)))
}

func matchesScript(selector string, index int, other string) string {
	return nthScript(selector, index, fmt.Sprintf(`return {found: true, value: el.matches(%s)};`, js(other)))
}

func backgroundScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	return el ? {found: true, value: getComputedStyle(el).backgroundColor} : {found: false};
})()`, js(selector))
}

// observeScript installs a MutationObserver that counts batches adding nodes under
// the target. It returns false when the target does not exist.
func observeScript(selector, key string) string {
	return fmt.Sprintf(`(() => {
	const target = document.querySelector(%[1]s);
	if (!target) return false;
	const w = window.__chatmark = window.__chatmark || {counts: {}, observers: {}};
	w.counts[%[2]s] = 0;
	const obs = new MutationObserver(muts => {
		if (muts.some(m => m.addedNodes.length > 0)) w.counts[%[2]s]++;
	});
	obs.observe(target, {childList: true, subtree: true});
	w.observers[%[2]s] = obs;
	return true;
})()`, js(selector), js(key))
}

func observeCountScript(key string) string {
	return fmt.Sprintf(`(window.__chatmark && window.__chatmark.counts[%[1]s]) || 0`, js(key))
}

func disconnectScript(key string) string {
	return fmt.Sprintf(`(() => {
	const w = window.__chatmark;
	if (!w || !w.observers[%[1]s]) return false;
	w.observers[%[1]s].disconnect();
	delete w.observers[%[1]s];
	delete w.counts[%[1]s];
	return true;
})()`, js(key))
}

// highlightScript scrolls the stamped element into view and flashes its background
// for two seconds.
func highlightScript(attr, messageID string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector("[" + %s + "=" + JSON.stringify(%s) + "]");
	if (!el) return false;
	el.scrollIntoView({behavior: "smooth", block: "center"});
	const original = el.style.backgroundColor;
	el.style.transition = "background-color 0.3s";
	el.style.backgroundColor = "#fff59d";
	setTimeout(() => { el.style.backgroundColor = original; }, 2000);
	return true;
})()`, js(attr), js(messageID))
}
