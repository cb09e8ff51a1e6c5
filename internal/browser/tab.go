package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatmark/internal/domain"
	"chatmark/internal/identity"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

const defaultObservePoll = 250 * time.Millisecond

// Tab is one Chrome tab seen as a domain.Page. Node handles address elements by
// selector and position, so they are only valid until the page changes.
type Tab struct {
	id          int
	ctx         context.Context // chromedp tab context
	cancel      context.CancelFunc
	observePoll time.Duration
	logger      *slog.Logger
}

var _ domain.Page = (*Tab)(nil)

func (t *Tab) ID() int { return t.id }

// run executes actions on the tab, aborting when either the tab or ctx ends.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (t *Tab) eval(ctx context.Context, script string, res any) error {
	return t.run(ctx, chromedp.Evaluate(script, res))
}

// Navigate loads url in the tab.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate tab %d: %w", t.id, err)
	}
	return nil
}

func (t *Tab) URL(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (t *Tab) Title(ctx context.Context) (string, error) {
	var title string
	if err := t.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

func (t *Tab) QueryAll(ctx context.Context, selector string) ([]domain.Node, error) {
	var infos []nodeInfo
	if err := t.eval(ctx, queryScript(selector), &infos); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	nodes := make([]domain.Node, len(infos))
	for i, info := range infos {
		if info.Attrs == nil {
			info.Attrs = map[string]string{}
		}
		nodes[i] = &node{tab: t, selector: selector, index: i, info: info}
	}
	return nodes, nil
}

func (t *Tab) BackgroundColor(ctx context.Context, selector string) (string, bool, error) {
	var res lookup
	if err := t.eval(ctx, backgroundScript(selector), &res); err != nil {
		return "", false, fmt.Errorf("background of %q: %w", selector, err)
	}
	if !res.Found {
		return "", false, nil
	}
	color, _ := res.Value.(string)
	return color, true, nil
}

// ObserveChildren installs a MutationObserver in the page and polls its counter,
// calling onAdded once per poll in which the counter moved.
func (t *Tab) ObserveChildren(ctx context.Context, selector string, onAdded func()) (func(), error) {
	key := uuid.NewString()
	var installed bool
	if err := t.eval(ctx, observeScript(selector, key), &installed); err != nil {
		return nil, fmt.Errorf("observe %q: %w", selector, err)
	}
	if !installed {
		return nil, domain.ErrTargetNotFound
	}

	pollCtx, cancel := context.WithCancel(t.ctx)
	go t.pollObserver(pollCtx, key, onAdded)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			var removed bool
			if err := t.eval(context.Background(), disconnectScript(key), &removed); err != nil {
				t.logger.Debug("disconnecting observer failed", "tab_id", t.id, "err", err)
			}
		})
	}, nil
}

func (t *Tab) pollObserver(ctx context.Context, key string, onAdded func()) {
	ticker := time.NewTicker(t.observePoll)
	defer ticker.Stop()

	var last float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var count float64
		if err := t.eval(ctx, observeCountScript(key), &count); err != nil {
			if ctx.Err() == nil {
				t.logger.Debug("polling observer failed", "tab_id", t.id, "err", err)
			}
			continue
		}
		// A reload wipes the page-side counter.
		if count < last {
			last = 0
		}
		if count > last {
			last = count
			onAdded()
		}
	}
}

func (t *Tab) Highlight(ctx context.Context, messageID string) (bool, error) {
	var found bool
	if err := t.eval(ctx, highlightScript(identity.StampAttribute, messageID), &found); err != nil {
		return false, fmt.Errorf("highlight %s: %w", messageID, err)
	}
	return found, nil
}

// node is a snapshot of one element taken by QueryAll. Attribute reads come from
// the snapshot; writes go to the page and update it.
type node struct {
	tab      *Tab
	selector string
	index    int

	mu   sync.Mutex
	info nodeInfo
}

func (n *node) ID() string { return n.info.ID }

func (n *node) Attr(name string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.info.Attrs[name]
}

func (n *node) SetAttr(ctx context.Context, name, value string) error {
	var res lookup
	if err := n.tab.eval(ctx, setAttrScript(n.selector, n.index, name, value), &res); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	if !res.Found {
		return fmt.Errorf("set %s: element %d of %q is gone", name, n.index, n.selector)
	}
	n.mu.Lock()
	n.info.Attrs[name] = value
	n.mu.Unlock()
	return nil
}

func (n *node) Text() string { return n.info.Text }

func (n *node) Matches(ctx context.Context, selector string) (bool, error) {
	var res lookup
	if err := n.tab.eval(ctx, matchesScript(n.selector, n.index, selector), &res); err != nil {
		return false, fmt.Errorf("match %q: %w", selector, err)
	}
	if !res.Found {
		return false, fmt.Errorf("match %q: element %d of %q is gone", selector, n.index, n.selector)
	}
	ok, _ := res.Value.(bool)
	return ok, nil
}

func (n *node) BackgroundColor() string { return n.info.Background }
