package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// TabEvents receives tab lifecycle notifications. *command.Background implements it.
type TabEvents interface {
	TabUpdated(tabID int, url string, complete bool) bool
	TabClosed(tabID int)
}

// DriverConfig configures a Driver.
type DriverConfig struct {
	Bridge *Bridge
	Events TabEvents
	// ObservePoll is how often page-side mutation counters are read. Zero uses 250ms.
	ObservePoll time.Duration
	Logger      *slog.Logger
}

// tabSteps are the chromedp calls Open makes, in order.
type tabSteps struct {
	newContext func(parent context.Context) (context.Context, context.CancelFunc)
	// attach creates the target. Its context must be the tab context itself: the
	// target's event loop lives as long as that context.
	attach   func(tabCtx context.Context) error
	listen   func(tabCtx context.Context, fn func(ev any))
	navigate func(t *Tab, ctx context.Context, url string) error
}

var chromedpSteps = tabSteps{
	newContext: func(parent context.Context) (context.Context, context.CancelFunc) {
		return chromedp.NewContext(parent)
	},
	attach:   func(tabCtx context.Context) error { return chromedp.Run(tabCtx) },
	listen:   chromedp.ListenTarget,
	navigate: (*Tab).Navigate,
}

// Driver owns one Chrome instance and the tabs opened in it.
type Driver struct {
	browserCtx  context.Context
	cancel      context.CancelFunc
	events      TabEvents
	observePoll time.Duration
	logger      *slog.Logger
	steps       tabSteps

	mu     sync.Mutex
	tabs   map[int]*Tab
	nextID int
}

// Start launches the browser. Close releases it.
func Start(ctx context.Context, cfg DriverConfig) (*Driver, error) {
	browserCtx, cancel := cfg.Bridge.NewContext(ctx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	if cfg.ObservePoll <= 0 {
		cfg.ObservePoll = defaultObservePoll
	}
	cfg.Logger.Info("browser started", "headless", cfg.Bridge.headless, "profile", cfg.Bridge.profileDir)
	return &Driver{
		browserCtx:  browserCtx,
		cancel:      cancel,
		events:      cfg.Events,
		observePoll: cfg.ObservePoll,
		logger:      cfg.Logger,
		steps:       chromedpSteps,
		tabs:        make(map[int]*Tab),
		nextID:      1,
	}, nil
}

// Open creates a tab, reports its page loads to the TabEvents and navigates it to url.
func (d *Driver) Open(ctx context.Context, url string) (*Tab, error) {
	tabCtx, cancel := d.steps.newContext(d.browserCtx)
	if err := d.steps.attach(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	t := &Tab{id: id, ctx: tabCtx, cancel: cancel, observePoll: d.observePoll, logger: d.logger}
	d.tabs[id] = t
	d.mu.Unlock()

	d.steps.listen(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventLoadEventFired:
			// Actions cannot run inside the listener.
			go d.loaded(t)
		case *page.EventNavigatedWithinDocument:
			d.notify(t.id, e.URL, true)
		}
	})

	if err := d.steps.navigate(t, ctx, url); err != nil {
		d.Close(id)
		return nil, err
	}
	d.logger.Info("tab opened", "tab_id", id, "url", url)
	return t, nil
}

func (d *Driver) loaded(t *Tab) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url, err := t.URL(ctx)
	if err != nil {
		d.logger.Debug("reading loaded tab URL failed", "tab_id", t.id, "err", err)
		return
	}
	d.notify(t.id, url, true)
}

func (d *Driver) notify(tabID int, url string, complete bool) {
	if d.events == nil {
		return
	}
	d.events.TabUpdated(tabID, url, complete)
}

// Tabs returns the open tabs ordered by id.
func (d *Driver) Tabs() []*Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Tab, 0, len(d.tabs))
	for id := 1; id < d.nextID; id++ {
		if t, ok := d.tabs[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Close closes one tab.
func (d *Driver) Close(tabID int) {
	d.mu.Lock()
	t, ok := d.tabs[tabID]
	delete(d.tabs, tabID)
	d.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	if d.events != nil {
		d.events.TabClosed(tabID)
	}
	d.logger.Info("tab closed", "tab_id", tabID)
}

// Shutdown closes every tab and the browser.
func (d *Driver) Shutdown() {
	for _, t := range d.Tabs() {
		d.Close(t.id)
	}
	d.cancel()
	d.logger.Info("browser stopped")
}
