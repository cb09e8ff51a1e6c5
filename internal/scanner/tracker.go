// Package scanner watches one tab's page, turns message elements into tracked
// messages and pushes full chat snapshots to the coordinator.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"chatmark/internal/domain"
	"chatmark/internal/metrics"
	"chatmark/internal/site"
)

var (
	ErrUnsupportedSite = errors.New("unsupported site")
	ErrInvalidPage     = errors.New("not a chat page")
)

const (
	DefaultRetryDelay   = 2 * time.Second
	DefaultSettleDelay  = time.Second
	DefaultPollInterval = 500 * time.Millisecond

	pushTimeout = 10 * time.Second
)

// State is the lifecycle phase of a Tracker.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateObserving
	StateScanning
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateObserving:
		return "observing"
	case StateScanning:
		return "scanning"
	case StateDetached:
		return "detached"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Publisher delivers requests to the coordinator. *command.Client implements it.
type Publisher interface {
	Send(ctx context.Context, req domain.Request) (domain.Response, error)
}

// Config holds the dependencies of a Tracker. Zero durations use the defaults.
type Config struct {
	TabID     int
	Page      domain.Page
	Sites     *site.Registry
	Publisher Publisher
	// Bus, when set, routes forwarded tab requests (scrollToMessage) to the tracker.
	Bus domain.MessageBus

	RetryDelay   time.Duration
	SettleDelay  time.Duration
	PollInterval time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Tracker is the per-tab scan loop. Run drives it; Scan is a one-shot alternative
// for pages that never change.
type Tracker struct {
	tabID        int
	page         domain.Page
	sites        *site.Registry
	publisher    Publisher
	bus          domain.MessageBus
	retryDelay   time.Duration
	settleDelay  time.Duration
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger

	state   atomic.Int32
	trigger chan struct{}
	stop    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	session *session

	// owned by the Run goroutine
	stopObserve func()
	retry       *time.Timer
}

func New(cfg Config) *Tracker {
	t := &Tracker{
		tabID:        cfg.TabID,
		page:         cfg.Page,
		sites:        cfg.Sites,
		publisher:    cfg.Publisher,
		bus:          cfg.Bus,
		retryDelay:   cfg.RetryDelay,
		settleDelay:  cfg.SettleDelay,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		logger:       cfg.Logger,
		trigger:      make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	if t.retryDelay <= 0 {
		t.retryDelay = DefaultRetryDelay
	}
	if t.settleDelay <= 0 {
		t.settleDelay = DefaultSettleDelay
	}
	if t.pollInterval <= 0 {
		t.pollInterval = DefaultPollInterval
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("tab_id", cfg.TabID)
	return t
}

func (t *Tracker) State() State { return State(t.state.Load()) }

func (t *Tracker) setState(s State) { t.state.Store(int32(s)) }

// ChatID returns the id of the chat currently tracked, or "".
func (t *Tracker) ChatID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return ""
	}
	return t.session.chatID
}

// Tracked returns the tracked messages ordered by ordinal.
func (t *Tracker) Tracked() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	return domain.SortByOrdinal(t.session.tracked)
}

// Stop detaches a running tracker. It is safe to call more than once.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// Run tracks the page until ctx is cancelled or Stop is called. URL changes are
// detected by polling; each one restarts tracking with a fresh chat id after the
// settle delay.
func (t *Tracker) Run(ctx context.Context) error {
	if t.bus != nil {
		t.bus.OnTab(t.tabID, t.handleTab)
		defer t.bus.RemoveTab(t.tabID)
	}
	defer t.setState(StateDetached)
	defer t.deactivate()

	poll := time.NewTicker(t.pollInterval)
	defer poll.Stop()

	lastURL := t.activate(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.stop:
			return nil
		case <-t.trigger:
			t.scan(ctx)
		case <-t.retryC():
			t.retry = nil
			t.attach(ctx)
		case <-poll.C:
			current, err := t.page.URL(ctx)
			if err != nil {
				t.logger.Debug("reading page URL failed", "err", err)
				continue
			}
			if current == lastURL {
				continue
			}
			t.logger.Info("URL changed, reinitializing tracker", "from", lastURL, "to", current)
			t.deactivate()
			if !t.sleep(ctx, t.settleDelay) {
				return nil
			}
			lastURL = t.activate(ctx)
		}
	}
}

// Scan activates the tracker on the current page if needed and runs one scan.
// It must not be used concurrently with Run.
func (t *Tracker) Scan(ctx context.Context) error {
	t.mu.Lock()
	active := t.session != nil
	t.mu.Unlock()
	if !active {
		raw, err := t.page.URL(ctx)
		if err != nil {
			return fmt.Errorf("read page URL: %w", err)
		}
		s, err := t.newSession(raw)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.session = s
		t.mu.Unlock()
		t.setState(StateActive)
	}
	t.scan(ctx)
	return nil
}

func (t *Tracker) newSession(raw string) (*session, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPage, err)
	}
	adapter, ok := t.sites.Resolve(u.Hostname())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSite, u.Hostname())
	}
	if !adapter.IsValidPage(u) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPage, raw)
	}
	now := t.now()
	return newSession(adapter, raw, adapter.ChatID(u, now), domain.At(now)), nil
}

// activate starts a session for the page's current URL and returns that URL. Pages
// that cannot be tracked leave the tracker uninitialized until the next navigation.
func (t *Tracker) activate(ctx context.Context) string {
	raw, err := t.page.URL(ctx)
	if err != nil {
		t.logger.Error("reading page URL failed", "err", err)
		t.setState(StateUninitialized)
		return ""
	}

	s, err := t.newSession(raw)
	if err != nil {
		t.logger.Info("page not tracked", "url", raw, "reason", err)
		t.setState(StateUninitialized)
		return raw
	}

	t.mu.Lock()
	t.session = s
	t.mu.Unlock()
	t.setState(StateActive)
	metrics.ActiveTrackers.Inc()
	t.logger.Info("tracking chat", "site", s.adapter.Name(), "chat_id", s.chatID)

	select {
	case <-t.trigger:
	default:
	}
	t.scan(ctx)
	t.attach(ctx)
	return raw
}

// deactivate releases the observer and forgets the session.
func (t *Tracker) deactivate() {
	if t.stopObserve != nil {
		t.stopObserve()
		t.stopObserve = nil
	}
	if t.retry != nil {
		t.retry.Stop()
		t.retry = nil
	}

	t.mu.Lock()
	wasActive := t.session != nil
	t.session = nil
	t.mu.Unlock()

	if wasActive {
		metrics.ActiveTrackers.Dec()
	}
	if t.State() != StateDetached {
		t.setState(StateUninitialized)
	}
}

// attach installs the mutation watch on the observer target, scheduling another
// attempt after the retry delay when the target is not on the page yet.
func (t *Tracker) attach(ctx context.Context) {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()
	if s == nil {
		return
	}

	target := s.adapter.Selectors().ObserverTarget
	if target == "" {
		t.logger.Warn("site has no observer target, scanning on navigation only", "site", s.adapter.Name())
		return
	}

	stop, err := t.page.ObserveChildren(ctx, target, t.notify)
	if err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			t.logger.Debug("observer target not found, retrying", "selector", target, "delay", t.retryDelay)
		} else {
			t.logger.Warn("attaching observer failed, retrying", "selector", target, "err", err)
		}
		t.retry = time.NewTimer(t.retryDelay)
		return
	}

	t.stopObserve = stop
	t.setState(StateObserving)
	t.logger.Debug("observer attached", "selector", target)
}

// notify schedules a scan. Triggers that arrive while one is pending collapse into it.
func (t *Tracker) notify() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

func (t *Tracker) retryC() <-chan time.Time {
	if t.retry == nil {
		return nil
	}
	return t.retry.C
}

func (t *Tracker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-t.stop:
		return false
	}
}

func (t *Tracker) handleTab(ctx context.Context, req domain.Request) domain.Response {
	switch req.Action {
	case domain.ActionScrollToMessage:
		found, err := t.page.Highlight(ctx, req.MessageID)
		if err != nil {
			t.logger.Error("highlighting message failed", "message_id", req.MessageID, "err", err)
			return domain.Failure("highlight %s: %v", req.MessageID, err)
		}
		if !found {
			return domain.Response{NotFound: true, Error: "message not found"}
		}
		return domain.Response{Success: true}
	default:
		return domain.Failure("tab cannot handle action %q", req.Action)
	}
}
