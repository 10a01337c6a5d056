package kds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yeremiapane/kitchen-display/models"
)

// Snapshotter fetches the full current order set from the feed.
type Snapshotter interface {
	FetchSnapshot(ctx context.Context) ([]models.Order, error)
}

// Commander confirms status and priority changes with the feed.
type Commander interface {
	ConfirmStatus(ctx context.Context, id uint, status models.Status) error
	ConfirmPriority(ctx context.Context, id uint, priority models.Priority) error
}

// PushSource delivers push events until ctx is done. Implementations own
// reconnection and report link state through onState.
type PushSource interface {
	Subscribe(ctx context.Context, onEvent func(models.FeedEvent), onState func(connected bool, err error)) error
}

// Listener is told about alerts and store changes after the engine lock is
// released. Implementations must not call back into blocking engine methods.
type Listener interface {
	OnAlert(n models.Notification)
	OnOrdersChanged()
}

type Config struct {
	PollInterval         time.Duration
	DegradedPollInterval time.Duration
	TickInterval         time.Duration
	FetchTimeout         time.Duration
	CommandTimeout       time.Duration
	Retention            time.Duration
	// EventBufferTTL bounds how long a status event for an unknown order
	// waits for a snapshot. Defaults to PollInterval.
	EventBufferTTL    time.Duration
	NotificationLimit int
	SortByPriority    bool
}

func DefaultConfig() Config {
	return Config{
		PollInterval:         30 * time.Second,
		DegradedPollInterval: 10 * time.Second,
		TickInterval:         time.Second,
		FetchTimeout:         10 * time.Second,
		CommandTimeout:       10 * time.Second,
		Retention:            30 * time.Minute,
		NotificationLimit:    DefaultNotificationLimit,
	}
}

type Option func(*Engine)

func WithPushSource(p PushSource) Option { return func(e *Engine) { e.push = p } }

func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// Engine owns the kitchen display state for one session. Every mutation of
// the store, timers and alerter goes through mu.
type Engine struct {
	cfg       Config
	snapshots Snapshotter
	commands  Commander
	push      PushSource
	log       logrus.FieldLogger
	metrics   *Metrics
	now       func() time.Time
	listeners []Listener

	mu     sync.Mutex
	store  *Store
	timers *TimerEngine
	alerts *Alerter
	conn   models.ConnectionState
	filter models.FilterMode

	// expiries held back while the order is optimistically out of preparing
	heldExpiry map[uint]Expiry

	refresh chan struct{}
}

func NewEngine(cfg Config, snapshots Snapshotter, commands Commander, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.DegradedPollInterval <= 0 || cfg.DegradedPollInterval > cfg.PollInterval {
		cfg.DegradedPollInterval = cfg.PollInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.EventBufferTTL <= 0 {
		cfg.EventBufferTTL = cfg.PollInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}

	e := &Engine{
		cfg:        cfg,
		snapshots:  snapshots,
		commands:   commands,
		log:        logrus.StandardLogger(),
		now:        time.Now,
		filter:     models.FilterActive,
		heldExpiry: make(map[uint]Expiry),
		refresh:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(prometheus.NewRegistry())
	}
	e.store = NewStore(cfg.EventBufferTTL, cfg.Retention, e.now, e.anomaly)
	e.timers = NewTimerEngine(e.now)
	e.alerts = NewAlerter(cfg.NotificationLimit, e.now)
	if e.push == nil {
		e.conn.Error = "push channel disabled"
	}
	return e
}

// Run performs the initial sync and drives the poll, push and tick loops
// until ctx is cancelled. It returns after every loop has exited.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.pollLoop(ctx) })
	g.Go(func() error { return e.tickLoop(ctx) })
	if e.push != nil {
		g.Go(func() error { return e.pushLoop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RequestRefresh asks the poll loop for an immediate snapshot. Requests
// arriving while one is queued are coalesced.
func (e *Engine) RequestRefresh() {
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

// Sync fetches one snapshot and merges it. A failed fetch leaves the store
// untouched.
func (e *Engine) Sync(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	orders, err := e.snapshots.FetchSnapshot(fctx)
	e.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.mu.Lock()
		e.conn.LastSyncError = err.Error()
		e.mu.Unlock()
		e.log.WithError(err).Warn("snapshot fetch failed, keeping last known state")
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	e.mu.Lock()
	changes := e.store.ApplyFullSnapshot(orders)
	out := e.react(changes)
	now := e.now()
	e.conn.LastSyncAt = &now
	e.conn.LastSyncError = ""
	e.mu.Unlock()

	e.metrics.EventsApplied.WithLabelValues("snapshot").Inc()
	e.log.WithFields(logrus.Fields{"orders": len(orders), "changes": len(changes)}).Debug("snapshot merged")
	e.dispatch(out)
	return nil
}

// HandlePushEvent merges one push event. Refresh hints trigger a snapshot.
func (e *Engine) HandlePushEvent(ev models.FeedEvent) {
	if ev.Type == models.FeedRefreshHint {
		e.metrics.EventsApplied.WithLabelValues("refresh_hint").Inc()
		e.RequestRefresh()
		return
	}

	e.mu.Lock()
	changes := e.store.ApplyPushEvent(ev)
	out := e.react(changes)
	e.mu.Unlock()

	e.metrics.EventsApplied.WithLabelValues("push").Inc()
	e.dispatch(out)
}

// SetPushState records the push channel link state. Any change of state
// triggers a resync: after a reconnect to catch up, after a disconnect to
// lean on polling straight away.
func (e *Engine) SetPushState(connected bool, err error) {
	e.mu.Lock()
	changed := e.conn.Connected != connected
	e.conn.Connected = connected
	e.conn.Error = ""
	if err != nil {
		e.conn.Error = err.Error()
	} else if !connected {
		e.conn.Error = "push channel disconnected"
	}
	e.mu.Unlock()

	if connected {
		e.metrics.PushConnected.Set(1)
	} else {
		e.metrics.PushConnected.Set(0)
	}
	if changed {
		e.log.WithField("connected", connected).Info("push channel state changed")
		e.RequestRefresh()
	}
}

// Tick advances the countdowns, fires expiry alerts and sweeps the store.
func (e *Engine) Tick() {
	e.mu.Lock()
	var out outbox
	for _, x := range e.timers.Tick() {
		// the order already shows as ready or cancelled, wait for the confirmation
		if r, ok := e.store.Get(x.OrderID); ok && r.Order.Status != models.StatusPreparing {
			e.heldExpiry[x.OrderID] = x
			continue
		}
		if n, ok := e.expiryAlert(x); ok {
			out.alerts = append(out.alerts, n)
		}
	}
	for _, id := range e.store.Sweep() {
		e.timers.Forget(id)
		e.alerts.Forget(id)
		delete(e.heldExpiry, id)
		out.changed = true
	}
	active := e.timers.Active()
	e.mu.Unlock()

	e.metrics.ActiveTimers.Set(float64(active))
	if len(out.alerts) > 0 {
		out.changed = true
	}
	e.dispatch(out)
}

func (e *Engine) ProjectedOrders(mode models.FilterMode) ([]OrderView, error) {
	if !mode.Valid() {
		return nil, ErrInvalidFilter
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Project(e.store.List(mode), e.timers.Remaining, mode, ProjectOptions{SortByPriority: e.cfg.SortByPriority}), nil
}

func (e *Engine) ProjectedOrdersForCurrentFilter() []OrderView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Project(e.store.List(e.filter), e.timers.Remaining, e.filter, ProjectOptions{SortByPriority: e.cfg.SortByPriority})
}

func (e *Engine) Order(id uint) (OrderView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.store.Get(id)
	if !ok {
		return OrderView{}, false
	}
	rows := Project([]Record{r}, e.timers.Remaining, models.FilterAll, ProjectOptions{})
	return rows[0], true
}

func (e *Engine) Remaining(id uint) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timers.Remaining(id)
}

func (e *Engine) Timers() []models.TimerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timers.States()
}

func (e *Engine) ConnectionState() models.ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.conn
	if c.LastSyncAt != nil {
		t := *c.LastSyncAt
		c.LastSyncAt = &t
	}
	return c
}

func (e *Engine) RecentNotifications() []models.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alerts.Recent()
}

func (e *Engine) SetMute(muted bool) {
	e.mu.Lock()
	e.alerts.SetMute(muted)
	e.mu.Unlock()
}

func (e *Engine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alerts.Muted()
}

func (e *Engine) SetFilterMode(mode models.FilterMode) error {
	if !mode.Valid() {
		return ErrInvalidFilter
	}
	e.mu.Lock()
	e.filter = mode
	e.mu.Unlock()
	return nil
}

func (e *Engine) FilterMode() models.FilterMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

func (e *Engine) pollLoop(ctx context.Context) error {
	_ = e.Sync(ctx)

	timer := time.NewTimer(e.pollInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-e.refresh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		_ = e.Sync(ctx)
		timer.Reset(e.pollInterval())
	}
}

func (e *Engine) pollInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.push == nil || !e.conn.Connected {
		return e.cfg.DegradedPollInterval
	}
	return e.cfg.PollInterval
}

func (e *Engine) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Tick()
		}
	}
}

func (e *Engine) pushLoop(ctx context.Context) error {
	err := e.push.Subscribe(ctx, e.HandlePushEvent, e.SetPushState)
	if err != nil && ctx.Err() == nil {
		e.log.WithError(err).Error("push channel stopped, continuing on polling only")
		e.SetPushState(false, err)
	}
	return nil
}

type outbox struct {
	alerts  []models.Notification
	changed bool
}

// react updates timers and alerts for store changes. Caller holds mu.
func (e *Engine) react(changes []Change) outbox {
	var out outbox
	for _, c := range changes {
		out.changed = true
		switch c.Kind {
		case ChangeInserted:
			if c.To == models.StatusPreparing {
				e.startTimer(c.Order)
			}
			if c.To == models.StatusPending {
				msg := fmt.Sprintf("New order: %s", c.Order.Label())
				if n, ok := e.alerts.Notify(models.NotificationNewOrder, c.OrderID, string(models.StatusPending), msg); ok {
					out.alerts = append(out.alerts, n)
				}
			}
		case ChangeStatus:
			if c.From == models.StatusPreparing {
				e.timers.OnOrderLeftPreparing(c.OrderID)
			}
			if c.To == models.StatusPreparing {
				e.startTimer(c.Order)
			}
		case ChangeEstimate:
			if c.Order.Status == models.StatusPreparing {
				e.startTimer(c.Order)
			}
		}
	}
	return out
}

// expiryAlert fires the timer expiry alert of one episode. Caller holds mu.
func (e *Engine) expiryAlert(x Expiry) (models.Notification, bool) {
	msg := fmt.Sprintf("Order #%d preparation time is up", x.OrderID)
	if r, ok := e.store.Get(x.OrderID); ok {
		msg = fmt.Sprintf("%s: preparation time is up", r.Order.Label())
	}
	return e.alerts.Notify(models.NotificationTimerExpired, x.OrderID, fmt.Sprintf("episode-%d", x.Episode), msg)
}

func (e *Engine) startTimer(o models.Order) {
	if !o.HasEstimate() {
		return
	}
	var anchor time.Time
	if o.StartCookingTime != nil {
		anchor = *o.StartCookingTime
	}
	e.timers.OnOrderEnteredPreparing(o.ID, *o.PrepMinutes, anchor)
}

func (e *Engine) anomaly(reason string, orderID uint, detail string) {
	e.metrics.Anomalies.WithLabelValues(reason).Inc()
	entry := e.log.WithFields(logrus.Fields{"order_id": orderID, "reason": reason})
	if reason == AnomalyStale {
		entry.Debug(detail)
		return
	}
	entry.Warn(detail)
}

// dispatch notifies listeners. Must be called without holding mu.
func (e *Engine) dispatch(out outbox) {
	for _, n := range out.alerts {
		e.metrics.Alerts.WithLabelValues(string(n.Kind), fmt.Sprint(n.Audible)).Inc()
		e.log.WithFields(logrus.Fields{"order_id": n.OrderID, "kind": n.Kind, "audible": n.Audible}).Info(n.Message)
		for _, l := range e.listeners {
			l.OnAlert(n)
		}
	}
	if out.changed {
		for _, l := range e.listeners {
			l.OnOrdersChanged()
		}
	}
}
