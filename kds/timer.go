package kds

import (
	"sort"
	"time"

	"github.com/yeremiapane/kitchen-display/models"
)

// Expiry is emitted once when a countdown crosses from >0 to 0.
type Expiry struct {
	OrderID uint
	Episode int
}

type countdown struct {
	total     int
	remaining int
	anchor    time.Time
	episode   int
}

// TimerEngine keeps one countdown per order under preparation. Remaining
// time is recomputed from the wall clock on every tick, so a host that was
// suspended catches up on the next tick instead of drifting.
type TimerEngine struct {
	timers   map[uint]*countdown
	episodes map[uint]int
	now      func() time.Time
}

func NewTimerEngine(now func() time.Time) *TimerEngine {
	if now == nil {
		now = time.Now
	}
	return &TimerEngine{
		timers:   make(map[uint]*countdown),
		episodes: make(map[uint]int),
		now:      now,
	}
}

// OnOrderEnteredPreparing starts a countdown of minutes×60 seconds anchored at
// anchor (now when zero or in the future). It is a no-op when a countdown
// already exists or minutes is not positive. A countdown that is already
// exhausted at creation never emits an expiry.
func (t *TimerEngine) OnOrderEnteredPreparing(id uint, minutes int, anchor time.Time) bool {
	if minutes <= 0 {
		return false
	}
	if _, ok := t.timers[id]; ok {
		return false
	}
	now := t.now()
	if anchor.IsZero() || anchor.After(now) {
		anchor = now
	}
	t.episodes[id]++
	c := &countdown{total: minutes * 60, anchor: anchor, episode: t.episodes[id]}
	c.remaining = c.compute(now)
	t.timers[id] = c
	return true
}

func (t *TimerEngine) OnOrderLeftPreparing(id uint) bool {
	if _, ok := t.timers[id]; !ok {
		return false
	}
	delete(t.timers, id)
	return true
}

// Tick advances every countdown and returns the expiries crossed on this
// tick, sorted by order id.
func (t *TimerEngine) Tick() []Expiry {
	now := t.now()
	var expired []Expiry
	for id, c := range t.timers {
		prev := c.remaining
		c.remaining = c.compute(now)
		if prev > 0 && c.remaining == 0 {
			expired = append(expired, Expiry{OrderID: id, Episode: c.episode})
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].OrderID < expired[j].OrderID })
	return expired
}

func (t *TimerEngine) Remaining(id uint) (int, bool) {
	c, ok := t.timers[id]
	if !ok {
		return 0, false
	}
	return c.remaining, true
}

func (t *TimerEngine) Active() int { return len(t.timers) }

// Forget drops the countdown and the episode counter of a pruned order.
func (t *TimerEngine) Forget(id uint) {
	delete(t.timers, id)
	delete(t.episodes, id)
}

func (t *TimerEngine) States() []models.TimerState {
	out := make([]models.TimerState, 0, len(t.timers))
	for id, c := range t.timers {
		out = append(out, models.TimerState{
			OrderID:   id,
			Total:     c.total,
			Remaining: c.remaining,
			StartedAt: c.anchor,
			Episode:   c.episode,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (c *countdown) compute(now time.Time) int {
	elapsed := int(now.Sub(c.anchor) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	rem := c.total - elapsed
	if rem < 0 {
		return 0
	}
	return rem
}
