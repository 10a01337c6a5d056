package kds

import (
	"time"

	"github.com/yeremiapane/kitchen-display/models"
)

type ChangeKind int

const (
	ChangeInserted ChangeKind = iota
	ChangeStatus
	ChangePriority
	// ChangeEstimate: a preparing order got its first usable estimate.
	ChangeEstimate
)

// Change describes one mutation the store applied.
type Change struct {
	Kind    ChangeKind
	OrderID uint
	From    models.Status
	To      models.Status
	Order   models.Order
}

// Record is a read-only view of one stored order.
type Record struct {
	Order       models.Order
	SyncPending bool
	LastError   string
}

// AnomalyFunc receives every feed input the store refused to apply.
type AnomalyFunc func(reason string, orderID uint, detail string)

const (
	AnomalyIllegalTransition = "illegal_transition"
	AnomalyTerminal          = "terminal_regression"
	AnomalyStale             = "stale_status"
	AnomalyInvalid           = "invalid_payload"
	AnomalyUnresolved        = "unresolved_event"
	AnomalyBufferFull        = "buffer_full"
)

const maxBufferedEvents = 256

type statusWrite struct {
	prev, next models.Status
}

type priorityWrite struct {
	prev, next models.Priority
}

type entry struct {
	order           models.Order
	pendingStatus   *statusWrite
	pendingPriority *priorityWrite
	terminalAt      time.Time
	lastError       string
}

func (e *entry) syncPending() bool {
	return e.pendingStatus != nil || e.pendingPriority != nil
}

type bufferedEvent struct {
	event   models.FeedEvent
	expires time.Time
}

// Store is the reconciliation store: the canonical in-memory order set.
// It is not safe for concurrent use; the Engine serializes every call.
type Store struct {
	entries   map[uint]*entry
	buffered  []bufferedEvent
	bufferTTL time.Duration
	retention time.Duration
	now       func() time.Time
	anomaly   AnomalyFunc
}

func NewStore(bufferTTL, retention time.Duration, now func() time.Time, anomaly AnomalyFunc) *Store {
	if now == nil {
		now = time.Now
	}
	if anomaly == nil {
		anomaly = func(string, uint, string) {}
	}
	return &Store{
		entries:   make(map[uint]*entry),
		bufferTTL: bufferTTL,
		retention: retention,
		now:       now,
		anomaly:   anomaly,
	}
}

// ApplyFullSnapshot merges an authoritative listing. Unknown orders are
// inserted, known ones go through the merge rule. Orders missing from the
// snapshot are kept.
func (s *Store) ApplyFullSnapshot(orders []models.Order) []Change {
	var changes []Change
	for _, incoming := range orders {
		if !validOrder(incoming) {
			s.anomaly(AnomalyInvalid, incoming.ID, "snapshot order rejected")
			continue
		}
		e, ok := s.entries[incoming.ID]
		if !ok {
			changes = append(changes, s.insert(incoming))
			continue
		}
		hadEstimate := e.order.HasEstimate()
		s.refreshAttributes(e, incoming)
		c, moved := s.mergeStatus(e, incoming.Status)
		if moved {
			changes = append(changes, c)
		}
		if !moved && !hadEstimate && e.order.HasEstimate() && e.order.Status == models.StatusPreparing {
			changes = append(changes, Change{Kind: ChangeEstimate, OrderID: e.order.ID, From: e.order.Status, To: e.order.Status, Order: e.order.Clone()})
		}
		if c, ok := s.mergePriority(e, incoming.Priority); ok {
			changes = append(changes, c)
		}
	}
	return append(changes, s.replayBuffered()...)
}

// ApplyPushEvent merges one push event. Status changes for unknown orders
// are buffered until a snapshot introduces the order or the buffer TTL ends.
func (s *Store) ApplyPushEvent(ev models.FeedEvent) []Change {
	switch ev.Type {
	case models.FeedNewOrder:
		if ev.Order == nil || !validOrder(*ev.Order) {
			s.anomaly(AnomalyInvalid, ev.OrderID, "new order event without a valid order")
			return nil
		}
		if _, ok := s.entries[ev.Order.ID]; ok {
			return nil
		}
		changes := []Change{s.insert(*ev.Order)}
		return append(changes, s.replayBuffered()...)
	case models.FeedStatusChanged:
		if ev.OrderID == 0 || !ev.Status.Valid() {
			s.anomaly(AnomalyInvalid, ev.OrderID, "status event with unknown status "+string(ev.Status))
			return nil
		}
		e, ok := s.entries[ev.OrderID]
		if !ok {
			s.buffer(ev)
			return nil
		}
		if c, ok := s.mergeStatus(e, ev.Status); ok {
			return []Change{c}
		}
	}
	return nil
}

// ApplyLocalStatusChange applies an optimistic status write. The change stays
// tagged as pending until ConfirmLocalStatus or RollbackLocalStatus.
func (s *Store) ApplyLocalStatusChange(id uint, next models.Status) (Change, error) {
	e, ok := s.entries[id]
	if !ok {
		return Change{}, ErrOrderNotFound
	}
	cur := e.order.Status
	if cur.IsTerminal() {
		return Change{}, ErrTerminalOrder
	}
	if e.pendingStatus != nil {
		return Change{}, ErrCommandInFlight
	}
	if !cur.CanTransition(next) {
		return Change{}, ErrIllegalTransition
	}
	e.pendingStatus = &statusWrite{prev: cur, next: next}
	e.order.Status = next
	e.lastError = ""
	return Change{Kind: ChangeStatus, OrderID: id, From: cur, To: next, Order: e.order.Clone()}, nil
}

func (s *Store) ConfirmLocalStatus(id uint) bool {
	e, ok := s.entries[id]
	if !ok || e.pendingStatus == nil {
		return false
	}
	e.pendingStatus = nil
	if e.order.Status.IsTerminal() && e.terminalAt.IsZero() {
		e.terminalAt = s.now()
	}
	return true
}

// RollbackLocalStatus restores the status held before the optimistic write
// and records reason as the order's last error.
func (s *Store) RollbackLocalStatus(id uint, reason string) (Change, bool) {
	e, ok := s.entries[id]
	if !ok || e.pendingStatus == nil {
		return Change{}, false
	}
	w := e.pendingStatus
	e.pendingStatus = nil
	e.order.Status = w.prev
	e.lastError = reason
	return Change{Kind: ChangeStatus, OrderID: id, From: w.next, To: w.prev, Order: e.order.Clone()}, true
}

func (s *Store) ApplyLocalPriorityChange(id uint, next models.Priority) (models.Priority, error) {
	if !next.Valid() {
		return "", ErrInvalidPriority
	}
	e, ok := s.entries[id]
	if !ok {
		return "", ErrOrderNotFound
	}
	if e.order.Status.IsTerminal() {
		return "", ErrTerminalOrder
	}
	if e.pendingPriority != nil {
		return "", ErrCommandInFlight
	}
	prev := e.order.Priority
	e.pendingPriority = &priorityWrite{prev: prev, next: next}
	e.order.Priority = next
	e.lastError = ""
	return prev, nil
}

func (s *Store) ConfirmLocalPriority(id uint) bool {
	e, ok := s.entries[id]
	if !ok || e.pendingPriority == nil {
		return false
	}
	e.pendingPriority = nil
	return true
}

func (s *Store) RollbackLocalPriority(id uint, reason string) bool {
	e, ok := s.entries[id]
	if !ok || e.pendingPriority == nil {
		return false
	}
	e.order.Priority = e.pendingPriority.prev
	e.pendingPriority = nil
	e.lastError = reason
	return true
}

func (s *Store) Get(id uint) (Record, bool) {
	e, ok := s.entries[id]
	if !ok {
		return Record{}, false
	}
	return e.record(), true
}

// List returns copies of the stored orders matching filter, in no particular order.
func (s *Store) List(filter models.FilterMode) []Record {
	out := make([]Record, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Matches(e.order.Status) {
			out = append(out, e.record())
		}
	}
	return out
}

func (s *Store) Len() int { return len(s.entries) }

// BufferedEvents reports how many push events await their order.
func (s *Store) BufferedEvents() int { return len(s.buffered) }

// Sweep expires buffered events past their TTL and prunes terminal orders
// older than the retention window. It returns the pruned order ids.
func (s *Store) Sweep() []uint {
	now := s.now()
	kept := s.buffered[:0]
	for _, b := range s.buffered {
		if now.After(b.expires) {
			s.anomaly(AnomalyUnresolved, b.event.OrderID, "status event for unknown order discarded")
			continue
		}
		kept = append(kept, b)
	}
	s.buffered = kept

	if s.retention <= 0 {
		return nil
	}
	var pruned []uint
	for id, e := range s.entries {
		if e.terminalAt.IsZero() || e.syncPending() {
			continue
		}
		if now.Sub(e.terminalAt) > s.retention {
			delete(s.entries, id)
			pruned = append(pruned, id)
		}
	}
	return pruned
}

func (s *Store) insert(o models.Order) Change {
	o = o.Clone()
	if !o.Priority.Valid() {
		o.Priority = models.PriorityNormal
	}
	e := &entry{order: o}
	if o.Status.IsTerminal() {
		e.terminalAt = s.now()
	}
	s.entries[o.ID] = e
	return Change{Kind: ChangeInserted, OrderID: o.ID, To: o.Status, Order: o.Clone()}
}

// refreshAttributes adopts descriptive fields from the feed. Items are
// immutable once the order is known.
func (s *Store) refreshAttributes(e *entry, in models.Order) {
	items := e.order.OrderItems
	status := e.order.Status
	priority := e.order.Priority
	e.order = in.Clone()
	e.order.OrderItems = items
	e.order.Status = status
	e.order.Priority = priority
}

// mergeStatus is the merge rule shared by snapshots and push events.
func (s *Store) mergeStatus(e *entry, incoming models.Status) (Change, bool) {
	cur := e.order.Status
	if incoming == cur {
		return Change{}, false
	}
	// optimistic writes win until the command resolves
	if e.pendingStatus != nil {
		return Change{}, false
	}
	if cur.IsTerminal() {
		s.anomaly(AnomalyTerminal, e.order.ID, string(cur)+" -> "+string(incoming))
		return Change{}, false
	}
	if !cur.CanReach(incoming) {
		reason := AnomalyIllegalTransition
		if incoming.CanReach(cur) {
			reason = AnomalyStale
		}
		s.anomaly(reason, e.order.ID, string(cur)+" -> "+string(incoming))
		return Change{}, false
	}
	e.order.Status = incoming
	if incoming.IsTerminal() {
		e.terminalAt = s.now()
	}
	return Change{Kind: ChangeStatus, OrderID: e.order.ID, From: cur, To: incoming, Order: e.order.Clone()}, true
}

func (s *Store) mergePriority(e *entry, incoming models.Priority) (Change, bool) {
	if !incoming.Valid() || incoming == e.order.Priority {
		return Change{}, false
	}
	if e.pendingPriority != nil || e.order.Status.IsTerminal() {
		return Change{}, false
	}
	e.order.Priority = incoming
	return Change{Kind: ChangePriority, OrderID: e.order.ID, From: e.order.Status, To: e.order.Status, Order: e.order.Clone()}, true
}

func (s *Store) buffer(ev models.FeedEvent) {
	if len(s.buffered) >= maxBufferedEvents {
		dropped := s.buffered[0]
		// copy down so the backing array does not keep growing
		n := copy(s.buffered, s.buffered[1:])
		s.buffered = s.buffered[:n]
		s.anomaly(AnomalyBufferFull, dropped.event.OrderID, "oldest buffered event dropped")
	}
	s.buffered = append(s.buffered, bufferedEvent{event: ev, expires: s.now().Add(s.bufferTTL)})
}

// replayBuffered applies buffered events whose order is now known, in arrival order.
func (s *Store) replayBuffered() []Change {
	if len(s.buffered) == 0 {
		return nil
	}
	var changes []Change
	kept := s.buffered[:0]
	for _, b := range s.buffered {
		e, ok := s.entries[b.event.OrderID]
		if !ok {
			kept = append(kept, b)
			continue
		}
		if c, ok := s.mergeStatus(e, b.event.Status); ok {
			changes = append(changes, c)
		}
	}
	s.buffered = kept
	return changes
}

func (e *entry) record() Record {
	return Record{Order: e.order.Clone(), SyncPending: e.syncPending(), LastError: e.lastError}
}

func validOrder(o models.Order) bool {
	if o.ID == 0 || !o.Status.Valid() {
		return false
	}
	for _, it := range o.OrderItems {
		if it.Quantity <= 0 {
			return false
		}
	}
	return true
}
