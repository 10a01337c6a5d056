package kds

import (
	"time"

	"github.com/yeremiapane/kitchen-display/models"
)

const DefaultNotificationLimit = 5

type alertKey struct {
	kind    models.NotificationKind
	orderID uint
	cause   string
}

// Alerter decides whether an alert fires. Suppression is keyed on the order
// id plus the observed cause (status or timer episode), never on arrival.
type Alerter struct {
	fired  map[alertKey]struct{}
	recent []models.Notification
	limit  int
	muted  bool
	now    func() time.Time
}

func NewAlerter(limit int, now func() time.Time) *Alerter {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	if now == nil {
		now = time.Now
	}
	return &Alerter{
		fired: make(map[alertKey]struct{}),
		limit: limit,
		now:   now,
	}
}

// Notify fires an alert once per (kind, order, cause). The returned
// notification is audible unless muted; a muted alert is still logged.
func (a *Alerter) Notify(kind models.NotificationKind, orderID uint, cause, message string) (models.Notification, bool) {
	key := alertKey{kind: kind, orderID: orderID, cause: cause}
	if _, ok := a.fired[key]; ok {
		return models.Notification{}, false
	}
	a.fired[key] = struct{}{}
	return a.record(kind, orderID, message, !a.muted), true
}

// Record logs a notification without deduplication and without sound.
func (a *Alerter) Record(kind models.NotificationKind, orderID uint, message string) models.Notification {
	return a.record(kind, orderID, message, false)
}

func (a *Alerter) SetMute(muted bool) { a.muted = muted }

func (a *Alerter) Muted() bool { return a.muted }

// Recent returns the retained notifications, newest first.
func (a *Alerter) Recent() []models.Notification {
	out := make([]models.Notification, len(a.recent))
	for i, n := range a.recent {
		out[len(a.recent)-1-i] = n
	}
	return out
}

// Forget releases the suppression keys held for an order that left the store.
func (a *Alerter) Forget(orderID uint) {
	for k := range a.fired {
		if k.orderID == orderID {
			delete(a.fired, k)
		}
	}
}

func (a *Alerter) record(kind models.NotificationKind, orderID uint, message string, audible bool) models.Notification {
	n := models.Notification{
		Kind:      kind,
		OrderID:   orderID,
		Message:   message,
		Audible:   audible,
		CreatedAt: a.now(),
	}
	a.recent = append(a.recent, n)
	if len(a.recent) > a.limit {
		a.recent = a.recent[len(a.recent)-a.limit:]
	}
	return n
}
