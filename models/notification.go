package models

import (
	"time"
)

type NotificationKind string

const (
	NotificationNewOrder     NotificationKind = "new_order"
	NotificationTimerExpired NotificationKind = "timer_expired"
	NotificationOrderReady   NotificationKind = "order_ready"
	NotificationCommandError NotificationKind = "command_error"
)

// Notification adalah catatan singkat untuk operator dapur, tidak disimpan ke DB.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	OrderID   uint             `json:"order_id"`
	Message   string           `json:"message"`
	Audible   bool             `json:"audible"`
	CreatedAt time.Time        `json:"created_at"`
}
