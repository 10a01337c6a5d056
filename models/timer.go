package models

import "time"

type TimerState struct {
	OrderID   uint      `json:"order_id"`
	Total     int       `json:"total_seconds"`
	Remaining int       `json:"remaining_seconds"`
	StartedAt time.Time `json:"started_at"`
	Episode   int       `json:"episode"`
}
