package kds

import (
	"sort"

	"github.com/yeremiapane/kitchen-display/models"
)

// OrderView is one display-ready row.
type OrderView struct {
	models.Order
	DisplayLabel     string `json:"label"`
	RemainingSeconds *int   `json:"remaining_seconds,omitempty"`
	Highlighted      bool   `json:"highlighted"`
	SyncPending      bool   `json:"sync_pending"`
	Error            string `json:"error,omitempty"`
}

// RemainingFunc looks up the countdown of an order.
type RemainingFunc func(id uint) (int, bool)

type ProjectOptions struct {
	// SortByPriority puts high priority orders first (then normal, then
	// low). Otherwise high priority orders are only highlighted.
	SortByPriority bool
}

// Project derives the rows shown for mode. It has no side effects: rows are
// ordered by creation time then id, remaining time is joined for preparing
// orders at call time.
func Project(records []Record, remaining RemainingFunc, mode models.FilterMode, opts ProjectOptions) []OrderView {
	rows := make([]OrderView, 0, len(records))
	for _, r := range records {
		if !mode.Matches(r.Order.Status) {
			continue
		}
		v := OrderView{
			Order:        r.Order,
			DisplayLabel: r.Order.Label(),
			Highlighted:  r.Order.Priority == models.PriorityHigh,
			SyncPending:  r.SyncPending,
			Error:        r.LastError,
		}
		if r.Order.Status == models.StatusPreparing && remaining != nil {
			if secs, ok := remaining(r.Order.ID); ok {
				v.RemainingSeconds = &secs
			}
		}
		rows = append(rows, v)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if opts.SortByPriority {
			if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
				return ra > rb
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return rows
}
