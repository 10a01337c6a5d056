package models

import "time"

// ConnectionState describes the health of the push channel and the pull fallback.
type ConnectionState struct {
	Connected     bool       `json:"connected"`
	Error         string     `json:"error,omitempty"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastSyncError string     `json:"last_sync_error,omitempty"`
}

func (c ConnectionState) Degraded() bool {
	return !c.Connected || c.LastSyncError != ""
}
