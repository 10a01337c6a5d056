package models

import "fmt"

type FilterMode string

const (
	FilterAll       FilterMode = "all"
	FilterActive    FilterMode = "active"
	FilterReady     FilterMode = "ready"
	FilterCompleted FilterMode = "completed"
)

func ParseFilterMode(s string) (FilterMode, error) {
	switch m := FilterMode(s); m {
	case FilterAll, FilterActive, FilterReady, FilterCompleted:
		return m, nil
	case "":
		return FilterAll, nil
	}
	return "", fmt.Errorf("unknown filter mode %q", s)
}

// Matches reports whether an order with the given status belongs in the filter.
func (m FilterMode) Matches(s Status) bool {
	switch m {
	case FilterActive:
		return s == StatusPending || s == StatusPreparing
	case FilterReady:
		return s == StatusReady
	case FilterCompleted:
		return s.IsTerminal()
	case FilterAll:
		return true
	}
	return false
}

func (m FilterMode) Valid() bool {
	switch m {
	case FilterAll, FilterActive, FilterReady, FilterCompleted:
		return true
	}
	return false
}
