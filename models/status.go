package models

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// transitions lists the legal direct successors of each status.
var transitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusCompleted},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal -> completed/cancelled tidak bisa berubah lagi
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether next is a legal direct successor of s.
func (s Status) CanTransition(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CanReach reports whether next is reachable from s through one or more legal
// transitions. Feeds may skip intermediate states (a snapshot taken after an
// order went straight through preparing), so merges use reachability rather
// than direct succession.
func (s Status) CanReach(next Status) bool {
	if s == next {
		return false
	}
	seen := map[Status]bool{s: true}
	queue := []Status{s}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, succ := range transitions[cur] {
			if succ == next {
				return true
			}
			if !seen[succ] {
				seen[succ] = true
				queue = append(queue, succ)
			}
		}
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown order priority %q", s)
	}
	return p, nil
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities for sorting, higher first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	}
	return 1
}
