package models

import "fmt"

var transitions = map[Status][]Status{
	StatusQueued:    {StatusSending, StatusSent, StatusQueued},
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusRead},
	StatusDelivered: {StatusRead},
	StatusFailed:    {StatusSending},
}

// Validate returns an error for unknown status values.
func (s Status) Validate() error {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid message status %q", s)
	}
}

// CanTransition reports whether a message may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Rank orders confirmed statuses along the happy path. Local-only statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Confirmed reports whether the server has acknowledged the message.
func (s Status) Confirmed() bool {
	return s.Rank() > 0
}

// Later returns whichever of the two confirmed statuses is further along.
func Later(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
