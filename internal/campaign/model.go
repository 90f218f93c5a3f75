package campaign

import (
	"time"
)

// Status is the delivery lifecycle of one message row.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusReplied   Status = "replied"
	StatusError     Status = "error"

	// StatusDone is a derived batch roll-up only, never stored on a message row.
	StatusDone Status = "done"
)

var statusRank = map[Status]int{
	StatusError:     0,
	StatusQueued:    1,
	StatusSending:   2,
	StatusSent:      3,
	StatusDelivered: 4,
	StatusRead:      5,
	StatusReplied:   6,
}

// Rank returns the fixed total order used to resolve concurrent status
// observations (error < queued < sending < sent < delivered < read < replied).
func Rank(s Status) int {
	r, ok := statusRank[s]
	if !ok {
		return statusRank[StatusQueued]
	}
	return r
}

// Terminal reports whether a row has left the queued/sending phase.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusReplied, StatusError:
		return true
	}
	return false
}

// Contact is one targeting-list entry. Number is the raw value as supplied;
// canonicalization happens at expansion time.
type Contact struct {
	Name   string `json:"nome"`
	Number string `json:"numero"`
}

// Job is a single pending send: one contact, one scheduled moment, one
// template variant. MessageID is zero until the backing row is persisted.
type Job struct {
	To          string
	Text        string
	BatchID     int64
	MessageID   int64
	ScheduledAt time.Time
}

// Batch owns the ordered pending queue of one campaign run. InProgress is a
// drain guard, not a cross-process lock.
type Batch struct {
	ID         int64
	CreatedAt  time.Time
	Jobs       []*Job
	InProgress bool
}

// Progress is the queryable state of one batch.
type Progress struct {
	BatchID    int64    `json:"batch_id"`
	Sent       int      `json:"sent"`
	Failed     int      `json:"failed"`
	Queued     int      `json:"queued"`
	InProgress bool     `json:"in_progress"`
	Errors     []string `json:"errors"`
}
