package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusUploaded     Status = "uploaded"
	StatusTranscribing Status = "transcribing"
	StatusInitial      Status = "initial"
	StatusEnhanced     Status = "enhanced"
	StatusError        Status = "error"
	StatusReviewed     Status = "reviewed"
	StatusInProgress   Status = "in_progress"
	StatusClosed       Status = "closed"
	StatusArchived     Status = "archived"
)

// CancelReason is the error message recorded when a user cancels an item
// without deleting it.
const CancelReason = "Cancelled by user"

var allStatuses = []Status{
	StatusUploaded,
	StatusTranscribing,
	StatusInitial,
	StatusEnhanced,
	StatusError,
	StatusReviewed,
	StatusInProgress,
	StatusClosed,
	StatusArchived,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Item represents a queue item persisted in SQLite. One item corresponds to
// one uploaded audio file and carries its transcript once processing ends.
type Item struct {
	ID           string
	Title        string
	Status       Status
	AudioPath    string
	ContentHash  string
	ErrorMessage string
	RawText      string
	FinalText    string
	MetadataJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transition is one entry in an item's append-only status history.
type Transition struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsPending reports whether the item is waiting to be processed.
func (i Item) IsPending() bool { return i.Status == StatusUploaded }

// IsProcessing reports whether the item is actively being transcribed.
func (i Item) IsProcessing() bool { return i.Status == StatusTranscribing }

// IsConcluded reports whether the item has left the worker's reach.
func (i Item) IsConcluded() bool {
	return i.Status != StatusUploaded && i.Status != StatusTranscribing
}
