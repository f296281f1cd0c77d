package queue

import "fmt"

// allowedTransitions is the full legal state machine. Forward movement is
// monotonic; the only reversals are error → uploaded (retry) and
// {uploaded, transcribing} → error (cancel or failure).
var allowedTransitions = map[Status][]Status{
	StatusUploaded:     {StatusTranscribing, StatusError},
	StatusTranscribing: {StatusEnhanced, StatusInitial, StatusError},
	StatusError:        {StatusUploaded},
	StatusInitial:      {StatusReviewed},
	StatusEnhanced:     {StatusReviewed},
	StatusReviewed:     {StatusInProgress},
	StatusInProgress:   {StatusClosed},
	StatusClosed:       {StatusArchived},
}

// IllegalTransitionError reports a rejected status change.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an IllegalTransitionError when the move is not
// permitted by the state machine.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}
