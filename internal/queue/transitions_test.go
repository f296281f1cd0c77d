package queue

import (
	"errors"
	"testing"
)

func TestCanTransitionWorkerPath(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusUploaded, StatusTranscribing, true},
		{StatusTranscribing, StatusEnhanced, true},
		{StatusTranscribing, StatusInitial, true},
		{StatusTranscribing, StatusError, true},
		{StatusUploaded, StatusError, true},
		{StatusError, StatusUploaded, true},
		{StatusEnhanced, StatusReviewed, true},
		{StatusInitial, StatusReviewed, true},
		{StatusReviewed, StatusInProgress, true},
		{StatusInProgress, StatusClosed, true},
		{StatusClosed, StatusArchived, true},

		{StatusUploaded, StatusEnhanced, false},
		{StatusEnhanced, StatusUploaded, false},
		{StatusError, StatusTranscribing, false},
		{StatusArchived, StatusUploaded, false},
		{StatusTranscribing, StatusUploaded, false},
		{StatusInitial, StatusEnhanced, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestCheckTransitionReturnsTypedError(t *testing.T) {
	err := CheckTransition(StatusEnhanced, StatusTranscribing)
	if err == nil {
		t.Fatal("expected illegal transition error")
	}
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransitionError, got %T", err)
	}
	if illegal.From != StatusEnhanced || illegal.To != StatusTranscribing {
		t.Fatalf("unexpected error payload: %+v", illegal)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" Uploaded "); !ok || status != StatusUploaded {
		t.Fatalf("ParseStatus normalization failed: %q %v", status, ok)
	}
	if _, ok := ParseStatus("ripping"); ok {
		t.Fatal("unknown status should not parse")
	}
	if _, ok := ParseStatus(""); ok {
		t.Fatal("empty status should not parse")
	}
}
