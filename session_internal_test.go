package flowscribe

import (
	"testing"

	"github.com/luno/jettison/jtest"
)

func TestValidateSessionTransition(t *testing.T) {
	testCases := []struct {
		name        string
		from        SessionState
		to          SessionState
		expectedErr error
	}{
		{
			name: "idle to recording",
			from: SessionStateIdle,
			to:   SessionStateRecording,
		},
		{
			name:        "idle to paused",
			from:        SessionStateIdle,
			to:          SessionStatePaused,
			expectedErr: ErrUnableToPause,
		},
		{
			name: "recording to paused",
			from: SessionStateRecording,
			to:   SessionStatePaused,
		},
		{
			name: "recording to idle",
			from: SessionStateRecording,
			to:   SessionStateIdle,
		},
		{
			name: "paused to recording",
			from: SessionStatePaused,
			to:   SessionStateRecording,
		},
		{
			name: "paused to idle",
			from: SessionStatePaused,
			to:   SessionStateIdle,
		},
		{
			name:        "recording to recording",
			from:        SessionStateRecording,
			to:          SessionStateRecording,
			expectedErr: ErrUnableToResume,
		},
		{
			name:        "paused to paused",
			from:        SessionStatePaused,
			to:          SessionStatePaused,
			expectedErr: ErrUnableToPause,
		},
		{
			name:        "unknown state",
			from:        SessionStateUnknown,
			to:          SessionStateRecording,
			expectedErr: ErrUnableToResume,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sentinel := tc.expectedErr
			if sentinel == nil {
				sentinel = ErrUnableToPause
			}

			err := validateSessionTransition(&Session{State: tc.from, TabID: "tab-1"}, tc.to, sentinel)
			if tc.expectedErr == nil {
				jtest.RequireNil(t, err)
			} else {
				jtest.Require(t, tc.expectedErr, err)
			}
		})
	}
}

func TestSessionSummaryNil(t *testing.T) {
	var s *Session
	summary := s.Summary()
	if summary.State != SessionStateIdle || summary.IsRecording || summary.StepCount != 0 {
		t.Fatalf("nil session summary not idle: %+v", summary)
	}
}
