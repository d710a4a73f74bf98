package flowscribe

import (
	"fmt"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// SessionState describes where an in-progress recording is in its lifecycle.
type SessionState int

const (
	SessionStateUnknown   SessionState = 0
	SessionStateIdle      SessionState = 1
	SessionStateRecording SessionState = 2
	SessionStatePaused    SessionState = 3
	sessionStateSentinel  SessionState = 4
)

func (ss SessionState) String() string {
	switch ss {
	case SessionStateIdle:
		return "idle"
	case SessionStateRecording:
		return "recording"
	case SessionStatePaused:
		return "paused"
	default:
		return fmt.Sprintf("SessionState(%d)", ss)
	}
}

func (ss SessionState) Valid() bool {
	return ss > SessionStateUnknown && ss < sessionStateSentinel
}

// Capturing reports whether step capture is permitted in this state.
func (ss SessionState) Capturing() bool {
	return ss == SessionStateRecording
}

// sessionStateTransitions is the single authority on legal state changes:
// idle -> recording -> paused -> recording, and recording|paused -> idle on stop.
var sessionStateTransitions = map[SessionState]map[SessionState]bool{
	SessionStateIdle: {
		SessionStateRecording: true,
	},
	SessionStateRecording: {
		SessionStatePaused: true,
		SessionStateIdle:   true,
	},
	SessionStatePaused: {
		SessionStateRecording: true,
		SessionStateIdle:      true,
	},
}

func validateSessionTransition(s *Session, to SessionState, sentinelErr error) error {
	valid, ok := sessionStateTransitions[s.State]
	if !ok || !valid[to] {
		msg := fmt.Sprintf("cannot transition session state to %v", to.String())
		return errors.Wrap(sentinelErr, msg, j.MKV{
			"tab_id":          s.TabID,
			"state":           s.State.String(),
			"state_int_value": fmt.Sprintf("%d", int(s.State)),
		})
	}
	return nil
}

// Session is the persisted state of an in-progress recording. The Manager owns
// the canonical copy; page agents only send intents against it.
type Session struct {
	State            SessionState `json:"state"`
	Steps            []Step       `json:"steps"`
	CurrentStepIndex int          `json:"currentStepIndex"`
	StartTime        time.Time    `json:"startTime"`
	TabID            string       `json:"tabId"`
}

// StateSummary is the answer to a recording-state query. It is safe to share
// across the message boundary, unlike Session which carries the step payloads.
type StateSummary struct {
	IsRecording bool         `json:"isRecording"`
	StepCount   int          `json:"stepCount"`
	State       SessionState `json:"state"`
	TabID       string       `json:"tabId,omitempty"`
}

// Summary collapses a session, possibly nil, into a StateSummary. A nil
// session reports idle.
func (s *Session) Summary() StateSummary {
	if s == nil {
		return StateSummary{State: SessionStateIdle}
	}
	return StateSummary{
		IsRecording: s.State == SessionStateRecording,
		StepCount:   len(s.Steps),
		State:       s.State,
		TabID:       s.TabID,
	}
}
