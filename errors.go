package flowscribe

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrNoActiveSession       = errors.New("no active recording session", j.C("ERR_8f21c4a97d03be51"))
	ErrSessionNotFound       = errors.New("recording session not found", j.C("ERR_4be09a113fc87d26"))
	ErrSessionOtherTab       = errors.New("a recording session is active on another tab", j.C("ERR_d50c7e2b91a6f438"))
	ErrFlowNotFound          = errors.New("flow not found", j.C("ERR_2ac8f0d6be174e93"))
	ErrInvalidFlow           = errors.New("flow failed validation", j.C("ERR_97d3e5a20cb1f864"))
	ErrInvalidStep           = errors.New("step failed validation", j.C("ERR_60b8c2f4a1d97e35"))
	ErrInvalidStepType       = errors.New("unknown step type", j.C("ERR_cf1742e98b05da63"))
	ErrUnableToPause         = errors.New("recording is unable to be paused", j.C("ERR_3e95ab07c6d21f84"))
	ErrUnableToResume        = errors.New("recording is unable to be resumed", j.C("ERR_b1d64f83a29c07e5"))
	ErrKeyNotFound           = errors.New("key not found", j.C("ERR_75a0c9e3d48b162f"))
	ErrBlobNotFound          = errors.New("blob not found", j.C("ERR_e83b17f62c94ad05"))
	ErrUnknownMessageKind    = errors.New("unknown message kind", j.C("ERR_19f6d4b28e73ca50"))
	ErrMissingPayload        = errors.New("message payload missing for kind", j.C("ERR_a42e91c7f58d03b6"))
	ErrElementNotFound       = errors.New("element not found on page", j.C("ERR_5c30f8a1b96e47d2"))
	ErrNoSelectorCandidate   = errors.New("no selector candidate for node", j.C("ERR_fd18b5c09327ae64"))
	ErrPageNotReady          = errors.New("page agent is not ready - refresh the page and retry", j.C("ERR_31ce7a94d0f582b6"))
	ErrPlaybackNotActive     = errors.New("playback is not active", j.C("ERR_c6a2d17f49e80b53"))
	ErrScreenshotUnavailable = errors.New("screenshot capture unavailable", j.C("ERR_08e5b3d7a61f29c4"))
)

func wrapInvalidFlow(msg string) error {
	return errors.Wrap(ErrInvalidFlow, msg)
}

func wrapInvalidStep(msg string) error {
	return errors.Wrap(ErrInvalidStep, msg)
}
