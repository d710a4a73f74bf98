package flowscribe

import (
	"encoding/json"
)

// Kind discriminates the request/response protocol between page agents, remote
// UI callers and the privileged process. One payload type exists per kind; the
// handler switch is exhaustive over every kind below.
type Kind string

const (
	KindStartRecording    Kind = "START_RECORDING"
	KindStopRecording     Kind = "STOP_RECORDING"
	KindPauseRecording    Kind = "PAUSE_RECORDING"
	KindResumeRecording   Kind = "RESUME_RECORDING"
	KindAddStep           Kind = "ADD_STEP"
	KindAddManualStep     Kind = "ADD_MANUAL_STEP"
	KindUndoLastStep      Kind = "UNDO_LAST_STEP"
	KindGetRecordingState Kind = "GET_RECORDING_STATE"
	KindCaptureScreenshot Kind = "CAPTURE_SCREENSHOT"
	KindSaveScreenshot    Kind = "SAVE_SCREENSHOT"
	KindDeleteScreenshots Kind = "DELETE_SCREENSHOTS"
	KindGetFlows          Kind = "GET_FLOWS"
	KindSaveFlow          Kind = "SAVE_FLOW"
	KindDeleteFlow        Kind = "DELETE_FLOW"
	KindExportFlow        Kind = "EXPORT_FLOW"
	KindImportFlow        Kind = "IMPORT_FLOW"
)

func (k Kind) Valid() bool {
	switch k {
	case KindStartRecording, KindStopRecording, KindPauseRecording,
		KindResumeRecording, KindAddStep, KindAddManualStep, KindUndoLastStep,
		KindGetRecordingState, KindCaptureScreenshot, KindSaveScreenshot,
		KindDeleteScreenshots, KindGetFlows, KindSaveFlow, KindDeleteFlow,
		KindExportFlow, KindImportFlow:
		return true
	default:
		return false
	}
}

// Request is the JSON serialisable envelope crossing the process boundary.
// Payload is decoded into the kind's payload type inside the handler.
type Request struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the uniform result envelope. Handler errors are always reported
// through it, never thrown across the message boundary, so a failed call stays
// distinguishable from a disconnected peer.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type StartRecordingPayload struct {
	TabID string `json:"tabId,omitempty"`
}

type AddStepPayload struct {
	Step Step `json:"step"`
}

type AddManualStepPayload struct {
	Explanation string `json:"explanation"`
	URL         string `json:"url"`
}

type CaptureScreenshotPayload struct {
	TabID string `json:"tabId"`
}

type SaveScreenshotPayload struct {
	FlowID string `json:"flowId"`
	StepID string `json:"stepId"`
	Blob   []byte `json:"blob"`
}

type DeleteScreenshotsPayload struct {
	FlowID string `json:"flowId"`
}

type SaveFlowPayload struct {
	Flow Flow `json:"flow"`
}

type FlowIDPayload struct {
	FlowID string `json:"flowId"`
}

type ImportFlowPayload struct {
	Data json.RawMessage `json:"data"`
}

type StopRecordingResult struct {
	Steps []Step `json:"steps"`
}

type CaptureScreenshotResult struct {
	RawImageData []byte `json:"rawImageData"`
}

type GetFlowsResult struct {
	Flows []Flow `json:"flows"`
}

// NewRequest builds a request envelope from a typed payload.
func NewRequest(kind Kind, payload any) (Request, error) {
	req := Request{Kind: kind}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Request{}, err
		}
		req.Payload = b
	}
	return req, nil
}
