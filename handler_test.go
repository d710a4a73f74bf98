package flowscribe_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/adapters/memstore"
)

type fakeCapturer struct {
	image []byte
	err   error
	calls []string
}

func (f *fakeCapturer) CaptureViewport(ctx context.Context, tabID string) ([]byte, error) {
	f.calls = append(f.calls, tabID)
	return f.image, f.err
}

func newHandler(t *testing.T, opts ...flowscribe.HandlerOption) (*flowscribe.Handler, *memstore.BlobStore) {
	t.Helper()
	kv := memstore.New()
	blobs := memstore.NewBlobStore()
	manager := flowscribe.NewManager(flowscribe.NewSessionStore(kv))
	flows := flowscribe.NewFlowStore(kv, blobs)
	return flowscribe.NewHandler(manager, flows, blobs, opts...), blobs
}

func mustRequest(t *testing.T, kind flowscribe.Kind, payload any) flowscribe.Request {
	t.Helper()
	req, err := flowscribe.NewRequest(kind, payload)
	jtest.RequireNil(t, err)
	return req
}

func TestHandleRecordingLifecycle(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	resp := h.Handle(ctx, mustRequest(t, flowscribe.KindStartRecording,
		flowscribe.StartRecordingPayload{TabID: "tab-1"}))
	require.True(t, resp.Success)

	var summary flowscribe.StateSummary
	jtest.RequireNil(t, json.Unmarshal(resp.Data, &summary))
	require.True(t, summary.IsRecording)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindAddStep,
		flowscribe.AddStepPayload{Step: clickStep("step-0")}))
	require.True(t, resp.Success)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindAddManualStep,
		flowscribe.AddManualStepPayload{Explanation: "Check the banner", URL: "https://example.com"}))
	require.True(t, resp.Success)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindGetRecordingState, nil))
	require.True(t, resp.Success)
	jtest.RequireNil(t, json.Unmarshal(resp.Data, &summary))
	require.Equal(t, 2, summary.StepCount)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindUndoLastStep, nil))
	require.True(t, resp.Success)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindStopRecording, nil))
	require.True(t, resp.Success)

	var stopped flowscribe.StopRecordingResult
	jtest.RequireNil(t, json.Unmarshal(resp.Data, &stopped))
	require.Len(t, stopped.Steps, 1)
	require.Equal(t, "step-0", stopped.Steps[0].ID)
	require.Equal(t, 0, stopped.Steps[0].Order)
}

func TestHandleManualStepValidation(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	resp := h.Handle(ctx, mustRequest(t, flowscribe.KindStartRecording,
		flowscribe.StartRecordingPayload{TabID: "tab-1"}))
	require.True(t, resp.Success)

	// A whitespace only annotation is rejected before the session is touched.
	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindAddManualStep,
		flowscribe.AddManualStepPayload{Explanation: "   ", URL: "https://example.com"}))
	require.False(t, resp.Success)
	require.NotEmpty(t, resp.Error)

	var summary flowscribe.StateSummary
	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindGetRecordingState, nil))
	require.True(t, resp.Success)
	jtest.RequireNil(t, json.Unmarshal(resp.Data, &summary))
	require.Equal(t, 0, summary.StepCount)

	// An over long multi byte annotation is truncated on a rune boundary and
	// the stored step stays valid UTF-8.
	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindAddManualStep,
		flowscribe.AddManualStepPayload{
			Explanation: strings.Repeat("д", flowscribe.MaxExplanationLength+50),
			URL:         "https://example.com",
		}))
	require.True(t, resp.Success)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindStopRecording, nil))
	require.True(t, resp.Success)

	var stopped flowscribe.StopRecordingResult
	jtest.RequireNil(t, json.Unmarshal(resp.Data, &stopped))
	require.Len(t, stopped.Steps, 1)
	require.True(t, utf8.ValidString(stopped.Steps[0].Explanation))
	require.Equal(t, flowscribe.MaxExplanationLength, utf8.RuneCountInString(stopped.Steps[0].Explanation))
}

func TestHandleEnvelopeNeverThrows(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	// A stray step with no session is a soft failure in the envelope.
	resp := h.Handle(ctx, mustRequest(t, flowscribe.KindAddStep,
		flowscribe.AddStepPayload{Step: clickStep("stray")}))
	require.False(t, resp.Success)
	require.NotEmpty(t, resp.Error)

	// Unknown kind.
	resp = h.Handle(ctx, flowscribe.Request{Kind: "EXPLODE"})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "unknown message kind")

	// Kind that needs a payload, sent without one.
	resp = h.Handle(ctx, flowscribe.Request{Kind: flowscribe.KindAddStep})
	require.False(t, resp.Success)

	// Malformed payload bytes.
	resp = h.Handle(ctx, flowscribe.Request{
		Kind:    flowscribe.KindAddStep,
		Payload: []byte("{nope"),
	})
	require.False(t, resp.Success)
}

func TestHandleCaptureScreenshot(t *testing.T) {
	ctx := context.Background()

	// Without a capturer configured the call fails gracefully.
	h, _ := newHandler(t)
	resp := h.Handle(ctx, mustRequest(t, flowscribe.KindCaptureScreenshot,
		flowscribe.CaptureScreenshotPayload{TabID: "tab-1"}))
	require.False(t, resp.Success)

	capturer := &fakeCapturer{image: []byte("png-bytes")}
	h, _ = newHandler(t, flowscribe.WithHandlerCapturer(capturer))
	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindCaptureScreenshot,
		flowscribe.CaptureScreenshotPayload{TabID: "tab-1"}))
	require.True(t, resp.Success)
	require.Equal(t, []string{"tab-1"}, capturer.calls)

	var res flowscribe.CaptureScreenshotResult
	jtest.RequireNil(t, json.Unmarshal(resp.Data, &res))
	require.Equal(t, []byte("png-bytes"), res.RawImageData)

	// Capture failure folds into the envelope, it never panics the handler.
	capturer.err = errors.New("restricted origin")
	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindCaptureScreenshot,
		flowscribe.CaptureScreenshotPayload{TabID: "tab-1"}))
	require.False(t, resp.Success)
}

func TestHandleScreenshotBlobs(t *testing.T) {
	ctx := context.Background()
	h, blobs := newHandler(t)

	resp := h.Handle(ctx, mustRequest(t, flowscribe.KindSaveScreenshot,
		flowscribe.SaveScreenshotPayload{FlowID: "flow-1", StepID: "step-0", Blob: []byte("shot")}))
	require.True(t, resp.Success)

	b, err := blobs.Get(ctx, flowscribe.BlobKey("flow-1", "step-0"))
	jtest.RequireNil(t, err)
	require.Equal(t, []byte("shot"), b)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindDeleteScreenshots,
		flowscribe.DeleteScreenshotsPayload{FlowID: "flow-1"}))
	require.True(t, resp.Success)
	require.Equal(t, 0, blobs.Len())
}

func TestHandleFlowOperations(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	flow := validFlow()
	resp := h.Handle(ctx, mustRequest(t, flowscribe.KindSaveFlow,
		flowscribe.SaveFlowPayload{Flow: flow}))
	require.True(t, resp.Success)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindGetFlows, nil))
	require.True(t, resp.Success)
	var flows flowscribe.GetFlowsResult
	jtest.RequireNil(t, json.Unmarshal(resp.Data, &flows))
	require.Len(t, flows.Flows, 1)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindExportFlow,
		flowscribe.FlowIDPayload{FlowID: flow.ID}))
	require.True(t, resp.Success)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindImportFlow,
		flowscribe.ImportFlowPayload{Data: resp.Data}))
	require.True(t, resp.Success)
	var imported flowscribe.Flow
	jtest.RequireNil(t, json.Unmarshal(resp.Data, &imported))
	require.NotEqual(t, flow.ID, imported.ID)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindDeleteFlow,
		flowscribe.FlowIDPayload{FlowID: flow.ID}))
	require.True(t, resp.Success)

	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindDeleteFlow,
		flowscribe.FlowIDPayload{FlowID: flow.ID}))
	require.False(t, resp.Success)

	// An invalid flow is rejected before persistence.
	bad := validFlow()
	bad.ID = ""
	resp = h.Handle(ctx, mustRequest(t, flowscribe.KindSaveFlow,
		flowscribe.SaveFlowPayload{Flow: bad}))
	require.False(t, resp.Success)
}
