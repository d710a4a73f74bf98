package flowscribe

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"k8s.io/utils/clock"
)

// ScreenshotCapturer is the privileged capture collaborator. Only the
// privileged process can read tab pixels; page agents round trip through it.
type ScreenshotCapturer interface {
	CaptureViewport(ctx context.Context, tabID string) ([]byte, error)
}

// Handler dispatches protocol requests onto the session manager, flow store
// and screenshot collaborators. Errors never escape as panics or raw failures:
// every outcome is folded into the Response envelope.
type Handler struct {
	manager  *Manager
	flows    *FlowStore
	blobs    BlobStore
	capturer ScreenshotCapturer
	logger   Logger
	clock    clock.Clock
}

type handlerOptions struct {
	capturer ScreenshotCapturer
	logger   Logger
	clock    clock.Clock
}

type HandlerOption func(*handlerOptions)

func WithHandlerCapturer(c ScreenshotCapturer) HandlerOption {
	return func(o *handlerOptions) {
		o.capturer = c
	}
}

func WithHandlerLogger(l Logger) HandlerOption {
	return func(o *handlerOptions) {
		o.logger = l
	}
}

func WithHandlerClock(c clock.Clock) HandlerOption {
	return func(o *handlerOptions) {
		o.clock = c
	}
}

func NewHandler(manager *Manager, flows *FlowStore, blobs BlobStore, opts ...HandlerOption) *Handler {
	opt := handlerOptions{
		logger: NoopLogger{},
		clock:  clock.RealClock{},
	}
	for _, o := range opts {
		o(&opt)
	}

	return &Handler{
		manager:  manager,
		flows:    flows,
		blobs:    blobs,
		capturer: opt.capturer,
		logger:   opt.logger,
		clock:    opt.clock,
	}
}

// Handle processes one request and always returns a response envelope. The
// switch is exhaustive over every Kind; unknown kinds fail in the envelope.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	switch req.Kind {
	case KindStartRecording:
		var p StartRecordingPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		summary, err := h.manager.StartRecording(ctx, p.TabID)
		return h.respond(ctx, summary, err)

	case KindStopRecording:
		steps, err := h.manager.StopRecording(ctx)
		return h.respond(ctx, StopRecordingResult{Steps: steps}, err)

	case KindPauseRecording:
		summary, err := h.manager.PauseRecording(ctx)
		return h.respond(ctx, summary, err)

	case KindResumeRecording:
		summary, err := h.manager.ResumeRecording(ctx)
		return h.respond(ctx, summary, err)

	case KindAddStep:
		var p AddStepPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		err := h.manager.AddStep(ctx, p.Step)
		return h.respond(ctx, nil, err)

	case KindAddManualStep:
		var p AddManualStepPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		step, err := manualStep(p.Explanation, p.URL, h.clock.Now())
		if err != nil {
			return h.respond(ctx, nil, err)
		}
		err = h.manager.AddStep(ctx, step)
		return h.respond(ctx, nil, err)

	case KindUndoLastStep:
		err := h.manager.UndoLastStep(ctx)
		return h.respond(ctx, nil, err)

	case KindGetRecordingState:
		summary, err := h.manager.RecordingState(ctx)
		return h.respond(ctx, summary, err)

	case KindCaptureScreenshot:
		var p CaptureScreenshotPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		if h.capturer == nil {
			return h.respond(ctx, nil, errors.Wrap(ErrScreenshotUnavailable, "no capturer configured"))
		}
		raw, err := h.capturer.CaptureViewport(ctx, p.TabID)
		return h.respond(ctx, CaptureScreenshotResult{RawImageData: raw}, err)

	case KindSaveScreenshot:
		var p SaveScreenshotPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		err := h.blobs.Put(ctx, BlobKey(p.FlowID, p.StepID), p.Blob)
		return h.respond(ctx, nil, err)

	case KindDeleteScreenshots:
		var p DeleteScreenshotsPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		err := h.blobs.DeletePrefix(ctx, p.FlowID)
		return h.respond(ctx, nil, err)

	case KindGetFlows:
		flows, err := h.flows.GetAllFlows(ctx)
		return h.respond(ctx, GetFlowsResult{Flows: flows}, err)

	case KindSaveFlow:
		var p SaveFlowPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		err := h.flows.SaveFlow(ctx, &p.Flow)
		return h.respond(ctx, p.Flow, err)

	case KindDeleteFlow:
		var p FlowIDPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		err := h.flows.DeleteFlow(ctx, p.FlowID)
		return h.respond(ctx, nil, err)

	case KindExportFlow:
		var p FlowIDPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		data, err := h.flows.ExportFlow(ctx, p.FlowID)
		return h.respond(ctx, json.RawMessage(data), err)

	case KindImportFlow:
		var p ImportFlowPayload
		if resp, ok := h.decode(req, &p); !ok {
			return resp
		}
		flow, err := h.flows.ImportFlow(ctx, p.Data)
		return h.respond(ctx, flow, err)

	default:
		return h.respond(ctx, nil, errors.Wrap(ErrUnknownMessageKind, string(req.Kind)))
	}
}

func (h *Handler) decode(req Request, into any) (Response, bool) {
	if len(req.Payload) == 0 {
		err := errors.Wrap(ErrMissingPayload, string(req.Kind))
		return Response{Success: false, Error: err.Error()}, false
	}
	err := json.Unmarshal(req.Payload, into)
	if err != nil {
		return Response{Success: false, Error: err.Error()}, false
	}
	return Response{}, true
}

func (h *Handler) respond(ctx context.Context, data any, err error) Response {
	if err != nil {
		// No active session is an expected race with torn down pages, so it
		// stays at debug level rather than being reported as a failure worth
		// paging on.
		if errors.Is(err, ErrNoActiveSession) {
			h.logger.Debug(ctx, "request raced session teardown", MKV{"error": err.Error()})
		} else {
			h.logger.Error(ctx, err)
		}
		return Response{Success: false, Error: err.Error()}
	}

	resp := Response{Success: true}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Response{Success: false, Error: err.Error()}
		}
		resp.Data = b
	}
	return resp
}

// manualStep synthesises the step record for a user supplied annotation. It
// has no element and no screenshot. An empty annotation is rejected here,
// before the session is touched.
func manualStep(explanation, pageURL string, now time.Time) (Step, error) {
	if strings.TrimSpace(explanation) == "" {
		return Step{}, errors.Wrap(ErrInvalidStep, "manual step explanation is empty")
	}
	return Step{
		ID:          uuid.New().String(),
		Type:        StepTypeManual,
		URL:         pageURL,
		Explanation: TruncateExplanation(explanation),
		Meta:        StepMeta{Timestamp: now},
	}, nil
}
