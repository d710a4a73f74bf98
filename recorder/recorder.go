// Package recorder translates raw page events into step records while a
// recording session is active. It never owns the canonical step list: every
// completed step is sent as an intent to the session manager, which is the
// single authority on acceptance and ordering.
package recorder

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"golang.org/x/net/html"
	"k8s.io/utils/clock"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/locator"
	"github.com/flowscribe/flowscribe/screenshot"
)

// SessionClient is the recorder's view of the session manager across the
// message boundary. The in-process *flowscribe.Manager satisfies it directly.
type SessionClient interface {
	AddStep(ctx context.Context, step flowscribe.Step) error
	RecordingState(ctx context.Context) (flowscribe.StateSummary, error)
}

var _ SessionClient = (*flowscribe.Manager)(nil)

// ClickEvent is what the injected capture script reports for a click seen in
// the capturing phase. DocumentHTML is the serialised document at event time
// and Path locates the clicked element within it.
type ClickEvent struct {
	URL          string `json:"url"`
	DocumentHTML string `json:"documentHTML"`
	Path         string `json:"path"`
	// OnOverlay is set by the script when the click landed on one of our own
	// overlay nodes; such clicks are never recorded.
	OnOverlay bool `json:"onOverlay"`
}

type Recorder struct {
	mu       sync.Mutex
	attached bool
	paused   bool
	tabID    string

	client   SessionClient
	capturer flowscribe.ScreenshotCapturer
	pipeline *screenshot.Pipeline
	logger   flowscribe.Logger
	clock    clock.Clock
}

type options struct {
	capturer flowscribe.ScreenshotCapturer
	pipeline *screenshot.Pipeline
	logger   flowscribe.Logger
	clock    clock.Clock
}

type Option func(*options)

// WithScreenshots wires the privileged capture call and the processing
// pipeline. Without it steps are recorded without visual context.
func WithScreenshots(c flowscribe.ScreenshotCapturer, p *screenshot.Pipeline) Option {
	return func(o *options) {
		o.capturer = c
		o.pipeline = p
	}
}

func WithLogger(l flowscribe.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func New(client SessionClient, opts ...Option) *Recorder {
	opt := options{
		logger: flowscribe.NoopLogger{},
		clock:  clock.RealClock{},
	}
	for _, o := range opts {
		o(&opt)
	}

	return &Recorder{
		client:   client,
		capturer: opt.capturer,
		pipeline: opt.pipeline,
		logger:   opt.logger,
		clock:    opt.clock,
	}
}

// Start attaches the click listener state for the given tab. The tab id is
// remembered for screenshot capture requests, which only the privileged
// process can serve.
func (r *Recorder) Start(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = true
	r.paused = false
	r.tabID = tabID
}

func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

func (r *Recorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
}

// Stop detaches all listener state. Step retrieval authority lives with the
// session manager, so Stop has nothing to return.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = false
	r.paused = false
}

// Attached reports whether the recorder is currently capturing or paused.
func (r *Recorder) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attached
}

func (r *Recorder) capturing() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tabID, r.attached && !r.paused
}

// AutoResume is called on every page load. It asks the session manager for the
// current state and re-attaches when a recording owns this tab, which is what
// lets a recording survive a same-tab navigation.
func (r *Recorder) AutoResume(ctx context.Context, tabID string) (bool, error) {
	summary, err := r.client.RecordingState(ctx)
	if err != nil {
		return false, err
	}
	if summary.State != flowscribe.SessionStateRecording && summary.State != flowscribe.SessionStatePaused {
		return false, nil
	}
	if summary.TabID != "" && summary.TabID != tabID {
		return false, nil
	}

	r.Start(tabID)
	if summary.State == flowscribe.SessionStatePaused {
		r.Pause()
	}
	return true, nil
}

// HandleClick processes one reported click into a step. Clicks on overlay
// nodes and on password inputs are dropped; credentials must never be
// captured. Screenshot failures are logged and never block the step.
func (r *Recorder) HandleClick(ctx context.Context, ev ClickEvent) error {
	tabID, ok := r.capturing()
	if !ok {
		return nil
	}
	if ev.OnOverlay {
		return nil
	}

	doc, err := html.Parse(strings.NewReader(ev.DocumentHTML))
	if err != nil {
		return errors.Wrap(err, "click document does not parse")
	}
	node, err := locator.Resolve(doc, ev.Path)
	if err != nil {
		return errors.Wrap(err, "clicked element not found in document snapshot")
	}

	if isPasswordInput(node) {
		r.logger.Debug(ctx, "ignored click on password input", flowscribe.MKV{"url": ev.URL})
		return nil
	}

	cand, err := locator.Generate(node)
	if err != nil {
		return err
	}

	step := flowscribe.Step{
		ID:          uuid.New().String(),
		Type:        flowscribe.StepTypeClick,
		URL:         ev.URL,
		Explanation: Explain(node),
		Meta: flowscribe.StepMeta{
			ElementText: locator.Text(node),
			NodeType:    locator.TagName(node),
			Selector:    cand.Selector,
			Timestamp:   r.clock.Now(),
		},
	}

	r.attachScreenshot(ctx, tabID, &step)
	return r.client.AddStep(ctx, step)
}

// HandleNavigation records a navigation step when the page moves to a new URL
// while capturing.
func (r *Recorder) HandleNavigation(ctx context.Context, toURL string) error {
	_, ok := r.capturing()
	if !ok {
		return nil
	}

	step := flowscribe.Step{
		ID:          uuid.New().String(),
		Type:        flowscribe.StepTypeNavigation,
		URL:         toURL,
		Explanation: flowscribe.TruncateExplanation("Navigate to "+toURL),
		Meta: flowscribe.StepMeta{
			Timestamp: r.clock.Now(),
		},
	}
	return r.client.AddStep(ctx, step)
}

// AddManualStep synthesises a manual annotation step with the supplied page
// URL and no element. An empty annotation is rejected before the session is
// touched.
func (r *Recorder) AddManualStep(ctx context.Context, explanation, pageURL string) error {
	if strings.TrimSpace(explanation) == "" {
		return errors.Wrap(flowscribe.ErrInvalidStep, "manual step explanation is empty")
	}
	step := flowscribe.Step{
		ID:          uuid.New().String(),
		Type:        flowscribe.StepTypeManual,
		URL:         pageURL,
		Explanation: flowscribe.TruncateExplanation(explanation),
		Meta: flowscribe.StepMeta{
			Timestamp: r.clock.Now(),
		},
	}
	return r.client.AddStep(ctx, step)
}

func (r *Recorder) attachScreenshot(ctx context.Context, tabID string, step *flowscribe.Step) {
	if r.capturer == nil || r.pipeline == nil {
		return
	}

	raw, err := r.capturer.CaptureViewport(ctx, tabID)
	if err != nil {
		r.logger.Debug(ctx, "screenshot capture failed, recording step without it", flowscribe.MKV{
			"step_id": step.ID,
			"error":   err.Error(),
		})
		return
	}
	processed, err := r.pipeline.Process(raw)
	if err != nil {
		r.logger.Debug(ctx, "screenshot processing failed, recording step without it", flowscribe.MKV{
			"step_id": step.ID,
			"error":   err.Error(),
		})
		return
	}
	screenshot.Attach(step, processed)
}

func isPasswordInput(n *html.Node) bool {
	return locator.TagName(n) == "input" &&
		strings.EqualFold(locator.Attr(n, "type"), "password")
}
