// Package playback walks a saved flow against the live page, rendering a
// highlight and tooltip for each step and optionally replaying the step's
// action on advance. Element loss is an expected, non-fatal condition: the
// page has usually drifted since recording and the caller offers a manual
// continue instead.
package playback

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"k8s.io/utils/clock"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/internal/metrics"
)

// State is the engine lifecycle: stopped -> active -> stopped.
type State int

const (
	StateStopped State = 0
	StateActive  State = 1
)

// Key is a keyboard control forwarded by the page adapter. The adapter only
// forwards keys when focus is outside text inputs and contenteditable nodes.
type Key int

const (
	KeyNext     Key = 1
	KeyPrevious Key = 2
	KeyStop     Key = 3
)

// Callbacks surface playback events to the embedding UI. All are optional.
type Callbacks struct {
	// StepShown fires after a step's overlays are rendered.
	StepShown func(index int)
	// ElementLost fires when a step's selector matches nothing on the page.
	// The engine stays active so the user can advance manually.
	ElementLost func(index int)
	// ActionPerformed fires after a step's action was replayed.
	ActionPerformed func(index int)
	// ActionSkipped fires when the dangerous action guard refused a click.
	ActionSkipped func(index int, reason string)
	// Finished fires when the cursor advances past the last step.
	Finished func()
}

const (
	// defaultSettleDelay is the fixed pause after executing an action before
	// advancing. A heuristic for navigations and DOM updates, not a
	// completion signal.
	defaultSettleDelay = 800 * time.Millisecond

	// Tooltip footprint estimate used for placement decisions.
	tooltipWidth  = 280.0
	tooltipHeight = 120.0
)

type Engine struct {
	mu     sync.Mutex
	state  State
	flow   *flowscribe.Flow
	cursor int

	cancelWatch func()

	page   Page
	cb     Callbacks
	logger flowscribe.Logger
	clock  clock.Clock
	settle time.Duration
}

type options struct {
	cb     Callbacks
	logger flowscribe.Logger
	clock  clock.Clock
	settle time.Duration
}

type Option func(*options)

func WithCallbacks(cb Callbacks) Option {
	return func(o *options) {
		o.cb = cb
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

func WithSettleDelay(d time.Duration) Option {
	return func(o *options) {
		o.settle = d
	}
}

func New(page Page, opts ...Option) *Engine {
	opt := options{
		logger: flowscribe.NoopLogger{},
		clock:  clock.RealClock{},
		settle: defaultSettleDelay,
	}
	for _, o := range opts {
		o(&opt)
	}

	return &Engine{
		page:   page,
		cb:     opt.cb,
		logger: opt.logger,
		clock:  opt.clock,
		settle: opt.settle,
	}
}

// Start begins playback of the flow from its first step. An already active
// engine is stopped and restarted with the new flow.
func (e *Engine) Start(ctx context.Context, flow *flowscribe.Flow) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateActive {
		e.stopLocked(ctx)
	}

	e.flow = flow
	e.cursor = 0
	e.state = StateActive
	return e.goToStepLocked(ctx, 0)
}

// GoToStep moves the cursor and renders the step's overlays. Out of range
// indices are a bounds-checked no-op.
func (e *Engine) GoToStep(ctx context.Context, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return errors.Wrap(flowscribe.ErrPlaybackNotActive, "")
	}
	return e.goToStepLocked(ctx, index)
}

func (e *Engine) goToStepLocked(ctx context.Context, index int) error {
	if e.flow == nil || index < 0 || index >= len(e.flow.Steps) {
		return nil
	}
	e.cursor = index
	step := e.flow.Steps[index]

	e.warnOnPathMismatch(ctx, step)

	if step.Meta.Selector == "" {
		// Manual and navigation steps have no target element; the tooltip
		// content is carried by the presenter panel instead.
		e.clearLocked(ctx)
		if e.cb.StepShown != nil {
			e.cb.StepShown(index)
		}
		return nil
	}

	el, err := e.page.Find(ctx, step.Meta.Selector)
	if errors.Is(err, flowscribe.ErrElementNotFound) {
		e.clearLocked(ctx)
		metrics.PlaybackElementLosses.Inc()
		e.logger.Debug(ctx, "playback element not found", flowscribe.MKV{
			"step_id":  step.ID,
			"selector": step.Meta.Selector,
		})
		if e.cb.ElementLost != nil {
			e.cb.ElementLost(index)
		}
		return nil
	} else if err != nil {
		return err
	}

	placement := e.choosePlacement(ctx, el.Rect)
	err = e.page.ShowOverlay(ctx, Overlay{
		Selector:    step.Meta.Selector,
		Explanation: step.Explanation,
		Placement:   placement,
	})
	if err != nil {
		return err
	}

	err = e.page.ScrollIntoView(ctx, step.Meta.Selector)
	if err != nil {
		e.logger.Debug(ctx, "scroll into view failed", flowscribe.MKV{"error": err.Error()})
	}

	e.rewatchLocked(ctx, index)

	if e.cb.StepShown != nil {
		e.cb.StepShown(index)
	}
	return nil
}

// rewatchLocked replaces the mutation watch so a DOM change under the current
// step re-resolves the selector and refreshes or tears down the overlay.
func (e *Engine) rewatchLocked(ctx context.Context, index int) {
	if e.cancelWatch != nil {
		e.cancelWatch()
		e.cancelWatch = nil
	}

	cancel, err := e.page.WatchMutations(ctx, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.state != StateActive || e.cursor != index {
			return
		}
		err := e.goToStepLocked(ctx, index)
		if err != nil {
			e.logger.Error(ctx, err)
		}
	})
	if err != nil {
		e.logger.Debug(ctx, "mutation watch unavailable", flowscribe.MKV{"error": err.Error()})
		return
	}
	e.cancelWatch = cancel
}

// Next executes the current step's action, waits the settle delay for the
// page to react, then advances the cursor.
func (e *Engine) Next(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return errors.Wrap(flowscribe.ErrPlaybackNotActive, "")
	}

	e.executeActionLocked(ctx, e.cursor)
	e.clock.Sleep(e.settle)
	metrics.PlaybackAdvances.Inc()

	next := e.cursor + 1
	if next >= len(e.flow.Steps) {
		e.stopLocked(ctx)
		if e.cb.Finished != nil {
			e.cb.Finished()
		}
		return nil
	}
	return e.goToStepLocked(ctx, next)
}

// Previous moves the cursor back one step. Navigating backward is purely
// observational: no action is executed.
func (e *Engine) Previous(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return errors.Wrap(flowscribe.ErrPlaybackNotActive, "")
	}
	return e.goToStepLocked(ctx, e.cursor-1)
}

// HandleKey maps keyboard controls onto the engine while active.
func (e *Engine) HandleKey(ctx context.Context, k Key) error {
	switch k {
	case KeyNext:
		return e.Next(ctx)
	case KeyPrevious:
		return e.Previous(ctx)
	case KeyStop:
		e.Stop(ctx)
		return nil
	default:
		return nil
	}
}

// Stop tears everything down: observers disconnected, overlay nodes removed,
// flow and cursor cleared. Idempotent and safe to call repeatedly.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(ctx)
}

func (e *Engine) stopLocked(ctx context.Context) {
	e.clearLocked(ctx)
	e.flow = nil
	e.cursor = 0
	e.state = StateStopped
}

func (e *Engine) clearLocked(ctx context.Context) {
	if e.cancelWatch != nil {
		e.cancelWatch()
		e.cancelWatch = nil
	}
	err := e.page.ClearOverlay(ctx)
	if err != nil {
		e.logger.Debug(ctx, "overlay clear failed", flowscribe.MKV{"error": err.Error()})
	}
}

// CurrentState reports the engine state and cursor for UI consumption.
func (e *Engine) CurrentState() (State, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.cursor
}

func (e *Engine) executeActionLocked(ctx context.Context, index int) {
	step := e.flow.Steps[index]

	switch step.Type {
	case flowscribe.StepTypeClick:
		el, err := e.page.Find(ctx, step.Meta.Selector)
		if err != nil {
			e.logger.Debug(ctx, "click target missing, action not replayed", flowscribe.MKV{
				"step_id": step.ID,
			})
			return
		}
		if verb, isDangerous := dangerousAction(el); isDangerous {
			metrics.PlaybackActionsSkipped.Inc()
			e.logger.Debug(ctx, "dangerous action skipped", flowscribe.MKV{
				"step_id": step.ID,
				"verb":    verb,
			})
			if e.cb.ActionSkipped != nil {
				e.cb.ActionSkipped(index, verb)
			}
			return
		}
		err = e.page.Click(ctx, step.Meta.Selector)
		if err != nil {
			e.logger.Error(ctx, err)
			return
		}
		if e.cb.ActionPerformed != nil {
			e.cb.ActionPerformed(index)
		}

	case flowscribe.StepTypeNavigation:
		current, err := e.page.CurrentURL(ctx)
		if err == nil && current == step.URL {
			return
		}
		err = e.page.Navigate(ctx, step.URL)
		if err != nil {
			e.logger.Error(ctx, err)
			return
		}
		if e.cb.ActionPerformed != nil {
			e.cb.ActionPerformed(index)
		}

	case flowscribe.StepTypeInput, flowscribe.StepTypeVisibility, flowscribe.StepTypeManual:
		// Input replay is reserved; visibility and manual carry no action.
	}
}

// warnOnPathMismatch logs when the live URL path differs from the step's
// recorded path. Non fatal: the rep may have navigated manually.
func (e *Engine) warnOnPathMismatch(ctx context.Context, step flowscribe.Step) {
	current, err := e.page.CurrentURL(ctx)
	if err != nil {
		return
	}
	cu, err1 := url.Parse(current)
	su, err2 := url.Parse(step.URL)
	if err1 != nil || err2 != nil {
		return
	}
	if cu.Path != su.Path {
		e.logger.Debug(ctx, "page path differs from recorded step", flowscribe.MKV{
			"current_path": cu.Path,
			"step_path":    su.Path,
		})
	}
}

// choosePlacement prefers the tooltip to the element's right, falling back to
// left, below then above based on available viewport space.
func (e *Engine) choosePlacement(ctx context.Context, r Rect) Placement {
	vw, vh, err := e.page.Viewport(ctx)
	if err != nil {
		return PlacementRight
	}

	switch {
	case r.X+r.Width+tooltipWidth <= vw:
		return PlacementRight
	case r.X-tooltipWidth >= 0:
		return PlacementLeft
	case r.Y+r.Height+tooltipHeight <= vh:
		return PlacementBelow
	default:
		return PlacementAbove
	}
}
