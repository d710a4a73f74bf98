package flowscribe

import (
	"context"
	"strconv"
	"sync"

	"github.com/luno/jettison/errors"
	"k8s.io/utils/clock"

	"github.com/flowscribe/flowscribe/internal/metrics"
)

// Notifier is the best-effort channel back to the page agent. Every call may
// fail because the remote page can vanish at any moment; the Manager logs such
// failures and carries on, relying on the agent's own auto-resume query.
type Notifier interface {
	RecordingStarted(ctx context.Context, tabID string) error
	RecordingPaused(ctx context.Context, tabID string) error
	RecordingResumed(ctx context.Context, tabID string) error
	RecordingStopped(ctx context.Context, tabID string) error
}

// NoopNotifier is used when no page agent is wired up, e.g. in tests.
type NoopNotifier struct{}

func (NoopNotifier) RecordingStarted(ctx context.Context, tabID string) error { return nil }
func (NoopNotifier) RecordingPaused(ctx context.Context, tabID string) error  { return nil }
func (NoopNotifier) RecordingResumed(ctx context.Context, tabID string) error { return nil }
func (NoopNotifier) RecordingStopped(ctx context.Context, tabID string) error { return nil }

var _ Notifier = NoopNotifier{}

// Manager is the single source of truth for whether a recording is happening
// and what it has captured so far. All step order assignment is serialised
// through it, and every mutation is persisted before the call returns so a
// process restart can reconstruct the session.
type Manager struct {
	mu      sync.Mutex
	session *Session

	store    *SessionStore
	notifier Notifier
	logger   Logger
	clock    clock.Clock
}

type managerOptions struct {
	notifier Notifier
	logger   Logger
	clock    clock.Clock
}

type ManagerOption func(*managerOptions)

func WithNotifier(n Notifier) ManagerOption {
	return func(o *managerOptions) {
		o.notifier = n
	}
}

func WithManagerLogger(l Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = l
	}
}

func WithManagerClock(c clock.Clock) ManagerOption {
	return func(o *managerOptions) {
		o.clock = c
	}
}

func NewManager(store *SessionStore, opts ...ManagerOption) *Manager {
	opt := managerOptions{
		notifier: NoopNotifier{},
		logger:   NoopLogger{},
		clock:    clock.RealClock{},
	}
	for _, o := range opts {
		o(&opt)
	}

	return &Manager{
		store:    store,
		notifier: opt.notifier,
		logger:   opt.logger,
		clock:    opt.clock,
	}
}

// resolution names the stage at which a session lookup was satisfied. The
// memory -> persisted -> idle fallback is the core restart resilience
// mechanism and each stage is independently testable.
type resolution int

const (
	resolvedFromMemory resolution = 1
	resolvedFromStore  resolution = 2
	resolvedIdle       resolution = 3
)

// resolveSession must be called with m.mu held. A session recovered from the
// persisted store is rehydrated into memory so subsequent lookups hit stage one.
func (m *Manager) resolveSession(ctx context.Context) (*Session, resolution, error) {
	if m.session != nil {
		return m.session, resolvedFromMemory, nil
	}

	session, err := m.store.Load(ctx)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, resolvedIdle, nil
	} else if err != nil {
		return nil, resolvedIdle, err
	}

	m.session = session
	metrics.SessionsActive.Set(1)
	return session, resolvedFromStore, nil
}

// StartRecording creates a new session pinned to tabID. If a session already
// exists the existing state is returned unchanged, whichever tab owns it, so
// repeated start requests from the UI stay idempotent.
func (m *Manager) StartRecording(ctx context.Context, tabID string) (StateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, _, err := m.resolveSession(ctx)
	if err != nil {
		return StateSummary{}, err
	}
	if existing != nil {
		if existing.TabID != tabID {
			m.logger.Debug(ctx, "start recording ignored, session owned by another tab", MKV{
				"requested_tab_id": tabID,
				"session_tab_id":   existing.TabID,
			})
		}
		return existing.Summary(), nil
	}

	session := &Session{
		State:     SessionStateRecording,
		Steps:     []Step{},
		StartTime: m.clock.Now(),
		TabID:     tabID,
	}
	err = m.store.Save(ctx, session)
	if err != nil {
		return StateSummary{}, err
	}
	m.session = session
	metrics.SessionsActive.Set(1)

	// Best effort: the page agent may not be loaded yet. It will auto resume
	// on its own load via RecordingState.
	err = m.notifier.RecordingStarted(ctx, tabID)
	if err != nil {
		m.logger.Debug(ctx, "page agent not notified of recording start", MKV{
			"tab_id": tabID,
			"error":  err.Error(),
		})
	}

	return session.Summary(), nil
}

// AddStep accepts a captured step, assigns its authoritative order and
// persists. A step arriving with no active session is a deliberate soft fail:
// a stray late message from a torn down page must not corrupt a new session.
func (m *Manager) AddStep(ctx context.Context, step Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, _, err := m.resolveSession(ctx)
	if err != nil {
		return err
	}
	if session == nil || !session.State.Capturing() {
		m.logger.Debug(ctx, "step rejected, no active recording session", MKV{
			"step_id":   step.ID,
			"step_type": step.Type.String(),
		})
		return errors.Wrap(ErrNoActiveSession, "")
	}

	step.Order = len(session.Steps)
	// Reject malformed input here rather than at save time, where a single
	// bad step would make the whole recording unsaveable.
	if err := step.Validate(); err != nil {
		return err
	}
	session.Steps = append(session.Steps, step)
	session.CurrentStepIndex = len(session.Steps) - 1

	err = m.store.Save(ctx, session)
	if err != nil {
		return err
	}

	metrics.StepsRecorded.WithLabelValues(step.Type.String()).Inc()
	m.logger.Debug(ctx, "step recorded", MKV{
		"step_id": step.ID,
		"order":   strconv.Itoa(step.Order),
	})
	return nil
}

// PauseRecording moves the session to paused and tells the page agent to stop
// capturing.
func (m *Manager) PauseRecording(ctx context.Context) (StateSummary, error) {
	return m.transition(ctx, SessionStatePaused, ErrUnableToPause, m.notifier.RecordingPaused)
}

// ResumeRecording moves a paused session back to recording.
func (m *Manager) ResumeRecording(ctx context.Context) (StateSummary, error) {
	return m.transition(ctx, SessionStateRecording, ErrUnableToResume, m.notifier.RecordingResumed)
}

func (m *Manager) transition(
	ctx context.Context,
	to SessionState,
	sentinelErr error,
	notify func(ctx context.Context, tabID string) error,
) (StateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, _, err := m.resolveSession(ctx)
	if err != nil {
		return StateSummary{}, err
	}
	if session == nil {
		return StateSummary{}, errors.Wrap(ErrNoActiveSession, "")
	}

	err = validateSessionTransition(session, to, sentinelErr)
	if err != nil {
		return StateSummary{}, err
	}

	session.State = to
	err = m.store.Save(ctx, session)
	if err != nil {
		return StateSummary{}, err
	}

	err = notify(ctx, session.TabID)
	if err != nil {
		m.logger.Debug(ctx, "page agent not notified of state change", MKV{
			"tab_id": session.TabID,
			"state":  to.String(),
			"error":  err.Error(),
		})
	}

	return session.Summary(), nil
}

// UndoLastStep pops the most recently accepted step, if any, and persists.
func (m *Manager) UndoLastStep(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, _, err := m.resolveSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return errors.Wrap(ErrNoActiveSession, "")
	}
	if len(session.Steps) == 0 {
		return nil
	}

	session.Steps = session.Steps[:len(session.Steps)-1]
	if session.CurrentStepIndex >= len(session.Steps) {
		session.CurrentStepIndex = len(session.Steps) - 1
	}
	return m.store.Save(ctx, session)
}

// StopRecording tells the page agent to stop capturing (best effort, failure
// ignored), returns the accumulated steps as the single authoritative list and
// clears the session. Locally remembered steps on the page agent are never
// merged in; the Manager is the sole authority on order and membership.
func (m *Manager) StopRecording(ctx context.Context) ([]Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, _, err := m.resolveSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.Wrap(ErrNoActiveSession, "")
	}

	err = m.notifier.RecordingStopped(ctx, session.TabID)
	if err != nil {
		m.logger.Debug(ctx, "page agent not notified of recording stop", MKV{
			"tab_id": session.TabID,
			"error":  err.Error(),
		})
	}

	steps := session.Steps
	m.session = nil
	metrics.SessionsActive.Set(0)

	err = m.store.Clear(ctx)
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// CancelRecording discards the session and its captured steps entirely.
func (m *Manager) CancelRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	metrics.SessionsActive.Set(0)
	return m.store.Clear(ctx)
}

// RecordingState answers the state query using the three stage resolution:
// in-memory session, then persisted store (covering a just restarted process),
// then idle.
func (m *Manager) RecordingState(ctx context.Context) (StateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, _, err := m.resolveSession(ctx)
	if err != nil {
		return StateSummary{}, err
	}
	return session.Summary(), nil
}
