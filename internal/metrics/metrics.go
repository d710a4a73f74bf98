package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	stepType = "step_type"
	route    = "route"
)

var (
	// SessionsActive is 1 while a recording session exists, 0 otherwise. The
	// system allows at most one active session process wide.
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flowscribe_recording_sessions_active",
		Help: "Whether a recording session is currently active",
	})

	// StepsRecorded counts steps accepted by the session manager.
	StepsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowscribe_steps_recorded_total",
		Help: "Number of steps accepted into recording sessions",
	}, []string{stepType})

	// PlaybackAdvances counts cursor advances during guided playback.
	PlaybackAdvances = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowscribe_playback_advances_total",
		Help: "Number of playback step advances",
	})

	// PlaybackElementLosses counts steps whose selector no longer resolved.
	PlaybackElementLosses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowscribe_playback_element_losses_total",
		Help: "Number of playback steps whose target element was not found",
	})

	// PlaybackActionsSkipped counts dangerous actions deliberately not replayed.
	PlaybackActionsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowscribe_playback_actions_skipped_total",
		Help: "Number of playback actions skipped by the dangerous action guard",
	})

	// ScreenshotBytes tracks encoded screenshot bytes by storage route.
	ScreenshotBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowscribe_screenshot_bytes_total",
		Help: "Encoded screenshot bytes stored, labelled inline or blob",
	}, []string{route})
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		StepsRecorded,
		PlaybackAdvances,
		PlaybackElementLosses,
		PlaybackActionsSkipped,
		ScreenshotBytes,
	)
}
