package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type commandRequestMetrics struct {
	logger       *log.Logger
	route        string
	conferenceID string
	start        time.Time
	lockWait     time.Duration
	loadDuration time.Duration
	saveDuration time.Duration
	outcome      string
	errorStage   string
}

func newCommandRequestMetrics(logger *log.Logger, route, conferenceID string) *commandRequestMetrics {
	return &commandRequestMetrics{
		logger:       logger,
		route:        route,
		conferenceID: conferenceID,
		start:        time.Now(),
	}
}

func (m *commandRequestMetrics) ObserveLockWait(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.lockWait = duration
}

func (m *commandRequestMetrics) ObserveLoad(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.loadDuration = duration
}

func (m *commandRequestMetrics) ObserveSave(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.saveDuration = duration
}

// SetOutcome records the kind of the appended event, rejections included.
func (m *commandRequestMetrics) SetOutcome(kind string) {
	m.outcome = kind
}

func (m *commandRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *commandRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":      m.route,
		"conference": m.conferenceID,
		"status":     status,
		"total_ms":   durationToMillis(time.Since(m.start)),
	}

	if m.lockWait > 0 {
		fields["lock_wait_ms"] = durationToMillis(m.lockWait)
	}
	if m.loadDuration > 0 {
		fields["load_ms"] = durationToMillis(m.loadDuration)
	}
	if m.saveDuration > 0 {
		fields["save_ms"] = durationToMillis(m.saveDuration)
	}
	if m.outcome != "" {
		fields["outcome"] = m.outcome
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("registration.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
