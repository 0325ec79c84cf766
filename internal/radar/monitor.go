// Package radar shares one RD-03D session between the poll loop and the HTTP
// API.
package radar

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/rd03d/internal/db"
	"github.com/banshee-data/rd03d/internal/monitoring"
	"github.com/banshee-data/rd03d/internal/rd03d"
	"github.com/banshee-data/rd03d/internal/timeutil"
)

// DefaultPollInterval is how often Run polls the session.
const DefaultPollInterval = time.Second

// Recorder persists successfully decoded readings.
type Recorder interface {
	RecordLatest(db.Reading) error
}

// Config configures a Monitor.
type Config struct {
	PollInterval time.Duration
	Clock        timeutil.Clock
	// Recorder is optional. When nil, readings are only logged.
	Recorder Recorder
}

// Monitor serializes access to a session. All methods are safe for
// concurrent use.
type Monitor struct {
	mu          sync.Mutex
	session     *rd03d.Session
	lastOutcome rd03d.Outcome

	clock    timeutil.Clock
	interval time.Duration
	recorder Recorder
}

// NewMonitor takes ownership of s. Close closes it.
func NewMonitor(s *rd03d.Session, cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Monitor{
		session:  s,
		clock:    cfg.Clock,
		interval: cfg.PollInterval,
		recorder: cfg.Recorder,
	}
}

// Poll polls the session once. A decoded target set is logged and handed to
// the recorder.
func (m *Monitor) Poll() bool {
	m.mu.Lock()
	outcome := m.session.PollOutcome()
	m.lastOutcome = outcome
	var reading db.Reading
	if outcome == rd03d.OutcomeDecoded {
		reading = db.NewReading(m.session.Mode(), m.session.Targets(), m.clock.Now())
	}
	m.mu.Unlock()

	if outcome != rd03d.OutcomeDecoded {
		monitoring.Debugf("no radar data received (%s)", outcome)
		return false
	}

	if t, ok := reading.Targets.Target(1); ok {
		monitoring.Logf("target 1: distance %.0fmm angle %.1fdeg speed %dcm/s x %dmm y %dmm",
			t.Distance, t.Angle, t.Speed, t.X, t.Y)
	}
	if m.recorder != nil {
		if err := m.recorder.RecordLatest(reading); err != nil {
			monitoring.Logf("failed to record reading %s: %v", reading.ID, err)
		}
	}
	return true
}

// Run polls every PollInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			m.Poll()
		}
	}
}

// Target returns the n-th cached target, counting from 1.
func (m *Monitor) Target(n int) (rd03d.Target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Target(n)
}

// Targets returns a copy of the cached target set.
func (m *Monitor) Targets() rd03d.TargetSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Targets()
}

// SetMode switches tracking mode. Concurrent polls wait for the switch,
// including its settle delay, to finish.
func (m *Monitor) SetMode(multi bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.SetMode(multi)
}

func (m *Monitor) Mode() rd03d.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Mode()
}

func (m *Monitor) Stats() rd03d.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Stats()
}

// LastOutcome returns the result of the most recent poll.
func (m *Monitor) LastOutcome() rd03d.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOutcome
}

// Close closes the session and its transport.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Close()
}
