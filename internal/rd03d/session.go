package rd03d

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/banshee-data/rd03d/internal/monitoring"
	"github.com/banshee-data/rd03d/internal/serialport"
	"github.com/banshee-data/rd03d/internal/timeutil"
)

// DefaultSettleDelay is how long the sensor needs to apply a mode command.
const DefaultSettleDelay = 200 * time.Millisecond

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("rd03d: session closed")

// Outcome is the result of one poll.
type Outcome int

const (
	// OutcomeNoFrame means no complete frame was buffered yet.
	OutcomeNoFrame Outcome = iota
	// OutcomeDecoded means the cached targets were replaced.
	OutcomeDecoded
	// OutcomeMalformed means the latest candidate frame failed validation.
	OutcomeMalformed
	// OutcomeReadFailed means the transport returned an error.
	OutcomeReadFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoFrame:
		return "no_frame"
	case OutcomeDecoded:
		return "decoded"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeReadFailed:
		return "read_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config tunes a Session. The zero value is usable.
type Config struct {
	// BufferCapacity bounds the frame buffer. Defaults to DefaultBufferCapacity.
	BufferCapacity int
	// SettleDelay is waited after each mode command. Defaults to DefaultSettleDelay.
	SettleDelay time.Duration
	// InitialMode is applied by Open. ModeUninitialized selects ModeMultiTarget.
	InitialMode Mode
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// Factory opens the transport in Open. Defaults to serialport.DefaultFactory.
	Factory serialport.Factory
}

func (c Config) withDefaults() Config {
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.InitialMode == ModeUninitialized {
		c.InitialMode = ModeMultiTarget
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.Factory == nil {
		c.Factory = serialport.DefaultFactory
	}
	return c
}

// Stats counts what a Session has seen since it was created.
type Stats struct {
	BytesRead       uint64    `json:"bytes_read"`
	BytesConsumed   uint64    `json:"bytes_consumed"`
	BytesEvicted    uint64    `json:"bytes_evicted"`
	Overflows       uint64    `json:"overflows"`
	FramesDecoded   uint64    `json:"frames_decoded"`
	FramesMalformed uint64    `json:"frames_malformed"`
	ReadErrors      uint64    `json:"read_errors"`
	ModeSwitches    uint64    `json:"mode_switches"`
	Buffered        int       `json:"buffered"`
	LastDecoded     time.Time `json:"last_decoded"`
}

// Session owns the transport to one sensor and the most recently decoded
// targets. It is not safe for concurrent use; callers sharing a Session
// across goroutines must guard it with a single mutex.
type Session struct {
	port    serialport.Port
	buf     *FrameBuffer
	scratch []byte
	clock   timeutil.Clock
	settle  time.Duration

	mode    Mode
	targets TargetSet
	stats   Stats
	lastErr error
	closed  bool
}

// NewSession wraps an already open transport. The sensor mode is left
// untouched until SetMode is called.
func NewSession(port serialport.Port, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		port:    port,
		buf:     NewFrameBuffer(cfg.BufferCapacity),
		scratch: make([]byte, cfg.BufferCapacity),
		clock:   cfg.Clock,
		settle:  cfg.SettleDelay,
	}
}

// Open opens the serial device at path, waits for the sensor to settle and
// switches it to cfg.InitialMode. A failure to open or configure the device
// is returned; no retry is attempted.
func Open(path string, opts serialport.PortOptions, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	port, err := cfg.Factory.Open(path, opts)
	if err != nil {
		return nil, err
	}

	s := NewSession(port, cfg)
	s.clock.Sleep(s.settle)
	if err := s.SetMode(cfg.InitialMode == ModeMultiTarget); err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

// SetMode switches the sensor between single- and multi-target tracking.
// Bytes received during the switch and any buffered partial frame are
// discarded so that the next poll starts clean.
func (s *Session) SetMode(multi bool) error {
	if s.closed {
		return ErrClosed
	}

	mode := ModeFor(multi)
	cmd := mode.Command()
	n, err := s.port.Write(cmd)
	if err != nil {
		return fmt.Errorf("failed to send %s mode command: %w", mode, err)
	}
	if n != len(cmd) {
		return fmt.Errorf("failed to send %s mode command: %w", mode, serialport.ErrWriteFailed)
	}
	if err := s.port.Drain(); err != nil {
		return fmt.Errorf("failed to flush %s mode command: %w", mode, err)
	}

	s.clock.Sleep(s.settle)

	if err := s.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input after mode switch: %w", err)
	}
	s.buf.Reset()
	s.mode = mode
	s.stats.ModeSwitches++
	monitoring.Logf("rd03d: switched to %s target mode", mode)
	return nil
}

// Poll reads whatever the transport has available and decodes the most
// recent complete frame. It reports whether the cached targets were replaced.
func (s *Session) Poll() bool {
	return s.PollOutcome() == OutcomeDecoded
}

// PollOutcome is Poll with the reason for a false result. The cached targets
// are only replaced on OutcomeDecoded.
func (s *Session) PollOutcome() Outcome {
	if s.closed {
		s.lastErr = ErrClosed
		return OutcomeReadFailed
	}

	if err := s.readAvailable(); err != nil {
		s.stats.ReadErrors++
		s.lastErr = err
		monitoring.Logf("rd03d: read failed: %v", err)
		return OutcomeReadFailed
	}

	frame, discard, ok := LatestFrame(s.buf.Bytes())
	var (
		targets   TargetSet
		decodeErr error
	)
	if ok {
		// frame aliases the buffer, so decode before consuming.
		targets, decodeErr = Decode(frame)
	}
	s.buf.Consume(discard)
	s.stats.BytesConsumed += uint64(discard)

	switch {
	case !ok:
		return OutcomeNoFrame
	case decodeErr != nil:
		s.stats.FramesMalformed++
		s.lastErr = decodeErr
		return OutcomeMalformed
	}

	s.targets = targets
	s.stats.FramesDecoded++
	s.stats.LastDecoded = s.clock.Now()
	return OutcomeDecoded
}

// readAvailable drains the transport into the frame buffer. A short read,
// an empty read or io.EOF means the backlog is exhausted; the buffer keeps
// only the newest bytes when the backlog exceeds its capacity.
func (s *Session) readAvailable() error {
	for {
		n, err := s.port.Read(s.scratch)
		if n > 0 {
			s.stats.BytesRead += uint64(n)
			if evicted := s.buf.Append(s.scratch[:n]); evicted > 0 {
				s.stats.Overflows++
				s.stats.BytesEvicted += uint64(evicted)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n < len(s.scratch) {
			return nil
		}
	}
}

// Target returns the n-th target of the last decoded frame, counting from 1.
func (s *Session) Target(n int) (Target, bool) {
	return s.targets.Target(n)
}

// Targets returns a copy of the last decoded target set.
func (s *Session) Targets() TargetSet {
	return slices.Clone(s.targets)
}

// Mode returns the last mode successfully applied.
func (s *Session) Mode() Mode {
	return s.mode
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	st := s.stats
	st.Buffered = s.buf.Len()
	return st
}

// LastError returns the most recent read or decode error, if any.
func (s *Session) LastError() error {
	return s.lastErr
}

// Close releases the transport. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
