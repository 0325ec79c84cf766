// Package simulator provides a serial port that emits synthetic RD-03D target
// reports, used by the radar binary's dev mode and by integration tests.
package simulator

import (
	"bytes"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/rd03d/internal/rd03d"
	"github.com/banshee-data/rd03d/internal/serialport"
	"github.com/banshee-data/rd03d/internal/timeutil"
)

// inputBufferSize bounds unread bytes the way a UART driver's receive buffer
// does; the oldest bytes are dropped when it fills.
const inputBufferSize = 4096

// DefaultFrameInterval matches the sensor's report rate of roughly 10 Hz.
const DefaultFrameInterval = 100 * time.Millisecond

// Config tunes a simulated port.
type Config struct {
	// FrameInterval is the time between reports.
	FrameInterval time.Duration
	// ReadTimeout bounds how long Read waits for the next report.
	ReadTimeout time.Duration
	// GarbageEvery inserts line noise before every n-th report. Zero disables it.
	GarbageEvery int
	Clock        timeutil.Clock
}

// Port implements serialport.Port. Each report carries a target walking a
// figure-eight in front of the sensor; in multi-target mode a second target
// mirrors it across the forward axis.
type Port struct {
	mu      sync.Mutex
	cfg     Config
	start   time.Time
	next    time.Time
	seq     int
	mode    rd03d.Mode
	pending []byte
	closed  bool
}

var _ serialport.TimeoutPort = (*Port)(nil)

// New returns a simulated port that starts reporting immediately.
func New(cfg Config) *Port {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = serialport.DefaultReadTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	now := cfg.Clock.Now()
	return &Port{
		cfg:   cfg,
		start: now,
		next:  now,
		mode:  rd03d.ModeMultiTarget,
	}
}

// Factory returns a serialport.Factory that ignores the device path and opens
// a simulated port.
func Factory(cfg Config) serialport.Factory {
	return serialport.FactoryFunc(func(string, serialport.PortOptions) (serialport.Port, error) {
		return New(cfg), nil
	})
}

// Read returns pending report bytes, waiting at most the read timeout for the
// next report when none are pending.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, serialport.ErrPortClosed
	}
	p.generate()
	if len(p.pending) == 0 {
		wait := p.cfg.Clock.Now().Add(p.cfg.ReadTimeout)
		if p.next.Before(wait) {
			wait = p.next
		}
		p.mu.Unlock()
		p.cfg.Clock.Sleep(wait.Sub(p.cfg.Clock.Now()))
		p.mu.Lock()
		if p.closed {
			return 0, serialport.ErrPortClosed
		}
		p.generate()
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// generate appends every report that has come due. Callers hold p.mu.
func (p *Port) generate() {
	now := p.cfg.Clock.Now()
	for !p.next.After(now) {
		p.seq++
		if p.cfg.GarbageEvery > 0 && p.seq%p.cfg.GarbageEvery == 0 {
			p.pending = append(p.pending, 0x13, 0x37, 0x55)
		}
		p.pending = append(p.pending, p.report(p.next.Sub(p.start))...)
		p.next = p.next.Add(p.cfg.FrameInterval)
	}
	if over := len(p.pending) - inputBufferSize; over > 0 {
		p.pending = append(p.pending[:0], p.pending[over:]...)
	}
}

func (p *Port) report(elapsed time.Duration) []byte {
	t := elapsed.Seconds()
	x := 1200 * math.Sin(t/2)
	y := 2500 + 900*math.Sin(t)
	// radial speed is the time derivative of range, in cm/s
	dx := 600 * math.Cos(t/2)
	dy := 900 * math.Cos(t)
	r := math.Hypot(x, y)
	speed := 0.0
	if r > 0 {
		speed = (x*dx + y*dy) / r / 10
	}

	first := rd03d.NewTarget(int(x), int(y), int(speed), 320)
	if p.mode != rd03d.ModeMultiTarget {
		return rd03d.EncodeFrame(first)
	}
	second := rd03d.NewTarget(-int(x)/2, int(y)+800, int(speed)/2, 360)
	return rd03d.EncodeFrame(first, second)
}

// Write accepts mode commands and ignores anything else.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, serialport.ErrPortClosed
	}
	for _, m := range []rd03d.Mode{rd03d.ModeSingleTarget, rd03d.ModeMultiTarget} {
		if bytes.Equal(b, m.Command()) {
			p.mode = m
		}
	}
	return len(b), nil
}

// Drain implements serialport.Port.
func (p *Port) Drain() error { return nil }

// ResetInputBuffer drops every report that has come due but not been read.
func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generate()
	p.pending = p.pending[:0]
	return nil
}

// SetReadTimeout implements serialport.TimeoutPort.
func (p *Port) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.ReadTimeout = d
	return nil
}

// Close stops the port. Reads after Close fail.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Mode returns the mode last selected by a command.
func (p *Port) Mode() rd03d.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}
