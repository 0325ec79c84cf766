// Package serialport opens and abstracts the UART link to the radar sensor.
package serialport

import (
	"errors"
	"io"
	"time"
)

// ErrWriteFailed is returned when the port accepts fewer bytes than written.
var ErrWriteFailed = errors.New("failed to write to serial port")

// Port is the subset of a serial port the radar session needs. It is
// satisfied by go.bug.st/serial.Port and by the test doubles in this package.
type Port interface {
	io.ReadWriter
	io.Closer
	// Drain blocks until all written bytes have been transmitted.
	Drain() error
	// ResetInputBuffer discards bytes received but not yet read.
	ResetInputBuffer() error
}

// TimeoutPort is implemented by ports whose reads return after a timeout
// instead of blocking until data arrives.
type TimeoutPort interface {
	Port
	SetReadTimeout(timeout time.Duration) error
}

// Factory opens ports. It lets callers substitute a simulated or mock port
// for hardware.
type Factory interface {
	Open(path string, opts PortOptions) (Port, error)
}

// FactoryFunc adapts a function to a Factory.
type FactoryFunc func(path string, opts PortOptions) (Port, error)

// Open implements Factory.
func (f FactoryFunc) Open(path string, opts PortOptions) (Port, error) {
	return f(path, opts)
}

// DefaultFactory opens real serial ports.
var DefaultFactory Factory = FactoryFunc(Open)
