package rd03d

// Mode is the tracking mode the sensor has been switched to.
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeSingleTarget
	ModeMultiTarget
)

func (m Mode) String() string {
	switch m {
	case ModeSingleTarget:
		return "single"
	case ModeMultiTarget:
		return "multi"
	default:
		return "uninitialized"
	}
}

// ModeFor maps the multi-target selector used by SetMode to a Mode.
func ModeFor(multi bool) Mode {
	if multi {
		return ModeMultiTarget
	}
	return ModeSingleTarget
}

// Mode selection commands. The sensor sends no reply.
var (
	singleTargetCommand = [12]byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0x80, 0x00, 0x04, 0x03, 0x02, 0x01}
	multiTargetCommand  = [12]byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0x90, 0x00, 0x04, 0x03, 0x02, 0x01}
)

// Command returns the bytes that switch the sensor into mode m. It returns
// nil for ModeUninitialized.
func (m Mode) Command() []byte {
	switch m {
	case ModeSingleTarget:
		cmd := singleTargetCommand
		return cmd[:]
	case ModeMultiTarget:
		cmd := multiTargetCommand
		return cmd[:]
	default:
		return nil
	}
}
