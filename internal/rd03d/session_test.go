package rd03d

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rd03d/internal/serialport"
	"github.com/banshee-data/rd03d/internal/timeutil"
)

func newTestSession(t *testing.T) (*Session, *serialport.TestablePort, *timeutil.MockClock) {
	t.Helper()
	port := serialport.NewTestablePort()
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := NewSession(port, Config{Clock: clock})
	t.Cleanup(func() { s.Close() })
	return s, port, clock
}

func mustDecode(t *testing.T, frame []byte) TargetSet {
	t.Helper()
	set, err := Decode(frame)
	require.NoError(t, err)
	return set
}

func TestSession_PollWithoutData(t *testing.T) {
	s, _, _ := newTestSession(t)

	assert.False(t, s.Poll())
	assert.Equal(t, OutcomeNoFrame, s.PollOutcome())
	assert.Empty(t, s.Targets())
	_, ok := s.Target(1)
	assert.False(t, ok)
	assert.Equal(t, ModeUninitialized, s.Mode())
}

func TestSession_PollDecodesFrame(t *testing.T) {
	s, port, clock := newTestSession(t)
	port.AddReadData(frameA)

	require.True(t, s.Poll())

	want := mustDecode(t, frameA)
	if diff := cmp.Diff(want, s.Targets()); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
	for n := 1; n <= 3; n++ {
		got, ok := s.Target(n)
		require.True(t, ok, "target %d", n)
		assert.Equal(t, want[n-1], got)
	}
	_, ok := s.Target(4)
	assert.False(t, ok)
	_, ok = s.Target(0)
	assert.False(t, ok)

	st := s.Stats()
	assert.Equal(t, uint64(len(frameA)), st.BytesRead)
	assert.Equal(t, uint64(len(frameA)), st.BytesConsumed)
	assert.Equal(t, uint64(1), st.FramesDecoded)
	assert.Zero(t, st.Buffered)
	assert.Equal(t, clock.Now(), st.LastDecoded)
}

func TestSession_PollIsIdempotentWithoutNewBytes(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(frameA)
	require.True(t, s.Poll())
	before := s.Targets()

	port.AddReadData(frameB[:12])
	assert.False(t, s.Poll())
	buffered := s.Stats().Buffered
	assert.Equal(t, 12, buffered)

	for i := 0; i < 3; i++ {
		assert.False(t, s.Poll())
		assert.Equal(t, buffered, s.Stats().Buffered)
		assert.Equal(t, before, s.Targets())
	}
}

func TestSession_LatestFrameWins(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(concat(frameA, frameB))

	require.True(t, s.Poll())
	assert.Equal(t, mustDecode(t, frameB), s.Targets())
	assert.Equal(t, uint64(1), s.Stats().FramesDecoded)
	assert.Zero(t, s.Stats().Buffered)
}

func TestSession_FragmentedFrame(t *testing.T) {
	s, port, _ := newTestSession(t)

	port.AddReadData(frameA[:20])
	assert.False(t, s.Poll())
	assert.Equal(t, 20, s.Stats().Buffered)
	assert.Empty(t, s.Targets())

	port.AddReadData(frameA[20:])
	require.True(t, s.Poll())
	assert.Equal(t, mustDecode(t, frameA), s.Targets())
	assert.Zero(t, s.Stats().Buffered)
}

func TestSession_SplitStartMarker(t *testing.T) {
	s, port, _ := newTestSession(t)

	port.AddReadData([]byte{0x01, 0x02, frameA[0]})
	assert.False(t, s.Poll())
	assert.Equal(t, 1, s.Stats().Buffered)

	port.AddReadData(frameA[1:])
	require.True(t, s.Poll())
	assert.Equal(t, mustDecode(t, frameA), s.Targets())
}

func TestSession_GarbageTolerance(t *testing.T) {
	s, port, _ := newTestSession(t)
	garbage := []byte{0x00, 0x13, 0x55, 0xAA, 0xFE, 0xCC, 0x7F}
	port.AddReadData(concat(garbage, frameA))

	require.True(t, s.Poll())
	assert.Equal(t, mustDecode(t, frameA), s.Targets())
	assert.Zero(t, s.Stats().Buffered)
}

func TestSession_GarbageBetweenFrames(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(concat(frameA, []byte{0x42, 0x43}, frameB, []byte{0x44}))

	require.True(t, s.Poll())
	assert.Equal(t, mustDecode(t, frameB), s.Targets())
	assert.Zero(t, s.Stats().Buffered)
}

func TestSession_BoundedGrowth(t *testing.T) {
	s, port, _ := newTestSession(t)
	noise := bytes.Repeat([]byte{0x11, 0x22, 0x33, 0x44, 0x55}, 20)

	for i := 0; i < 200; i++ {
		port.AddReadData(noise)
		assert.False(t, s.Poll())
		require.LessOrEqual(t, s.Stats().Buffered, DefaultBufferCapacity/2)
	}
}

func TestSession_BoundedGrowthWithUnterminatedFrame(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(frameStart)
	noise := bytes.Repeat([]byte{0x11, 0x22, 0x33}, 30)

	for i := 0; i < 100; i++ {
		port.AddReadData(noise)
		assert.False(t, s.Poll())
		require.LessOrEqual(t, s.Stats().Buffered, DefaultBufferCapacity)
	}
	st := s.Stats()
	assert.NotZero(t, st.Overflows)
	assert.NotZero(t, st.BytesEvicted)
	assert.LessOrEqual(t, st.Buffered, DefaultBufferCapacity/2)
}

func TestSession_PollDrainsBacklogBeyondCapacity(t *testing.T) {
	s, port, _ := newTestSession(t)
	var backlog []byte
	for i := 1; i <= 11; i++ {
		backlog = append(backlog, EncodeFrame(NewTarget(i*100, 1000, 0, 0))...)
	}
	require.Greater(t, len(backlog), DefaultBufferCapacity)
	port.AddReadData(backlog)

	require.True(t, s.Poll())
	got, ok := s.Target(1)
	require.True(t, ok)
	assert.Equal(t, 1100, got.X, "newest frame wins")
	assert.Zero(t, port.PendingReadData(), "poll leaves nothing queued in the port")

	st := s.Stats()
	assert.Equal(t, uint64(len(backlog)), st.BytesRead)
	assert.Equal(t, uint64(1), st.Overflows)
}

func TestSession_PollGarbageBeyondCapacityThenFrame(t *testing.T) {
	s, port, _ := newTestSession(t)
	garbage := bytes.Repeat([]byte{0x11}, DefaultBufferCapacity+100)
	port.AddReadData(concat(garbage, frameB))

	require.True(t, s.Poll())
	if diff := cmp.Diff(mustDecode(t, frameB), s.Targets()); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, port.PendingReadData())
	assert.Zero(t, s.Stats().Buffered)
}

func TestSession_PollStopsAfterShortRead(t *testing.T) {
	s, port, _ := newTestSession(t)

	port.AddReadData(bytes.Repeat([]byte{0x11}, 100))
	assert.Equal(t, OutcomeNoFrame, s.PollOutcome())
	assert.Equal(t, 1, port.ReadCalls)

	// A read that fills the scratch buffer may mean more is waiting.
	port.AddReadData(bytes.Repeat([]byte{0x11}, DefaultBufferCapacity))
	assert.Equal(t, OutcomeNoFrame, s.PollOutcome())
	assert.Equal(t, 3, port.ReadCalls)
}

func TestSession_MalformedFrameLeavesTargets(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(frameA)
	require.True(t, s.Poll())
	before := s.Targets()

	port.AddReadData([]byte{0xAA, 0xFF, 0x01, 0x02, 0x55, 0xCC})
	assert.Equal(t, OutcomeMalformed, s.PollOutcome())
	assert.Equal(t, before, s.Targets())
	assert.True(t, errors.Is(s.LastError(), ErrMalformed))
	assert.Zero(t, s.Stats().Buffered)
	assert.Equal(t, uint64(1), s.Stats().FramesMalformed)

	port.AddReadData(frameB)
	require.True(t, s.Poll())
	assert.Equal(t, mustDecode(t, frameB), s.Targets())
}

func TestSession_MalformedLatestCandidateWins(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(concat(frameA, []byte{0xAA, 0xFF, 0x55, 0xCC}))

	assert.False(t, s.Poll())
	assert.Empty(t, s.Targets())
}

func TestSession_SetMode(t *testing.T) {
	tests := []struct {
		name  string
		multi bool
		mode  Mode
		cmd   []byte
	}{
		{"single", false, ModeSingleTarget, []byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0x80, 0x00, 0x04, 0x03, 0x02, 0x01}},
		{"multi", true, ModeMultiTarget, []byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0x90, 0x00, 0x04, 0x03, 0x02, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, port, clock := newTestSession(t)

			require.NoError(t, s.SetMode(tt.multi))

			assert.Equal(t, tt.cmd, port.GetWrittenData())
			assert.Equal(t, 1, port.DrainCalls)
			assert.Equal(t, 1, port.ResetCalls)
			assert.Equal(t, []time.Duration{DefaultSettleDelay}, clock.Sleeps())
			assert.Equal(t, tt.mode, s.Mode())
			assert.Equal(t, uint64(1), s.Stats().ModeSwitches)
		})
	}
}

func TestSession_SetModeDiscardsPartialFrame(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(frameA[:20])
	require.False(t, s.Poll())
	require.Equal(t, 20, s.Stats().Buffered)

	// Bytes the sensor sent during the switch are dropped too.
	port.AddReadData(frameA[20:25])
	require.NoError(t, s.SetMode(false))
	assert.Zero(t, s.Stats().Buffered)
	assert.Zero(t, port.PendingReadData())

	port.AddReadData(frameA[25:])
	assert.False(t, s.Poll())
	assert.Empty(t, s.Targets())
	assert.Zero(t, s.Stats().Buffered)

	port.AddReadData(frameB)
	require.True(t, s.Poll())
	assert.Equal(t, mustDecode(t, frameB), s.Targets())
}

func TestSession_SetModeKeepsTargets(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(frameA)
	require.True(t, s.Poll())

	require.NoError(t, s.SetMode(true))
	assert.Equal(t, mustDecode(t, frameA), s.Targets())
}

func TestSession_SetModeErrors(t *testing.T) {
	writeErr := errors.New("boom")

	t.Run("write error", func(t *testing.T) {
		s, port, _ := newTestSession(t)
		port.WriteError = writeErr
		err := s.SetMode(true)
		assert.ErrorIs(t, err, writeErr)
		assert.Equal(t, ModeUninitialized, s.Mode())
	})

	t.Run("short write", func(t *testing.T) {
		s, port, _ := newTestSession(t)
		port.ShortWrite = true
		err := s.SetMode(true)
		assert.ErrorIs(t, err, serialport.ErrWriteFailed)
		assert.Equal(t, ModeUninitialized, s.Mode())
	})

	t.Run("drain error", func(t *testing.T) {
		s, port, clock := newTestSession(t)
		port.DrainError = writeErr
		err := s.SetMode(false)
		assert.ErrorIs(t, err, writeErr)
		assert.Empty(t, clock.Sleeps())
	})
}

func TestSession_ReadErrors(t *testing.T) {
	s, port, _ := newTestSession(t)
	readErr := errors.New("device disconnected")
	port.ReadError = readErr

	assert.Equal(t, OutcomeReadFailed, s.PollOutcome())
	assert.ErrorIs(t, s.LastError(), readErr)
	assert.Equal(t, uint64(1), s.Stats().ReadErrors)

	// The session keeps running after a failed read.
	port.AddReadData(frameA)
	assert.True(t, s.Poll())
}

func TestSession_EOFIsNoData(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.ReadError = io.EOF

	assert.Equal(t, OutcomeNoFrame, s.PollOutcome())
	assert.Zero(t, s.Stats().ReadErrors)
}

func TestSession_Close(t *testing.T) {
	s, port, _ := newTestSession(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, port.CloseCalls)

	assert.False(t, s.Poll())
	assert.ErrorIs(t, s.LastError(), ErrClosed)
	assert.ErrorIs(t, s.SetMode(true), ErrClosed)
}

func TestSession_TargetsReturnsCopy(t *testing.T) {
	s, port, _ := newTestSession(t)
	port.AddReadData(frameA)
	require.True(t, s.Poll())

	got := s.Targets()
	got[0] = NewTarget(1, 1, 1, 1)

	first, ok := s.Target(1)
	require.True(t, ok)
	assert.Equal(t, mustDecode(t, frameA)[0], first)
}

func TestOpen(t *testing.T) {
	port := serialport.NewTestablePort()
	factory := serialport.NewMockFactory(port)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	opts := serialport.PortOptions{BaudRate: 256000}

	s, err := Open("/dev/ttyS0", opts, Config{Factory: factory, Clock: clock})
	require.NoError(t, err)
	defer s.Close()

	call := factory.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyS0", call.Path)
	assert.Equal(t, opts, call.Options)

	assert.Equal(t, ModeMultiTarget, s.Mode())
	assert.Equal(t, ModeMultiTarget.Command(), port.GetWrittenData())
	assert.Equal(t, []time.Duration{DefaultSettleDelay, DefaultSettleDelay}, clock.Sleeps())
}

func TestOpen_SingleTarget(t *testing.T) {
	port := serialport.NewTestablePort()
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	s, err := Open("/dev/ttyAMA0", serialport.PortOptions{}, Config{
		Factory:     serialport.NewMockFactory(port),
		Clock:       clock,
		InitialMode: ModeSingleTarget,
		SettleDelay: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, ModeSingleTarget, s.Mode())
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, clock.Sleeps())
}

func TestOpen_Failures(t *testing.T) {
	t.Run("device missing", func(t *testing.T) {
		openErr := errors.New("no such file or directory")
		factory := serialport.NewMockFactory(nil)
		factory.Error = openErr

		s, err := Open("/dev/missing", serialport.PortOptions{}, Config{Factory: factory, Clock: timeutil.NewMockClock(time.Unix(0, 0))})
		assert.Nil(t, s)
		assert.ErrorIs(t, err, openErr)
	})

	t.Run("mode command fails", func(t *testing.T) {
		port := serialport.NewTestablePort()
		port.WriteError = errors.New("write failed")

		s, err := Open("/dev/ttyS0", serialport.PortOptions{}, Config{
			Factory: serialport.NewMockFactory(port),
			Clock:   timeutil.NewMockClock(time.Unix(0, 0)),
		})
		assert.Nil(t, s)
		assert.Error(t, err)
		assert.True(t, port.Closed)
	})
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "decoded", OutcomeDecoded.String())
	assert.Equal(t, "no_frame", OutcomeNoFrame.String())
	assert.Equal(t, "malformed", OutcomeMalformed.String())
	assert.Equal(t, "read_failed", OutcomeReadFailed.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}

func TestMode(t *testing.T) {
	assert.Equal(t, ModeMultiTarget, ModeFor(true))
	assert.Equal(t, ModeSingleTarget, ModeFor(false))
	assert.Equal(t, "multi", ModeMultiTarget.String())
	assert.Equal(t, "single", ModeSingleTarget.String())
	assert.Equal(t, "uninitialized", ModeUninitialized.String())
	assert.Nil(t, ModeUninitialized.Command())

	// Returned commands are copies.
	cmd := ModeSingleTarget.Command()
	cmd[6] = 0x00
	assert.Equal(t, byte(0x80), ModeSingleTarget.Command()[6])
}
