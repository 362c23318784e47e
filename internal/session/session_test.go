package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"buttcom/internal/model"
	"buttcom/internal/protocol"
	"buttcom/internal/protocol/serial"
	"buttcom/internal/protocol/serial/serialtest"
	"buttcom/internal/session"
	"buttcom/internal/session/sessiontest"
)

type bench struct {
	port     *serialtest.FakePort
	opener   *serialtest.Opener
	timeline *sessiontest.Timeline
	operator *sessiontest.Operator
	session  *session.Session
}

func newBench(t *testing.T, cfg session.Config, answers ...string) *bench {
	t.Helper()

	b := &bench{
		port:     serialtest.NewFakePort(),
		timeline: &sessiontest.Timeline{},
		operator: sessiontest.NewOperator(answers...),
	}
	b.port.OnWrite = b.timeline.RecordWrite
	b.opener = serialtest.NewOpener(b.port)

	serialCfg := serial.DefaultConfig("/dev/ttyUSB0")
	serialCfg.Timeout = 20 * time.Millisecond
	serialCfg.Opener = b.opener.Open

	logger := zaptest.NewLogger(t)
	conn, err := serial.NewConnection(serialCfg, logger)
	require.NoError(t, err)

	b.session, err = session.Open(context.Background(), conn, cfg, logger,
		session.WithSleeper(b.timeline.Sleep),
		session.WithOperator(b.operator),
	)
	require.NoError(t, err)
	t.Cleanup(func() { b.session.Close() })

	return b
}

func TestSendCommandWholeTerminatesOnce(t *testing.T) {
	for _, cmd := range []model.Command{"hello", "vcounts?", "", "odd\rtext\r"} {
		b := newBench(t, session.DefaultConfig())
		pacing := b.session.Delays().Whole()

		require.NoError(t, b.session.SendCommand(context.Background(), cmd, pacing))

		sent := b.port.Sent()
		assert.Equal(t, 1, strings.Count(sent, "\r"), "command %q", cmd)
		assert.True(t, strings.HasSuffix(sent, "\r"))
		assert.Len(t, b.port.Writes(), 1)
		assert.Equal(t, []time.Duration{time.Second}, b.timeline.Sleeps())
	}
}

func TestSendCommandPerCharacterTerminatesOnce(t *testing.T) {
	for _, cmd := range []model.Command{"logreg 0", "x", "a\rb"} {
		b := newBench(t, session.DefaultConfig())

		require.NoError(t, b.session.SendCommand(context.Background(), cmd, b.session.Delays().PerChar()))

		sent := b.port.Sent()
		assert.Equal(t, 1, strings.Count(sent, "\r"), "command %q", cmd)
		assert.True(t, strings.HasSuffix(sent, "\r"))
	}
}

func TestPerCharacterPacingOrder(t *testing.T) {
	b := newBench(t, session.DefaultConfig())

	require.NoError(t, b.session.SendCommand(context.Background(), model.CommandLogRegOff, b.session.Delays().PerChar()))

	events := b.timeline.Events()
	require.Len(t, events, 2*len("logreg 0")+2)

	for i, ch := range "logreg 0" {
		write, pause := events[2*i], events[2*i+1]
		assert.Equal(t, sessiontest.EventWrite, write.Kind)
		assert.Equal(t, string(ch), write.Data)
		assert.Equal(t, sessiontest.EventSleep, pause.Kind)
		assert.GreaterOrEqual(t, pause.Delay, time.Duration(0))
		assert.Equal(t, 100*time.Millisecond, pause.Delay)
	}

	terminator, settle := events[len(events)-2], events[len(events)-1]
	assert.Equal(t, sessiontest.Event{Kind: sessiontest.EventWrite, Data: "\r"}, terminator)
	assert.Equal(t, sessiontest.Event{Kind: sessiontest.EventSleep, Delay: time.Second}, settle)
}

func TestNegativeDelaysAreClamped(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.Delays = session.Delays{CommandDelay: -time.Second, CharDelay: -time.Millisecond, SettleDelay: -1}
	b := newBench(t, cfg)

	require.NoError(t, b.session.SendCommand(context.Background(), "ab", b.session.Delays().PerChar()))
	require.NoError(t, b.session.SendCommand(context.Background(), "ab", b.session.Delays().Whole()))

	for _, d := range b.timeline.Sleeps() {
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestSendCommandWriteFailure(t *testing.T) {
	b := newBench(t, session.DefaultConfig())
	b.port.WriteErr = serialtest.ErrUnplugged

	err := b.session.SendCommand(context.Background(), model.CommandHello, b.session.Delays().Whole())

	require.Error(t, err)
	assert.True(t, protocol.IsTransportError(err))
	assert.Empty(t, b.timeline.Sleeps())
}

func TestSendCommandStopsWhenCancelled(t *testing.T) {
	b := newBench(t, session.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.session.SendCommand(ctx, model.CommandHello, b.session.Delays().Whole())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClearPendingNeverFails(t *testing.T) {
	b := newBench(t, session.DefaultConfig())

	// Nothing to drain: the read times out with zero bytes
	b.session.ClearPending(context.Background())
	assert.Equal(t, []string{"\r"}, b.port.Writes())

	// Dead link
	b.port.WriteErr = serialtest.ErrUnplugged
	b.session.ClearPending(context.Background())

	// Broken read
	b.port.WriteErr = nil
	b.port.ReadErr = errors.New("input/output error")
	b.session.ClearPending(context.Background())
}

func TestClearPendingDrainsStaleLine(t *testing.T) {
	b := newBench(t, session.DefaultConfig())
	b.port.QueueResponse("Unrecognized command: hel\r\n")
	b.port.QueueResponse("0x2f1\r\n")

	b.session.ClearPending(context.Background())

	line, err := b.session.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x2f1", line.Text)
}

func TestClearPendingWithoutDrain(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.DrainOnClear = false
	b := newBench(t, cfg)
	b.port.QueueResponse("stale\r\n")

	b.session.ClearPending(context.Background())

	line, err := b.session.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stale", line.Text)
}

func TestReadLineTimeoutIsEmpty(t *testing.T) {
	b := newBench(t, session.DefaultConfig())

	start := time.Now()
	line, err := b.session.ReadLine(context.Background())

	require.NoError(t, err)
	assert.True(t, line.Empty())
	assert.True(t, line.TimedOut)
	assert.Less(t, time.Since(start), 20*time.Millisecond+200*time.Millisecond)
}

func TestExchangeSurfacesResponse(t *testing.T) {
	b := newBench(t, session.DefaultConfig())
	b.port.QueueResponse("0x2f1\r\n")

	ex, err := b.session.Exchange(context.Background(), model.CommandVoltCounts, b.session.Delays().Whole())
	require.NoError(t, err)

	assert.Equal(t, model.CommandVoltCounts, ex.Command)
	assert.Equal(t, "0x2f1", ex.Response.Text)
	assert.Equal(t, []model.Exchange{ex}, b.operator.Shown())
	assert.Equal(t, []model.Exchange{ex}, b.session.Exchanges())
}

func TestPromptDelegatesToOperator(t *testing.T) {
	b := newBench(t, session.DefaultConfig(), "26")

	answer, err := b.session.Prompt(context.Background(), "Calibration value? > ")
	require.NoError(t, err)
	assert.Equal(t, "26", answer)
	assert.Equal(t, []string{"Calibration value? > "}, b.operator.Prompts())
}

func TestPromptWithoutOperator(t *testing.T) {
	port := serialtest.NewFakePort()
	cfg := serial.DefaultConfig("/dev/ttyUSB0")
	cfg.Opener = serialtest.NewOpener(port).Open
	conn, err := serial.NewConnection(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	s, err := session.Open(context.Background(), conn, session.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Prompt(context.Background(), "Connect the Vcc source")
	assert.ErrorIs(t, err, session.ErrNoOperator)
}

func TestOpenFailure(t *testing.T) {
	opener := serialtest.NewOpener(nil)
	opener.Err = errors.New("no such file or directory")

	cfg := serial.DefaultConfig("/dev/ttyUSB9")
	cfg.Opener = opener.Open
	conn, err := serial.NewConnection(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = session.Open(context.Background(), conn, session.DefaultConfig(), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, protocol.IsTransportError(err))
}

func TestCloseReleasesPortOnce(t *testing.T) {
	b := newBench(t, session.DefaultConfig())

	require.NoError(t, b.session.Close())
	require.NoError(t, b.session.Close())

	assert.Equal(t, 1, b.port.CloseCount)
}
