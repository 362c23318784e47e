package serial_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bugst "go.bug.st/serial"
	"go.uber.org/zap/zaptest"

	"buttcom/internal/protocol"
	"buttcom/internal/protocol/serial"
	"buttcom/internal/protocol/serial/serialtest"
)

func openFake(t *testing.T, timeout time.Duration) (*serial.Connection, *serialtest.FakePort, *serialtest.Opener) {
	t.Helper()

	port := serialtest.NewFakePort()
	opener := serialtest.NewOpener(port)

	cfg := serial.DefaultConfig("/dev/ttyUSB0")
	cfg.Timeout = timeout
	cfg.Opener = opener.Open

	conn, err := serial.NewConnection(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, conn.Open(context.Background()))

	return conn, port, opener
}

func TestNewConnectionRequiresPort(t *testing.T) {
	_, err := serial.NewConnection(&serial.Config{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestOpenUsesButterflyFraming(t *testing.T) {
	conn, port, opener := openFake(t, time.Second)
	defer conn.Close()

	assert.Equal(t, 1, opener.Opens)
	assert.Equal(t, "/dev/ttyUSB0", opener.LastName)
	assert.Equal(t, &bugst.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}, opener.LastMode)
	assert.Equal(t, time.Second, port.ReadTimeout)
	assert.Equal(t, 1, port.ResetCount)
	assert.True(t, conn.IsOpen())
}

func TestOpenFailureIsTransportError(t *testing.T) {
	opener := serialtest.NewOpener(nil)
	opener.Err = &bugst.PortError{}

	cfg := serial.DefaultConfig("/dev/missing")
	cfg.Opener = opener.Open

	conn, err := serial.NewConnection(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = conn.Open(context.Background())
	require.Error(t, err)

	var te *protocol.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, protocol.OpOpen, te.Op)
	assert.Equal(t, "/dev/missing", te.Port)
	assert.False(t, conn.IsOpen())
}

func TestOpenRejectsUnsupportedParity(t *testing.T) {
	opener := serialtest.NewOpener(serialtest.NewFakePort())
	cfg := serial.DefaultConfig("/dev/ttyUSB0")
	cfg.Parity = "mark"
	cfg.Opener = opener.Open

	conn, err := serial.NewConnection(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = conn.Open(context.Background())
	assert.True(t, protocol.IsTransportError(err))
	assert.Zero(t, opener.Opens)
}

func TestCloseIsIdempotent(t *testing.T) {
	conn, port, _ := openFake(t, time.Second)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.Equal(t, 1, port.CloseCount)
	assert.False(t, conn.IsOpen())
}

func TestWriteRecordsStats(t *testing.T) {
	conn, port, _ := openFake(t, time.Second)
	defer conn.Close()

	require.NoError(t, conn.Write(context.Background(), []byte("hello\r")))

	assert.Equal(t, []string{"hello\r"}, port.Writes())
	stats := conn.Stats()
	assert.EqualValues(t, 6, stats.BytesWritten)
	assert.EqualValues(t, 1, stats.WriteCount)
	assert.True(t, stats.IsConnected)
}

func TestWriteFailureIsTransportError(t *testing.T) {
	conn, port, _ := openFake(t, time.Second)
	defer conn.Close()
	port.WriteErr = serialtest.ErrUnplugged

	err := conn.Write(context.Background(), []byte("hello\r"))

	var te *protocol.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, protocol.OpWrite, te.Op)
	assert.ErrorIs(t, err, serialtest.ErrUnplugged)
	assert.EqualValues(t, 1, conn.Stats().ErrorCount)
}

func TestWriteOnClosedConnection(t *testing.T) {
	conn, _, _ := openFake(t, time.Second)
	require.NoError(t, conn.Close())

	err := conn.Write(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, protocol.ErrNotOpen)
}

func TestReadLineSplitsOnNewline(t *testing.T) {
	conn, port, _ := openFake(t, time.Second)
	defer conn.Close()
	port.QueueResponse("0x2f1\r\n512\r\n")

	first, err := conn.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x2f1", first.Text)
	assert.False(t, first.TimedOut)

	second, err := conn.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "512", second.Text)
}

func TestReadLineTimeoutIsNotAnError(t *testing.T) {
	conn, _, _ := openFake(t, 50*time.Millisecond)
	defer conn.Close()

	line, err := conn.ReadLine(context.Background())
	require.NoError(t, err)
	assert.True(t, line.TimedOut)
	assert.True(t, line.Empty())
	assert.EqualValues(t, 1, conn.Stats().TimeoutCount)
}

func TestReadLineReturnsPartialDataOnTimeout(t *testing.T) {
	conn, port, _ := openFake(t, 50*time.Millisecond)
	defer conn.Close()
	port.QueueResponse("[I] (rxchar) ")

	line, err := conn.ReadLine(context.Background())
	require.NoError(t, err)
	assert.True(t, line.TimedOut)
	assert.Equal(t, "[I] (rxchar) ", line.Text)
}

func TestReadLineIsBoundedByTimeout(t *testing.T) {
	conn, port, _ := openFake(t, 100*time.Millisecond)
	defer conn.Close()

	// A chatty device that never finishes its line
	port.ReadFunc = func(p []byte) (int, error) {
		time.Sleep(10 * time.Millisecond)
		p[0] = '.'
		return 1, nil
	}

	start := time.Now()
	line, err := conn.ReadLine(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, line.TimedOut)
	assert.NotEmpty(t, line.Text)
	assert.Less(t, elapsed, 100*time.Millisecond+250*time.Millisecond)
	assert.LessOrEqual(t, port.ReadTimeout, 100*time.Millisecond)
}

func TestReadLineFailureIsTransportError(t *testing.T) {
	conn, port, _ := openFake(t, time.Second)
	defer conn.Close()
	port.ReadErr = errors.New("input/output error")

	_, err := conn.ReadLine(context.Background())

	var te *protocol.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, protocol.OpRead, te.Op)
}

func TestReadLineHonorsCancelledContext(t *testing.T) {
	conn, _, _ := openFake(t, time.Second)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conn.ReadLine(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
