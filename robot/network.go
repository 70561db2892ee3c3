package robot

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kinetra/go-arm/logger"
	"github.com/kinetra/go-arm/rcp"
)

// partialFrameTimeout bounds the wait for the remainder of a command message
// whose length header has already arrived. Command messages are small and
// sent whole, so a partial frame older than this indicates a broken stream.
const partialFrameTimeout = 100 * time.Millisecond

// errRecvTimeout marks a bounded receive that expired before any data
// arrived. Always wrapped together with ErrNetwork.
var errRecvTimeout = errors.New("receive timed out")

// network owns the two channels of one robot connection: the TCP command
// channel and the UDP realtime channel. It provides blocking
// receive-with-timeout and send primitives; timeouts and faults are
// classified into the client error taxonomy here.
//
// network is not goroutine-safe. The session-owning goroutine is the only
// user, per the single-owner concurrency model of the client.
type network struct {
	cfg    *Config
	logger logger.Logger

	tcpConn net.Conn
	reader  *bufio.Reader
	lenBuf  []byte

	udpConn   *net.UDPConn
	udpRemote *net.UDPAddr
	stateBuf  []byte
}

// dialNetwork establishes the TCP command connection and binds the local UDP
// realtime socket. The realtime peer address is learned from the first
// received robot state.
func dialNetwork(ctx context.Context, cfg *Config) (*network, error) {
	addr := net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))

	dialer := net.Dialer{Timeout: cfg.connectTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v", ErrNetwork, addr, err)
	}

	if tc, ok := tcpConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.udpPort})
	if err != nil {
		_ = tcpConn.Close()
		return nil, fmt.Errorf("%w: bind realtime socket: %v", ErrNetwork, err)
	}

	return &network{
		cfg:     cfg,
		logger:  cfg.logger,
		tcpConn: tcpConn,
		reader:  bufio.NewReaderSize(tcpConn, 2*rcp.MaxMessageSize),
		lenBuf:  make([]byte, 4),
		udpConn: udpConn,
		// one spare byte so an oversized datagram is detectable
		stateBuf: make([]byte, rcp.StateSize+1),
	}, nil
}

// udpPort returns the local port of the realtime socket, announced to the
// robot in the connect handshake.
func (n *network) udpPort() uint16 {
	addr, ok := n.udpConn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0
	}

	return uint16(addr.Port)
}

// tcpSend frames and sends one command request on the command channel.
func (n *network) tcpSend(cmd rcp.Command, payload []byte) error {
	if err := n.tcpConn.SetWriteDeadline(time.Now().Add(n.cfg.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if err := rcp.WriteMessage(n.tcpConn, cmd, payload); err != nil {
		return classifyNetErr("send command request", err)
	}

	if n.logger.Level() == logger.DebugLevel {
		n.logger.Debug("command request sent", "command", cmd)
	}

	return nil
}

// tcpReceive blocks for the next complete command message, bounded by
// timeout. An orderly close by the peer yields ErrConnClosed; a timeout
// yields ErrNetwork.
func (n *network) tcpReceive(timeout time.Duration) (rcp.Message, error) {
	deadline := time.Now().Add(timeout)
	return n.tcpReadMessage(deadline, deadline)
}

// tcpPoll receives one complete command message if any is available,
// blocking at most the configured poll timeout. It returns false when no
// data is pending. An expired deadline never reaches the socket, so the
// poll must read with a positive deadline to observe data or a close
// already sitting in the receive buffer.
func (n *network) tcpPoll() (rcp.Message, bool, error) {
	// a header already buffered needs no socket read
	if n.reader.Buffered() < 4 {
		if err := n.tcpConn.SetReadDeadline(time.Now().Add(n.cfg.pollTimeout)); err != nil {
			return rcp.Message{}, false, fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		if _, err := n.reader.Peek(4); err != nil {
			if isTimeoutErr(err) {
				return rcp.Message{}, false, nil
			}

			return rcp.Message{}, false, classifyNetErr("poll command channel", err)
		}
	}

	// The length header is buffered; the rest of the frame follows promptly.
	deadline := time.Now().Add(partialFrameTimeout)

	msg, err := n.tcpReadMessage(deadline, deadline)
	if err != nil {
		return rcp.Message{}, false, err
	}

	return msg, true, nil
}

// tcpReadMessage reads one complete command message from the buffered
// command channel. The full frame is peeked before consumption so that a
// timeout mid-frame never desynchronizes the stream.
func (n *network) tcpReadMessage(headerDeadline, bodyDeadline time.Time) (rcp.Message, error) {
	if err := n.tcpConn.SetReadDeadline(headerDeadline); err != nil {
		return rcp.Message{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	header, err := n.reader.Peek(4)
	if err != nil {
		return rcp.Message{}, classifyNetErr("receive response", err)
	}

	msgLen := binary.LittleEndian.Uint32(header)
	if msgLen > rcp.MaxMessageSize {
		return rcp.Message{}, fmt.Errorf("%w: framed length %d exceeds maximum %d", ErrNetwork, msgLen, rcp.MaxMessageSize)
	}

	if err := n.tcpConn.SetReadDeadline(bodyDeadline); err != nil {
		return rcp.Message{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if _, err := n.reader.Peek(int(4 + msgLen)); err != nil {
		return rcp.Message{}, classifyNetErr("receive response body", err)
	}

	// The frame is fully buffered; this cannot block.
	msg, err := rcp.ReadMessage(n.reader, n.lenBuf)
	if err != nil {
		return rcp.Message{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if n.logger.Level() == logger.DebugLevel {
		n.logger.Debug("command response received", "command", msg.Command)
	}

	return msg, nil
}

// udpReceiveState blocks for the next robot state on the realtime channel,
// bounded by timeout. The source address of the state becomes the send
// target for subsequent robot commands.
func (n *network) udpReceiveState(timeout time.Duration) (rcp.RobotState, error) {
	if err := n.udpConn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return rcp.RobotState{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	nRead, remote, err := n.udpConn.ReadFromUDP(n.stateBuf)
	if err != nil {
		return rcp.RobotState{}, classifyNetErr("receive robot state", err)
	}

	state, err := rcp.DecodeRobotState(n.stateBuf[:nRead])
	if err != nil {
		return rcp.RobotState{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	n.udpRemote = remote

	return state, nil
}

// udpSendCommand sends one robot command on the realtime channel.
func (n *network) udpSendCommand(cmd *rcp.RobotCommand) error {
	if n.udpRemote == nil {
		return fmt.Errorf("%w: realtime peer address unknown", ErrNetwork)
	}

	if err := n.udpConn.SetWriteDeadline(time.Now().Add(n.cfg.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if _, err := n.udpConn.WriteToUDP(rcp.EncodeRobotCommand(cmd), n.udpRemote); err != nil {
		return classifyNetErr("send robot command", err)
	}

	return nil
}

// close tears down both channels. It is idempotent.
func (n *network) close() {
	if n.tcpConn != nil {
		if tc, ok := n.tcpConn.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
		_ = n.tcpConn.Close()
		n.tcpConn = nil
	}

	if n.udpConn != nil {
		_ = n.udpConn.Close()
		n.udpConn = nil
	}
}

// classifyNetErr maps transport errors into the client error taxonomy:
// orderly close and peer reset become ErrConnClosed, everything else becomes
// ErrNetwork, with timeouts additionally marked as errRecvTimeout.
func classifyNetErr(op string, err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed),
		strings.Contains(err.Error(), "connection reset by peer"):
		return fmt.Errorf("%w: %s: %v", ErrConnClosed, op, err)

	case isTimeoutErr(err):
		return fmt.Errorf("%w: %s: %w", ErrNetwork, op, errRecvTimeout)

	default:
		return fmt.Errorf("%w: %s: %v", ErrNetwork, op, err)
	}
}

// isTimeoutErr reports whether err is a deadline expiry.
func isTimeoutErr(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
