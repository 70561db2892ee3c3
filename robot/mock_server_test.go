package robot

import (
	"net"
	"testing"
	"time"

	"github.com/kinetra/go-arm/rcp"
	"github.com/stretchr/testify/require"
)

const testIOTimeout = 2 * time.Second

// mockRobot is a scripted robot peer driving both protocol channels from the
// test goroutine's script goroutine.
type mockRobot struct {
	t testing.TB

	listener   *net.TCPListener
	tcpConn    net.Conn
	lenBuf     []byte
	udpConn    *net.UDPConn
	clientAddr *net.UDPAddr

	messageID uint64
}

func newMockRobot(t testing.TB) *mockRobot {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	m := &mockRobot{
		t:        t,
		listener: listener,
		lenBuf:   make([]byte, 4),
		udpConn:  udpConn,
	}
	t.Cleanup(m.close)

	return m
}

func (m *mockRobot) port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

// accept waits for the client's TCP connection.
func (m *mockRobot) accept() {
	m.t.Helper()

	require.NoError(m.t, m.listener.SetDeadline(time.Now().Add(testIOTimeout)))

	conn, err := m.listener.Accept()
	require.NoError(m.t, err)

	m.tcpConn = conn
}

// readRequest reads one command-channel request from the client.
func (m *mockRobot) readRequest() rcp.Message {
	m.t.Helper()

	require.NoError(m.t, m.tcpConn.SetReadDeadline(time.Now().Add(testIOTimeout)))

	msg, err := rcp.ReadMessage(m.tcpConn, m.lenBuf)
	require.NoError(m.t, err)

	return msg
}

// expectRequest reads one request and asserts its kind.
func (m *mockRobot) expectRequest(cmd rcp.Command) rcp.Message {
	m.t.Helper()

	msg := m.readRequest()
	require.Equal(m.t, cmd, msg.Command)

	return msg
}

func (m *mockRobot) sendResponse(cmd rcp.Command, payload []byte) {
	m.t.Helper()

	require.NoError(m.t, m.tcpConn.SetWriteDeadline(time.Now().Add(testIOTimeout)))
	require.NoError(m.t, rcp.WriteMessage(m.tcpConn, cmd, payload))
}

// handshake performs the server side of the version handshake and records
// the client's realtime endpoint.
func (m *mockRobot) handshake(status rcp.ConnectStatus, version uint16) {
	m.t.Helper()

	msg := m.expectRequest(rcp.CommandConnect)

	req, err := rcp.DecodeConnectRequest(msg.Payload)
	require.NoError(m.t, err)
	require.Equal(m.t, uint16(rcp.Version), req.Version)
	require.NotZero(m.t, req.UDPPort)

	m.clientAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(req.UDPPort)}

	m.sendResponse(rcp.CommandConnect, rcp.ConnectResponse{Status: status, Version: version}.Encode())
}

// sendState pushes one robot state on the realtime channel. The message id
// increments monotonically.
func (m *mockRobot) sendState(state rcp.RobotState) rcp.RobotState {
	m.t.Helper()
	require.NotNil(m.t, m.clientAddr, "handshake must run before sendState")

	m.messageID++
	state.MessageID = m.messageID

	_, err := m.udpConn.WriteToUDP(rcp.EncodeRobotState(&state), m.clientAddr)
	require.NoError(m.t, err)

	return state
}

// recvCommand receives one robot command on the realtime channel.
func (m *mockRobot) recvCommand() rcp.RobotCommand {
	m.t.Helper()

	require.NoError(m.t, m.udpConn.SetReadDeadline(time.Now().Add(testIOTimeout)))

	buf := make([]byte, rcp.CommandSize+1)
	n, _, err := m.udpConn.ReadFromUDP(buf)
	require.NoError(m.t, err)

	cmd, err := rcp.DecodeRobotCommand(buf[:n])
	require.NoError(m.t, err)

	return cmd
}

// closeTCP performs an orderly shutdown of the command channel.
func (m *mockRobot) closeTCP() {
	if m.tcpConn != nil {
		_ = m.tcpConn.Close()
		m.tcpConn = nil
	}
}

func (m *mockRobot) close() {
	m.closeTCP()
	if m.listener != nil {
		_ = m.listener.Close()
		m.listener = nil
	}
	if m.udpConn != nil {
		_ = m.udpConn.Close()
		m.udpConn = nil
	}
}

// idleState returns a robot state with the motion generator idle.
func idleState() rcp.RobotState {
	return rcp.RobotState{
		MotionGeneratorMode: rcp.MotionGeneratorModeIdle,
		RobotMode:           rcp.RobotModeIdle,
	}
}

// runningState returns a robot state reporting a running motion generator.
func runningState(mode rcp.MotionGeneratorMode) rcp.RobotState {
	return rcp.RobotState{
		MotionGeneratorMode: mode,
		RobotMode:           rcp.RobotModeMove,
	}
}
