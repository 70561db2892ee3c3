package robot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kinetra/go-arm/internal/queue"
	"github.com/kinetra/go-arm/logger"
	"github.com/kinetra/go-arm/rcp"
	"github.com/puzpuzpuz/xsync/v3"
)

// Robot is a client for one robot arm. It owns the command channel and the
// realtime channel established by Connect and drives the cyclic
// state/command exchange.
//
// A Robot is not a general-purpose concurrent object: exactly one goroutine
// may run a session (Read, ReadOnce, Control*, StartMotionGenerator) at a
// time. Session entry itself is safe to attempt from any goroutine and
// fails fast with ErrInvalidOperation when another session is active.
type Robot struct {
	cfg     *Config
	logger  logger.Logger
	net     *network
	session *sessionMgr
	metrics Metrics
	closed  atomic.Bool

	serverVersion uint16

	// deferred response routing for the command channel
	pending  *xsync.MapOf[rcp.Command, pendingHandler]
	inflight *xsync.MapOf[rcp.Command, struct{}]
	oob      *queue.Queue[rcp.Message]

	// cyclic exchange state, owned by the session goroutine
	currentState rcp.RobotState
	hasState     bool
	lastCycleAt  time.Time

	motionFn   motionFunc
	torqueFn   torqueFunc
	motionCmd  rcp.MotionGeneratorCommand
	controlCmd rcp.ControllerCommand

	expectedMode     rcp.MotionGeneratorMode
	generatorRunning bool
	stopping         bool
	motionDone       bool

	moveFinal    rcp.MoveStatus
	moveFinalSet bool
}

// Connect dials the robot's command channel, binds the local realtime
// endpoint and performs the version handshake.
//
// A version mismatch yields ErrIncompatibleVersion; a refused, closed or
// unresponsive command channel yields ErrNetwork.
func Connect(ctx context.Context, cfg *Config) (*Robot, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	n, err := dialNetwork(ctx, cfg)
	if err != nil {
		return nil, err
	}

	r := &Robot{
		cfg:      cfg,
		logger:   cfg.logger,
		net:      n,
		session:  newSessionMgr(cfg.logger),
		pending:  xsync.NewMapOf[rcp.Command, pendingHandler](),
		inflight: xsync.NewMapOf[rcp.Command, struct{}](),
		oob:      queue.New[rcp.Message](4),
	}

	if err := r.handshake(); err != nil {
		n.close()
		return nil, err
	}

	r.logger.Info("connected to robot",
		"host", cfg.host,
		"port", cfg.port,
		"serverVersion", r.serverVersion,
	)

	return r, nil
}

func (r *Robot) handshake() error {
	req := rcp.ConnectRequest{Version: rcp.Version, UDPPort: r.net.udpPort()}
	if err := r.net.tcpSend(rcp.CommandConnect, req.Encode()); err != nil {
		return asNetworkErr(err)
	}
	r.metrics.incRequestSendCount()

	msg, err := r.net.tcpReceive(r.cfg.handshakeTimeout)
	if err != nil {
		return asNetworkErr(err)
	}
	r.metrics.incResponseRecvCount()

	if msg.Command != rcp.CommandConnect {
		return fmt.Errorf("%w: unexpected %s response during handshake", ErrNetwork, msg.Command)
	}

	rsp, err := rcp.DecodeConnectResponse(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if rsp.Status == rcp.ConnectStatusIncompatibleLibraryVersion {
		return fmt.Errorf("%w: client version %d, server version %d",
			ErrIncompatibleVersion, rcp.Version, rsp.Version)
	}

	r.serverVersion = rsp.Version

	return nil
}

// ServerVersion returns the protocol version reported by the robot during
// the handshake.
func (r *Robot) ServerVersion() uint16 {
	return r.serverVersion
}

// State returns the most recently received robot state. The second return
// value is false before the first successful Update.
func (r *Robot) State() (rcp.RobotState, bool) {
	return r.currentState, r.hasState
}

// Metrics returns the connection's metric counters.
func (r *Robot) Metrics() *Metrics {
	return &r.metrics
}

// SessionState returns the current session state.
func (r *Robot) SessionState() SessionState {
	return r.session.State()
}

// Update performs one cycle of the realtime exchange: it drains the command
// channel, receives one robot state, invokes the installed callbacks and
// sends the resulting robot command tagged with the state's message id.
//
// It returns false with a nil error when the robot has closed the command
// channel in an orderly fashion. A state not arriving within the configured
// state timeout is a fault and yields ErrNetwork; any fault tears down the
// running motion.
func (r *Robot) Update() (bool, error) {
	if r.closed.Load() {
		return false, ErrConnClosed
	}

	chanClosed, err := r.pollCommandChannel()
	if err != nil {
		r.teardownMotion()
		return false, err
	}
	if chanClosed {
		return false, nil
	}

	state, err := r.net.udpReceiveState(r.cfg.stateTimeout)
	if err != nil {
		if errors.Is(err, errRecvTimeout) {
			r.metrics.incRecvTimeoutCount()
		}
		r.teardownMotion()

		return false, asNetworkErr(err)
	}
	r.metrics.incStateRecvCount()

	if r.hasState && state.MessageID < r.currentState.MessageID {
		r.logger.Warn("robot state message id regressed",
			"previous", r.currentState.MessageID,
			"received", state.MessageID,
		)
	}
	r.currentState = state
	r.hasState = true

	if r.expectedMode != rcp.MotionGeneratorModeIdle {
		r.generatorRunning = state.MotionGeneratorMode == r.expectedMode
	}

	if r.stopping && state.MotionGeneratorMode.IsIdle() {
		// the robot confirmed the stop; the wind-down is over and no
		// command is sent for this state
		r.generatorRunning = false
		r.expectedMode = rcp.MotionGeneratorModeIdle
		r.stopping = false
		r.motionDone = true

		return true, nil
	}

	now := time.Now()
	var elapsed time.Duration
	if !r.lastCycleAt.IsZero() {
		elapsed = now.Sub(r.lastCycleAt)
	}
	r.lastCycleAt = now

	cmd := rcp.RobotCommand{
		MessageID: state.MessageID,
		Motion:    r.motionCmd,
		Control:   r.controlCmd,
	}

	if !r.stopping {
		if r.motionFn != nil && r.motionFn(state, elapsed, &cmd.Motion) {
			r.stopping = true
		}
		if r.torqueFn != nil && r.torqueFn(state, elapsed, &cmd.Control) {
			r.stopping = true
		}
	}
	if r.stopping {
		cmd.Motion.MotionGenerationFinished = true
	}

	if err := r.net.udpSendCommand(&cmd); err != nil {
		r.teardownMotion()
		return false, err
	}
	r.metrics.incCommandSendCount()

	return true, nil
}

// Read streams robot states to fn until fn returns false or the robot
// closes the command channel.
func (r *Robot) Read(fn ReadFunc) error {
	if r.closed.Load() {
		return ErrConnClosed
	}

	if err := r.session.enter(SessionReading); err != nil {
		return err
	}
	defer r.session.exit()

	for {
		ok, err := r.Update()
		if err != nil {
			return err
		}
		if !ok || !fn(r.currentState) {
			return nil
		}
	}
}

// ReadOnce performs a single exchange cycle and returns the received state.
func (r *Robot) ReadOnce() (rcp.RobotState, error) {
	if r.closed.Load() {
		return rcp.RobotState{}, ErrConnClosed
	}

	if err := r.session.enter(SessionReading); err != nil {
		return rcp.RobotState{}, err
	}
	defer r.session.exit()

	ok, err := r.Update()
	if err != nil {
		return rcp.RobotState{}, err
	}
	if !ok {
		return rcp.RobotState{}, fmt.Errorf("%w: command channel closed", ErrNetwork)
	}

	return r.currentState, nil
}

// Close releases both channels. It is idempotent; operations on a closed
// Robot yield ErrConnClosed.
func (r *Robot) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.teardownMotion()
	r.net.close()
	r.logger.Info("robot connection closed", "host", r.cfg.host)

	return nil
}

// teardownMotion resets every piece of motion state after a fault or at the
// end of a session, so the next session starts clean.
func (r *Robot) teardownMotion() {
	r.motionFn = nil
	r.torqueFn = nil
	r.motionCmd = rcp.MotionGeneratorCommand{}
	r.controlCmd = rcp.ControllerCommand{}
	r.expectedMode = rcp.MotionGeneratorModeIdle
	r.generatorRunning = false
	r.stopping = false
	r.motionDone = false
	r.moveFinalSet = false
	r.pending.Clear()
	// a buffered response from the failed session must not satisfy a wait in
	// the next one
	r.oob.Reset()
}
