package robot

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kinetra/go-arm/logger"
	"github.com/kinetra/go-arm/rcp"
)

// SessionState represents the exclusive engagement between client and robot.
type SessionState uint32

// Session states. At most one session may be non-idle at any time.
const (
	// SessionIdle indicates that no session is active.
	SessionIdle SessionState = iota
	// SessionReading indicates that a read-only session is active.
	SessionReading
	// SessionControlling indicates that a read-write control session is active.
	SessionControlling
)

// IsIdle returns if the current state is idle.
func (s SessionState) IsIdle() bool { return s == SessionIdle }

// IsReading returns if the current state is reading.
func (s SessionState) IsReading() bool { return s == SessionReading }

// IsControlling returns if the current state is controlling.
func (s SessionState) IsControlling() bool { return s == SessionControlling }

// String returns string representation of the current state.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionReading:
		return "reading"
	case SessionControlling:
		return "controlling"
	default:
		return "unknown"
	}
}

// sessionMgr manages the session state of a client.
//
// Entering a session is only allowed from the idle state; a concurrent
// attempt from another goroutine fails fast without disturbing the running
// session. State reads are lock-free so the exchange loop can consult the
// session on every cycle.
type sessionMgr struct {
	mu     sync.Mutex
	state  atomic.Uint32
	logger logger.Logger

	// selections of the active control session, owned by the goroutine that
	// entered the session.
	controllerMode rcp.ControllerMode
	generatorType  rcp.MotionGeneratorType
}

func newSessionMgr(l logger.Logger) *sessionMgr {
	mgr := &sessionMgr{logger: l}
	mgr.state.Store(uint32(SessionIdle))

	return mgr
}

// State returns the current session state.
func (s *sessionMgr) State() SessionState {
	return SessionState(s.state.Load())
}

// enter transitions the session state from idle to target.
//
// It returns ErrInvalidOperation if a session is already active, leaving the
// existing session untouched. target must be SessionReading or
// SessionControlling.
func (s *sessionMgr) enter(target SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.State()
	if !cur.IsIdle() {
		return fmt.Errorf("%w: cannot start %s session, %s session active", ErrInvalidOperation, target, cur)
	}

	s.state.Store(uint32(target))
	s.logger.Debug("session state changed", "prevState", cur, "curState", target)

	return nil
}

// exit transitions the session state back to idle. It is a no-op when no
// session is active.
func (s *sessionMgr) exit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.State()
	if cur.IsIdle() {
		return
	}

	s.state.Store(uint32(SessionIdle))
	s.controllerMode = 0
	s.generatorType = 0
	s.logger.Debug("session state changed", "prevState", cur, "curState", SessionIdle)
}

// setControl records the selections of the active control session.
func (s *sessionMgr) setControl(mode rcp.ControllerMode, genType rcp.MotionGeneratorType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.controllerMode = mode
	s.generatorType = genType
}

// control returns the selections of the active control session.
func (s *sessionMgr) control() (rcp.ControllerMode, rcp.MotionGeneratorType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.controllerMode, s.generatorType
}
