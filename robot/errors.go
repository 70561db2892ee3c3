package robot

import "errors"

var (
	// ErrNetwork indicates a transport-level failure: connection refused,
	// receive timeout, or send failure. It is always fatal to the current
	// session; a new client may be connected, but the failed session cannot
	// be resumed.
	ErrNetwork = errors.New("network failure")

	// ErrIncompatibleVersion indicates that the server rejected the client's
	// protocol version during the connect handshake. No session ever starts.
	ErrIncompatibleVersion = errors.New("incompatible protocol version")

	// ErrInvalidOperation indicates an attempt to start a session while
	// another session is active, or an operation that requires an active
	// session was invoked without one. It is local to the failing call and
	// never disturbs an already-running session.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrMotionGenerator indicates that the robot rejected a motion generator
	// command. Fatal to the current session.
	ErrMotionGenerator = errors.New("motion generator command rejected")

	// ErrControl indicates that the robot rejected an auxiliary control
	// command. Fatal to the current session.
	ErrControl = errors.New("control command rejected")

	// ErrConnClosed indicates that the connection has been closed and the
	// client handle is no longer usable for session operations.
	ErrConnClosed = errors.New("connection closed")
)
