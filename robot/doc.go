// Package robot provides a client for controlling a robot arm over the
// robot control protocol (RCP).
//
// A Robot is created with Connect, which dials the robot's command channel,
// binds the local realtime endpoint and negotiates the protocol version.
// All further interaction happens through sessions: Read and ReadOnce stream
// robot states, the Control entry points run motion and torque callbacks at
// the robot's cycle rate, and the legacy StartMotionGenerator and
// StopMotionGenerator operations drive older protocol generations.
//
// Exactly one session may be active per Robot. Attempting to start a second
// session from any goroutine fails fast with ErrInvalidOperation; the
// session itself must be driven by a single goroutine.
//
// Faults are reported through sentinel errors (ErrNetwork,
// ErrIncompatibleVersion, ErrMotionGenerator, ErrControl,
// ErrInvalidOperation, ErrConnClosed) which callers match with errors.Is.
package robot
