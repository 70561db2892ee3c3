package robot

import (
	"errors"
	"fmt"
	"time"

	"github.com/kinetra/go-arm/internal/pool"
	"github.com/kinetra/go-arm/rcp"
)

// responsePollInterval is the granularity at which a blocked response wait
// re-checks its overall deadline while receiving unrelated messages.
const responsePollInterval = 10 * time.Millisecond

// pendingHandler consumes a deferred command-channel response that arrives
// while the cyclic exchange keeps running, e.g. the final Move response or a
// late motion generator rejection. A non-nil error aborts the current cycle
// and surfaces to the blocking caller.
type pendingHandler func(msg rcp.Message) error

// executeCommand sends one request on the command channel and blocks for the
// matching response, bounded by the configured response timeout. At most one
// request per command kind may be in flight.
//
// Responses of other kinds received while waiting are dispatched to their
// pending handlers, or buffered for a later waiter.
func (r *Robot) executeCommand(cmd rcp.Command, payload []byte) (rcp.Message, error) {
	if r.closed.Load() {
		return rcp.Message{}, ErrConnClosed
	}

	if _, loaded := r.inflight.LoadOrStore(cmd, struct{}{}); loaded {
		return rcp.Message{}, fmt.Errorf("%w: %s request already in flight", ErrInvalidOperation, cmd)
	}
	defer r.inflight.Delete(cmd)

	if err := r.net.tcpSend(cmd, payload); err != nil {
		return rcp.Message{}, asNetworkErr(err)
	}
	r.metrics.incRequestSendCount()

	return r.waitResponse(cmd, r.cfg.responseTimeout)
}

// waitResponse blocks until a response for cmd is available, bounded by
// timeout. A buffered out-of-band response satisfies the wait immediately.
func (r *Robot) waitResponse(cmd rcp.Command, timeout time.Duration) (rcp.Message, error) {
	if msg, ok := r.takeBuffered(cmd); ok {
		return msg, nil
	}

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	for {
		select {
		case <-timer.C:
			r.metrics.incRecvTimeoutCount()
			return rcp.Message{}, fmt.Errorf("%w: no %s response within %v", ErrNetwork, cmd, timeout)
		default:
		}

		msg, err := r.net.tcpReceive(responsePollInterval)
		if err != nil {
			if errors.Is(err, errRecvTimeout) {
				continue
			}

			// a closed command channel while a response is owed is a fault,
			// not an orderly shutdown
			return rcp.Message{}, asNetworkErr(err)
		}
		r.metrics.incResponseRecvCount()

		if msg.Command == cmd {
			return msg, nil
		}

		if err := r.dispatchResponse(msg); err != nil {
			return rcp.Message{}, err
		}
	}
}

// pollCommandChannel drains every complete message currently buffered on the
// command channel without blocking, dispatching each to its pending handler.
// It reports whether the peer has closed the command channel in an orderly
// fashion.
func (r *Robot) pollCommandChannel() (closed bool, err error) {
	for {
		msg, ok, err := r.net.tcpPoll()
		if err != nil {
			if errors.Is(err, ErrConnClosed) {
				return true, nil
			}

			return false, err
		}
		if !ok {
			return false, nil
		}
		r.metrics.incResponseRecvCount()

		if err := r.dispatchResponse(msg); err != nil {
			return false, err
		}
	}
}

// dispatchResponse routes one received message to its registered pending
// handler, or buffers it for a later waitResponse call.
func (r *Robot) dispatchResponse(msg rcp.Message) error {
	if handler, ok := r.pending.LoadAndDelete(msg.Command); ok {
		return handler(msg)
	}

	r.oob.Enqueue(msg)

	return nil
}

// takeBuffered removes and returns the first buffered out-of-band message of
// the given kind, preserving the order of the rest.
func (r *Robot) takeBuffered(cmd rcp.Command) (rcp.Message, bool) {
	var found rcp.Message
	ok := false

	for n := r.oob.Length(); n > 0; n-- {
		msg, _ := r.oob.Dequeue()
		if !ok && msg.Command == cmd {
			found = msg
			ok = true
			continue
		}
		r.oob.Enqueue(msg)
	}

	return found, ok
}

// asNetworkErr converts an orderly-close classification into a network fault
// for contexts where the peer still owes the client a message.
func asNetworkErr(err error) error {
	if errors.Is(err, ErrConnClosed) && !errors.Is(err, ErrNetwork) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return err
}

// SetControllerMode selects the control law on the robot.
// The robot rejecting the mode yields ErrControl.
func (r *Robot) SetControllerMode(mode rcp.ControllerMode) error {
	msg, err := r.executeCommand(rcp.CommandSetControllerMode, rcp.SetControllerModeRequest{Mode: mode}.Encode())
	if err != nil {
		return err
	}

	rsp, err := rcp.DecodeSetControllerModeResponse(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if rsp.Status != rcp.CommandStatusSuccess {
		return fmt.Errorf("%w: set controller mode %s: %s", ErrControl, mode, rsp.Status)
	}

	return nil
}

// StartMotionGenerator starts a motion generator of the given type on the
// robot and blocks until the state stream confirms it is running.
// Legacy protocol generation; servers of the newer generation are driven via
// the Control entry points instead.
//
// Only one motion generator may run at a time; starting a second one yields
// ErrMotionGenerator. After a successful start the robot may still reject
// the generator later; this surfaces as ErrMotionGenerator on a subsequent
// Update and leaves the generator stopped.
func (r *Robot) StartMotionGenerator(genType rcp.MotionGeneratorType) error {
	if r.expectedMode != rcp.MotionGeneratorModeIdle {
		return fmt.Errorf("%w: motion generator %s already requested", ErrMotionGenerator, r.expectedMode)
	}

	msg, err := r.executeCommand(rcp.CommandStartMotionGenerator, rcp.StartMotionGeneratorRequest{Type: genType}.Encode())
	if err != nil {
		return err
	}

	rsp, err := rcp.DecodeStartMotionGeneratorResponse(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if rsp.Status != rcp.CommandStatusSuccess {
		return fmt.Errorf("%w: start motion generator %s: %s", ErrMotionGenerator, genType, rsp.Status)
	}

	// an accepted generator can still be rejected by a deferred response
	r.pending.Store(rcp.CommandStartMotionGenerator, r.deferredGeneratorRejection)
	r.expectedMode = genType.Mode()

	// pump cycles until the state stream confirms the generator
	for !r.generatorRunning {
		ok, err := r.Update()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: command channel closed while starting motion generator", ErrNetwork)
		}
	}

	return nil
}

// deferredGeneratorRejection handles a second StartMotionGenerator response
// arriving after the initial acceptance.
func (r *Robot) deferredGeneratorRejection(msg rcp.Message) error {
	rsp, err := rcp.DecodeStartMotionGeneratorResponse(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if rsp.Status == rcp.CommandStatusSuccess {
		return nil
	}

	return fmt.Errorf("%w: motion generator %s", ErrMotionGenerator, rsp.Status)
}

// StopMotionGenerator stops the running motion generator. The stop completes
// once a subsequent Update observes the generator idle in the state stream.
// Legacy protocol generation.
func (r *Robot) StopMotionGenerator() error {
	if r.expectedMode == rcp.MotionGeneratorModeIdle {
		return fmt.Errorf("%w: no motion generator running", ErrInvalidOperation)
	}

	// the deferred rejection is no longer expected once a stop is accepted
	r.pending.Delete(rcp.CommandStartMotionGenerator)

	msg, err := r.executeCommand(rcp.CommandStopMotionGenerator, rcp.StopMotionGeneratorRequest{}.Encode())
	if err != nil {
		return err
	}

	rsp, err := rcp.DecodeStopMotionGeneratorResponse(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if rsp.Status != rcp.CommandStatusSuccess {
		return fmt.Errorf("%w: stop motion generator: %s", ErrMotionGenerator, rsp.Status)
	}

	r.stopping = true

	return nil
}

// MotionGeneratorRunning reports whether the state stream confirms a running
// motion generator of the requested type.
func (r *Robot) MotionGeneratorRunning() bool {
	return r.generatorRunning
}

// SetMotionCommand caches the motion command sent on every cycle while a
// motion generator runs without an installed callback.
// It yields ErrInvalidOperation while no motion generator is confirmed
// running, since the robot's interpretation of such a command is undefined.
func (r *Robot) SetMotionCommand(motion rcp.MotionGeneratorCommand) error {
	if !r.generatorRunning {
		return fmt.Errorf("%w: no motion generator running", ErrInvalidOperation)
	}

	r.motionCmd = motion

	return nil
}
