package robot

import (
	"errors"
	"fmt"
	"time"

	"github.com/kinetra/go-arm/rcp"
)

type controlOptions struct {
	mode rcp.ControllerMode
}

// ControlOption customizes a motion control session.
type ControlOption func(*controlOptions)

// WithController selects the internal control law used while a motion
// callback runs. The default is joint impedance.
func WithController(mode rcp.ControllerMode) ControlOption {
	return func(o *controlOptions) {
		o.mode = mode
	}
}

// ControlJointPositions runs a joint position motion until the callback
// returns a stop value or the robot ends the motion.
func (r *Robot) ControlJointPositions(fn JointPositionsFunc, opts ...ControlOption) error {
	return r.controlMotion(rcp.MotionGeneratorTypeJointPosition, fn.adapt(), opts...)
}

// ControlJointVelocities runs a joint velocity motion.
func (r *Robot) ControlJointVelocities(fn JointVelocitiesFunc, opts ...ControlOption) error {
	return r.controlMotion(rcp.MotionGeneratorTypeJointVelocity, fn.adapt(), opts...)
}

// ControlCartesianPose runs a Cartesian pose motion.
func (r *Robot) ControlCartesianPose(fn CartesianPoseFunc, opts ...ControlOption) error {
	return r.controlMotion(rcp.MotionGeneratorTypeCartesianPosition, fn.adapt(), opts...)
}

// ControlCartesianVelocities runs a Cartesian velocity motion.
func (r *Robot) ControlCartesianVelocities(fn CartesianVelocitiesFunc, opts ...ControlOption) error {
	return r.controlMotion(rcp.MotionGeneratorTypeCartesianVelocity, fn.adapt(), opts...)
}

// ControlTorques runs a torque control session. The robot still requires a
// motion generator for the cyclic exchange, so a joint velocity generator
// with zero setpoints accompanies the torque callback.
func (r *Robot) ControlTorques(fn TorquesFunc) error {
	return r.control(rcp.ControllerModeExternalController,
		rcp.MotionGeneratorTypeJointVelocity, nil, fn.adapt())
}

// ControlTorquesJointPositions runs a torque callback alongside a joint
// position motion callback.
func (r *Robot) ControlTorquesJointPositions(tfn TorquesFunc, mfn JointPositionsFunc) error {
	return r.control(rcp.ControllerModeExternalController,
		rcp.MotionGeneratorTypeJointPosition, mfn.adapt(), tfn.adapt())
}

// ControlTorquesJointVelocities runs a torque callback alongside a joint
// velocity motion callback.
func (r *Robot) ControlTorquesJointVelocities(tfn TorquesFunc, mfn JointVelocitiesFunc) error {
	return r.control(rcp.ControllerModeExternalController,
		rcp.MotionGeneratorTypeJointVelocity, mfn.adapt(), tfn.adapt())
}

// ControlTorquesCartesianPose runs a torque callback alongside a Cartesian
// pose motion callback.
func (r *Robot) ControlTorquesCartesianPose(tfn TorquesFunc, mfn CartesianPoseFunc) error {
	return r.control(rcp.ControllerModeExternalController,
		rcp.MotionGeneratorTypeCartesianPosition, mfn.adapt(), tfn.adapt())
}

// ControlTorquesCartesianVelocities runs a torque callback alongside a
// Cartesian velocity motion callback.
func (r *Robot) ControlTorquesCartesianVelocities(tfn TorquesFunc, mfn CartesianVelocitiesFunc) error {
	return r.control(rcp.ControllerModeExternalController,
		rcp.MotionGeneratorTypeCartesianVelocity, mfn.adapt(), tfn.adapt())
}

// Control selects a control law and streams states to fn until it returns
// false, without starting a motion generator. Legacy protocol generation.
func (r *Robot) Control(mode rcp.ControllerMode, fn ReadFunc) error {
	if r.closed.Load() {
		return ErrConnClosed
	}

	if err := r.session.enter(SessionControlling); err != nil {
		return err
	}
	defer r.session.exit()

	if err := r.SetControllerMode(mode); err != nil {
		return err
	}

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

func (r *Robot) controlMotion(genType rcp.MotionGeneratorType, mfn motionFunc, opts ...ControlOption) error {
	o := controlOptions{mode: rcp.ControllerModeJointImpedance}
	for _, opt := range opts {
		opt(&o)
	}

	return r.control(o.mode, genType, mfn, nil)
}

// control owns a full motion session: Move request, cyclic exchange with
// callbacks, stop wind-down and the final Move response.
func (r *Robot) control(mode rcp.ControllerMode, genType rcp.MotionGeneratorType, mfn motionFunc, tfn torqueFunc) error {
	if r.closed.Load() {
		return ErrConnClosed
	}

	if err := r.session.enter(SessionControlling); err != nil {
		return err
	}
	defer r.session.exit()
	defer r.teardownMotion()

	r.session.setControl(mode, genType)

	msg, err := r.executeCommand(rcp.CommandMove, rcp.MoveRequest{
		ControllerMode:      mode,
		MotionGeneratorType: genType,
	}.Encode())
	if err != nil {
		return err
	}

	rsp, err := rcp.DecodeMoveResponse(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	switch rsp.Status {
	case rcp.MoveStatusMotionStarted:
	case rcp.MoveStatusRejected:
		return fmt.Errorf("%w: move %s", ErrMotionGenerator, rsp.Status)
	default:
		return fmt.Errorf("%w: move %s", ErrControl, rsp.Status)
	}

	selMode, selType := r.session.control()
	r.logger.Info("motion started", "controllerMode", selMode, "generatorType", selType)

	// the final Move response may arrive at any point of the cyclic exchange
	r.moveFinalSet = false
	r.pending.Store(rcp.CommandMove, r.moveResponseHandler)

	r.motionFn = mfn
	r.torqueFn = tfn
	r.expectedMode = genType.Mode()
	r.lastCycleAt = time.Time{}
	r.stopping = false
	r.motionDone = false

	for !r.motionDone {
		ok, err := r.Update()
		if err != nil {
			r.abortMove(err)
			return err
		}
		if !ok {
			return fmt.Errorf("%w: command channel closed during control", ErrNetwork)
		}
	}

	return r.finalizeMove()
}

// moveResponseHandler consumes the final Move response. A failure status
// aborts the session from within the exchange cycle.
func (r *Robot) moveResponseHandler(msg rcp.Message) error {
	rsp, err := rcp.DecodeMoveResponse(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	r.moveFinal = rsp.Status
	r.moveFinalSet = true

	switch rsp.Status {
	case rcp.MoveStatusSuccess:
		return nil
	case rcp.MoveStatusRejected:
		return fmt.Errorf("%w: move %s", ErrMotionGenerator, rsp.Status)
	default:
		return fmt.Errorf("%w: move %s", ErrControl, rsp.Status)
	}
}

// finalizeMove waits for the final Move response if it has not arrived
// during the wind-down and checks its status.
func (r *Robot) finalizeMove() error {
	if !r.moveFinalSet {
		msg, err := r.waitResponse(rcp.CommandMove, r.cfg.responseTimeout)
		if err != nil {
			return err
		}

		rsp, err := rcp.DecodeMoveResponse(msg.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		r.moveFinal = rsp.Status
		r.moveFinalSet = true
	}

	if r.moveFinal != rcp.MoveStatusSuccess {
		return fmt.Errorf("%w: move finished with status %s", ErrControl, r.moveFinal)
	}

	return nil
}

// abortMove tells the robot to stop the current motion after a client-side
// fault. Best effort; the session is failing already.
func (r *Robot) abortMove(cause error) {
	if r.closed.Load() || errors.Is(cause, ErrConnClosed) {
		return
	}

	if err := r.net.tcpSend(rcp.CommandStopMove, rcp.StopMoveRequest{}.Encode()); err != nil {
		r.logger.Debug("stop-move after fault failed", "error", err)
	}
}
