package robot

import (
	"time"

	"github.com/kinetra/go-arm/rcp"
)

// JointPositions is the desired joint position setpoint for one cycle.
type JointPositions struct {
	// Q is the desired joint position in rad.
	Q [7]float64
	// Finished signals graceful termination of the motion.
	Finished bool
}

// JointVelocities is the desired joint velocity setpoint for one cycle.
type JointVelocities struct {
	// Dq is the desired joint velocity in rad/s.
	Dq [7]float64
	// Finished signals graceful termination of the motion.
	Finished bool
}

// CartesianPose is the desired end-effector pose setpoint for one cycle.
type CartesianPose struct {
	// OTEE is the desired end-effector pose in base frame, column-major 4x4 matrix.
	OTEE [16]float64
	// Finished signals graceful termination of the motion.
	Finished bool
}

// CartesianVelocities is the desired end-effector twist setpoint for one cycle.
type CartesianVelocities struct {
	// ODtEE is the desired end-effector twist in base frame.
	ODtEE [6]float64
	// Finished signals graceful termination of the motion.
	Finished bool
}

// Torques is the desired joint torque setpoint for one cycle.
type Torques struct {
	// TauJ is the desired link-side joint torque in Nm.
	TauJ [7]float64
	// Finished signals graceful termination of the control session.
	Finished bool
}

// Stop sentinels. Returning one from a control callback triggers graceful
// motion termination: the client keeps sending finished commands until the
// robot confirms the stop in its state stream, then the blocking control
// call returns.
var (
	StopJointPositions      = JointPositions{Finished: true}
	StopJointVelocities     = JointVelocities{Finished: true}
	StopCartesianPose       = CartesianPose{Finished: true}
	StopCartesianVelocities = CartesianVelocities{Finished: true}
	StopTorques             = Torques{Finished: true}
)

// Control callback types. The callback is invoked exactly once per received
// robot state with the elapsed duration since the previous cycle (zero on
// the first invocation). The state is valid for the duration of one
// invocation only and must not be retained across cycles.
type (
	// JointPositionsFunc produces a joint position setpoint per cycle.
	JointPositionsFunc func(state rcp.RobotState, elapsed time.Duration) JointPositions
	// JointVelocitiesFunc produces a joint velocity setpoint per cycle.
	JointVelocitiesFunc func(state rcp.RobotState, elapsed time.Duration) JointVelocities
	// CartesianPoseFunc produces an end-effector pose setpoint per cycle.
	CartesianPoseFunc func(state rcp.RobotState, elapsed time.Duration) CartesianPose
	// CartesianVelocitiesFunc produces an end-effector twist setpoint per cycle.
	CartesianVelocitiesFunc func(state rcp.RobotState, elapsed time.Duration) CartesianVelocities
	// TorquesFunc produces a joint torque setpoint per cycle.
	TorquesFunc func(state rcp.RobotState, elapsed time.Duration) Torques
	// ReadFunc consumes one robot state per cycle; returning false ends the
	// read session.
	ReadFunc func(state rcp.RobotState) bool
)

// motionFunc is the uniform shape of a motion callback inside the exchange
// loop: it fills the motion half of the outgoing command and reports whether
// the callback signalled the stop sentinel.
type motionFunc func(state rcp.RobotState, elapsed time.Duration, cmd *rcp.MotionGeneratorCommand) bool

// torqueFunc is the uniform shape of a torque callback inside the exchange
// loop.
type torqueFunc func(state rcp.RobotState, elapsed time.Duration, cmd *rcp.ControllerCommand) bool

func (fn JointPositionsFunc) adapt() motionFunc {
	return func(state rcp.RobotState, elapsed time.Duration, cmd *rcp.MotionGeneratorCommand) bool {
		out := fn(state, elapsed)
		cmd.QC = out.Q
		return out.Finished
	}
}

func (fn JointVelocitiesFunc) adapt() motionFunc {
	return func(state rcp.RobotState, elapsed time.Duration, cmd *rcp.MotionGeneratorCommand) bool {
		out := fn(state, elapsed)
		cmd.DqC = out.Dq
		return out.Finished
	}
}

func (fn CartesianPoseFunc) adapt() motionFunc {
	return func(state rcp.RobotState, elapsed time.Duration, cmd *rcp.MotionGeneratorCommand) bool {
		out := fn(state, elapsed)
		cmd.OTEEC = out.OTEE
		return out.Finished
	}
}

func (fn CartesianVelocitiesFunc) adapt() motionFunc {
	return func(state rcp.RobotState, elapsed time.Duration, cmd *rcp.MotionGeneratorCommand) bool {
		out := fn(state, elapsed)
		cmd.ODtEEC = out.ODtEE
		return out.Finished
	}
}

func (fn TorquesFunc) adapt() torqueFunc {
	return func(state rcp.RobotState, elapsed time.Duration, cmd *rcp.ControllerCommand) bool {
		out := fn(state, elapsed)
		cmd.TauJC = out.TauJ
		return out.Finished
	}
}
