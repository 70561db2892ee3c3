package rcp

// Version is the protocol version this library implements. It is announced in
// the connect request and must match the server's version.
const Version uint16 = 1

// DefaultPort is the TCP port the robot listens on for the command channel.
// The UDP realtime port is chosen by the client and announced during the
// connect handshake.
const DefaultPort = 1337

// MotionGeneratorMode reports which motion generator is active on the robot,
// as observed in every RobotState.
type MotionGeneratorMode uint8

// Motion generator modes reported by the robot.
const (
	MotionGeneratorModeIdle MotionGeneratorMode = iota
	MotionGeneratorModeJointPosition
	MotionGeneratorModeJointVelocity
	MotionGeneratorModeCartesianPosition
	MotionGeneratorModeCartesianVelocity
)

// IsIdle returns true if no motion generator is running.
func (m MotionGeneratorMode) IsIdle() bool { return m == MotionGeneratorModeIdle }

// String returns string representation of the motion generator mode.
func (m MotionGeneratorMode) String() string {
	switch m {
	case MotionGeneratorModeIdle:
		return "idle"
	case MotionGeneratorModeJointPosition:
		return "joint-position"
	case MotionGeneratorModeJointVelocity:
		return "joint-velocity"
	case MotionGeneratorModeCartesianPosition:
		return "cartesian-position"
	case MotionGeneratorModeCartesianVelocity:
		return "cartesian-velocity"
	default:
		return "unknown"
	}
}

// MotionGeneratorType selects the motion generator to start on the robot.
// It is carried in StartMotionGeneratorRequest and MoveRequest.
type MotionGeneratorType uint8

// Motion generator types a client may request.
const (
	MotionGeneratorTypeJointPosition MotionGeneratorType = iota + 1
	MotionGeneratorTypeJointVelocity
	MotionGeneratorTypeCartesianPosition
	MotionGeneratorTypeCartesianVelocity
)

// Mode returns the MotionGeneratorMode the robot reports once a generator of
// this type is running.
func (t MotionGeneratorType) Mode() MotionGeneratorMode {
	switch t {
	case MotionGeneratorTypeJointPosition:
		return MotionGeneratorModeJointPosition
	case MotionGeneratorTypeJointVelocity:
		return MotionGeneratorModeJointVelocity
	case MotionGeneratorTypeCartesianPosition:
		return MotionGeneratorModeCartesianPosition
	case MotionGeneratorTypeCartesianVelocity:
		return MotionGeneratorModeCartesianVelocity
	default:
		return MotionGeneratorModeIdle
	}
}

// String returns string representation of the motion generator type.
func (t MotionGeneratorType) String() string {
	switch t {
	case MotionGeneratorTypeJointPosition:
		return "joint-position"
	case MotionGeneratorTypeJointVelocity:
		return "joint-velocity"
	case MotionGeneratorTypeCartesianPosition:
		return "cartesian-position"
	case MotionGeneratorTypeCartesianVelocity:
		return "cartesian-velocity"
	default:
		return "unknown"
	}
}

// ControllerMode selects the control law running on the robot.
type ControllerMode uint8

// Controller modes.
const (
	ControllerModeJointImpedance ControllerMode = iota
	ControllerModeCartesianImpedance
	ControllerModeExternalController
)

// String returns string representation of the controller mode.
func (m ControllerMode) String() string {
	switch m {
	case ControllerModeJointImpedance:
		return "joint-impedance"
	case ControllerModeCartesianImpedance:
		return "cartesian-impedance"
	case ControllerModeExternalController:
		return "external-controller"
	default:
		return "unknown"
	}
}

// RobotMode is the overall operating mode reported in every RobotState.
type RobotMode uint8

// Robot operating modes.
const (
	RobotModeOther RobotMode = iota
	RobotModeIdle
	RobotModeMove
	RobotModeGuiding
	RobotModeReflex
	RobotModeUserStopped
)

// String returns string representation of the robot mode.
func (m RobotMode) String() string {
	switch m {
	case RobotModeOther:
		return "other"
	case RobotModeIdle:
		return "idle"
	case RobotModeMove:
		return "move"
	case RobotModeGuiding:
		return "guiding"
	case RobotModeReflex:
		return "reflex"
	case RobotModeUserStopped:
		return "user-stopped"
	default:
		return "unknown"
	}
}
