package rcp

import (
	"encoding/binary"
	"fmt"
)

// CommandSize is the fixed encoded size of a RobotCommand in bytes.
const CommandSize = 8 + motionCommandSize + controllerCommandSize

const (
	motionCommandSize     = 7*8 + 7*8 + 16*8 + 6*8 + 1
	controllerCommandSize = 7 * 8
)

// MotionGeneratorCommand carries the motion setpoints for one control cycle.
// Only the fields matching the running motion generator type are interpreted
// by the robot; the rest are ignored.
type MotionGeneratorCommand struct {
	// QC is the desired joint position in rad.
	QC [7]float64
	// DqC is the desired joint velocity in rad/s.
	DqC [7]float64
	// OTEEC is the desired end-effector pose in base frame, column-major 4x4 matrix.
	OTEEC [16]float64
	// ODtEEC is the desired end-effector twist in base frame.
	ODtEEC [6]float64
	// MotionGenerationFinished signals graceful termination of the running
	// motion. The client keeps sending finished commands until the robot
	// reports the motion generator back in idle mode.
	MotionGenerationFinished bool
}

// ControllerCommand carries the torque setpoints for one control cycle when
// the external controller mode is selected.
type ControllerCommand struct {
	// TauJC is the desired link-side joint torque in Nm.
	TauJC [7]float64
}

// RobotCommand is the client half of one realtime exchange, one per control
// cycle. MessageID must correlate to the RobotState that produced it.
type RobotCommand struct {
	MessageID uint64
	Motion    MotionGeneratorCommand
	Control   ControllerCommand
}

// EncodeRobotCommand encodes cmd into its fixed-size wire representation.
func EncodeRobotCommand(cmd *RobotCommand) []byte {
	buf := make([]byte, 0, CommandSize)

	buf = binary.LittleEndian.AppendUint64(buf, cmd.MessageID)
	buf = appendFloat64s(buf, cmd.Motion.QC[:])
	buf = appendFloat64s(buf, cmd.Motion.DqC[:])
	buf = appendFloat64s(buf, cmd.Motion.OTEEC[:])
	buf = appendFloat64s(buf, cmd.Motion.ODtEEC[:])
	if cmd.Motion.MotionGenerationFinished {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendFloat64s(buf, cmd.Control.TauJC[:])

	return buf
}

// DecodeRobotCommand decodes a RobotCommand from buf.
// It returns ErrMessageLength if buf is not exactly CommandSize bytes.
func DecodeRobotCommand(buf []byte) (RobotCommand, error) {
	var cmd RobotCommand

	if len(buf) != CommandSize {
		return cmd, fmt.Errorf("%w: robot command is %d bytes, expected %d", ErrMessageLength, len(buf), CommandSize)
	}

	cmd.MessageID = binary.LittleEndian.Uint64(buf)
	buf = buf[8:]

	buf = consumeFloat64s(buf, cmd.Motion.QC[:])
	buf = consumeFloat64s(buf, cmd.Motion.DqC[:])
	buf = consumeFloat64s(buf, cmd.Motion.OTEEC[:])
	buf = consumeFloat64s(buf, cmd.Motion.ODtEEC[:])
	cmd.Motion.MotionGenerationFinished = buf[0] != 0
	buf = buf[1:]

	consumeFloat64s(buf, cmd.Control.TauJC[:])

	return cmd, nil
}
