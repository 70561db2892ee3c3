package rcp

import (
	"encoding/binary"
	"fmt"
	"math"
)

// StateSize is the fixed encoded size of a RobotState in bytes.
const StateSize = 8 + 3 + 3*7*8 + 16*8

// RobotState is one telemetry snapshot received from the robot on the
// realtime channel, one per control cycle.
//
// MessageID increases monotonically with every state the robot sends. The
// exchange loop tags outgoing commands with the id of the state that produced
// them, so command ids never exceed the most recently observed state id.
type RobotState struct {
	// MessageID is the monotonically increasing cycle identifier.
	MessageID uint64

	// MotionGeneratorMode reports which motion generator is currently active.
	MotionGeneratorMode MotionGeneratorMode
	// ControllerMode reports the control law currently running.
	ControllerMode ControllerMode
	// RobotMode reports the overall operating mode.
	RobotMode RobotMode

	// Q is the measured joint position in rad.
	Q [7]float64
	// Dq is the measured joint velocity in rad/s.
	Dq [7]float64
	// TauJ is the measured link-side joint torque in Nm.
	TauJ [7]float64
	// OTEE is the measured end-effector pose in base frame, column-major 4x4 matrix.
	OTEE [16]float64
}

// EncodeRobotState encodes state into its fixed-size wire representation.
func EncodeRobotState(state *RobotState) []byte {
	buf := make([]byte, 0, StateSize)

	buf = binary.LittleEndian.AppendUint64(buf, state.MessageID)
	buf = append(buf, uint8(state.MotionGeneratorMode), uint8(state.ControllerMode), uint8(state.RobotMode))
	buf = appendFloat64s(buf, state.Q[:])
	buf = appendFloat64s(buf, state.Dq[:])
	buf = appendFloat64s(buf, state.TauJ[:])
	buf = appendFloat64s(buf, state.OTEE[:])

	return buf
}

// DecodeRobotState decodes a RobotState from buf.
// It returns ErrMessageLength if buf is not exactly StateSize bytes.
func DecodeRobotState(buf []byte) (RobotState, error) {
	var state RobotState

	if len(buf) != StateSize {
		return state, fmt.Errorf("%w: robot state is %d bytes, expected %d", ErrMessageLength, len(buf), StateSize)
	}

	state.MessageID = binary.LittleEndian.Uint64(buf)
	buf = buf[8:]

	state.MotionGeneratorMode = MotionGeneratorMode(buf[0])
	state.ControllerMode = ControllerMode(buf[1])
	state.RobotMode = RobotMode(buf[2])
	buf = buf[3:]

	buf = consumeFloat64s(buf, state.Q[:])
	buf = consumeFloat64s(buf, state.Dq[:])
	buf = consumeFloat64s(buf, state.TauJ[:])
	consumeFloat64s(buf, state.OTEE[:])

	return state, nil
}

// appendFloat64s appends vals to buf in little-endian IEEE 754 encoding.
func appendFloat64s(buf []byte, vals []float64) []byte {
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

// consumeFloat64s fills dst from the head of buf and returns the remainder.
// The caller must guarantee len(buf) >= 8*len(dst).
func consumeFloat64s(buf []byte, dst []float64) []byte {
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return buf[len(dst)*8:]
}
