package rcp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Command identifies a command-channel message kind. Request and response of
// the same command share one code; direction disambiguates them.
type Command uint16

// Command-channel command codes.
const (
	CommandConnect Command = iota + 1
	CommandMove
	CommandStopMove
	CommandSetControllerMode
	CommandStartMotionGenerator
	CommandStopMotionGenerator
)

// String returns string representation of the command code.
func (c Command) String() string {
	switch c {
	case CommandConnect:
		return "connect"
	case CommandMove:
		return "move"
	case CommandStopMove:
		return "stop-move"
	case CommandSetControllerMode:
		return "set-controller-mode"
	case CommandStartMotionGenerator:
		return "start-motion-generator"
	case CommandStopMotionGenerator:
		return "stop-motion-generator"
	default:
		return "unknown"
	}
}

// MaxMessageSize bounds the length field of a framed command message.
// Command payloads are small fixed records; anything larger indicates a
// corrupted stream.
const MaxMessageSize = 4096

// headerSize is the framed size of the command code itself.
const headerSize = 2

// Message is one framed command-channel message: the command code plus its
// undecoded payload. It is the unit returned by ReadMessage and buffered by
// the client while waiting for a response of a different kind.
type Message struct {
	Command Command
	Payload []byte
}

// WriteMessage frames and writes one command message to w: a 4-byte
// little-endian length covering command code and payload, the 2-byte command
// code, then the payload.
func WriteMessage(w io.Writer, cmd Command, payload []byte) error {
	buf := make([]byte, 0, 4+headerSize+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(headerSize+len(payload)))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(cmd))
	buf = append(buf, payload...)

	_, err := w.Write(buf)

	return err
}

// ReadMessage reads one framed command message from r.
//
// lenBuf must be a 4-byte scratch buffer reused across calls; it is
// overwritten on each call. Read errors from r are returned unwrapped so the
// caller can distinguish timeouts and orderly close.
func ReadMessage(r io.Reader, lenBuf []byte) (Message, error) {
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return Message{}, err
	}

	msgLen := binary.LittleEndian.Uint32(lenBuf)
	if msgLen < headerSize {
		return Message{}, fmt.Errorf("%w: framed length %d", ErrMessageTooShort, msgLen)
	}
	if msgLen > MaxMessageSize {
		return Message{}, fmt.Errorf("%w: framed length %d, maximum %d", ErrMessageTooLarge, msgLen, MaxMessageSize)
	}

	body := make([]byte, msgLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}

	msg := Message{
		Command: Command(binary.LittleEndian.Uint16(body)),
		Payload: body[headerSize:],
	}

	switch msg.Command {
	case CommandConnect, CommandMove, CommandStopMove, CommandSetControllerMode,
		CommandStartMotionGenerator, CommandStopMotionGenerator:
		return msg, nil
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownCommand, uint16(msg.Command))
	}
}

// ConnectStatus is the status of a connect handshake response.
type ConnectStatus uint8

// Connect handshake outcomes.
const (
	ConnectStatusSuccess ConnectStatus = iota
	ConnectStatusIncompatibleLibraryVersion
)

// MoveStatus is the status of a Move response. A Move command produces two
// responses over its lifetime: MotionStarted when the robot accepts the
// motion, then a final status once the motion ends.
type MoveStatus uint8

// Move response statuses.
const (
	MoveStatusSuccess MoveStatus = iota
	MoveStatusMotionStarted
	MoveStatusRejected
	MoveStatusAborted
	MoveStatusPreempted
)

// String returns string representation of the move status.
func (s MoveStatus) String() string {
	switch s {
	case MoveStatusSuccess:
		return "success"
	case MoveStatusMotionStarted:
		return "motion-started"
	case MoveStatusRejected:
		return "rejected"
	case MoveStatusAborted:
		return "aborted"
	case MoveStatusPreempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// CommandStatus is the status of every non-connect, non-move response.
type CommandStatus uint8

// Generic command response statuses.
const (
	CommandStatusSuccess CommandStatus = iota
	CommandStatusRejected
	CommandStatusAborted
	CommandStatusPreempted
)

// String returns string representation of the command status.
func (s CommandStatus) String() string {
	switch s {
	case CommandStatusSuccess:
		return "success"
	case CommandStatusRejected:
		return "rejected"
	case CommandStatusAborted:
		return "aborted"
	case CommandStatusPreempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// ConnectRequest announces the client protocol version and the UDP port the
// client listens on for realtime states.
type ConnectRequest struct {
	Version uint16
	UDPPort uint16
}

// Encode returns the wire representation of the request payload.
func (req ConnectRequest) Encode() []byte {
	buf := make([]byte, 0, 4)
	buf = binary.LittleEndian.AppendUint16(buf, req.Version)
	buf = binary.LittleEndian.AppendUint16(buf, req.UDPPort)
	return buf
}

// DecodeConnectRequest decodes a ConnectRequest payload.
func DecodeConnectRequest(buf []byte) (ConnectRequest, error) {
	if len(buf) != 4 {
		return ConnectRequest{}, fmt.Errorf("%w: connect request is %d bytes", ErrMessageLength, len(buf))
	}
	return ConnectRequest{
		Version: binary.LittleEndian.Uint16(buf),
		UDPPort: binary.LittleEndian.Uint16(buf[2:]),
	}, nil
}

// ConnectResponse reports the handshake outcome and the server version.
type ConnectResponse struct {
	Status  ConnectStatus
	Version uint16
}

// Encode returns the wire representation of the response payload.
func (rsp ConnectResponse) Encode() []byte {
	buf := make([]byte, 0, 3)
	buf = append(buf, uint8(rsp.Status))
	buf = binary.LittleEndian.AppendUint16(buf, rsp.Version)
	return buf
}

// DecodeConnectResponse decodes a ConnectResponse payload.
func DecodeConnectResponse(buf []byte) (ConnectResponse, error) {
	if len(buf) != 3 {
		return ConnectResponse{}, fmt.Errorf("%w: connect response is %d bytes", ErrMessageLength, len(buf))
	}
	return ConnectResponse{
		Status:  ConnectStatus(buf[0]),
		Version: binary.LittleEndian.Uint16(buf[1:]),
	}, nil
}

// MoveRequest starts continuous control with the selected controller mode and
// motion generator type. The motion itself is driven by the cyclic command
// stream until the client signals motion_generation_finished.
type MoveRequest struct {
	ControllerMode      ControllerMode
	MotionGeneratorType MotionGeneratorType
}

// Encode returns the wire representation of the request payload.
func (req MoveRequest) Encode() []byte {
	return []byte{uint8(req.ControllerMode), uint8(req.MotionGeneratorType)}
}

// DecodeMoveRequest decodes a MoveRequest payload.
func DecodeMoveRequest(buf []byte) (MoveRequest, error) {
	if len(buf) != 2 {
		return MoveRequest{}, fmt.Errorf("%w: move request is %d bytes", ErrMessageLength, len(buf))
	}
	return MoveRequest{
		ControllerMode:      ControllerMode(buf[0]),
		MotionGeneratorType: MotionGeneratorType(buf[1]),
	}, nil
}

// MoveResponse is one of the Move command's responses.
type MoveResponse struct {
	Status MoveStatus
}

// Encode returns the wire representation of the response payload.
func (rsp MoveResponse) Encode() []byte {
	return []byte{uint8(rsp.Status)}
}

// DecodeMoveResponse decodes a MoveResponse payload.
func DecodeMoveResponse(buf []byte) (MoveResponse, error) {
	if len(buf) != 1 {
		return MoveResponse{}, fmt.Errorf("%w: move response is %d bytes", ErrMessageLength, len(buf))
	}
	return MoveResponse{Status: MoveStatus(buf[0])}, nil
}

// StopMoveRequest aborts a running Move.
type StopMoveRequest struct{}

// Encode returns the wire representation of the request payload.
func (StopMoveRequest) Encode() []byte { return nil }

// StopMoveResponse acknowledges a StopMoveRequest.
type StopMoveResponse struct {
	Status CommandStatus
}

// Encode returns the wire representation of the response payload.
func (rsp StopMoveResponse) Encode() []byte {
	return []byte{uint8(rsp.Status)}
}

// DecodeStopMoveResponse decodes a StopMoveResponse payload.
func DecodeStopMoveResponse(buf []byte) (StopMoveResponse, error) {
	if len(buf) != 1 {
		return StopMoveResponse{}, fmt.Errorf("%w: stop-move response is %d bytes", ErrMessageLength, len(buf))
	}
	return StopMoveResponse{Status: CommandStatus(buf[0])}, nil
}

// SetControllerModeRequest selects the control law on the robot.
type SetControllerModeRequest struct {
	Mode ControllerMode
}

// Encode returns the wire representation of the request payload.
func (req SetControllerModeRequest) Encode() []byte {
	return []byte{uint8(req.Mode)}
}

// DecodeSetControllerModeRequest decodes a SetControllerModeRequest payload.
func DecodeSetControllerModeRequest(buf []byte) (SetControllerModeRequest, error) {
	if len(buf) != 1 {
		return SetControllerModeRequest{}, fmt.Errorf("%w: set-controller-mode request is %d bytes", ErrMessageLength, len(buf))
	}
	return SetControllerModeRequest{Mode: ControllerMode(buf[0])}, nil
}

// SetControllerModeResponse acknowledges a SetControllerModeRequest.
type SetControllerModeResponse struct {
	Status CommandStatus
}

// Encode returns the wire representation of the response payload.
func (rsp SetControllerModeResponse) Encode() []byte {
	return []byte{uint8(rsp.Status)}
}

// DecodeSetControllerModeResponse decodes a SetControllerModeResponse payload.
func DecodeSetControllerModeResponse(buf []byte) (SetControllerModeResponse, error) {
	if len(buf) != 1 {
		return SetControllerModeResponse{}, fmt.Errorf("%w: set-controller-mode response is %d bytes", ErrMessageLength, len(buf))
	}
	return SetControllerModeResponse{Status: CommandStatus(buf[0])}, nil
}

// StartMotionGeneratorRequest starts a motion generator of the given type.
// Legacy protocol generation; newer servers use Move instead.
type StartMotionGeneratorRequest struct {
	Type MotionGeneratorType
}

// Encode returns the wire representation of the request payload.
func (req StartMotionGeneratorRequest) Encode() []byte {
	return []byte{uint8(req.Type)}
}

// DecodeStartMotionGeneratorRequest decodes a StartMotionGeneratorRequest payload.
func DecodeStartMotionGeneratorRequest(buf []byte) (StartMotionGeneratorRequest, error) {
	if len(buf) != 1 {
		return StartMotionGeneratorRequest{}, fmt.Errorf("%w: start-motion-generator request is %d bytes", ErrMessageLength, len(buf))
	}
	return StartMotionGeneratorRequest{Type: MotionGeneratorType(buf[0])}, nil
}

// StartMotionGeneratorResponse acknowledges or rejects a motion generator
// start. The robot may send a second, deferred response when an initially
// accepted motion generator is rejected later.
type StartMotionGeneratorResponse struct {
	Status CommandStatus
}

// Encode returns the wire representation of the response payload.
func (rsp StartMotionGeneratorResponse) Encode() []byte {
	return []byte{uint8(rsp.Status)}
}

// DecodeStartMotionGeneratorResponse decodes a StartMotionGeneratorResponse payload.
func DecodeStartMotionGeneratorResponse(buf []byte) (StartMotionGeneratorResponse, error) {
	if len(buf) != 1 {
		return StartMotionGeneratorResponse{}, fmt.Errorf("%w: start-motion-generator response is %d bytes", ErrMessageLength, len(buf))
	}
	return StartMotionGeneratorResponse{Status: CommandStatus(buf[0])}, nil
}

// StopMotionGeneratorRequest stops the running motion generator.
// Legacy protocol generation.
type StopMotionGeneratorRequest struct{}

// Encode returns the wire representation of the request payload.
func (StopMotionGeneratorRequest) Encode() []byte { return nil }

// StopMotionGeneratorResponse acknowledges a StopMotionGeneratorRequest.
type StopMotionGeneratorResponse struct {
	Status CommandStatus
}

// Encode returns the wire representation of the response payload.
func (rsp StopMotionGeneratorResponse) Encode() []byte {
	return []byte{uint8(rsp.Status)}
}

// DecodeStopMotionGeneratorResponse decodes a StopMotionGeneratorResponse payload.
func DecodeStopMotionGeneratorResponse(buf []byte) (StopMotionGeneratorResponse, error) {
	if len(buf) != 1 {
		return StopMotionGeneratorResponse{}, fmt.Errorf("%w: stop-motion-generator response is %d bytes", ErrMessageLength, len(buf))
	}
	return StopMotionGeneratorResponse{Status: CommandStatus(buf[0])}, nil
}
