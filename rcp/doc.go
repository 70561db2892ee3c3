// Package rcp implements the Robot Control Protocol (RCP) used to drive a
// robot arm over a network link.
//
// The protocol uses two channels to a fixed endpoint:
//
//   - A TCP command channel carrying request/response command messages
//     (connect handshake, controller mode selection, motion generator
//     start/stop, and the unified Move command). Messages are framed with a
//     4-byte little-endian length followed by a 2-byte command code and the
//     command payload; see ReadMessage and WriteMessage.
//
//   - A UDP realtime channel carrying one RobotState from the robot and one
//     RobotCommand from the client per control cycle. Both are fixed-size
//     little-endian packed records; see EncodeRobotState, DecodeRobotState,
//     EncodeRobotCommand and DecodeRobotCommand.
//
// This package contains the wire-level types and codecs only. Session
// management, the cyclic exchange loop, and the public client surface live in
// the robot package.
package rcp
