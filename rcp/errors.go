package rcp

import "errors"

var (
	// ErrMessageLength indicates that a message body has an unexpected length.
	ErrMessageLength = errors.New("unexpected message length")

	// ErrMessageTooShort indicates that a command message is shorter than its
	// fixed header.
	ErrMessageTooShort = errors.New("message shorter than header")

	// ErrUnknownCommand indicates that a command message carries a command
	// code this library does not know.
	ErrUnknownCommand = errors.New("unknown command code")

	// ErrMessageTooLarge indicates that a framed message length exceeds
	// MaxMessageSize.
	ErrMessageTooLarge = errors.New("message length exceeds maximum")
)
