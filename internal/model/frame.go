package model

//
// Frame
//
// Parsing and serializing PPoGATT frames.
//
// The wire format is a single header byte followed by an optional body:
//
//	byte 0 = {seq[4:0], cmd[2:0]}
//	bytes 1.. = payload, present only for DATA frames
//

import (
	"errors"
	"fmt"
)

// Command is a PPoGATT command (the low three bits of the header byte).
type Command byte

// PPoGATT commands.
const (
	// CMD_DATA is a data frame carrying payload with sequence seq. The
	// receiver answers with an ACK for the same sequence, unless an
	// earlier sequence is still missing.
	CMD_DATA = Command(iota) // 0

	// CMD_ACK acknowledges every data frame with sequence up to and
	// including seq (cumulative).
	CMD_ACK // 1

	// CMD_RESET_REQ asks the peer to abandon the current session and
	// restart both sequence counters at zero.
	CMD_RESET_REQ // 2

	// CMD_RESET_ACK confirms a reset request.
	CMD_RESET_ACK // 3
)

// NewCommandFromString returns a command from its string representation, and
// an error if it cannot parse the representation. The zero return value is
// only valid together with a nil error.
func NewCommandFromString(s string) (Command, error) {
	switch s {
	case "DATA":
		return CMD_DATA, nil
	case "ACK":
		return CMD_ACK, nil
	case "RESET_REQ":
		return CMD_RESET_REQ, nil
	case "RESET_ACK":
		return CMD_RESET_ACK, nil
	default:
		return 0, errors.New("unknown command")
	}
}

// String returns the command string representation.
func (c Command) String() string {
	switch c {
	case CMD_DATA:
		return "DATA"
	case CMD_ACK:
		return "ACK"
	case CMD_RESET_REQ:
		return "RESET_REQ"
	case CMD_RESET_ACK:
		return "RESET_ACK"
	default:
		return "UNKNOWN"
	}
}

// MTU is the maximum total frame size the transport will carry in one
// unit, header byte included.
const MTU = 256

// MaxPayloadSize is the maximum payload a single DATA frame can carry.
const MaxPayloadSize = MTU - 1

// Frame is a single PPoGATT protocol unit.
type Frame struct {
	// Command is the frame command (low three bits of the header).
	Command Command

	// Seq is the frame sequence number (high five bits of the header).
	Seq Sequence

	// Payload is the frame body. Only DATA frames carry payload.
	Payload []byte
}

// ErrInvalidFrame indicates that a frame cannot be parsed or serialized.
var ErrInvalidFrame = errors.New("ppogatt: invalid frame")

// ErrPayloadTooLarge indicates that a payload does not fit in one frame.
var ErrPayloadTooLarge = errors.New("ppogatt: payload too large")

// Bytes returns the wire representation of this frame.
func (f *Frame) Bytes() ([]byte, error) {
	if f.Command > CMD_RESET_ACK {
		return nil, fmt.Errorf("%w: command %d", ErrInvalidFrame, f.Command)
	}
	if f.Seq >= SequenceSpace {
		return nil, fmt.Errorf("%w: sequence %d", ErrInvalidFrame, f.Seq)
	}
	if f.Command != CMD_DATA && len(f.Payload) > 0 {
		return nil, fmt.Errorf("%w: %s with payload", ErrInvalidFrame, f.Command)
	}
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	buf := make([]byte, 0, 1+len(f.Payload))
	buf = append(buf, byte(f.Seq)<<3|byte(f.Command))
	buf = append(buf, f.Payload...)
	return buf, nil
}

// ParseFrame produces a frame after parsing the header byte. We assume the
// transport has already stripped any outer framing. Sequence legality is not
// checked here: that is a session-level concern for the engines.
func ParseFrame(buf []byte) (*Frame, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidFrame)
	}
	if len(buf) > MTU {
		return nil, fmt.Errorf("%w: %d bytes exceeds MTU", ErrInvalidFrame, len(buf))
	}
	cmd := Command(buf[0] & 0x07)
	seq := Sequence(buf[0] >> 3)
	if cmd > CMD_RESET_ACK {
		return nil, fmt.Errorf("%w: command %d", ErrInvalidFrame, cmd)
	}
	if cmd != CMD_DATA && len(buf) > 1 {
		return nil, fmt.Errorf("%w: %s with %d payload bytes", ErrInvalidFrame, cmd, len(buf)-1)
	}
	f := &Frame{
		Command: cmd,
		Seq:     seq,
	}
	if cmd == CMD_DATA {
		f.Payload = buf[1:]
	}
	return f, nil
}

// Log writes an one-line description of this frame to the logger.
func (f *Frame) Log(logger Logger, direction Direction) {
	logger.Debugf(
		"%s %s {seq=%d} [%d bytes]",
		direction,
		f.Command,
		f.Seq,
		len(f.Payload),
	)
}

// Direction is the direction of a frame.
type Direction int

const (
	// DirectionIncoming marks a frame seen moving up the stack.
	DirectionIncoming = Direction(iota)

	// DirectionOutgoing marks a frame seen moving down the stack.
	DirectionOutgoing
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case DirectionIncoming:
		return "<"
	case DirectionOutgoing:
		return ">"
	default:
		return "?"
	}
}
