// Package gattio bridges the PPoGATT engine and the radio stack.
//
// The radio stack (peripheral configuration, advertising, the GATT
// characteristics themselves) is an external collaborator: this package
// consumes only the narrow [Driver] interface it exposes, converting the
// interrupt-context callbacks into non-blocking channel operations and
// driving the raw non-blocking send with a bounded-wait retry loop.
package gattio

import "errors"

// ErrTransportBusy is returned by [Driver.Send] when the radio stack
// cannot accept a frame right now. A send attempt must never block.
var ErrTransportBusy = errors.New("gattio: transport busy")

// Driver is the raw characteristic transport provided by the radio stack.
type Driver interface {
	// Send attempts to transmit one raw frame. It must not block: when
	// the stack cannot take the frame it returns [ErrTransportBusy] and
	// the ready-to-send callback fires once room opens up again.
	Send(frame []byte) error

	// SetReceiveCallback registers the function invoked with each inbound
	// raw frame. The callback runs in interrupt context: it must only
	// perform a non-blocking handoff.
	SetReceiveCallback(fn func(frame []byte))

	// SetReadyToSendCallback registers the function invoked on the edge
	// transition to "ready to send again". Interrupt context as well.
	SetReadyToSendCallback(fn func())
}
