// Package ppogatt implements the reliable delivery engine for Pebble
// Protocol over GATT. The underlying characteristic transport (WRITE
// COMMAND and NOTIFY operations) has no acknowledgements of its own, so
// this layer numbers every data frame with a 5-bit wrapping sequence,
// acknowledges cumulatively, retransmits on timeout, bounds the amount of
// outstanding unacknowledged data, and recovers a fresh session through an
// explicit reset handshake.
//
// A note about terminology: in this package, "receiver" is the moveUpWorker
// in the [Service] (since it receives incoming frames), and "sender" is the
// moveDownWorker in the same service. The corresponding data structures lack
// mutexes because they are confined to a single goroutine (one for each
// worker), and they SHOULD ONLY communicate via message passing.
package ppogatt
