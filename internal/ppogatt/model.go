package ppogatt

import (
	"time"

	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/optional"
)

// incomingFrameSeen is the event the receiver posts to the sender for every
// inbound frame that carries protocol-level consequences. This is the ONLY
// way receiver observations reach the sender.
type incomingFrameSeen struct {
	// ack, when set, is a sequence we must acknowledge to the peer. The
	// receiver only advances in order, so the latest value is always the
	// highest contiguous sequence delivered (cumulative acknowledgement).
	ack optional.Value[model.Sequence]

	// ackResend, together with ack, marks a retransmitted data frame we
	// had already acknowledged: the peer did not hear our acknowledgement,
	// so we repeat it. A repeat bumps the "send an ack" flag without
	// registering a new acknowledgement.
	ackResend bool

	// cleared, when set, is the peer's cumulative ACK: every outstanding
	// frame up to and including this sequence is confirmed received.
	cleared optional.Value[model.Sequence]

	// resetRequest means the peer asked for a session reset.
	resetRequest bool

	// resetDone means the peer confirmed a reset we initiated.
	resetDone bool
}

// outgoingFrameHandler has methods to deal with the outgoing frames (going down).
type outgoingFrameHandler interface {
	// TrySubmitPayload attempts to append a payload to the outstanding
	// window, assigning it the next sequence number. A false return means
	// the window bound was hit and the payload was not accepted.
	TrySubmitPayload(payload []byte) bool

	// RecordAckNeeded notes that the given sequence awaits
	// acknowledgement. A resend marks a repeated acknowledgement for a
	// retransmitted frame, not a new one.
	RecordAckNeeded(seq model.Sequence, resend bool)

	// EvictAcknowledged removes every outstanding frame from the oldest
	// through the given sequence (modular), returning how many entries a
	// single cumulative ACK retired.
	EvictAcknowledged(seq model.Sequence) int

	// TearDownSession discards the whole outstanding window for a reset,
	// returning the payloads to report as failed submissions.
	TearDownSession() [][]byte

	// NextDeadline returns the moment of the earliest retransmission
	// deadline relative to the given time, used to re-arm the ticker.
	NextDeadline(t time.Time) time.Time
}

// incomingFrameHandler knows how to deal with incoming frames (going up).
type incomingFrameHandler interface {
	// HandleFrame applies one inbound frame to the receive state. It
	// returns the payload to deliver upward (nil when nothing is
	// deliverable) and the event to post to the sender (nil when the
	// frame has no consequences for the sender).
	HandleFrame(f *model.Frame) (payload []byte, seen *incomingFrameSeen)
}
