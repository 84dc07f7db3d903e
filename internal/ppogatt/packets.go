package ppogatt

import (
	"time"

	"github.com/Bystroushaak/RebbleOS/internal/model"
)

// outstandingFrame is a data frame we have accepted from the upper layer
// and the peer has not yet acknowledged. Owned exclusively by the sender;
// created on submission, destroyed when a cumulative ACK covers its
// sequence or a reset tears the session down.
type outstandingFrame struct {
	// seq is the sequence assigned at submission time.
	seq model.Sequence

	// payload is the data to carry in the frame.
	payload []byte

	// enqueued is the submission time.
	enqueued time.Time

	// deadline is when this frame is next due for (re)transmission.
	// The zero value means the frame has never been transmitted.
	deadline time.Time

	// retries counts retransmissions of this frame.
	retries int

	// sent records whether the first transmission has happened.
	sent bool
}

func newOutstandingFrame(seq model.Sequence, payload []byte, now time.Time) *outstandingFrame {
	return &outstandingFrame{
		seq:      seq,
		payload:  payload,
		enqueued: now,
		deadline: time.Time{},
		retries:  0,
		sent:     false,
	}
}

// scheduleTransmission arms the retransmission deadline after a send.
func (p *outstandingFrame) scheduleTransmission(now time.Time, timeout time.Duration) {
	if p.sent {
		p.retries += 1
	}
	p.sent = true
	p.deadline = now.Add(timeout)
}

// frame builds the wire-level data frame for this entry.
func (p *outstandingFrame) frame() *model.Frame {
	return &model.Frame{
		Command: model.CMD_DATA,
		Seq:     p.seq,
		Payload: p.payload,
	}
}

// outstandingSequence is the outstanding window, kept in submission order.
// Submission order IS modular sequence order, which keeps every scan below
// wraparound safe without comparisons.
type outstandingSequence []*outstandingFrame

// nearestDeadlineTo returns the earliest transmission deadline relative to
// the passed reference time. Unsent frames are due immediately. The result
// is never before t, so it is always safe to re-arm a ticker with it.
func (seq outstandingSequence) nearestDeadlineTo(t time.Time) time.Time {
	// we default to a long wakeup
	timeout := t.Add(time.Duration(SENDER_TICKER_MS) * time.Millisecond)

	for _, p := range seq {
		if !p.sent {
			timeout = t
			break
		}
		if p.deadline.Before(timeout) {
			timeout = p.deadline
		}
	}

	// what's past is past and we need to move on.
	if timeout.Before(t) || timeout.Equal(t) {
		timeout = t.Add(time.Nanosecond)
	}
	return timeout
}

// readyToRetransmit returns the already-sent frames whose retransmission
// deadline has elapsed, oldest first.
func (seq outstandingSequence) readyToRetransmit(t time.Time) outstandingSequence {
	expired := make(outstandingSequence, 0)
	for _, p := range seq {
		if p.sent && p.deadline.Before(t) {
			expired = append(expired, p)
		}
	}
	return expired
}

// notYetSent returns the frames still awaiting their first transmission,
// oldest first.
func (seq outstandingSequence) notYetSent() outstandingSequence {
	fresh := make(outstandingSequence, 0)
	for _, p := range seq {
		if !p.sent {
			fresh = append(fresh, p)
		}
	}
	return fresh
}
