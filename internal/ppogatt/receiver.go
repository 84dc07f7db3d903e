package ppogatt

import (
	"fmt"

	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/optional"
	"github.com/Bystroushaak/RebbleOS/internal/session"
)

// moveUpWorker moves frames up the stack (receiver).
func (ws *workersState) moveUpWorker() {
	workerName := fmt.Sprintf("%s: moveUpWorker", serviceName)

	defer func() {
		ws.workersManager.OnWorkerDone(workerName)
		ws.workersManager.StartShutdown()
	}()

	ws.logger.Debugf("%s: started", workerName)

	receiver := newFrameReceiver(ws.logger, ws.sessionManager)

	for {
		// POSSIBLY BLOCK reading a frame to move up the stack
		select {
		case raw := <-ws.gattToReliable:
			frame, err := model.ParseFrame(raw)
			if err != nil {
				// malformed input is never fatal: drop, log, no ack
				ws.logger.Warnf("%s: dropping frame: %s", workerName, err.Error())
				continue
			}
			frame.Log(ws.logger, model.DirectionIncoming)

			payload, seen := receiver.HandleFrame(frame)

			if payload != nil {
				// POSSIBLY BLOCK delivering to the upper layer
				select {
				case ws.reliableToUpper <- payload:
				case <-ws.workersManager.ShouldShutdown():
					return
				}
			}

			if seen != nil {
				// POSSIBLY BLOCK posting the event to the sender
				select {
				case ws.incomingSeen <- *seen:
				case <-ws.workersManager.ShouldShutdown():
					return
				}
			}

		case <-ws.workersManager.ShouldShutdown():
			return
		}
	}
}

//
// incomingFrameHandler implementation.
//

// frameReceiver is the receiver part that sees incoming frames moving up
// the stack. Please use the constructor `newFrameReceiver()`.
type frameReceiver struct {
	// expected is the sequence of the next in-order data frame. It only
	// advances by exactly one per successfully delivered frame.
	expected model.Sequence

	// lastAcked is the last sequence we acknowledged, empty until the
	// first in-order delivery of a session.
	lastAcked optional.Value[model.Sequence]

	// logger is the logger to use.
	logger model.Logger

	// session tracks the handshake state (concurrency safe).
	session *session.Manager
}

func newFrameReceiver(logger model.Logger, sessionManager *session.Manager) *frameReceiver {
	return &frameReceiver{
		expected:  0,
		lastAcked: optional.None[model.Sequence](),
		logger:    logger,
		session:   sessionManager,
	}
}

func (r *frameReceiver) HandleFrame(f *model.Frame) ([]byte, *incomingFrameSeen) {
	switch f.Command {
	case model.CMD_DATA:
		return r.handleData(f)

	case model.CMD_ACK:
		// cumulative clear for the sender
		return nil, &incomingFrameSeen{
			cleared: optional.Some(f.Seq),
		}

	case model.CMD_RESET_REQ:
		// zeroing an already-zero session is fine: reset is idempotent
		r.resetSession()
		return nil, &incomingFrameSeen{
			resetRequest: true,
		}

	case model.CMD_RESET_ACK:
		// a RESET_ACK we never asked for must not clobber the live
		// receive counters; the sender warns about the event
		if r.session.State() == session.S_RESET_SENT {
			r.resetSession()
		}
		return nil, &incomingFrameSeen{
			resetDone: true,
		}

	default:
		// unreachable: ParseFrame rejects unknown commands
		r.logger.Warnf("receiver: unknown command %d", f.Command)
		return nil, nil
	}
}

func (r *frameReceiver) handleData(f *model.Frame) ([]byte, *incomingFrameSeen) {
	if f.Seq == r.expected {
		// the in-order case: deliver upward immediately and request a
		// new cumulative acknowledgement
		r.lastAcked = optional.Some(f.Seq)
		r.expected = r.expected.Next()
		return f.Payload, &incomingFrameSeen{
			ack: optional.Some(f.Seq),
		}
	}

	// a frame exactly half the space behind reads as distance -16, but a
	// peer can be at most windowSize-1 <= 15 ahead of expected, so that
	// reading is unambiguously an old frame too
	dist := r.expected.Distance(f.Seq)
	if !r.lastAcked.IsNone() && (dist > 0 || dist == -model.SequenceSpace/2) {
		// a retransmission of a frame we already delivered: the peer did
		// not hear our acknowledgement, so repeat the cumulative one, but
		// do NOT deliver the payload again
		r.logger.Debugf("receiver: seq=%d retransmitted, repeating ack", f.Seq)
		return nil, &incomingFrameSeen{
			ack:       optional.Some(r.lastAcked.Unwrap()),
			ackResend: true,
		}
	}

	// a gap: an earlier frame was lost in transit. Stay silent; the
	// peer's retransmission timer is the only recovery path.
	r.logger.Debugf("receiver: got seq=%d, expected %d (dropping)", f.Seq, r.expected)
	return nil, nil
}

// resetSession zeroes the receive state for a fresh session.
func (r *frameReceiver) resetSession() {
	r.expected = 0
	r.lastAcked = optional.None[model.Sequence]()
}

// assert that frameReceiver implements incomingFrameHandler
var _ incomingFrameHandler = &frameReceiver{}
