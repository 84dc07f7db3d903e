package ppogatt

import (
	"fmt"
	"time"

	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/session"
)

// moveDownWorker moves frames down the stack (sender).
func (ws *workersState) moveDownWorker() {
	workerName := fmt.Sprintf("%s: moveDownWorker", serviceName)

	defer func() {
		ws.workersManager.OnWorkerDone(workerName)
		ws.workersManager.StartShutdown()
	}()

	ws.logger.Debugf("%s: started", workerName)

	sender := newFrameSender(ws.logger, ws.config)
	ticker := time.NewTicker(time.Duration(SENDER_TICKER_MS) * time.Millisecond)
	defer ticker.Stop()

	if ws.config.InitiateReset() {
		if !ws.startLocalReset(sender, "connection establishment") {
			return
		}
	}

	for {
		// POSSIBLY BLOCK reading the next payload we should move down the stack
		select {
		case payload := <-ws.upperToReliable:
			if !sender.TrySubmitPayload(payload) {
				// an ungated submission beyond the window bound: hand it
				// back as failed rather than silently dropping it, and
				// release the credit it carried
				ws.reportFailed([][]byte{payload})
				ws.returnWindowCredits(1)
			}
			// schedule for immediate wakeup so that the ticker sees
			// whether there is anything pending to be sent
			ticker.Reset(time.Nanosecond)

		case seen := <-ws.incomingSeen:
			if !ws.handleFrameSeen(sender, seen) {
				return
			}
			ticker.Reset(time.Nanosecond)

		case <-ws.resetRequest:
			if !ws.startLocalReset(sender, "upper-layer request") {
				return
			}
			ticker.Reset(time.Nanosecond)

		case <-ticker.C:
			// nearestDeadlineTo(now) never returns a time at or before
			// now, so it is safe to re-arm the ticker with it.
			now := time.Now()
			if !ws.flushReady(sender, now) {
				return
			}
			timeout := sender.NextDeadline(now)
			ticker.Reset(timeout.Sub(now))

		case <-ws.workersManager.ShouldShutdown():
			return
		}
	}
}

// handleFrameSeen applies one event posted by the receiver. Returns false
// when the stack is shutting down.
func (ws *workersState) handleFrameSeen(sender *frameSender, seen incomingFrameSeen) bool {
	if !seen.ack.IsNone() {
		sender.RecordAckNeeded(seen.ack.Unwrap(), seen.ackResend)
	}

	if !seen.cleared.IsNone() {
		// one cumulative ACK may retire several outstanding frames
		evicted := sender.EvictAcknowledged(seen.cleared.Unwrap())
		ws.returnWindowCredits(evicted)
	}

	if seen.resetRequest {
		// the peer wants a fresh session: tear down the window, answer
		// RESET_ACK, and resume transmission at sequence zero
		ws.sessionManager.SetState(session.S_RESET_RECEIVED)
		ws.reportFailed(ws.tearDown(sender))
		if !ws.sendFrameDown(&model.Frame{Command: model.CMD_RESET_ACK}) {
			return false
		}
		ws.sessionManager.NewSession(session.S_ESTABLISHED)
	}

	if seen.resetDone {
		if ws.sessionManager.State() != session.S_RESET_SENT {
			ws.logger.Warnf("%s: unexpected RESET_ACK", serviceName)
			return true
		}
		ws.sessionManager.SetState(session.S_ESTABLISHED)
	}

	return true
}

// flushReady produces every frame that is due right now, in strict priority
// order: a pending acknowledgement first, then timed-out retransmissions,
// then first transmissions. Returns false when the stack is shutting down.
func (ws *workersState) flushReady(sender *frameSender, now time.Time) bool {
	// (1) acknowledgements are never starved behind a backlog of data
	if sender.ackPending {
		if !ws.sendFrameDown(&model.Frame{Command: model.CMD_ACK, Seq: sender.ackSeq}) {
			return false
		}
		sender.ackPending = false
	}

	if ws.sessionManager.State() == session.S_RESET_SENT {
		// hold data until the peer confirms the reset
		return true
	}

	// (2) timed-out retransmissions take priority over fresh data
	for _, p := range sender.inFlight.readyToRetransmit(now) {
		if p.retries+1 > ws.config.RetryCeiling() {
			ws.logger.Warnf(
				"%s: seq=%d still unacknowledged after %d retransmissions, forcing reset",
				serviceName, p.seq, p.retries,
			)
			return ws.startLocalReset(sender, "retransmit ceiling exceeded")
		}
		p.scheduleTransmission(now, ws.config.RetransmitTimeout())
		ws.logger.Debugf("%s: retransmitting seq=%d (attempt %d)", serviceName, p.seq, p.retries)
		if !ws.sendFrameDown(p.frame()) {
			return false
		}
	}

	// (3) first transmissions, oldest first
	for _, p := range sender.inFlight.notYetSent() {
		p.scheduleTransmission(now, ws.config.RetransmitTimeout())
		if !ws.sendFrameDown(p.frame()) {
			return false
		}
	}

	return true
}

// startLocalReset initiates a reset handshake: the outstanding window is
// discarded (reporting every entry as failed), counters restart at zero,
// and a RESET_REQ goes out. Returns false when the stack is shutting down.
func (ws *workersState) startLocalReset(sender *frameSender, reason string) bool {
	ws.logger.Infof("%s: resetting session (%s)", serviceName, reason)
	ws.reportFailed(ws.tearDown(sender))
	ws.sessionManager.NewSession(session.S_RESET_SENT)
	return ws.sendFrameDown(&model.Frame{Command: model.CMD_RESET_REQ})
}

// tearDown clears the sender session state and returns the credits held by
// the discarded entries, handing their payloads back for failure reporting.
func (ws *workersState) tearDown(sender *frameSender) [][]byte {
	failed := sender.TearDownSession()
	ws.returnWindowCredits(len(failed))
	return failed
}

// reportFailed hands payloads back to the upper layer as failed
// submissions. The failed channel is bounded; if nobody drains it we
// prefer dropping the report over wedging the sender.
func (ws *workersState) reportFailed(payloads [][]byte) {
	for _, payload := range payloads {
		select {
		case ws.failedToUpper <- payload:
		default:
			ws.logger.Warnf("%s: failed-submission report dropped (%d bytes)", serviceName, len(payload))
		}
	}
}

//
// outgoingFrameHandler implementation.
//

// frameSender keeps state about the outstanding window, and implements
// outgoingFrameHandler. Please use the constructor `newFrameSender()`.
type frameSender struct {
	// ackPending records whether an acknowledgement awaits transmission.
	ackPending bool

	// ackResends counts repeat-acknowledgement requests: retransmitted
	// frames bump the pending flag without registering a new
	// acknowledgement.
	ackResends int

	// ackSeq is the sequence to acknowledge. The receiver advances only
	// in order, so this is always the highest contiguous sequence it has
	// delivered (cumulative).
	ackSeq model.Sequence

	// config holds the protocol tunables.
	config *model.Config

	// inFlight is the outstanding window, in submission order.
	inFlight outstandingSequence

	// logger is the logger to use.
	logger model.Logger

	// nextSeq is the sequence assigned to the next submission.
	nextSeq model.Sequence
}

// newFrameSender returns a new instance of frameSender.
func newFrameSender(logger model.Logger, config *model.Config) *frameSender {
	return &frameSender{
		ackPending: false,
		ackResends: 0,
		ackSeq:     0,
		config:     config,
		inFlight:   make(outstandingSequence, 0, config.WindowSize()),
		logger:     logger,
		nextSeq:    0,
	}
}

func (s *frameSender) TrySubmitPayload(payload []byte) bool {
	if len(s.inFlight) >= s.config.WindowSize() {
		s.logger.Warn("outstanding window full, rejecting payload")
		return false
	}
	p := newOutstandingFrame(s.nextSeq, payload, time.Now())
	s.nextSeq = s.nextSeq.Next()
	s.inFlight = append(s.inFlight, p)
	return true
}

func (s *frameSender) RecordAckNeeded(seq model.Sequence, resend bool) {
	s.ackPending = true
	s.ackSeq = seq
	if resend {
		s.ackResends += 1
	}
}

// EvictAcknowledged removes every outstanding frame from the oldest through
// the acknowledged sequence. The window is kept in submission order, so a
// single scan finds the match and the cut point without any modular
// comparison that wraparound could confuse.
func (s *frameSender) EvictAcknowledged(acked model.Sequence) int {
	for i, p := range s.inFlight {
		if p.seq == acked {
			evicted := i + 1
			s.logger.Debugf("sender: ack %d evicts %d frame(s)", acked, evicted)
			remaining := make(outstandingSequence, 0, s.config.WindowSize())
			remaining = append(remaining, s.inFlight[i+1:]...)
			s.inFlight = remaining
			return evicted
		}
	}
	// a stale cumulative ack for sequences we already evicted
	return 0
}

func (s *frameSender) TearDownSession() [][]byte {
	failed := make([][]byte, 0, len(s.inFlight))
	for _, p := range s.inFlight {
		failed = append(failed, p.payload)
	}
	s.inFlight = make(outstandingSequence, 0, s.config.WindowSize())
	s.nextSeq = 0
	s.ackPending = false
	s.ackResends = 0
	return failed
}

func (s *frameSender) NextDeadline(t time.Time) time.Time {
	return s.inFlight.nearestDeadlineTo(t)
}

var _ outgoingFrameHandler = &frameSender{}
