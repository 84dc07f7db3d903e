package ppogatt

import (
	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/session"
	"github.com/Bystroushaak/RebbleOS/internal/workers"
)

var (
	serviceName = "ppogatt"
)

// Service is the reliable delivery service. Make sure you initialize
// the channels before invoking [Service.StartWorkers].
type Service struct {
	// GATTToReliable moves raw inbound frames up to us.
	GATTToReliable chan []byte

	// ReliableToGATT is a shared channel that moves encoded frames down
	// to the radio-facing worker.
	ReliableToGATT *chan []byte

	// UpperToReliable moves submitted payloads down to us. Each payload
	// on this channel holds one window credit.
	UpperToReliable chan []byte

	// ReliableToUpper moves reassembled in-order payloads up from us to
	// the layer above.
	ReliableToUpper *chan []byte

	// FailedToUpper reports payloads torn down by a session reset: they
	// are handed back to the caller rather than silently dropped.
	FailedToUpper *chan []byte

	// ResetRequest carries explicit reset requests from the upper layer.
	ResetRequest chan any

	// WindowCredits is where we return window credits once an outstanding
	// frame is acknowledged or fails. May be nil when nobody gates
	// submissions (tests drive UpperToReliable directly).
	WindowCredits chan struct{}
}

// StartWorkers starts the reliable-delivery workers: the moveUpWorker
// (receive actor) and the moveDownWorker (transmit actor).
func (s *Service) StartWorkers(
	config *model.Config,
	workersManager *workers.Manager,
	sessionManager *session.Manager,
) {
	ws := &workersState{
		config:          config,
		failedToUpper:   *s.FailedToUpper,
		gattToReliable:  s.GATTToReliable,
		incomingSeen:    make(chan incomingFrameSeen, INCOMING_SEEN_BUFFER),
		logger:          config.Logger(),
		reliableToGATT:  *s.ReliableToGATT,
		reliableToUpper: *s.ReliableToUpper,
		resetRequest:    s.ResetRequest,
		sessionManager:  sessionManager,
		upperToReliable: s.UpperToReliable,
		windowCredits:   s.WindowCredits,
		workersManager:  workersManager,
	}
	workersManager.StartWorker(ws.moveUpWorker)
	workersManager.StartWorker(ws.moveDownWorker)
}

// workersState contains the reliable workers state.
type workersState struct {
	// config holds the protocol tunables.
	config *model.Config

	// failedToUpper is the channel where we report failed submissions.
	failedToUpper chan<- []byte

	// gattToReliable is the channel from which we read raw inbound frames.
	gattToReliable <-chan []byte

	// incomingSeen is the shared channel connecting the receiver and
	// sender goroutines.
	incomingSeen chan incomingFrameSeen

	// logger is the logger to use.
	logger model.Logger

	// reliableToGATT is the channel where we write frames going down the stack.
	reliableToGATT chan<- []byte

	// reliableToUpper is the channel where we write payloads going up the stack.
	reliableToUpper chan<- []byte

	// resetRequest is the channel carrying upper-layer reset requests.
	resetRequest <-chan any

	// sessionManager tracks the reset-handshake state.
	sessionManager *session.Manager

	// upperToReliable is the channel from which we read submitted payloads.
	upperToReliable <-chan []byte

	// windowCredits is where we return window credits (may be nil).
	windowCredits chan<- struct{}

	// workersManager controls the workers lifecycle.
	workersManager *workers.Manager
}

// returnWindowCredits hands back n window credits to the submission gate.
// Each credit was taken by one submission, so there is always room.
func (ws *workersState) returnWindowCredits(n int) {
	if ws.windowCredits == nil {
		return
	}
	for i := 0; i < n; i++ {
		select {
		case ws.windowCredits <- struct{}{}:
		default:
			// more credits returned than taken: a bug, not a full queue
			ws.logger.Warn("ppogatt: window credit overflow")
			return
		}
	}
}

// sendFrameDown encodes a frame and writes it to the radio-facing channel.
// Returns false when the stack is shutting down.
func (ws *workersState) sendFrameDown(frame *model.Frame) bool {
	raw, err := frame.Bytes()
	if err != nil {
		ws.logger.Warnf("%s: cannot encode frame: %s", serviceName, err.Error())
		return true
	}
	frame.Log(ws.logger, model.DirectionOutgoing)
	select {
	case ws.reliableToGATT <- raw:
		return true
	case <-ws.workersManager.ShouldShutdown():
		return false
	}
}
