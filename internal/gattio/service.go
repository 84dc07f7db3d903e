package gattio

import (
	"errors"
	"fmt"
	"time"

	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/workers"
)

var (
	serviceName = "gattio"
)

// Service is the radio I/O service. Make sure you initialize
// the channels before invoking [Service.StartWorkers].
type Service struct {
	// ReliableToGATT moves encoded frames down from the reliable layer to us.
	ReliableToGATT chan []byte

	// GATTToReliable moves raw inbound frames up from us to the reliable layer.
	GATTToReliable *chan []byte
}

// StartWorkers starts the radio I/O worker and points the driver callbacks
// at the non-blocking queue producers. The inbound path has no worker of
// its own: the receive callback IS the producer, exactly one non-blocking
// enqueue per invocation.
func (s *Service) StartWorkers(
	config *model.Config,
	workersManager *workers.Manager,
	driver Driver,
) {
	ws := &workersState{
		driver:         driver,
		gattToReliable: *s.GATTToReliable,
		logger:         config.Logger(),
		readyWait:      config.ReadyWaitTimeout(),
		reliableToGATT: s.ReliableToGATT,
		txReady:        make(chan any, 1),
		workersManager: workersManager,
	}
	driver.SetReceiveCallback(ws.onFrameReceived)
	driver.SetReadyToSendCallback(ws.onReadyToSend)
	workersManager.StartWorker(ws.moveDownWorker)
}

// workersState contains the radio I/O worker state.
type workersState struct {
	// driver is the radio transport to use.
	driver Driver

	// gattToReliable is the channel where we write raw inbound frames.
	gattToReliable chan<- []byte

	// logger is the logger to use.
	logger model.Logger

	// readyWait bounds each wait for the ready-to-send signal.
	readyWait time.Duration

	// reliableToGATT is the channel from which we read frames to transmit.
	reliableToGATT <-chan []byte

	// txReady is pulsed by the ready-to-send callback (capacity one:
	// it is an edge signal, not a counter).
	txReady chan any

	// workersManager controls the workers lifecycle.
	workersManager *workers.Manager
}

// onFrameReceived runs in interrupt context: copy the frame, enqueue
// without blocking, drop on overflow. A dropped frame is recovered by the
// peer's retransmission.
func (ws *workersState) onFrameReceived(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case ws.gattToReliable <- cp:
	default:
		ws.logger.Warnf("%s: RX queue full, dropping %d bytes", serviceName, len(frame))
	}
}

// onReadyToSend runs in interrupt context: pulse the edge signal without
// blocking. A second pulse while one is pending carries no information.
func (ws *workersState) onReadyToSend() {
	select {
	case ws.txReady <- nil:
	default:
	}
}

// moveDownWorker moves frames down to the radio (transmit side).
func (ws *workersState) moveDownWorker() {
	workerName := fmt.Sprintf("%s: moveDownWorker", serviceName)

	defer func() {
		ws.workersManager.OnWorkerDone(workerName)
		ws.workersManager.StartShutdown()
	}()

	ws.logger.Debugf("%s: started", workerName)

	for {
		// POSSIBLY BLOCK reading the next frame to transmit
		select {
		case frame := <-ws.reliableToGATT:
			if !ws.sendUntilAccepted(frame) {
				return
			}
		case <-ws.workersManager.ShouldShutdown():
			return
		}
	}
}

// sendUntilAccepted hands one frame to the driver, retrying the SAME frame
// for as long as the transport reports busy. Each wait for readiness is
// bounded so a wedged radio stack cannot starve us silently: we log and
// retry the wait rather than skipping ahead or abandoning the frame.
// Returns false when the stack is shutting down.
func (ws *workersState) sendUntilAccepted(frame []byte) bool {
	for {
		err := ws.driver.Send(frame)
		if err == nil {
			return true
		}
		if !errors.Is(err, ErrTransportBusy) {
			// the driver contract only knows busy; anything else is a
			// radio-stack defect, and the frame is left to the protocol's
			// retransmission
			ws.logger.Warnf("%s: send failed: %s", serviceName, err.Error())
			return true
		}

		// POSSIBLY BLOCK waiting for the ready-to-send edge
		select {
		case <-ws.txReady:
		case <-time.After(ws.readyWait):
			ws.logger.Warn("warning: radio stack did not notify TX ready?")
		case <-ws.workersManager.ShouldShutdown():
			return false
		}
	}
}
