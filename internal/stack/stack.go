// Package stack wires the PPoGATT services together and exposes the
// upper-layer API: submit a payload (with window backpressure), consume
// in-order deliveries, and observe submissions failed by a reset.
package stack

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Bystroushaak/RebbleOS/internal/gattio"
	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/ppogatt"
	"github.com/Bystroushaak/RebbleOS/internal/session"
	"github.com/Bystroushaak/RebbleOS/internal/workers"
)

// ErrWindowFull is returned by [Stack.Submit] when the outstanding window
// has no room. This is backpressure, not a failure: retry later, once the
// peer acknowledges something.
var ErrWindowFull = errors.New("ppogatt: window full")

// Stack is a running PPoGATT stack bound to one radio driver.
// Use [Start] to construct one.
type Stack struct {
	closeOnce       sync.Once
	credits         chan struct{}
	failedToUpper   chan []byte
	logger          model.Logger
	reliableToUpper chan []byte
	resetRequest    chan any
	sessionManager  *session.Manager
	upperToReliable chan []byte
	workersManager  *workers.Manager
}

// Start wires the PPoGATT services on top of the given driver and starts
// all the workers. This function TAKES OWNERSHIP of the driver callbacks.
func Start(config *model.Config, driver gattio.Driver) *Stack {
	logger := config.Logger()
	sessionManager := session.NewManager(logger)
	workersManager := workers.NewManager(logger)

	// channels between the services; queue depths follow the engine's
	// constants, the upper-layer buffers follow the window bound
	gattToReliable := make(chan []byte, ppogatt.RX_QUEUE_SIZE)
	reliableToGATT := make(chan []byte, ppogatt.TX_QUEUE_SIZE)
	upperToReliable := make(chan []byte, config.WindowSize())
	reliableToUpper := make(chan []byte, config.WindowSize())
	failedToUpper := make(chan []byte, config.WindowSize())
	resetRequest := make(chan any, 1)

	// the window-credit semaphore backing Submit: one token per slot in
	// the outstanding window
	credits := make(chan struct{}, config.WindowSize())
	for i := 0; i < config.WindowSize(); i++ {
		credits <- struct{}{}
	}

	gattioSvc := &gattio.Service{
		ReliableToGATT: reliableToGATT,
		GATTToReliable: &gattToReliable,
	}
	gattioSvc.StartWorkers(config, workersManager, driver)

	ppogattSvc := &ppogatt.Service{
		GATTToReliable:  gattToReliable,
		ReliableToGATT:  &reliableToGATT,
		UpperToReliable: upperToReliable,
		ReliableToUpper: &reliableToUpper,
		FailedToUpper:   &failedToUpper,
		ResetRequest:    resetRequest,
		WindowCredits:   credits,
	}
	ppogattSvc.StartWorkers(config, workersManager, sessionManager)

	return &Stack{
		closeOnce:       sync.Once{},
		credits:         credits,
		failedToUpper:   failedToUpper,
		logger:          logger,
		reliableToUpper: reliableToUpper,
		resetRequest:    resetRequest,
		sessionManager:  sessionManager,
		upperToReliable: upperToReliable,
		workersManager:  workersManager,
	}
}

// Submit hands one payload to the transmit engine. It never blocks: when
// the outstanding window is full it returns [ErrWindowFull] and the caller
// retries later. This is the sole backpressure point of the stack.
func (s *Stack) Submit(payload []byte) error {
	if len(payload) > model.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", model.ErrPayloadTooLarge, len(payload))
	}

	// take a window credit without blocking
	select {
	case <-s.credits:
	default:
		return ErrWindowFull
	}

	// the caller may reuse its buffer after Submit returns
	cp := make([]byte, len(payload))
	copy(cp, payload)

	// cannot block: the channel has one slot per credit
	s.upperToReliable <- cp
	return nil
}

// Delivered returns the stream of reassembled in-order payloads, exactly
// one per successful peer submission, in submission order.
func (s *Stack) Delivered() <-chan []byte {
	return s.reliableToUpper
}

// Failed returns the stream of payloads whose delivery was abandoned by a
// session reset.
func (s *Stack) Failed() <-chan []byte {
	return s.failedToUpper
}

// Reset asks the transmit engine for a session reset. The engine applies
// it on its own schedule, through the same queue as every other event.
func (s *Stack) Reset() {
	select {
	case s.resetRequest <- nil:
	default:
		// a reset is already pending; one is enough
	}
}

// Session exposes the handshake state for inspection.
func (s *Stack) Session() *session.Manager {
	return s.sessionManager
}

// Close shuts down all the workers and waits for them to finish.
func (s *Stack) Close() {
	s.closeOnce.Do(func() {
		s.workersManager.StartShutdown()
		s.workersManager.WaitWorkersShutdown()
	})
}
