package ppogatt

import (
	"fmt"
	"time"

	"github.com/apex/log"

	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/prototest"
	"github.com/Bystroushaak/RebbleOS/internal/session"
	"github.com/Bystroushaak/RebbleOS/internal/workers"
)

//
// Common utilities for tests in this package.
//

// initManagers initializes a workers manager and a session manager.
func initManagers() (*workers.Manager, *session.Manager) {
	w := workers.NewManager(log.Log)
	s := session.NewManager(log.Log)
	return w, s
}

// testService bundles a running [Service] with direct access to all of its
// channels, so tests can play both the radio below and the upper layer above.
type testService struct {
	svc             *Service
	gattToReliable  chan []byte
	reliableToGATT  chan []byte
	upperToReliable chan []byte
	reliableToUpper chan []byte
	failedToUpper   chan []byte
	resetRequest    chan any
	workersManager  *workers.Manager
	sessionManager  *session.Manager
}

// startTestService starts the reliable service with generously buffered
// channels, so single-sided tests never wedge on an undrained peer.
func startTestService(config *model.Config) *testService {
	ts := &testService{
		gattToReliable:  make(chan []byte, 1024),
		reliableToGATT:  make(chan []byte, 1024),
		upperToReliable: make(chan []byte, 1024),
		reliableToUpper: make(chan []byte, 1024),
		failedToUpper:   make(chan []byte, 1024),
		resetRequest:    make(chan any, 1),
	}
	ts.svc = &Service{
		GATTToReliable:  ts.gattToReliable,
		ReliableToGATT:  &ts.reliableToGATT,
		UpperToReliable: ts.upperToReliable,
		ReliableToUpper: &ts.reliableToUpper,
		FailedToUpper:   &ts.failedToUpper,
		ResetRequest:    ts.resetRequest,
	}
	ts.workersManager, ts.sessionManager = initManagers()
	ts.svc.StartWorkers(config, ts.workersManager, ts.sessionManager)
	return ts
}

func (ts *testService) shutdown() {
	ts.workersManager.StartShutdown()
	ts.workersManager.WaitWorkersShutdown()
}

// waitForFrame reads outgoing frames until one matches the predicate,
// failing after the timeout. Non-matching frames are discarded.
func (ts *testService) waitForFrame(match func(*model.Frame) bool, timeout time.Duration) (*model.Frame, error) {
	deadline := time.After(timeout)
	for {
		select {
		case raw := <-ts.reliableToGATT:
			frame, err := model.ParseFrame(raw)
			if err != nil {
				return nil, err
			}
			if match(frame) {
				return frame, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for frame")
		}
	}
}

// waitForAck waits for an ACK with the given sequence.
func (ts *testService) waitForAck(seq model.Sequence, timeout time.Duration) (*model.Frame, error) {
	return ts.waitForFrame(func(f *model.Frame) bool {
		return f.Command == model.CMD_ACK && f.Seq == seq
	}, timeout)
}

// expectSilence asserts that no frame matching the predicate leaves the
// service for the given interval. Other frames are discarded.
func (ts *testService) expectSilence(match func(*model.Frame) bool, interval time.Duration) error {
	deadline := time.After(interval)
	for {
		select {
		case raw := <-ts.reliableToGATT:
			frame, err := model.ParseFrame(raw)
			if err != nil {
				return err
			}
			if match(frame) {
				return fmt.Errorf("unexpected %s for seq=%d", frame.Command, frame.Seq)
			}
		case <-deadline:
			return nil
		}
	}
}

// expectNoAck asserts that no ACK at all leaves the service for the
// given interval.
func (ts *testService) expectNoAck(interval time.Duration) error {
	return ts.expectSilence(func(f *model.Frame) bool {
		return f.Command == model.CMD_ACK
	}, interval)
}

// expectNoData asserts that no DATA frame leaves the service for the
// given interval.
func (ts *testService) expectNoData(interval time.Duration) error {
	return ts.expectSilence(func(f *model.Frame) bool {
		return f.Command == model.CMD_DATA
	}, interval)
}

// writeFrames feeds the service's radio-facing input with the frames in
// the given compact string representation.
func (ts *testService) writeFrames(seq []string, payload string, size int) {
	writer := prototest.NewFrameWriter(ts.gattToReliable)
	writer.WriteSequenceWithFixedPayload(seq, payload, size)
}
