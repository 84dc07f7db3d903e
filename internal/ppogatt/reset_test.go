package ppogatt

import (
	"testing"
	"time"

	"github.com/apex/log"

	"github.com/Bystroushaak/RebbleOS/internal/model"
	"github.com/Bystroushaak/RebbleOS/internal/prototest"
	"github.com/Bystroushaak/RebbleOS/internal/session"
)

func isCommand(cmd model.Command) func(*model.Frame) bool {
	return func(f *model.Frame) bool {
		return f.Command == cmd
	}
}

// a RESET_REQ arriving mid-stream tears down the window: outstanding
// submissions come back as failed, both counters restart at zero, and the
// peer gets its RESET_ACK.
func TestReset_peerInitiated(t *testing.T) {
	if testing.Verbose() {
		log.SetLevel(log.DebugLevel)
	}

	ts := startTestService(model.NewConfig(
		model.WithRetransmitTimeout(time.Minute),
	))
	defer ts.shutdown()

	ts.upperToReliable <- []byte("aaa")
	ts.upperToReliable <- []byte("bbb")

	// wait until both frames are actually outstanding
	if _, err := ts.waitForFrame(isCommand(model.CMD_DATA), time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.waitForFrame(isCommand(model.CMD_DATA), time.Second); err != nil {
		t.Fatal(err)
	}

	ts.writeFrames([]string{"[0] RESET_REQ +1ms"}, "", 0)

	if _, err := ts.waitForFrame(isCommand(model.CMD_RESET_ACK), time.Second); err != nil {
		t.Fatalf("expected a RESET_ACK reply: %v", err)
	}

	failed, err := prototest.CollectPayloads(ts.failedToUpper, 2, time.Second)
	if err != nil {
		t.Fatalf("outstanding entries must be reported as failed: %v", err)
	}
	if failed[0] != "aaa" || failed[1] != "bbb" {
		t.Errorf("failed = %v, want [aaa bbb]", failed)
	}

	if got := ts.sessionManager.State(); got != session.S_ESTABLISHED {
		t.Errorf("session state = %s, want S_ESTABLISHED", got)
	}

	// transmission resumes at sequence zero
	ts.upperToReliable <- []byte("ccc")
	frame, err := ts.waitForFrame(isCommand(model.CMD_DATA), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Seq != 0 {
		t.Errorf("first sequence after reset = %d, want 0", frame.Seq)
	}
	if string(frame.Payload) != "ccc" {
		t.Errorf("payload after reset = %q, want ccc", frame.Payload)
	}
}

// exceeding the retransmit ceiling is unrecoverable desynchronization:
// the sender escalates to a full protocol reset on its own.
func TestReset_retransmitCeiling(t *testing.T) {
	if testing.Verbose() {
		log.SetLevel(log.DebugLevel)
	}

	ts := startTestService(model.NewConfig(
		model.WithRetransmitTimeout(10*time.Millisecond),
		model.WithRetryCeiling(2),
	))
	defer ts.shutdown()

	ts.upperToReliable <- []byte("aaa")

	// nobody ever acknowledges: after the ceiling the sender gives up
	// on the session and asks for a fresh one
	if _, err := ts.waitForFrame(isCommand(model.CMD_RESET_REQ), 2*time.Second); err != nil {
		t.Fatalf("expected an escalation to RESET_REQ: %v", err)
	}

	failed, err := prototest.CollectPayloads(ts.failedToUpper, 1, time.Second)
	if err != nil {
		t.Fatalf("the abandoned submission must be reported as failed: %v", err)
	}
	if failed[0] != "aaa" {
		t.Errorf("failed = %v, want [aaa]", failed)
	}

	if got := ts.sessionManager.State(); got != session.S_RESET_SENT {
		t.Errorf("session state = %s, want S_RESET_SENT", got)
	}
}

// a locally initiated handshake: RESET_REQ goes out at startup, data is
// held until the peer confirms, then flows from sequence zero.
func TestReset_locallyInitiated(t *testing.T) {
	if testing.Verbose() {
		log.SetLevel(log.DebugLevel)
	}

	ts := startTestService(model.NewConfig(
		model.WithInitiateReset(true),
		model.WithRetransmitTimeout(time.Minute),
	))
	defer ts.shutdown()

	if _, err := ts.waitForFrame(isCommand(model.CMD_RESET_REQ), time.Second); err != nil {
		t.Fatalf("an initiator must open with RESET_REQ: %v", err)
	}
	if got := ts.sessionManager.State(); got != session.S_RESET_SENT {
		t.Errorf("session state = %s, want S_RESET_SENT", got)
	}

	// data submitted during the handshake must be held back
	ts.upperToReliable <- []byte("aaa")
	if err := ts.expectNoData(50 * time.Millisecond); err != nil {
		t.Fatal(err)
	}

	ts.writeFrames([]string{"[0] RESET_ACK +1ms"}, "", 0)

	frame, err := ts.waitForFrame(isCommand(model.CMD_DATA), time.Second)
	if err != nil {
		t.Fatalf("data must flow once the reset completes: %v", err)
	}
	if frame.Seq != 0 {
		t.Errorf("first sequence = %d, want 0", frame.Seq)
	}
	if got := ts.sessionManager.State(); got != session.S_ESTABLISHED {
		t.Errorf("session state = %s, want S_ESTABLISHED", got)
	}
}

// an explicit upper-layer reset request travels through the normal event
// queue like everything else.
func TestReset_upperLayerRequest(t *testing.T) {
	ts := startTestService(model.NewConfig(
		model.WithRetransmitTimeout(time.Minute),
	))
	defer ts.shutdown()

	ts.upperToReliable <- []byte("aaa")
	if _, err := ts.waitForFrame(isCommand(model.CMD_DATA), time.Second); err != nil {
		t.Fatal(err)
	}

	ts.resetRequest <- nil

	if _, err := ts.waitForFrame(isCommand(model.CMD_RESET_REQ), time.Second); err != nil {
		t.Fatalf("expected a RESET_REQ: %v", err)
	}
	failed, err := prototest.CollectPayloads(ts.failedToUpper, 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if failed[0] != "aaa" {
		t.Errorf("failed = %v, want [aaa]", failed)
	}
}
