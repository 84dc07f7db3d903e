package ppogatt

import (
	"testing"

	"github.com/apex/log"

	"github.com/Bystroushaak/RebbleOS/internal/model"
)

//
// tests for frameSender
//

func Test_frameSender_TrySubmitPayload(t *testing.T) {
	cfg := model.NewConfig(model.WithWindowSize(2))
	s := newFrameSender(log.Log, cfg)

	if !s.TrySubmitPayload([]byte("aaa")) {
		t.Fatalf("submit on an empty window must succeed")
	}
	if !s.TrySubmitPayload([]byte("bbb")) {
		t.Fatalf("submit below the window bound must succeed")
	}
	if s.TrySubmitPayload([]byte("ccc")) {
		t.Fatalf("submit on a full window must fail")
	}
	if len(s.inFlight) != 2 {
		t.Errorf("the window must never exceed its bound, got %d", len(s.inFlight))
	}
	if s.inFlight[0].seq != 0 || s.inFlight[1].seq != 1 {
		t.Errorf("sequences must be assigned in submission order")
	}
	if s.nextSeq != 2 {
		t.Errorf("nextSeq = %d, want 2", s.nextSeq)
	}
}

func Test_frameSender_sequencesAreContentIndependent(t *testing.T) {
	s := newFrameSender(log.Log, model.NewConfig())

	s.TrySubmitPayload([]byte("same"))
	s.TrySubmitPayload([]byte("same"))
	if s.inFlight[0].seq == s.inFlight[1].seq {
		t.Errorf("identical payloads must still get distinct sequences")
	}
}

func Test_frameSender_EvictAcknowledged(t *testing.T) {
	type args struct {
		acked model.Sequence
	}
	tests := []struct {
		name        string
		window      []model.Sequence
		args        args
		wantEvicted int
		wantLeft    []model.Sequence
	}{
		{
			name:        "ack for the oldest frame",
			window:      []model.Sequence{3, 4, 5},
			args:        args{3},
			wantEvicted: 1,
			wantLeft:    []model.Sequence{4, 5},
		},
		{
			name:        "cumulative ack retires several frames in one step",
			window:      []model.Sequence{3, 4, 5},
			args:        args{5},
			wantEvicted: 3,
			wantLeft:    []model.Sequence{},
		},
		{
			name:        "cumulative ack across the sequence wrap",
			window:      []model.Sequence{30, 31, 0, 1},
			args:        args{0},
			wantEvicted: 3,
			wantLeft:    []model.Sequence{1},
		},
		{
			name:        "stale ack for an already-evicted sequence",
			window:      []model.Sequence{7, 8},
			args:        args{5},
			wantEvicted: 0,
			wantLeft:    []model.Sequence{7, 8},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFrameSender(log.Log, model.NewConfig(model.WithWindowSize(8)))
			for _, seq := range tt.window {
				s.inFlight = append(s.inFlight, &outstandingFrame{seq: seq})
			}

			if got := s.EvictAcknowledged(tt.args.acked); got != tt.wantEvicted {
				t.Errorf("frameSender.EvictAcknowledged() = %v, want %v", got, tt.wantEvicted)
			}

			left := make([]model.Sequence, 0, len(s.inFlight))
			for _, p := range s.inFlight {
				left = append(left, p.seq)
			}
			if len(left) != len(tt.wantLeft) {
				t.Fatalf("window after eviction = %v, want %v", left, tt.wantLeft)
			}
			for i := range left {
				if left[i] != tt.wantLeft[i] {
					t.Fatalf("window after eviction = %v, want %v", left, tt.wantLeft)
				}
			}
		})
	}
}

func Test_frameSender_RecordAckNeeded(t *testing.T) {
	s := newFrameSender(log.Log, model.NewConfig())

	// a new cumulative acknowledgement
	s.RecordAckNeeded(0, false)
	if !s.ackPending || s.ackSeq != 0 {
		t.Fatalf("a new acknowledgement must arm the pending flag")
	}
	if s.ackResends != 0 {
		t.Errorf("a new acknowledgement is not a resend")
	}

	// coalescing: the latest contiguous sequence wins
	s.RecordAckNeeded(1, false)
	if s.ackSeq != 1 {
		t.Errorf("ackSeq = %d, want 1", s.ackSeq)
	}

	// a retransmitted frame bumps the flag without a new acknowledgement
	s.ackPending = false
	s.RecordAckNeeded(1, true)
	if !s.ackPending {
		t.Errorf("a repeat request must re-arm the pending flag")
	}
	if s.ackResends != 1 {
		t.Errorf("ackResends = %d, want 1", s.ackResends)
	}
}

func Test_frameSender_TearDownSession(t *testing.T) {
	s := newFrameSender(log.Log, model.NewConfig())
	s.TrySubmitPayload([]byte("aaa"))
	s.TrySubmitPayload([]byte("bbb"))
	s.RecordAckNeeded(4, false)

	failed := s.TearDownSession()
	if len(failed) != 2 {
		t.Fatalf("TearDownSession() returned %d payloads, want 2", len(failed))
	}
	if string(failed[0]) != "aaa" || string(failed[1]) != "bbb" {
		t.Errorf("failed payloads must come back in submission order")
	}
	if len(s.inFlight) != 0 {
		t.Errorf("the window must be empty after a teardown")
	}
	if s.nextSeq != 0 {
		t.Errorf("transmission must resume at sequence 0 after a reset")
	}
	if s.ackPending {
		t.Errorf("no acknowledgement survives a reset")
	}
}
