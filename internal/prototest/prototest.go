// Package prototest provides utilities for PPoGATT testing.
package prototest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Bystroushaak/RebbleOS/internal/model"
)

// TestFrame is used to simulate frames arriving over the radio. The goal is
// to have a compact representation of a sequence of frames, their command,
// and extra properties like inter-arrival time.
type TestFrame struct {
	// Command is the PPoGATT command.
	Command model.Command

	// Seq is the frame sequence number.
	Seq int

	// IAT is the inter-arrival time until the next frame is received.
	IAT time.Duration
}

// NewTestFrameFromString parses the compact representation of a test frame,
// in the form: "[seq] COMMAND +42ms".
func NewTestFrameFromString(s string) (*TestFrame, error) {
	parts := strings.Split(s, " +")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid test frame: %s", s)
	}

	head := strings.Split(parts[0], " ")
	if len(head) != 2 {
		return nil, fmt.Errorf("invalid format for seq-command: %s", parts[0])
	}

	seq, err := strconv.Atoi(strings.Trim(head[0], "[]"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse seq: %v", err)
	}

	command, err := model.NewCommandFromString(head[1])
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %v", err)
	}

	iat, err := time.ParseDuration(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration: %v", err)
	}

	return &TestFrame{Command: command, Seq: seq, IAT: iat}, nil
}

// FrameWriter writes raw encoded frames into a channel, simulating the
// inbound side of the radio.
type FrameWriter struct {
	// ch is the channel where to write frames.
	ch chan<- []byte

	payload          string
	framePayloadSize int
}

// NewFrameWriter creates a new FrameWriter.
func NewFrameWriter(ch chan<- []byte) *FrameWriter {
	return &FrameWriter{ch: ch}
}

// WriteSequence writes the passed frame sequence (in string representation)
// to the configured channel, waiting the specified inter-arrival interval
// between one frame and the next.
func (fw *FrameWriter) WriteSequence(seq []string) {
	for _, item := range seq {
		fw.writeSequenceItem(item)
	}
}

// WriteSequenceWithFixedPayload writes frames according to the passed
// sequence, picking sequential chunks of the given size from payload for
// every DATA frame.
func (fw *FrameWriter) WriteSequenceWithFixedPayload(seq []string, payload string, size int) {
	fw.payload = payload
	fw.framePayloadSize = size
	fw.WriteSequence(seq)
}

func (fw *FrameWriter) writeSequenceItem(item string) {
	testFrame, err := NewTestFrameFromString(item)
	if err != nil {
		panic("FrameWriter: error reading test sequence: " + err.Error())
	}
	f := &model.Frame{
		Command: testFrame.Command,
		Seq:     model.Sequence(testFrame.Seq),
	}
	if f.Command == model.CMD_DATA && len(fw.payload) > 0 {
		size := fw.framePayloadSize
		if len(fw.payload) < size {
			size = len(fw.payload)
		}
		f.Payload = []byte(fw.payload[:size])
		fw.payload = fw.payload[size:]
	}
	raw, err := f.Bytes()
	if err != nil {
		panic("FrameWriter: cannot encode test frame: " + err.Error())
	}
	fw.ch <- raw
	time.Sleep(testFrame.IAT)
}

// CollectPayloads reads n payloads from the channel, failing after the
// given timeout. It returns whatever was collected so far together with
// the error.
func CollectPayloads(ch <-chan []byte, n int, timeout time.Duration) ([]string, error) {
	got := make([]string, 0, n)
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case payload := <-ch:
			got = append(got, string(payload))
		case <-deadline:
			return got, fmt.Errorf("timeout: got %d of %d payloads", len(got), n)
		}
	}
	return got, nil
}

// CollectFrames reads and parses n frames from the channel of raw encoded
// frames, failing after the given timeout.
func CollectFrames(ch <-chan []byte, n int, timeout time.Duration) ([]*model.Frame, error) {
	got := make([]*model.Frame, 0, n)
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case raw := <-ch:
			frame, err := model.ParseFrame(raw)
			if err != nil {
				return got, err
			}
			got = append(got, frame)
		case <-deadline:
			return got, fmt.Errorf("timeout: got %d of %d frames", len(got), n)
		}
	}
	return got, nil
}
