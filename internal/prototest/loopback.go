package prototest

import (
	"sync"
	"time"

	"github.com/Bystroushaak/RebbleOS/internal/gattio"
	"github.com/Bystroushaak/RebbleOS/internal/model"
)

// LoopbackDriver is an in-memory [gattio.Driver] connected to a peer
// driver, with configurable loss and busy injection. Use [NewLoopbackPair]
// to construct a connected pair.
type LoopbackDriver struct {
	// latency is the simulated propagation delay.
	latency time.Duration

	// logger is the logger to use.
	logger model.Logger

	// mu protects all the fields below.
	mu sync.Mutex

	// busyBudget is how many upcoming Send calls report busy.
	busyBudget int

	// dropData counts pending transmission drops per DATA sequence.
	dropData map[model.Sequence]int

	// name identifies this endpoint in logs.
	name string

	// peer is the connected remote endpoint.
	peer *LoopbackDriver

	// readyCB is the registered ready-to-send callback.
	readyCB func()

	// recvCB is the registered receive callback.
	recvCB func([]byte)
}

// NewLoopbackPair returns two connected loopback drivers with the given
// simulated propagation delay.
func NewLoopbackPair(logger model.Logger, latency time.Duration) (*LoopbackDriver, *LoopbackDriver) {
	left := &LoopbackDriver{
		latency:  latency,
		logger:   logger,
		dropData: make(map[model.Sequence]int),
		name:     "left",
	}
	right := &LoopbackDriver{
		latency:  latency,
		logger:   logger,
		dropData: make(map[model.Sequence]int),
		name:     "right",
	}
	left.peer = right
	right.peer = left
	return left, right
}

// DropData makes this driver lose the next count transmissions of the DATA
// frame with the given sequence, simulating loss in transit.
func (d *LoopbackDriver) DropData(seq int, count int) {
	defer d.mu.Unlock()
	d.mu.Lock()
	d.dropData[model.Sequence(seq)] += count
}

// FailSends makes the next count Send calls report a busy transport. Each
// failure pulses the ready-to-send callback shortly afterwards, so the
// sender's bounded-wait retry loop gets exercised.
func (d *LoopbackDriver) FailSends(count int) {
	defer d.mu.Unlock()
	d.mu.Lock()
	d.busyBudget += count
}

// Send implements [gattio.Driver].
func (d *LoopbackDriver) Send(frame []byte) error {
	d.mu.Lock()

	if d.busyBudget > 0 {
		d.busyBudget -= 1
		d.mu.Unlock()
		d.logger.Debugf("loopback %s: busy", d.name)
		time.AfterFunc(2*time.Millisecond, d.signalReady)
		return gattio.ErrTransportBusy
	}

	if parsed, err := model.ParseFrame(frame); err == nil && parsed.Command == model.CMD_DATA {
		if d.dropData[parsed.Seq] > 0 {
			d.dropData[parsed.Seq] -= 1
			d.mu.Unlock()
			d.logger.Debugf("loopback %s: dropping DATA seq=%d", d.name, parsed.Seq)
			return nil
		}
	}

	peer := d.peer
	latency := d.latency
	d.mu.Unlock()

	cp := make([]byte, len(frame))
	copy(cp, frame)
	time.AfterFunc(latency, func() {
		peer.deliver(cp)
	})
	return nil
}

// SetReceiveCallback implements [gattio.Driver].
func (d *LoopbackDriver) SetReceiveCallback(fn func(frame []byte)) {
	defer d.mu.Unlock()
	d.mu.Lock()
	d.recvCB = fn
}

// SetReadyToSendCallback implements [gattio.Driver].
func (d *LoopbackDriver) SetReadyToSendCallback(fn func()) {
	defer d.mu.Unlock()
	d.mu.Lock()
	d.readyCB = fn
}

func (d *LoopbackDriver) deliver(frame []byte) {
	d.mu.Lock()
	fn := d.recvCB
	d.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

func (d *LoopbackDriver) signalReady() {
	d.mu.Lock()
	fn := d.readyCB
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// assert that LoopbackDriver implements gattio.Driver
var _ gattio.Driver = &LoopbackDriver{}
