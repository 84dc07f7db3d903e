package ppogatt

const (
	// RX_QUEUE_SIZE is the depth of the inbound raw-frame queue fed from
	// the radio callback. The callback never blocks: on overflow the frame
	// is dropped and the peer's retransmission recovers it.
	RX_QUEUE_SIZE = 4

	// TX_QUEUE_SIZE is the depth of the outbound frame queue feeding the
	// radio-facing worker.
	TX_QUEUE_SIZE = 4

	// INCOMING_SEEN_BUFFER is the capacity of the channel connecting the
	// receiver and sender goroutines.
	INCOMING_SEEN_BUFFER = 20

	// SENDER_TICKER_MS is the idle sender wakeup period, in milliseconds,
	// used when there is nothing outstanding.
	SENDER_TICKER_MS = 1000 * 60
)
