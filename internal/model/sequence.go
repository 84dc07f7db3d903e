package model

//
// Sequence
//
// Modular sequence-number arithmetic. PPoGATT sequence numbers live in a
// 5-bit space, so they wrap often and raw comparison is meaningless.
//

// SequenceSpace is the size of the PPoGATT sequence space (5 bits).
const SequenceSpace = 32

// Sequence is a PPoGATT sequence number, always in [0, SequenceSpace).
type Sequence uint8

// Next returns the sequence that follows s, wrapping around the space.
func (s Sequence) Next() Sequence {
	return (s + 1) % SequenceSpace
}

// Distance returns the signed modular distance from other to s, in the
// range [-16, 15]. A positive result means s is ahead of other. This is
// the only legal way to order two sequences: as long as fewer than half
// the space is in flight at once, the result is unambiguous.
func (s Sequence) Distance(other Sequence) int {
	return ((int(s)-int(other))+SequenceSpace+SequenceSpace/2)%SequenceSpace - SequenceSpace/2
}

// After returns true when s is strictly ahead of other under modular ordering.
func (s Sequence) After(other Sequence) bool {
	return s.Distance(other) > 0
}
