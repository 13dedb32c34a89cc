package radio

import "sync/atomic"

// frameIDSequence hands out frame IDs 1..255 in a cycle. ID 0 tells the
// module not to send a response, so it is never allocated.
type frameIDSequence struct {
	counter atomic.Uint32
}

func (s *frameIDSequence) Next() uint8 {
	v := s.counter.Add(1) - 1
	return uint8(v%255) + 1
}
