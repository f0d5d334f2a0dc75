package rtc

import (
	"sync"

	"github.com/pion/rtp"
)

// rtpStats counts what a remote track delivered. Loss is estimated from gaps
// in sequence numbers and ignores reordering.
type rtpStats struct {
	mu      sync.Mutex
	packets uint64
	bytes   uint64
	lost    uint64
	lastSeq uint16
	ssrc    uint32
	started bool
}

func (s *rtpStats) observe(pkt *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets++
	s.bytes += uint64(len(pkt.Payload))
	if s.started && pkt.SSRC == s.ssrc {
		if gap := pkt.SequenceNumber - s.lastSeq; gap > 1 && gap < 1<<15 {
			s.lost += uint64(gap - 1)
		}
	}
	s.started = true
	s.ssrc = pkt.SSRC
	s.lastSeq = pkt.SequenceNumber
}

type trackStats struct {
	Packets uint64
	Bytes   uint64
	Lost    uint64
}

func (s *rtpStats) snapshot() trackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return trackStats{Packets: s.packets, Bytes: s.bytes, Lost: s.lost}
}
