package sensors

import (
	"container/ring"
	"sync"
)

// defaultSnifferSize is the number of unrecognized telegrams retained.
const defaultSnifferSize = 100

// Sniffer is a bounded ring buffer of unrecognized telegrams, exposed
// through the admin API's sniffer start/stop/recent endpoints (spec.md
// §6's HTTP admin API list) so an operator can identify an opcode this
// bridge does not yet decode.
type Sniffer struct {
	mu      sync.Mutex
	enabled bool
	r       *ring.Ring
	count   int
	cap     int
}

// NewSniffer returns a disabled sniffer with room for size entries (0 uses
// the default).
func NewSniffer(size int) *Sniffer {
	if size <= 0 {
		size = defaultSnifferSize
	}
	return &Sniffer{r: ring.New(size), cap: size}
}

// Start enables recording.
func (s *Sniffer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
}

// Stop disables recording; already-recorded entries are kept.
func (s *Sniffer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
}

// Enabled reports whether the sniffer is currently recording.
func (s *Sniffer) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Record appends a raw telegram if the sniffer is enabled; a no-op
// otherwise, so running with the sniffer off costs nothing per telegram.
func (s *Sniffer) Record(raw Raw) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	s.r.Value = raw
	s.r = s.r.Next()
	if s.count < s.cap {
		s.count++
	}
}

// Recent returns every retained telegram (at most the buffer size), most
// recent last.
func (s *Sniffer) Recent() []Raw {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Raw, 0, s.count)
	// s.r currently points at the next slot to be overwritten, which is
	// also the oldest live entry once the buffer has wrapped.
	start := s.r
	for i := 0; i < s.cap; i++ {
		if start.Value != nil {
			out = append(out, start.Value.(Raw))
		}
		start = start.Next()
	}
	return out
}
