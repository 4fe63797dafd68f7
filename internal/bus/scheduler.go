package bus

import (
	"context"
	"sync"
	"time"
)

// defaultPacing is the minimum interval between dispatches onto the UDP
// socket, matched to the gateway's documented tolerance for back-to-back
// frames.
const defaultPacing = 180 * time.Millisecond

// Sender is the narrow interface the Scheduler dispatches onto; Transport
// satisfies it.
type Sender interface {
	Send(Telegram) error
}

// ChannelAddress is the subnet/device/channel triple the Scheduler
// coalesces and paces pending work by. It is distinct from NodeAddress
// (which addresses a telegram on the wire) because a single HDL module
// routinely hosts several independent channels — light or curtain — that
// must not clobber one another's pending command.
type ChannelAddress struct {
	Subnet  byte
	Device  byte
	Channel byte
}

// addrState is the per-channel pending work. Stop sequences take priority
// over everything else queued for that channel: a STOP always preempts
// pending motion, and is itself delivered as STOP, STOP, read-status,
// matching the gateway's observed need for a repeated STOP to reliably
// halt a moving motor.
type addrState struct {
	stopQueue     []Telegram
	pendingMotion *Telegram
	pendingRead   *Telegram
}

func (s *addrState) empty() bool {
	return len(s.stopQueue) == 0 && s.pendingMotion == nil && s.pendingRead == nil
}

// next pops the next telegram to send for this address, in priority order
// stop > motion > read-status.
func (s *addrState) next() (Telegram, bool) {
	if len(s.stopQueue) > 0 {
		tg := s.stopQueue[0]
		s.stopQueue = s.stopQueue[1:]
		return tg, true
	}
	if s.pendingMotion != nil {
		tg := *s.pendingMotion
		s.pendingMotion = nil
		return tg, true
	}
	if s.pendingRead != nil {
		tg := *s.pendingRead
		s.pendingRead = nil
		return tg, true
	}
	return Telegram{}, false
}

// Scheduler is the single writer onto the UDP socket. It paces dispatches
// globally and coalesces per-cover commands so a burst of UI/bus activity
// never floods the bus.
type Scheduler struct {
	sender Sender
	logger Logger
	pacing time.Duration

	mu      sync.Mutex
	states  map[ChannelAddress]*addrState
	order   []ChannelAddress
	present map[ChannelAddress]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler dispatching onto sender at the default
// pacing interval.
func NewScheduler(sender Sender) *Scheduler {
	return &Scheduler{
		sender:  sender,
		logger:  noopLogger{},
		pacing:  defaultPacing,
		states:  make(map[ChannelAddress]*addrState),
		present: make(map[ChannelAddress]bool),
	}
}

// SetLogger sets the logger used for dispatch events.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetPacing overrides the default pacing interval; intended for tests.
func (s *Scheduler) SetPacing(d time.Duration) {
	s.pacing = d
}

// Start begins the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(runCtx)
}

// Stop halts the dispatch loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pacing)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchOne()
		}
	}
}

func (s *Scheduler) stateFor(addr ChannelAddress) *addrState {
	st, ok := s.states[addr]
	if !ok {
		st = &addrState{}
		s.states[addr] = st
	}
	return st
}

func (s *Scheduler) markPresent(addr ChannelAddress) {
	if s.present[addr] {
		return
	}
	s.present[addr] = true
	s.order = append(s.order, addr)
}

// EnqueueMotion schedules an OPEN/CLOSE/SET_POSITION telegram for addr,
// replacing any previously pending motion command for the same channel.
// It does not disturb an in-flight STOP sequence for that channel.
func (s *Scheduler) EnqueueMotion(addr ChannelAddress, tg Telegram) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(addr)
	st.pendingMotion = &tg
	s.markPresent(addr)
}

// EnqueueStop schedules a STOP sequence for addr: the stop telegram sent
// twice with a follow-up read-status, dropping any pending motion command
// for the same channel. A second call before the sequence drains replaces
// it with a fresh sequence rather than queuing both.
func (s *Scheduler) EnqueueStop(addr ChannelAddress, stop, readStatus Telegram) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(addr)
	st.pendingMotion = nil
	st.stopQueue = []Telegram{stop, stop, readStatus}
	s.markPresent(addr)
}

// EnqueueReadStatus schedules a status poll for addr, replacing any
// previously pending (non-stop-sequence) status poll for the same channel.
func (s *Scheduler) EnqueueReadStatus(addr ChannelAddress, tg Telegram) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(addr)
	st.pendingRead = &tg
	s.markPresent(addr)
}

// Pending reports whether addr currently has any queued work. Exposed for
// tests and diagnostics.
func (s *Scheduler) Pending(addr ChannelAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[addr]
	return ok && !st.empty()
}

func (s *Scheduler) dispatchOne() {
	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return
	}
	addr := s.order[0]
	s.order = s.order[1:]
	delete(s.present, addr)

	st := s.states[addr]
	tg, ok := st.next()
	if ok && !st.empty() {
		s.markPresent(addr)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := s.sender.Send(tg); err != nil {
		s.logger.Warn("scheduled send failed", "address", addr, "opcode", tg.OpCode, "error", err)
	}
}
