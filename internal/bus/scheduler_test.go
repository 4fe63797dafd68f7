package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Telegram
}

func (r *recordingSender) Send(tg Telegram) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, tg)
	return nil
}

func (r *recordingSender) snapshot() []Telegram {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Telegram, len(r.sent))
	copy(out, r.sent)
	return out
}

func TestSchedulerCoalescesMotionToLatest(t *testing.T) {
	sender := &recordingSender{}
	s := NewScheduler(sender)
	s.SetPacing(10 * time.Millisecond)
	addr := ChannelAddress{1, 1, 1}

	s.EnqueueMotion(addr, Telegram{OpCode: 1, Payload: []byte{1}})
	s.EnqueueMotion(addr, Telegram{OpCode: 1, Payload: []byte{2}})
	s.EnqueueMotion(addr, Telegram{OpCode: 1, Payload: []byte{3}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(80 * time.Millisecond)
	cancel()
	s.Stop()

	sent := sender.snapshot()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 dispatched telegram from 3 coalesced enqueues, got %d: %+v", len(sent), sent)
	}
	if sent[0].Payload[0] != 3 {
		t.Fatalf("expected latest-wins payload 3, got %v", sent[0].Payload)
	}
}

func TestSchedulerStopPreemptsPendingMotion(t *testing.T) {
	sender := &recordingSender{}
	s := NewScheduler(sender)
	s.SetPacing(10 * time.Millisecond)
	addr := ChannelAddress{1, 1, 1}

	s.EnqueueMotion(addr, Telegram{OpCode: 0x0031, Payload: []byte{1}}) // OPEN
	s.EnqueueStop(addr, Telegram{OpCode: 0x0032}, Telegram{OpCode: 0x0033})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(80 * time.Millisecond)
	cancel()
	s.Stop()

	sent := sender.snapshot()
	if len(sent) != 3 {
		t.Fatalf("expected STOP, STOP, read-status (3 telegrams), got %d: %+v", len(sent), sent)
	}
	for i := 0; i < 2; i++ {
		if sent[i].OpCode != 0x0032 {
			t.Fatalf("expected STOP opcode at position %d, got %04x", i, sent[i].OpCode)
		}
	}
	if sent[2].OpCode != 0x0033 {
		t.Fatalf("expected read-status opcode last, got %04x", sent[2].OpCode)
	}
}

func TestSchedulerPacesGlobally(t *testing.T) {
	sender := &recordingSender{}
	s := NewScheduler(sender)
	s.SetPacing(50 * time.Millisecond)

	s.EnqueueMotion(ChannelAddress{1, 1, 1}, Telegram{OpCode: 1})
	s.EnqueueMotion(ChannelAddress{1, 2, 1}, Telegram{OpCode: 1})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	firstCount := len(sender.snapshot())
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Stop()

	if firstCount > 1 {
		t.Fatalf("expected at most 1 telegram sent within first pacing interval, got %d", firstCount)
	}
	if len(sender.snapshot()) != 2 {
		t.Fatalf("expected both addresses eventually serviced, got %d", len(sender.snapshot()))
	}
}

// TestSchedulerDistinctChannelsSameNodeBothDispatch guards against
// coalescing collapsing two different cover channels that share a subnet
// and device id: a module hosting several curtain channels must not have
// one channel's motion command silently dropped by another's.
func TestSchedulerDistinctChannelsSameNodeBothDispatch(t *testing.T) {
	sender := &recordingSender{}
	s := NewScheduler(sender)
	s.SetPacing(10 * time.Millisecond)

	s.EnqueueMotion(ChannelAddress{1, 1, 1}, Telegram{OpCode: 1, Payload: []byte{1}})
	s.EnqueueMotion(ChannelAddress{1, 1, 2}, Telegram{OpCode: 1, Payload: []byte{2}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	s.Stop()

	sent := sender.snapshot()
	if len(sent) != 2 {
		t.Fatalf("expected both same-node, different-channel commands to dispatch, got %d: %+v", len(sent), sent)
	}
	seen := map[byte]bool{}
	for _, tg := range sent {
		seen[tg.Payload[0]] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected both channel 1 and channel 2 payloads dispatched, got %+v", sent)
	}
}

func TestSchedulerPendingReportsEmptyAfterDrain(t *testing.T) {
	sender := &recordingSender{}
	s := NewScheduler(sender)
	s.SetPacing(5 * time.Millisecond)
	addr := ChannelAddress{1, 1, 1}
	s.EnqueueMotion(addr, Telegram{OpCode: 1})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(40 * time.Millisecond)
	cancel()
	s.Stop()

	if s.Pending(addr) {
		t.Fatalf("expected no pending work after drain")
	}
}
