package cover

import (
	"context"
	"sync"
	"time"

	"github.com/busprobridge/core/internal/bus"
	"github.com/busprobridge/core/internal/device"
)

// tickInterval is how often the engine recomputes interpolated positions
// for covers currently in motion and checks for due STOP deadlines.
const tickInterval = 200 * time.Millisecond

// Logger is the narrow logging interface the engine depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler is the subset of bus.Scheduler the engine dispatches onto.
type Scheduler interface {
	EnqueueMotion(addr bus.ChannelAddress, tg bus.Telegram)
	EnqueueStop(addr bus.ChannelAddress, stop, readStatus bus.Telegram)
	EnqueueReadStatus(addr bus.ChannelAddress, tg bus.Telegram)
}

// Registry is the subset of device.Registry the engine reads/writes through.
type Registry interface {
	GetCover(addr device.Address) (device.Cover, error)
	SetCoverCalibration(ctx context.Context, addr device.Address, upS, downS *float64) error
}

// UpdateFunc receives a cover's publishable state whenever it changes,
// either from a tick-driven position recompute or a phase transition. The
// engine invokes it synchronously from its own goroutine; callers that hand
// off to MQTT or the WebSocket hub must not block in it for long.
type UpdateFunc func(addr device.Address, state device.CoverState)

// Engine is the cover motion engine (C5): one record per known cover, a
// single ticker-driven goroutine recomputing interpolated position and
// popping due STOP deadlines, and a bidirectional reconciliation path for
// bus-observed status. Commands are dispatched onto a Scheduler rather than
// sent directly, so per-address pacing and STOP preemption (C3) apply
// uniformly to engine-initiated and operator-initiated traffic.
type Engine struct {
	registry  Registry
	scheduler Scheduler
	logger    Logger
	onUpdate  UpdateFunc

	mu        sync.Mutex
	records   map[device.Address]*record
	deadlines *DeadlineQueue

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine returns an Engine with no covers tracked yet; use Track to seed
// one from its catalogue entry and last-known state before Start.
func NewEngine(registry Registry, scheduler Scheduler) *Engine {
	return &Engine{
		registry:  registry,
		scheduler: scheduler,
		logger:    noopLogger{},
		records:   make(map[device.Address]*record),
		deadlines: NewDeadlineQueue(),
		wake:      make(chan struct{}, 1),
	}
}

// SetLogger sets the engine's logger.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetOnUpdate sets the callback invoked whenever a tracked cover's
// publishable state changes.
func (e *Engine) SetOnUpdate(fn UpdateFunc) {
	e.onUpdate = fn
}

// Track seeds or replaces the live record for a cover from its catalogue
// entry and last persisted position, idempotently. Call it once at startup
// for every cover in the registry, and whenever a cover is added at runtime.
func (e *Engine) Track(c device.Cover, lastPosition int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[c.Address] = newRecord(c, lastPosition)
}

// Forget stops tracking addr, cancelling any pending STOP deadline for it.
func (e *Engine) Forget(addr device.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.records, addr)
	e.deadlines.Cancel(addr)
}

// Snapshot returns the current publishable state for addr.
func (e *Engine) Snapshot(addr device.Address) (device.CoverState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.records[addr]
	if !ok {
		return device.CoverState{}, false
	}
	return r.snapshot(time.Now()), true
}

// Start launches the engine's tick loop. It returns immediately; the loop
// runs until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(runCtx)
}

// Stop halts the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		wait, active := e.nextWait()
		if !active {
			select {
			case <-ctx.Done():
				return
			case <-e.wake:
				continue
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
			continue
		case <-timer.C:
			e.tick()
		}
	}
}

func (e *Engine) nextWait() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	moving := false
	for _, r := range e.records {
		if isMoving(r.phase) {
			moving = true
			break
		}
	}
	due, hasDeadline := e.deadlines.NextDue()
	if !moving && !hasDeadline {
		return 0, false
	}
	wait := tickInterval
	if hasDeadline {
		if d := time.Until(due); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func isMoving(p Phase) bool {
	switch p {
	case PhasePendingOpen, PhasePendingClose, PhaseMovingOpen, PhaseMovingClose:
		return true
	default:
		return false
	}
}

func (e *Engine) tick() {
	now := time.Now()
	e.mu.Lock()
	due := e.deadlines.PopDue(now)
	e.mu.Unlock()
	for _, addr := range due {
		e.autoStop(addr, now)
	}

	type pair struct {
		addr  device.Address
		state device.CoverState
	}
	e.mu.Lock()
	var updates []pair
	for addr, r := range e.records {
		if isMoving(r.phase) {
			updates = append(updates, pair{addr, r.snapshot(now)})
		}
	}
	e.mu.Unlock()
	for _, u := range updates {
		if e.onUpdate != nil {
			e.onUpdate(u.addr, u.state)
		}
	}
}

func (e *Engine) signalWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// HandleCommand dispatches an operator- or automation-originated command.
// target is the destination position in percent for CommandSetPosition; for
// CommandCalibrateStart it instead selects which direction is being timed
// (0 = opening, nonzero = closing), and is ignored by every other command.
func (e *Engine) HandleCommand(ctx context.Context, addr device.Address, cmd Command, target int) error {
	switch cmd {
	case CommandOpen:
		return e.startMove(ctx, addr, device.PhaseOpening, nil)
	case CommandClose:
		return e.startMove(ctx, addr, device.PhaseClosing, nil)
	case CommandStop:
		return e.handleStop(addr, time.Now())
	case CommandSetPosition:
		return e.handleSetPosition(ctx, addr, target)
	case CommandCalibrateStart:
		direction := device.PhaseOpening
		if target != 0 {
			direction = device.PhaseClosing
		}
		return e.handleCalibrateStart(addr, direction)
	case CommandCalibrateEnd:
		return e.handleCalibrateEnd(ctx, addr)
	default:
		return nil
	}
}

func (e *Engine) startMove(ctx context.Context, addr device.Address, direction device.CoverPhase, target *int) error {
	e.mu.Lock()
	r, ok := e.records[addr]
	if !ok {
		e.mu.Unlock()
		return device.ErrNotFound
	}
	now := time.Now()
	r.target = target
	r.lastCommandTS = now
	r.startPosition = r.interpolatedPosition(now)
	r.position = r.startPosition
	r.startTS = now.Add(time.Duration(r.cover.StartDelayS * float64(time.Second)))
	if direction == device.PhaseOpening {
		r.phase = PhasePendingOpen
	} else {
		r.phase = PhasePendingClose
	}
	addrKey := addr
	cmd := bus.CurtainCommandOpen
	if direction == device.PhaseClosing {
		cmd = bus.CurtainCommandClose
	}
	e.mu.Unlock()

	e.scheduler.EnqueueMotion(toChannelAddress(addr), bus.Telegram{
		DestAddress: toNodeAddress(addr),
		OpCode:      bus.OpCurtainSwitchControl,
		Payload:     []byte{addrKey.Channel, byte(cmd)},
	})

	time.AfterFunc(moveStartTimeout, func() { e.confirmFallback(addr, direction) })
	e.signalWake()
	return nil
}

// confirmFallback flips a cover still in its PENDING phase to MOVING once
// the bus confirmation grace period elapses without one arriving.
func (e *Engine) confirmFallback(addr device.Address, direction device.CoverPhase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.records[addr]
	if !ok {
		return
	}
	switch {
	case direction == device.PhaseOpening && r.phase == PhasePendingOpen:
		r.phase = PhaseMovingOpen
	case direction == device.PhaseClosing && r.phase == PhasePendingClose:
		r.phase = PhaseMovingClose
	}
}

func (e *Engine) handleSetPosition(ctx context.Context, addr device.Address, target int) error {
	target = device.ClampPosition(target)
	e.mu.Lock()
	r, ok := e.records[addr]
	if !ok {
		e.mu.Unlock()
		return device.ErrNotFound
	}
	now := time.Now()
	current := r.interpolatedPosition(now)
	delta := float64(target) - current
	cover := r.cover
	e.mu.Unlock()

	if delta == 0 {
		return nil
	}
	var (
		direction device.CoverPhase
		duration  float64
	)
	if delta > 0 {
		direction = device.PhaseOpening
		duration = delta / 100 * cover.OpeningTimeUpS
	} else {
		direction = device.PhaseClosing
		duration = -delta / 100 * cover.OpeningTimeDownS
	}
	t := target
	if err := e.startMove(ctx, addr, direction, &t); err != nil {
		return err
	}

	due := now.Add(time.Duration(cover.StartDelayS*float64(time.Second)) + time.Duration(duration*float64(time.Second)))
	e.mu.Lock()
	e.deadlines.Schedule(addr, due)
	e.mu.Unlock()
	e.signalWake()
	return nil
}

func (e *Engine) handleStop(addr device.Address, now time.Time) error {
	e.mu.Lock()
	r, ok := e.records[addr]
	if !ok {
		e.mu.Unlock()
		return device.ErrNotFound
	}
	e.deadlines.Cancel(addr)
	e.freezeLocked(r, now)
	state := r.snapshot(now)
	e.mu.Unlock()

	if e.onUpdate != nil {
		e.onUpdate(addr, state)
	}

	e.scheduler.EnqueueStop(toChannelAddress(addr), bus.Telegram{
		DestAddress: toNodeAddress(addr),
		OpCode:      bus.OpCurtainSwitchControl,
		Payload:     []byte{addr.Channel, byte(bus.CurtainCommandStop)},
	}, bus.Telegram{
		DestAddress: toNodeAddress(addr),
		OpCode:      bus.OpReadStatusOfChannels,
		Payload:     []byte{addr.Channel},
	})
	e.signalWake()
	return nil
}

func (e *Engine) autoStop(addr device.Address, now time.Time) {
	_ = e.handleStop(addr, now)
}

// freezeLocked snaps r's position to its current interpolated value and
// returns it to IDLE, recording the direction it was moving in and the
// instant it stopped — both consulted by the STOP-debounce rule in
// HandleBusStatus. Caller holds e.mu.
func (e *Engine) freezeLocked(r *record, now time.Time) {
	pos := r.interpolatedPosition(now)
	var lastDirection device.CoverPhase
	switch r.phase {
	case PhasePendingOpen, PhaseMovingOpen:
		lastDirection = device.PhaseOpening
	case PhasePendingClose, PhaseMovingClose:
		lastDirection = device.PhaseClosing
	}
	r.position = pos
	r.phase = PhaseIdle
	r.target = nil
	stopped := now
	r.stoppedAt = &stopped
	r.lastDirection = lastDirection
}

func (e *Engine) handleCalibrateStart(addr device.Address, direction device.CoverPhase) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.records[addr]
	if !ok {
		return device.ErrNotFound
	}
	r.calibration = &calibrationState{direction: direction, startedAt: time.Now()}
	return nil
}

func (e *Engine) handleCalibrateEnd(ctx context.Context, addr device.Address) error {
	e.mu.Lock()
	r, ok := e.records[addr]
	if !ok {
		e.mu.Unlock()
		return device.ErrNotFound
	}
	if r.calibration == nil {
		e.mu.Unlock()
		return nil
	}
	elapsed := time.Since(r.calibration.startedAt).Seconds()
	direction := r.calibration.direction
	r.calibration = nil
	e.mu.Unlock()

	if direction == device.PhaseClosing {
		return e.registry.SetCoverCalibration(ctx, addr, nil, &elapsed)
	}
	return e.registry.SetCoverCalibration(ctx, addr, &elapsed, nil)
}

// HandleBusStatus reconciles a bus-observed curtain status (or a physical
// panel's equivalent control-panel response) against local motion state, per
// spec.md §4.5's bidirectional reconciliation rules.
func (e *Engine) HandleBusStatus(addr device.Address, status BusStatus) {
	now := time.Now()
	e.mu.Lock()
	r, ok := e.records[addr]
	if !ok {
		e.mu.Unlock()
		return
	}
	if status == BusStatusNone {
		e.mu.Unlock()
		return
	}
	direction := device.PhaseOpening
	if status == BusStatusClosing {
		direction = device.PhaseClosing
	}

	switch r.phase {
	case PhaseIdle:
		if r.stoppedAt != nil && now.Sub(*r.stoppedAt) <= stopDebounce && r.lastDirection == direction {
			e.mu.Unlock()
			return
		}
		r.startPosition = r.position
		r.startTS = now
		r.lastCommandTS = now
		if direction == device.PhaseOpening {
			r.phase = PhaseMovingOpen
		} else {
			r.phase = PhaseMovingClose
		}
		e.mu.Unlock()
		e.signalWake()
		return

	case PhasePendingOpen:
		if direction == device.PhaseOpening {
			r.phase = PhaseMovingOpen
			e.mu.Unlock()
			return
		}
		e.restartOpposite(r, direction, now)
		e.mu.Unlock()
		e.signalWake()
		return

	case PhasePendingClose:
		if direction == device.PhaseClosing {
			r.phase = PhaseMovingClose
			e.mu.Unlock()
			return
		}
		e.restartOpposite(r, direction, now)
		e.mu.Unlock()
		e.signalWake()
		return

	case PhaseMovingOpen:
		if direction == device.PhaseOpening {
			e.mu.Unlock()
			return
		}
		e.restartOpposite(r, direction, now)
		e.mu.Unlock()
		e.signalWake()
		return

	case PhaseMovingClose:
		if direction == device.PhaseClosing {
			e.mu.Unlock()
			return
		}
		e.restartOpposite(r, direction, now)
		e.mu.Unlock()
		e.signalWake()
		return

	default:
		e.mu.Unlock()
		return
	}
}

// restartOpposite resets start_ts/start_position to now and switches the
// moving direction, per spec.md's panel-interrupt scenario: a bus status
// opposite to the currently tracked direction means a physical button was
// pressed and the cover is now moving the other way. Caller holds e.mu.
func (e *Engine) restartOpposite(r *record, direction device.CoverPhase, now time.Time) {
	r.startPosition = r.interpolatedPosition(now)
	r.startTS = now
	r.lastCommandTS = now
	if direction == device.PhaseOpening {
		r.phase = PhaseMovingOpen
	} else {
		r.phase = PhaseMovingClose
	}
}

func toNodeAddress(addr device.Address) bus.NodeAddress {
	return bus.NodeAddress{Subnet: addr.Subnet, Device: addr.Device}
}

// toChannelAddress is the scheduler coalescing key for addr: unlike
// toNodeAddress, it keeps the channel so distinct cover channels on the
// same module don't overwrite each other's pending telegram.
func toChannelAddress(addr device.Address) bus.ChannelAddress {
	return bus.ChannelAddress{Subnet: addr.Subnet, Device: addr.Device, Channel: addr.Channel}
}
