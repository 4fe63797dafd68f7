// Package cover implements the cover motion engine (C5): a time-based
// position interpolator with per-device calibration, bidirectional
// bus/UI reconciliation, STOP debouncing, and absolute-deadline scheduling.
package cover

import (
	"time"

	"github.com/busprobridge/core/internal/device"
)

// Phase is the engine's internal motion phase, a superset of
// device.CoverPhase: the PENDING phases are transient and not exposed to
// persistence or MQTT, which see only IDLE/OPENING/CLOSING. PhaseStopping
// is defined but the engine never enters it: STOP freezes a cover straight
// to PhaseIdle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePendingOpen
	PhasePendingClose
	PhaseMovingOpen
	PhaseMovingClose
	PhaseStopping
)

// Public returns the device.CoverPhase this internal phase maps to.
func (p Phase) Public() device.CoverPhase {
	switch p {
	case PhasePendingOpen, PhaseMovingOpen:
		return device.PhaseOpening
	case PhasePendingClose, PhaseMovingClose, PhaseStopping:
		return device.PhaseClosing
	default:
		return device.PhaseIdle
	}
}

// moveStartTimeout is how long the engine waits for a bus confirmation
// after sending OPEN/CLOSE before assuming the motor started anyway.
const moveStartTimeout = 2500 * time.Millisecond

// stopDebounce is the window after a STOP during which a same-direction
// status response is ignored, per spec.md §4.5/§8 invariant 4.
const stopDebounce = 1500 * time.Millisecond

// record is one cover's live motion state.
type record struct {
	cover device.Cover

	phase    Phase
	position float64 // 0..100, float for sub-percent interpolation
	target   *int

	startTS       time.Time // when the current movement phase began
	startPosition float64   // position at startTS
	lastCommandTS time.Time
	stoppedAt     *time.Time
	lastDirection device.CoverPhase // direction at the moment of the last STOP, for debounce matching

	calibration *calibrationState
}

type calibrationState struct {
	direction device.CoverPhase
	startedAt time.Time
}

func newRecord(c device.Cover, initialPosition int) *record {
	return &record{
		cover:    c,
		phase:    PhaseIdle,
		position: float64(device.ClampPosition(initialPosition)),
	}
}

// snapshot returns the publishable device.CoverState for this record at
// time now.
func (r *record) snapshot(now time.Time) device.CoverState {
	pos := device.ClampPosition(int(r.interpolatedPosition(now) + 0.5))
	var stoppedAt *time.Time
	if r.stoppedAt != nil {
		t := *r.stoppedAt
		stoppedAt = &t
	}
	return device.CoverState{
		Phase:           r.phase.Public(),
		Position:        pos,
		Target:          r.target,
		LastCommandTS:   r.lastCommandTS,
		StopScheduledAt: stoppedAt,
	}
}

// interpolatedPosition computes the current position as a monotonic
// function of time within the current movement phase (spec.md §4.5,
// testable property 3): clamp(start ± elapsed/openingTime·100, 0, 100).
func (r *record) interpolatedPosition(now time.Time) float64 {
	switch r.phase {
	case PhasePendingOpen, PhaseMovingOpen:
		elapsed := now.Sub(r.startTS).Seconds()
		if elapsed < 0 || r.cover.OpeningTimeUpS <= 0 {
			return r.startPosition
		}
		pos := r.startPosition + elapsed/r.cover.OpeningTimeUpS*100
		return clampFloat(pos)
	case PhasePendingClose, PhaseMovingClose:
		elapsed := now.Sub(r.startTS).Seconds()
		if elapsed < 0 || r.cover.OpeningTimeDownS <= 0 {
			return r.startPosition
		}
		pos := r.startPosition - elapsed/r.cover.OpeningTimeDownS*100
		return clampFloat(pos)
	default:
		return r.position
	}
}

func clampFloat(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Command is a request to the engine, originating from MQTT, the
// WebSocket/HTTP admin surface, or a cover group fan-out.
type Command int

const (
	CommandOpen Command = iota
	CommandClose
	CommandStop
	CommandSetPosition
	CommandCalibrateStart
	CommandCalibrateEnd
)

// BusStatus is a bidirectional status observation received from the bus,
// either a CurtainSwitchStatusResponse or a ControlResponse from a
// physical HDL panel; the engine treats both identically.
type BusStatus byte

const (
	BusStatusNone    BusStatus = 0
	BusStatusOpening BusStatus = 1
	BusStatusClosing BusStatus = 2
)
