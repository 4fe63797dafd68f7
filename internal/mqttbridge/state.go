package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/busprobridge/core/internal/device"
	"github.com/busprobridge/core/internal/store"
)

type lightStatePayload struct {
	State      string `json:"state"`
	Brightness *uint8 `json:"brightness,omitempty"`
}

type coverStatePayload struct {
	State    string `json:"state"`
	Position int    `json:"position"`
	Target   *int   `json:"target,omitempty"`
}

type dryContactAttributes struct {
	X byte `json:"x"`
}

// coverStateWord renders phase+position as the "open"/"closed"/"opening"/
// "closing"/"stopped" vocabulary state.md §6 specifies. IDLE at the fully
// open/closed endpoint reports that endpoint; IDLE anywhere else (stopped
// mid-travel) reports "stopped".
func coverStateWord(phase device.CoverPhase, position int) string {
	switch phase {
	case device.PhaseOpening:
		return "opening"
	case device.PhaseClosing:
		return "closing"
	default:
		switch {
		case position >= 100:
			return "open"
		case position <= 0:
			return "closed"
		default:
			return "stopped"
		}
	}
}

func (b *Bridge) publishIfChanged(key store.CacheKey, topic string, payload []byte, retained bool) error {
	if !b.cache.ShouldPublish(key, payload) {
		return nil
	}
	return b.mqtt.Publish(topic, payload, 0, retained)
}

// PublishLightState publishes a light's on/off and brightness state,
// suppressing the publish if unchanged from the last one sent.
func (b *Bridge) PublishLightState(ctx context.Context, addr device.Address, state device.LightState) error {
	b.mu.Lock()
	b.lightStates[addr] = state
	b.mu.Unlock()

	payload := lightStatePayload{State: "OFF"}
	if state.On {
		payload.State = "ON"
		brightness := state.Brightness
		payload.Brightness = &brightness
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal light state: %w", err)
	}
	key := store.CacheKey("light:" + addr.String())
	return b.publishIfChanged(key, b.topics.LightState(addr), data, true)
}

// PublishCoverState publishes a cover's motion state, suppressing the
// publish if unchanged from the last one sent.
func (b *Bridge) PublishCoverState(ctx context.Context, addr device.Address, state device.CoverState) error {
	payload := coverStatePayload{
		State:    coverStateWord(state.Phase, state.Position),
		Position: state.Position,
		Target:   state.Target,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cover state: %w", err)
	}
	key := store.CacheKey("cover:" + addr.String())
	return b.publishIfChanged(key, b.topics.CoverState(addr), data, true)
}

// PublishCoverGroupState aggregates the live state of a group's members
// (any member moving drives the reported phase; position is the member
// average) and publishes it under the group's stable topic.
func (b *Bridge) PublishCoverGroupState(ctx context.Context, groupID string) error {
	g, err := b.registry.GetCoverGroup(groupID)
	if err != nil {
		return err
	}
	if len(g.MemberAddresses) == 0 {
		return nil
	}

	var (
		total int
		count int
		phase = device.PhaseIdle
	)
	for _, addr := range g.MemberAddresses {
		state, ok := b.cover.Snapshot(addr)
		if !ok {
			continue
		}
		total += state.Position
		count++
		if state.Phase != device.PhaseIdle {
			phase = state.Phase
		}
	}
	if count == 0 {
		return nil
	}
	position := total / count

	payload := coverStatePayload{
		State:    coverStateWord(phase, position),
		Position: position,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cover group state: %w", err)
	}
	key := store.CacheKey("cover_group:" + groupID)
	return b.publishIfChanged(key, b.topics.CoverGroupState(groupID), data, true)
}

// PublishDryContactState publishes a dry contact's on/off reading as a
// plain ON/OFF payload, plus the raw first payload byte on the companion
// attributes topic for diagnostics (§4.6).
func (b *Bridge) PublishDryContactState(ctx context.Context, addr device.Address, state device.DryContactState) error {
	payload := "OFF"
	if state.On {
		payload = "ON"
	}
	key := store.CacheKey("dry_contact:" + addr.String())
	if err := b.publishIfChanged(key, b.topics.DryContactState(addr), []byte(payload), true); err != nil {
		return err
	}

	attrs, err := json.Marshal(dryContactAttributes{X: state.X})
	if err != nil {
		return fmt.Errorf("marshal dry contact attributes: %w", err)
	}
	stateTopic := b.topics.DryContactState(addr)
	return b.mqtt.Publish(b.topics.Attributes(stateTopic), attrs, 0, true)
}

// PublishSensorState publishes a calibrated sensor reading as a plain
// numeric string, matching Home Assistant's default sensor state format.
func (b *Bridge) PublishSensorState(ctx context.Context, kind device.Kind, addr device.Address, sensorID byte, value float64) error {
	payload := strconv.FormatFloat(value, 'f', -1, 64)
	key := store.CacheKey(fmt.Sprintf("%s:%s:%d", kind, addr.String(), sensorID))
	return b.publishIfChanged(key, b.topics.SensorState(kind, addr, sensorID), []byte(payload), true)
}
