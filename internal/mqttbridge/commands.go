package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/busprobridge/core/internal/bus"
	"github.com/busprobridge/core/internal/cover"
	"github.com/busprobridge/core/internal/device"
)

// commandQoS is the QoS used for every command subscription. Commands are
// not retained by the publisher, so QoS 1 (at-least-once, no duplicate
// suppression needed — commands are idempotent at the engine/scheduler
// level) is enough.
const commandQoS = 1

// Subscribe wires every command topic this bridge accepts. Called once at
// startup and again on every MQTT reconnect (see Start's OnConnect hook),
// since paho does not restore subscriptions across a reconnect itself.
func (b *Bridge) Subscribe(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler func(topic string, payload []byte) error
	}{
		{b.topics.AllLightCommands(), b.handleLightCommand},
		{b.topics.AllCoverCommands(), b.handleCoverCommand},
		{b.topics.AllCoverRawCommands(), b.handleCoverRawCommand},
		{b.topics.AllCoverPositionCommands(), b.handleCoverPositionCommand},
		{b.topics.AllCoverGroupCommands(), b.handleCoverGroupCommand},
		{b.topics.AllCoverGroupRawCommands(), b.handleCoverGroupRawCommand},
		{b.topics.AllCoverGroupPositionCommands(), b.handleCoverGroupPositionCommand},
	}
	for _, s := range subs {
		if err := b.mqtt.Subscribe(s.topic, commandQoS, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}
	return nil
}

// addressFromTopic parses the trailing "<subnet>/<device>/<channel>"
// segments of a command topic into a device.Address.
func addressFromTopic(topic string) (device.Address, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return device.Address{}, fmt.Errorf("mqttbridge: topic %q too short for an address", topic)
	}
	last := parts[len(parts)-3:]
	var nums [3]byte
	for i, p := range last {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return device.Address{}, fmt.Errorf("mqttbridge: invalid address segment %q in topic %q", p, topic)
		}
		nums[i] = byte(n)
	}
	return device.Address{Subnet: nums[0], Device: nums[1], Channel: nums[2]}, nil
}

// groupIDFromTopic returns the trailing path segment of a cover-group
// command topic, which is the group's stable id.
func groupIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}

type lightCommandPayload struct {
	State      string `json:"state"`
	Brightness *uint8 `json:"brightness,omitempty"`
}

// handleLightCommand sends a single-channel control telegram for the
// commanded on/off + brightness, then optimistically echoes that exact
// state back onto the state topic — this bridge does not decode a
// lighting status-response opcode, so there is no bus readback to wait
// for (§4.6 only models curtain/sensor/contact status opcodes).
func (b *Bridge) handleLightCommand(topic string, payload []byte) error {
	addr, err := addressFromTopic(topic)
	if err != nil {
		return err
	}
	var cmd lightCommandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("mqttbridge: invalid light command payload: %w", err)
	}

	on := strings.EqualFold(cmd.State, "ON")
	state := device.LightState{On: on}
	percent := 0
	if on {
		state.Brightness = 100
		percent = 100
		if cmd.Brightness != nil {
			state.Brightness = *cmd.Brightness
			percent = device.BrightnessToPercent(state.Brightness, on)
		}
	}

	nodeAddr := bus.NodeAddress{Subnet: addr.Subnet, Device: addr.Device}
	channelAddr := bus.ChannelAddress{Subnet: addr.Subnet, Device: addr.Device, Channel: addr.Channel}
	onByte := byte(0)
	if on {
		onByte = 1
	}
	b.scheduler.EnqueueMotion(channelAddr, bus.Telegram{
		DestAddress: nodeAddr,
		OpCode:      bus.OpSingleChannelControl,
		Payload:     []byte{addr.Channel, onByte, byte(percent)},
	})

	return b.PublishLightState(context.Background(), addr, state)
}

// coverCommandFromPayload maps the plain OPEN/CLOSE/STOP string payload
// Home Assistant's default cover command_topic sends into a cover.Command.
func coverCommandFromPayload(payload []byte) (cover.Command, bool) {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "OPEN":
		return cover.CommandOpen, true
	case "CLOSE":
		return cover.CommandClose, true
	case "STOP":
		return cover.CommandStop, true
	default:
		return 0, false
	}
}

func (b *Bridge) handleCoverCommand(topic string, payload []byte) error {
	addr, err := addressFromTopic(topic)
	if err != nil {
		return err
	}
	cmd, ok := coverCommandFromPayload(payload)
	if !ok {
		return fmt.Errorf("mqttbridge: unrecognised cover command payload %q", payload)
	}
	return b.cover.HandleCommand(context.Background(), addr, cmd, 0)
}

// handleCoverRawCommand is identical to handleCoverCommand: the "raw"
// distinction is in the topic (bypassing position logic in the UI) and the
// discovery entity it's wired to, not in how the engine handles it — OPEN/
// CLOSE/STOP are the same bus-level operation either way.
func (b *Bridge) handleCoverRawCommand(topic string, payload []byte) error {
	return b.handleCoverCommand(topic, payload)
}

func (b *Bridge) handleCoverPositionCommand(topic string, payload []byte) error {
	addr, err := addressFromTopic(topic)
	if err != nil {
		return err
	}
	target, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return fmt.Errorf("mqttbridge: invalid cover position payload %q: %w", payload, err)
	}
	return b.cover.HandleCommand(context.Background(), addr, cover.CommandSetPosition, target)
}

func (b *Bridge) handleCoverGroupCommand(topic string, payload []byte) error {
	groupID := groupIDFromTopic(topic)
	cmd, ok := coverCommandFromPayload(payload)
	if !ok {
		return fmt.Errorf("mqttbridge: unrecognised cover group command payload %q", payload)
	}
	return b.fanOutGroupCommand(groupID, cmd, 0)
}

func (b *Bridge) handleCoverGroupRawCommand(topic string, payload []byte) error {
	return b.handleCoverGroupCommand(topic, payload)
}

func (b *Bridge) handleCoverGroupPositionCommand(topic string, payload []byte) error {
	groupID := groupIDFromTopic(topic)
	target, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return fmt.Errorf("mqttbridge: invalid cover group position payload %q: %w", payload, err)
	}
	return b.fanOutGroupCommand(groupID, cover.CommandSetPosition, target)
}

// fanOutGroupCommand applies cmd to every member of groupID (§4.7's
// "per-group fan-out"): each member goes through the same cover.Engine
// path an individual command would, so per-cover pacing/coalescing still
// applies uniformly.
func (b *Bridge) fanOutGroupCommand(groupID string, cmd cover.Command, target int) error {
	g, err := b.registry.GetCoverGroup(groupID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, addr := range g.MemberAddresses {
		if err := b.cover.HandleCommand(context.Background(), addr, cmd, target); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
