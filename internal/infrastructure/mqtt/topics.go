package mqtt

import (
	"fmt"

	"github.com/busprobridge/core/internal/device"
)

// Topics builds every MQTT topic busprobridge publishes to or subscribes
// on, under a single configurable prefix (default "buspro/").
//
// The scheme is built for Home Assistant's MQTT Discovery: one
// availability topic, retained per-entity state topics keyed by BusPro
// address, and a mirrored set of command topics Home Assistant writes to.
// Discovery config payloads reference these topics by string; Topics is
// the single place that builds them so the discovery publisher and the
// command router can never disagree about a topic name.
type Topics struct {
	prefix string
}

// NewTopics returns a Topics builder using prefix (normally
// config.Config.TopicPrefix(), already trailing-slash normalized).
func NewTopics(prefix string) Topics {
	return Topics{prefix: prefix}
}

// Availability is the single retained LWT topic: "online" or "offline".
func (t Topics) Availability() string {
	return t.prefix + "availability"
}

// -----------------------------------------------------------------------
// State topics (published retained by the bridge)
// -----------------------------------------------------------------------

// LightState is the brightness/on-off state topic for a light channel.
func (t Topics) LightState(addr device.Address) string {
	return fmt.Sprintf("%sstate/light/%d/%d/%d", t.prefix, addr.Subnet, addr.Device, addr.Channel)
}

// CoverState is the position/phase state topic for a single cover.
func (t Topics) CoverState(addr device.Address) string {
	return fmt.Sprintf("%sstate/cover/%d/%d/%d", t.prefix, addr.Subnet, addr.Device, addr.Channel)
}

// CoverGroupState is the aggregate state topic for a cover group.
func (t Topics) CoverGroupState(groupID string) string {
	return fmt.Sprintf("%sstate/cover_group/%s", t.prefix, groupID)
}

// DryContactState is the on/off state topic for a dry-contact input.
func (t Topics) DryContactState(addr device.Address) string {
	return fmt.Sprintf("%sstate/dry_contact/%d/%d/%d", t.prefix, addr.Subnet, addr.Device, addr.Channel)
}

// SensorState is the state topic for a temperature/humidity/illuminance
// reading, keyed by the physical sensor_id rather than a channel number —
// several sensor kinds can share one physical module.
func (t Topics) SensorState(kind device.Kind, addr device.Address, sensorID byte) string {
	return fmt.Sprintf("%sstate/%s/%d/%d/%d", t.prefix, kind, addr.Subnet, addr.Device, sensorID)
}

// Attributes is the JSON attributes topic accompanying a state topic
// (last-seen timestamp, calibration, raw diagnostic fields) — Home
// Assistant's json_attributes_topic for any of the above entities.
func (t Topics) Attributes(stateTopic string) string {
	return stateTopic + "/attributes"
}

// -----------------------------------------------------------------------
// Command topics (subscribed by the bridge)
// -----------------------------------------------------------------------

// LightCommand is the command topic for a light channel.
func (t Topics) LightCommand(addr device.Address) string {
	return fmt.Sprintf("%scmd/light/%d/%d/%d", t.prefix, addr.Subnet, addr.Device, addr.Channel)
}

// CoverCommand is the command topic for a cover's OPEN/CLOSE/STOP.
func (t Topics) CoverCommand(addr device.Address) string {
	return fmt.Sprintf("%scmd/cover/%d/%d/%d", t.prefix, addr.Subnet, addr.Device, addr.Channel)
}

// CoverRawCommand is the command topic for the "no-%" assumed_state clone
// of a cover that only publishes open/close/stop, not a set-position
// slider — used for covers without a calibrated travel time.
func (t Topics) CoverRawCommand(addr device.Address) string {
	return fmt.Sprintf("%scmd/cover_raw/%d/%d/%d", t.prefix, addr.Subnet, addr.Device, addr.Channel)
}

// CoverPositionCommand is the set-position command topic for a cover.
func (t Topics) CoverPositionCommand(addr device.Address) string {
	return fmt.Sprintf("%scmd/cover_pos/%d/%d/%d", t.prefix, addr.Subnet, addr.Device, addr.Channel)
}

// CoverGroupCommand is the command topic for a cover group's OPEN/CLOSE/STOP.
func (t Topics) CoverGroupCommand(groupID string) string {
	return fmt.Sprintf("%scmd/cover_group/%s", t.prefix, groupID)
}

// CoverGroupRawCommand is the assumed_state clone of CoverGroupCommand.
func (t Topics) CoverGroupRawCommand(groupID string) string {
	return fmt.Sprintf("%scmd/cover_group_raw/%s", t.prefix, groupID)
}

// CoverGroupPositionCommand is the set-position command topic for a group.
func (t Topics) CoverGroupPositionCommand(groupID string) string {
	return fmt.Sprintf("%scmd/cover_group_pos/%s", t.prefix, groupID)
}

// -----------------------------------------------------------------------
// Wildcard subscription patterns
// -----------------------------------------------------------------------

// AllLightCommands matches every light command topic.
func (t Topics) AllLightCommands() string {
	return t.prefix + "cmd/light/#"
}

// AllCoverCommands matches every plain cover command topic.
func (t Topics) AllCoverCommands() string {
	return t.prefix + "cmd/cover/#"
}

// AllCoverRawCommands matches every assumed_state cover command topic.
func (t Topics) AllCoverRawCommands() string {
	return t.prefix + "cmd/cover_raw/#"
}

// AllCoverPositionCommands matches every cover set-position topic.
func (t Topics) AllCoverPositionCommands() string {
	return t.prefix + "cmd/cover_pos/#"
}

// AllCoverGroupCommands matches every cover group command topic.
func (t Topics) AllCoverGroupCommands() string {
	return t.prefix + "cmd/cover_group/#"
}

// AllCoverGroupRawCommands matches every assumed_state cover group command topic.
func (t Topics) AllCoverGroupRawCommands() string {
	return t.prefix + "cmd/cover_group_raw/#"
}

// AllCoverGroupPositionCommands matches every cover group set-position topic.
func (t Topics) AllCoverGroupPositionCommands() string {
	return t.prefix + "cmd/cover_group_pos/#"
}

// AllCommands matches every command topic this bridge subscribes to —
// the single subscription restored on every reconnect.
func (t Topics) AllCommands() string {
	return t.prefix + "cmd/#"
}

// AllState matches every state topic this bridge publishes — used by the
// WebSocket relay to mirror state changes to connected UI clients without
// needing to know each topic's shape up front.
func (t Topics) AllState() string {
	return t.prefix + "state/#"
}
