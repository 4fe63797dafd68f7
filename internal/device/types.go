// Package device is the typed catalogue of BusPro devices: lights, covers,
// cover groups, dry contacts, and environmental sensors. It provides
// validation, a cache-backed Registry, and the Repository interface the
// registry persists through (see internal/store for the JSON-backed
// implementation).
package device

import (
	"fmt"
	"time"
)

// Address identifies a BusPro channel by subnet/device/channel, each 0..255.
type Address struct {
	Subnet  byte `json:"subnet"`
	Device  byte `json:"device"`
	Channel byte `json:"channel"`
}

// String renders the address as "subnet.device.channel".
func (a Address) String() string {
	return formatAddress(a)
}

// Kind identifies which typed catalogue a device belongs to.
type Kind string

const (
	KindLight      Kind = "light"
	KindCover      Kind = "cover"
	KindCoverGroup Kind = "cover_group"
	KindDryContact Kind = "dry_contact"
	KindTemp       Kind = "temperature"
	KindHumidity   Kind = "humidity"
	KindIlluminance Kind = "illuminance"
)

// Light is a dimmable or switched lighting channel.
type Light struct {
	Address   Address `json:"address"`
	Name      string  `json:"name"`
	Dimmable  bool    `json:"dimmable"`
	Category  string  `json:"category,omitempty"`
	Icon      string  `json:"icon,omitempty"`
	Group     string  `json:"group,omitempty"`
}

// LightState is the on/off and brightness state of a light.
type LightState struct {
	On         bool `json:"on"`
	Brightness uint8 `json:"brightness"`
}

// CoverPhase is the motion phase of a cover.
type CoverPhase string

const (
	PhaseIdle    CoverPhase = "IDLE"
	PhaseOpening CoverPhase = "OPENING"
	PhaseClosing CoverPhase = "CLOSING"
)

// Cover is a motorised shade/blind channel with per-device calibration.
type Cover struct {
	Address          Address `json:"address"`
	Name             string  `json:"name"`
	OpeningTimeUpS   float64 `json:"opening_time_up_s"`
	OpeningTimeDownS float64 `json:"opening_time_down_s"`
	StartDelayS      float64 `json:"start_delay_s"`
	ReverseIcon      bool    `json:"reverse_icon"`
	Category         string  `json:"category,omitempty"`
	Icon             string  `json:"icon,omitempty"`
	Group            string  `json:"group,omitempty"`
}

// CoverState is the live motion state of a cover. Position is a monotonic
// function of time within a movement phase, clamped to [0,100]; Target is
// cleared whenever Phase returns to IDLE.
type CoverState struct {
	Phase           CoverPhase `json:"phase"`
	Position        int        `json:"position"`
	Target          *int       `json:"target,omitempty"`
	LastCommandTS   time.Time  `json:"last_command_ts"`
	StopScheduledAt *time.Time `json:"stop_scheduled_at,omitempty"`
}

// CoverGroup is a logical aggregate fanned out to member covers through the
// send scheduler. ID is assigned once at creation and never changes on
// rename, so MQTT topics and object IDs derived from it stay stable.
type CoverGroup struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	MemberAddresses []Address `json:"member_addresses"`
	Icon            string    `json:"icon,omitempty"`
	Category        string    `json:"category,omitempty"`
}

// DryContact is a dry-contact input channel.
type DryContact struct {
	Address Address `json:"address"`
	Name    string  `json:"name"`
}

// DryContactState is the on/off reading of a dry contact. X is the raw
// first payload byte, retained purely as an MQTT diagnostic attribute.
type DryContactState struct {
	On bool `json:"on"`
	X  byte `json:"x"`
}

// SensorFormat describes how a sensor payload is encoded on the bus.
type SensorFormat string

const (
	FormatFloat32LE SensorFormat = "float32_le"
	FormatUint8     SensorFormat = "uint8"
	FormatUint16LE  SensorFormat = "uint16_le"
)

// Sensor is a temperature, humidity, or illuminance reading channel.
// SensorID is the channel byte used by some BusPro opcodes to multiplex
// several sensors behind one device address.
type Sensor struct {
	Address  Address      `json:"address"`
	SensorID byte         `json:"sensor_id"`
	Name     string       `json:"name"`
	Decimals *int         `json:"decimals,omitempty"`
	Min      float64      `json:"min"`
	Max      float64      `json:"max"`
	Scale    *float64     `json:"scale,omitempty"`
	Offset   *float64     `json:"offset,omitempty"`
	Format   SensorFormat `json:"format"`
}

// SensorReading is the last numeric value observed for a sensor channel.
// Valid is false until the first reading arrives.
type SensorReading struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

func formatAddress(a Address) string {
	return fmt.Sprintf("%d.%d.%d", a.Subnet, a.Device, a.Channel)
}
