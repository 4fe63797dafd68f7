package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/busprobridge/core/internal/device"
)

// discoveryPrefix is Home Assistant's well-known MQTT discovery topic
// prefix. It is not part of the recognised config option set (§8): every
// deployment of this bridge talks to Home Assistant, so there is nothing
// for an operator to point it at.
const discoveryPrefix = "homeassistant"

// haDevice groups entities under one logical device in the Home Assistant
// UI. Identifiers must be stable across restarts and renames.
type haDevice struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
	Manufacturer string  `json:"manufacturer,omitempty"`
}

var busproManufacturer = "HDL BusPro"

// lightDiscovery is a Home Assistant MQTT light using the "json" schema,
// which carries both on/off and brightness in one JSON state/command
// payload — matching spec.md §6's light state shape directly.
type lightDiscovery struct {
	Name               string   `json:"name"`
	UniqueID           string   `json:"unique_id"`
	Schema             string   `json:"schema"`
	StateTopic         string   `json:"state_topic"`
	CommandTopic       string   `json:"command_topic"`
	AvailabilityTopic  string   `json:"availability_topic"`
	Brightness         bool     `json:"brightness,omitempty"`
	BrightnessScale    int      `json:"brightness_scale,omitempty"`
	Device             haDevice `json:"device"`
}

// coverDiscovery is a standard Home Assistant MQTT cover with position
// support. Position 0=closed, 100=open, matching this bridge's own
// convention (§3), so no position_closed/position_open override is needed.
type coverDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	ValueTemplate     string   `json:"value_template"`
	CommandTopic      string   `json:"command_topic"`
	PositionTopic     string   `json:"position_topic"`
	PositionTemplate  string   `json:"position_template"`
	SetPositionTopic  string   `json:"set_position_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	Device            haDevice `json:"device"`
}

// coverRawDiscovery is the "no-%" clone (§4.7): OPEN/CLOSE/STOP only, no
// position reporting, assumed_state so Home Assistant doesn't wait for a
// state confirmation that will never come on this topic.
type coverRawDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	CommandTopic      string   `json:"command_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	AssumedState      bool     `json:"assumed_state"`
	Device            haDevice `json:"device"`
}

// binarySensorDiscovery covers dry contacts.
type binarySensorDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	JSONAttributesTopic string   `json:"json_attributes_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Device              haDevice `json:"device"`
}

// sensorDiscovery covers temperature/humidity/illuminance readings.
type sensorDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	DeviceClass       string   `json:"device_class,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	Device            haDevice `json:"device"`
}

func addrSlug(addr device.Address) string {
	return fmt.Sprintf("%d_%d_%d", addr.Subnet, addr.Device, addr.Channel)
}

func (b *Bridge) configTopic(component, objectID string) string {
	return fmt.Sprintf("%s/%s/busprobridge/%s/config", discoveryPrefix, component, objectID)
}

// PublishDiscovery (re)publishes retained Home Assistant discovery config
// for every device currently in the registry.
func (b *Bridge) PublishDiscovery(ctx context.Context) error {
	if err := b.publishLightDiscovery(); err != nil {
		return err
	}
	if err := b.publishCoverDiscovery(); err != nil {
		return err
	}
	if err := b.publishCoverGroupDiscovery(); err != nil {
		return err
	}
	if err := b.publishDryContactDiscovery(); err != nil {
		return err
	}
	return b.publishSensorDiscovery()
}

func (b *Bridge) publishRetained(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal discovery payload for %s: %w", topic, err)
	}
	return b.mqtt.PublishRetained(topic, payload)
}

// lightsDevice is the single logical device every light entity is grouped
// under (§4.7: "lights are grouped under a single logical device").
var lightsDevice = haDevice{Identifiers: []string{"busprobridge_lights"}, Name: "BusPro Lights", Manufacturer: busproManufacturer}

func (b *Bridge) publishLightDiscovery() error {
	for _, l := range b.registry.ListLights() {
		slug := addrSlug(l.Address)
		cfg := lightDiscovery{
			Name:              l.Name,
			UniqueID:          "busprobridge_light_" + slug,
			Schema:            "json",
			StateTopic:        b.topics.LightState(l.Address),
			CommandTopic:      b.topics.LightCommand(l.Address),
			AvailabilityTopic: b.topics.Availability(),
			Brightness:        l.Dimmable,
			Device:            lightsDevice,
		}
		if l.Dimmable {
			cfg.BrightnessScale = 255
		}
		if err := b.publishRetained(b.configTopic("light", "light_"+slug), cfg); err != nil {
			return err
		}
	}
	return nil
}

func coversDeviceFor(category string) haDevice {
	id := "busprobridge_cover"
	name := "BusPro Covers"
	if category != "" {
		id += "_" + category
		name += " (" + category + ")"
	}
	return haDevice{Identifiers: []string{id}, Name: name, Manufacturer: busproManufacturer}
}

// coverRawDevice is the dedicated "no-%" device namespace (§4.7), kept
// separate from the position-aware covers so the two entities for the
// same physical cover never collide on unique_id or device grouping.
var coverRawDevice = haDevice{Identifiers: []string{"busprobridge_cover_raw"}, Name: "BusPro Covers (raw)", Manufacturer: busproManufacturer}

func (b *Bridge) publishCoverDiscovery() error {
	for _, c := range b.registry.ListCovers() {
		slug := addrSlug(c.Address)
		cfg := coverDiscovery{
			Name:              c.Name,
			UniqueID:          "busprobridge_cover_" + slug,
			StateTopic:        b.topics.CoverState(c.Address),
			ValueTemplate:     "{{ value_json.state }}",
			CommandTopic:      b.topics.CoverCommand(c.Address),
			PositionTopic:     b.topics.CoverState(c.Address),
			PositionTemplate:  "{{ value_json.position }}",
			SetPositionTopic:  b.topics.CoverPositionCommand(c.Address),
			AvailabilityTopic: b.topics.Availability(),
			Device:            coversDeviceFor(c.Category),
		}
		if err := b.publishRetained(b.configTopic("cover", "cover_"+slug), cfg); err != nil {
			return err
		}

		raw := coverRawDiscovery{
			Name:              c.Name + " (raw)",
			UniqueID:          "busprobridge_cover_raw_" + slug,
			CommandTopic:      b.topics.CoverRawCommand(c.Address),
			AvailabilityTopic: b.topics.Availability(),
			AssumedState:      true,
			Device:            coverRawDevice,
		}
		if err := b.publishRetained(b.configTopic("cover", "cover_raw_"+slug), raw); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) publishCoverGroupDiscovery() error {
	for _, g := range b.registry.ListCoverGroups() {
		cfg := coverDiscovery{
			Name:              g.Name,
			UniqueID:          "busprobridge_cover_group_" + g.ID,
			StateTopic:        b.topics.CoverGroupState(g.ID),
			ValueTemplate:     "{{ value_json.state }}",
			CommandTopic:      b.topics.CoverGroupCommand(g.ID),
			PositionTopic:     b.topics.CoverGroupState(g.ID),
			PositionTemplate:  "{{ value_json.position }}",
			SetPositionTopic:  b.topics.CoverGroupPositionCommand(g.ID),
			AvailabilityTopic: b.topics.Availability(),
			Device:            haDevice{Identifiers: []string{"busprobridge_cover_group_" + g.ID}, Name: g.Name, Manufacturer: busproManufacturer},
		}
		if err := b.publishRetained(b.configTopic("cover", "cover_group_"+g.ID), cfg); err != nil {
			return err
		}
	}
	return nil
}

var dryContactsDevice = haDevice{Identifiers: []string{"busprobridge_dry_contacts"}, Name: "BusPro Dry Contacts", Manufacturer: busproManufacturer}

func (b *Bridge) publishDryContactDiscovery() error {
	for _, dc := range b.registry.ListDryContacts() {
		slug := addrSlug(dc.Address)
		stateTopic := b.topics.DryContactState(dc.Address)
		cfg := binarySensorDiscovery{
			Name:                dc.Name,
			UniqueID:            "busprobridge_dry_contact_" + slug,
			StateTopic:          stateTopic,
			JSONAttributesTopic: b.topics.Attributes(stateTopic),
			AvailabilityTopic:   b.topics.Availability(),
			Device:              dryContactsDevice,
		}
		if err := b.publishRetained(b.configTopic("binary_sensor", "dry_contact_"+slug), cfg); err != nil {
			return err
		}
	}
	return nil
}

var sensorsDevice = haDevice{Identifiers: []string{"busprobridge_sensors"}, Name: "BusPro Sensors", Manufacturer: busproManufacturer}

// sensorDeviceClass and sensorUnit give Home Assistant's standard
// device_class/unit_of_measurement for each sensor kind this bridge knows.
func sensorDeviceClass(kind device.Kind) string {
	switch kind {
	case device.KindTemp:
		return "temperature"
	case device.KindHumidity:
		return "humidity"
	case device.KindIlluminance:
		return "illuminance"
	default:
		return ""
	}
}

func sensorUnit(kind device.Kind) string {
	switch kind {
	case device.KindTemp:
		return "°C"
	case device.KindHumidity:
		return "%"
	case device.KindIlluminance:
		return "lx"
	default:
		return ""
	}
}

func (b *Bridge) publishSensorDiscovery() error {
	for _, kind := range []device.Kind{device.KindTemp, device.KindHumidity, device.KindIlluminance} {
		for _, s := range b.registry.ListSensors(kind) {
			slug := fmt.Sprintf("%s_%d", addrSlug(s.Address), s.SensorID)
			cfg := sensorDiscovery{
				Name:              s.Name,
				UniqueID:          "busprobridge_" + string(kind) + "_" + slug,
				StateTopic:        b.topics.SensorState(kind, s.Address, s.SensorID),
				DeviceClass:       sensorDeviceClass(kind),
				UnitOfMeasurement: sensorUnit(kind),
				AvailabilityTopic: b.topics.Availability(),
				Device:            sensorsDevice,
			}
			if err := b.publishRetained(b.configTopic("sensor", string(kind)+"_"+slug), cfg); err != nil {
				return err
			}
		}
	}
	return nil
}
