// Package sensors implements C6: opcode-keyed decoders for temperature,
// humidity, illuminance, and dry-contact telegrams, plus a bounded sniffer
// for opcodes nobody decodes. spec.md §9's redesign note calls for "a
// registry mapping opcode → decoder function returning a tagged variant
// SensorReading{kind, address, value}; unknown opcodes produce Raw{opcode,
// bytes} for the sniffer" — Dispatcher is that registry.
package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/busprobridge/core/internal/bus"
	"github.com/busprobridge/core/internal/device"
)

// ErrShortPayload is returned by a decoder when the telegram payload is too
// short for the opcode's known layouts.
var ErrShortPayload = errors.New("sensors: payload too short")

// rawReading is one decoded numeric observation before per-device
// calibration (scale/offset/decimals/clamp) is applied.
type rawReading struct {
	Kind     device.Kind
	SensorID byte
	Value    float64
}

// decodeFunc extracts zero or more raw readings from a telegram's payload.
type decodeFunc func(payload []byte) ([]rawReading, error)

// decodeTemperature implements spec.md §4.6's BroadcastTemperatureResponse:
// a long form (sensor id + float32 little-endian reading at payload[2:6])
// and a short form used by 12-in-1 modules ([sensor_id, value] as a signed
// byte in whole degrees).
func decodeTemperature(payload []byte) ([]rawReading, error) {
	switch {
	case len(payload) >= 6:
		sensorID := payload[0]
		bits := binary.LittleEndian.Uint32(payload[2:6])
		value := float64(math.Float32frombits(bits))
		return []rawReading{{Kind: device.KindTemp, SensorID: sensorID, Value: value}}, nil
	case len(payload) == 2:
		sensorID := payload[0]
		value := float64(int8(payload[1]))
		return []rawReading{{Kind: device.KindTemp, SensorID: sensorID, Value: value}}, nil
	default:
		return nil, fmt.Errorf("%w: temperature needs 2 or 6+ bytes, got %d", ErrShortPayload, len(payload))
	}
}

// decodeCombinedSensors implements ReadSensorsInOneStatusResponse (0x1605):
// payload[0] is the sensor id, payload[1] is humidity as a raw percent
// byte, and illuminance is a 16-bit little-endian reading at payload[2:4].
// A secondary gateway firmware variant pads the remainder of the frame with
// 0xFFFFFF at payload[5:8]; both variants carry illuminance at the same
// offset, so no special-casing is needed beyond the length check.
func decodeCombinedSensors(payload []byte) ([]rawReading, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: combined sensor status needs 4+ bytes, got %d", ErrShortPayload, len(payload))
	}
	sensorID := payload[0]
	humidity := float64(payload[1])
	illuminance := float64(binary.LittleEndian.Uint16(payload[2:4]))
	return []rawReading{
		{Kind: device.KindHumidity, SensorID: sensorID, Value: humidity},
		{Kind: device.KindIlluminance, SensorID: sensorID, Value: illuminance},
	}, nil
}

// decodeIlluminance16 implements the standalone 16-bit illuminance opcode
// (0x1646): sensor id then a 16-bit little-endian reading.
func decodeIlluminance16(payload []byte) ([]rawReading, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("%w: illuminance16 needs 3+ bytes, got %d", ErrShortPayload, len(payload))
	}
	sensorID := payload[0]
	value := float64(binary.LittleEndian.Uint16(payload[1:3]))
	return []rawReading{{Kind: device.KindIlluminance, SensorID: sensorID, Value: value}}, nil
}

// rawContact is one decoded dry-contact transition. Per spec.md §4.6 the
// device identity comes from the telegram's source address, not the
// payload — different gateway firmwares disagree about what the first
// payload byte means, so it is carried through only as a diagnostic
// attribute (X) and never gates acceptance or selects the channel.
type rawContact struct {
	Channel byte
	On      bool
	X       byte
}

// decodeDryContact implements ControlPanelACResponse (0xE3D9).
func decodeDryContact(payload []byte) (rawContact, error) {
	if len(payload) < 3 {
		return rawContact{}, fmt.Errorf("%w: dry contact needs 3+ bytes, got %d", ErrShortPayload, len(payload))
	}
	return rawContact{X: payload[0], Channel: payload[1], On: payload[2] != 0}, nil
}

// Reading is a calibrated sensor observation ready to publish.
type Reading struct {
	Kind     device.Kind
	Address  device.Address
	SensorID byte
	Value    float64
}

// ContactReading is a calibrated dry-contact observation ready to publish.
type ContactReading struct {
	Address device.Address
	On      bool
	X       byte
}

// Raw is an unrecognized telegram, kept for the sniffer.
type Raw struct {
	OpCode  uint16
	Payload []byte
}

func (r Raw) Hex() string {
	const hextab = "0123456789abcdef"
	out := make([]byte, len(r.Payload)*2)
	for i, b := range r.Payload {
		out[i*2] = hextab[b>>4]
		out[i*2+1] = hextab[b&0x0f]
	}
	return string(out)
}

// sensorOpcodes maps an opcode to its decoder. Dry contacts are dispatched
// separately (dryContactOpcode) because their payload shape and addressing
// rule differ from the numeric sensor family.
var sensorOpcodes = map[uint16]decodeFunc{
	bus.OpBroadcastTemperatureResponse:   decodeTemperature,
	bus.OpReadSensorsInOneStatusResponse: decodeCombinedSensors,
	bus.OpSensorStatusFallback:           decodeCombinedSensors,
	bus.OpIlluminance16StatusResponse:    decodeIlluminance16,
}

const dryContactOpcode = bus.OpControlPanelACResponse
