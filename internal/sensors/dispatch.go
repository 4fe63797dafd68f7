package sensors

import (
	"github.com/busprobridge/core/internal/bus"
	"github.com/busprobridge/core/internal/device"
)

// SensorLookup is the subset of device.Registry the dispatcher needs to
// turn a raw (address, sensor_id) pair into calibration parameters.
type SensorLookup interface {
	GetSensor(kind device.Kind, addr device.Address, sensorID byte) (device.Sensor, error)
}

// Dispatcher decodes telegrams by opcode, applies each matching device's
// calibration (scale/offset/decimals/min/max), and routes anything it
// cannot decode to the sniffer.
type Dispatcher struct {
	lookup  SensorLookup
	sniffer *Sniffer
}

// NewDispatcher returns a Dispatcher reading sensor calibration from lookup
// and recording unrecognized telegrams into sniffer (may be nil to disable
// sniffing entirely).
func NewDispatcher(lookup SensorLookup, sniffer *Sniffer) *Dispatcher {
	return &Dispatcher{lookup: lookup, sniffer: sniffer}
}

// Handle decodes one telegram, returning the calibrated sensor readings and
// dry-contact reading it produced. A telegram may be both unrecognized by
// any decoder here (recorded into the sniffer) and otherwise ignored — this
// is expected for every opcode this bridge doesn't model (lighting, cover
// control acks, etc.), so callers should route Handle only for
// telegrams not already claimed by another subsystem.
func (d *Dispatcher) Handle(tg bus.Telegram) ([]Reading, *ContactReading) {
	addr := device.Address{Subnet: tg.SourceAddress.Subnet, Device: tg.SourceAddress.Device}

	if tg.OpCode == dryContactOpcode {
		raw, err := decodeDryContact(tg.Payload)
		if err != nil {
			d.recordUnknown(tg)
			return nil, nil
		}
		contactAddr := addr
		contactAddr.Channel = raw.Channel
		return nil, &ContactReading{Address: contactAddr, On: raw.On, X: raw.X}
	}

	decode, ok := sensorOpcodes[tg.OpCode]
	if !ok {
		d.recordUnknown(tg)
		return nil, nil
	}
	rawReadings, err := decode(tg.Payload)
	if err != nil {
		d.recordUnknown(tg)
		return nil, nil
	}

	var out []Reading
	for _, rr := range rawReadings {
		reading, ok := d.calibrate(addr, rr)
		if ok {
			out = append(out, reading)
		}
	}
	return out, nil
}

// calibrate looks up the configured Sensor for (kind, addr, sensor_id) and
// applies its scale/offset/decimals/min/max. A reading for a sensor this
// bridge has no catalogue entry for is dropped — nothing downstream knows
// its topic or name.
func (d *Dispatcher) calibrate(addr device.Address, rr rawReading) (Reading, bool) {
	cfg, err := d.lookup.GetSensor(rr.Kind, addr, rr.SensorID)
	if err != nil {
		return Reading{}, false
	}
	value := rr.Value
	if cfg.Scale != nil {
		value *= *cfg.Scale
	}
	if cfg.Offset != nil {
		value += *cfg.Offset
	}
	if cfg.Decimals != nil {
		value = roundToDecimals(value, *cfg.Decimals)
	}
	if value < cfg.Min {
		value = cfg.Min
	}
	if value > cfg.Max {
		value = cfg.Max
	}
	return Reading{Kind: rr.Kind, Address: addr, SensorID: rr.SensorID, Value: value}, true
}

func (d *Dispatcher) recordUnknown(tg bus.Telegram) {
	if d.sniffer == nil {
		return
	}
	payload := make([]byte, len(tg.Payload))
	copy(payload, tg.Payload)
	d.sniffer.Record(Raw{OpCode: tg.OpCode, Payload: payload})
}

func roundToDecimals(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	mult := 1.0
	for i := 0; i < decimals; i++ {
		mult *= 10
	}
	if v >= 0 {
		return float64(int64(v*mult+0.5)) / mult
	}
	return float64(int64(v*mult-0.5)) / mult
}
