package bus

// Opcodes recognized by this bridge. Numeric values for the sensor/contact
// family come from spec.md's own enumeration (0x1605, 0x1630, 0x1646,
// 0xE3D9); the lighting and curtain families are not pinned by spec.md (the
// physical wire protocol below the frame level is described as "already
// fixed by the bus"), so their values here are this repository's own
// internally-consistent assignment.
const (
	// OpSingleChannelControl carries an on/off + percent command to a
	// lighting channel.
	OpSingleChannelControl uint16 = 0x0031
	// OpSingleChannelControlResponse acknowledges a lighting command.
	OpSingleChannelControlResponse uint16 = 0x0032
	// OpReadStatusOfChannels requests the current state of a channel.
	OpReadStatusOfChannels uint16 = 0x0033
	// OpReadStatusOfChannelsResponse reports the current state of a channel.
	OpReadStatusOfChannelsResponse uint16 = 0x0034

	// OpCurtainSwitchControl carries an OPEN/CLOSE/STOP command to a cover.
	OpCurtainSwitchControl uint16 = 0x0E3E
	// OpCurtainSwitchControlResponse acknowledges a cover command.
	OpCurtainSwitchControlResponse uint16 = 0x0E3F
	// OpCurtainSwitchStatusResponse reports cover motion status: payload[0]
	// is 0 (no information), 1 (opening), or 2 (closing).
	OpCurtainSwitchStatusResponse uint16 = 0x0E40
	// OpControlPanelControlResponse is emitted by a physical HDL panel
	// button press, observed on the bus with the same payload shape as
	// OpCurtainSwitchStatusResponse; the cover engine treats both as
	// bidirectional status for the purpose of bus-initiated reconciliation.
	OpControlPanelControlResponse uint16 = 0x0E41

	// OpBroadcastTemperatureResponse carries a float32 little-endian
	// reading, or a 2-byte short form for 12-in-1 sensor modules.
	OpBroadcastTemperatureResponse uint16 = 0x1604
	// OpReadSensorsInOneStatusResponse carries humidity/illuminance in a
	// combined payload (spec.md §4.6).
	OpReadSensorsInOneStatusResponse uint16 = 0x1605
	// OpSensorStatusFallback is an alternate sensor status layout observed
	// on some gateway firmware.
	OpSensorStatusFallback uint16 = 0x1630
	// OpIlluminance16StatusResponse carries a 16-bit illuminance reading.
	OpIlluminance16StatusResponse uint16 = 0x1646

	// OpControlPanelACResponse reports a dry-contact input transition.
	OpControlPanelACResponse uint16 = 0xE3D9
)

// CurtainStatus is the payload[0] value of a curtain status/control-panel
// response.
type CurtainStatus byte

const (
	CurtainStatusNone    CurtainStatus = 0 // no information — ignored
	CurtainStatusOpening CurtainStatus = 1
	CurtainStatusClosing CurtainStatus = 2
)

// CurtainCommand is the payload[0] value of a curtain control telegram.
type CurtainCommand byte

const (
	CurtainCommandOpen  CurtainCommand = 1
	CurtainCommandClose CurtainCommand = 2
	CurtainCommandStop  CurtainCommand = 0
)
