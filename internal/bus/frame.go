// Package bus implements the BusPro UDP field bus: telegram encode/decode
// (C1), the socket transport with NAT-safe peer tracking (C2), and the send
// scheduler that paces and coalesces outbound commands (C3).
package bus

import (
	"encoding/binary"
	"fmt"
)

const (
	preambleHi = 0xAA
	preambleLo = 0xAA

	// opcodeOffset is the fixed byte offset of the 2-byte big-endian opcode
	// within an encoded frame, stable across every telegram this bridge
	// emits or parses — callers needing the raw opcode of an otherwise
	// unrecognized frame read it directly at this offset rather than going
	// through Decode.
	opcodeOffset = 21

	// headerSize is everything before the opcode: preamble, length,
	// source/dest addressing, and reserved routing bytes.
	headerSize = opcodeOffset

	// minFrameSize is headerSize + 2-byte opcode + 1-byte trailing checksum.
	minFrameSize = headerSize + 2 + 1
)

// NodeAddress identifies a physical BusPro node by subnet and device byte.
// A single node may host several channels (lights, covers, sensors); the
// channel is carried in the telegram payload, not the node address.
type NodeAddress struct {
	Subnet byte
	Device byte
}

// String renders the node address as "subnet.device".
func (n NodeAddress) String() string {
	return fmt.Sprintf("%d.%d", n.Subnet, n.Device)
}

// Telegram is one decoded BusPro frame.
type Telegram struct {
	SourceAddress NodeAddress
	DestAddress   NodeAddress
	OpCode        uint16
	Payload       []byte
}

// Decode parses a raw UDP datagram into a Telegram. It validates the
// preamble, declared length, and trailing checksum; any mismatch yields
// ErrInvalidFrame.
func Decode(raw []byte) (Telegram, error) {
	if len(raw) < minFrameSize {
		return Telegram{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidFrame, len(raw), minFrameSize)
	}
	if raw[0] != preambleHi || raw[1] != preambleLo {
		return Telegram{}, fmt.Errorf("%w: bad preamble %02x%02x", ErrInvalidFrame, raw[0], raw[1])
	}

	declaredLen := int(raw[2])
	// Length covers everything from offset 3 up to and including the
	// checksum byte.
	if declaredLen != len(raw)-3 {
		return Telegram{}, fmt.Errorf("%w: declared length %d, frame has %d", ErrInvalidFrame, declaredLen, len(raw)-3)
	}

	if !verifyChecksum(raw) {
		return Telegram{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidFrame)
	}

	op := RawOpcodeAt(raw)
	payload := make([]byte, len(raw)-minFrameSize)
	copy(payload, raw[headerSize+2:len(raw)-1])

	return Telegram{
		SourceAddress: NodeAddress{Subnet: raw[3], Device: raw[4]},
		DestAddress:   NodeAddress{Subnet: raw[7], Device: raw[8]},
		OpCode:        op,
		Payload:       payload,
	}, nil
}

// RawOpcodeAt reads the 2-byte big-endian opcode at its fixed frame offset
// without otherwise validating or decoding the frame. Used by the sniffer
// to report unrecognized telegrams even when other fields look malformed.
func RawOpcodeAt(raw []byte) uint16 {
	if len(raw) < opcodeOffset+2 {
		return 0
	}
	return binary.BigEndian.Uint16(raw[opcodeOffset : opcodeOffset+2])
}

// Encode serializes a Telegram to wire format.
func Encode(t Telegram) []byte {
	total := minFrameSize + len(t.Payload)
	buf := make([]byte, total)

	buf[0], buf[1] = preambleHi, preambleLo
	buf[2] = byte(total - 3)
	buf[3], buf[4] = t.SourceAddress.Subnet, t.SourceAddress.Device
	// buf[5:7] reserved (source device-type, unused by this bridge)
	buf[7], buf[8] = t.DestAddress.Subnet, t.DestAddress.Device
	// buf[9:21] reserved (gateway routing metadata, unused by this bridge)
	binary.BigEndian.PutUint16(buf[opcodeOffset:opcodeOffset+2], t.OpCode)
	copy(buf[headerSize+2:], t.Payload)
	buf[total-1] = checksum(buf[:total-1])

	return buf
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

func verifyChecksum(raw []byte) bool {
	return raw[len(raw)-1] == checksum(raw[:len(raw)-1])
}
