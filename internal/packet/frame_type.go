package packet

import "fmt"

// FrameType is the API frame type tag that precedes every payload body.
type FrameType uint8

const (
	FrameTypeTX64              FrameType = 0x00
	FrameTypeTX16              FrameType = 0x01
	FrameTypeATCommand         FrameType = 0x08
	FrameTypeATCommandQueue    FrameType = 0x09
	FrameTypeRemoteATCommand   FrameType = 0x17
	FrameTypeRX64              FrameType = 0x80
	FrameTypeRX16              FrameType = 0x81
	FrameTypeATCommandResponse FrameType = 0x88
	FrameTypeTXStatus          FrameType = 0x89
	FrameTypeModemStatus       FrameType = 0x8A
)

var frameTypeNames = map[FrameType]string{
	FrameTypeTX64:              "TX (Transmit) Request 64-bit address",
	FrameTypeTX16:              "TX (Transmit) Request 16-bit address",
	FrameTypeATCommand:         "AT Command",
	FrameTypeATCommandQueue:    "AT Command Queue",
	FrameTypeRemoteATCommand:   "Remote AT Command Request",
	FrameTypeRX64:              "RX (Receive) Packet 64-bit Address",
	FrameTypeRX16:              "RX (Receive) Packet 16-bit Address",
	FrameTypeATCommandResponse: "AT Command Response",
	FrameTypeTXStatus:          "TX Status",
	FrameTypeModemStatus:       "Modem Status",
}

// FrameTypeFromByte maps a raw tag to a FrameType. The bool reports whether
// the tag has a packet model in this package; unmodelled tags are still
// returned so callers can carry them.
func FrameTypeFromByte(b byte) (FrameType, bool) {
	ft := FrameType(b)
	return ft, ft.Modelled()
}

// Modelled reports whether Unmarshal decodes this frame type into a
// dedicated variant rather than UnknownPacket.
func (t FrameType) Modelled() bool {
	switch t {
	case FrameTypeATCommand, FrameTypeRX64, FrameTypeATCommandResponse:
		return true
	default:
		return false
	}
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(t))
}
