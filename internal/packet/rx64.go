package packet

import (
	"fmt"
)

// Receive option bits reported by the module.
const (
	OptionAddressBroadcast = 0x02
	OptionPANBroadcast     = 0x04
)

// RX64Packet is emitted by the module when RF data arrives from a sender
// identified by its 64-bit address. It is a notification: there is no frame
// ID to correlate.
type RX64Packet struct {
	source  Address64
	rssi    uint8
	options uint8
	data    []byte
}

// NewRX64Packet validates and builds a receive notification. data may be nil.
func NewRX64Packet(source *Address64, rssi, receiveOptions int, data []byte) (*RX64Packet, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source address is required", ErrInvalidAddress)
	}
	if rssi < 0 || rssi > 100 {
		return nil, fmt.Errorf("%w: %d is outside 0-100", ErrInvalidSignalStrength, rssi)
	}
	if receiveOptions < 0 || receiveOptions > 255 {
		return nil, fmt.Errorf("%w: %d is outside 0-255", ErrInvalidReceiveOptions, receiveOptions)
	}

	return &RX64Packet{
		source:  *source,
		rssi:    uint8(rssi),
		options: uint8(receiveOptions),
		data:    cloneBytes(data),
	}, nil
}

// ParseRX64Packet decodes the body produced by RX64Packet.Body.
func ParseRX64Packet(body []byte) (*RX64Packet, error) {
	if len(body) < 10 {
		return nil, fmt.Errorf("%w: RX64 needs 10 bytes, got %d", ErrTruncated, len(body))
	}
	source, err := Address64FromBytes(body[:8])
	if err != nil {
		return nil, err
	}
	var data []byte
	if len(body) > 10 {
		data = body[10:]
	}

	return NewRX64Packet(&source, int(body[8]), int(body[9]), data)
}

func (p *RX64Packet) FrameType() FrameType {
	return FrameTypeRX64
}

func (p *RX64Packet) Body() []byte {
	body := make([]byte, 0, len(p.source)+2+len(p.data))
	body = append(body, p.source[:]...)
	body = append(body, p.rssi, p.options)
	return append(body, p.data...)
}

func (p *RX64Packet) NeedsFrameID() bool {
	return false
}

func (p *RX64Packet) SourceAddress() Address64 {
	return p.source
}

func (p *RX64Packet) RSSI() int {
	return int(p.rssi)
}

func (p *RX64Packet) ReceiveOptions() int {
	return int(p.options)
}

// IsBroadcast reports whether the data was sent to the broadcast address or
// to all PANs.
func (p *RX64Packet) IsBroadcast() bool {
	return p.options&(OptionAddressBroadcast|OptionPANBroadcast) != 0
}

// ReceivedData returns a copy of the RF payload, nil when none was set.
func (p *RX64Packet) ReceivedData() []byte {
	return cloneBytes(p.data)
}

func (p *RX64Packet) SetReceivedData(data []byte) {
	p.data = cloneBytes(data)
}

func (p *RX64Packet) Fields(_ CommandClassifier) Fields {
	fields := Fields{
		{Label: "64-bit source address", Value: prettyHex(p.source[:])},
		{Label: "RSSI", Value: prettyByte(p.rssi)},
		{Label: "Options", Value: prettyByte(p.options)},
	}
	if p.data != nil {
		fields = append(fields, Field{Label: "RF data", Value: prettyHex(p.data)})
	}

	return fields
}

func (p *RX64Packet) sealed() {}
