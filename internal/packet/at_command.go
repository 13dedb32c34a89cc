package packet

import (
	"fmt"
	"strconv"
)

// ATCommandPacket queries or sets a parameter of the local module. A packet
// without a parameter is a query; with a parameter it is a set request.
//
// Frame ID and command are fixed at construction. The parameter may be
// replaced afterwards. Instances are not safe for concurrent mutation.
type ATCommandPacket struct {
	frameID   uint8
	command   string
	parameter []byte
}

// NewATCommandPacket builds an AT command packet with a raw parameter. A nil
// parameter means the command is sent as a query.
func NewATCommandPacket(frameID int, command string, parameter []byte) (*ATCommandPacket, error) {
	if command == "" {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidCommand)
	}
	id, err := checkFrameID(frameID)
	if err != nil {
		return nil, err
	}

	return &ATCommandPacket{
		frameID:   id,
		command:   command,
		parameter: cloneBytes(parameter),
	}, nil
}

// NewATCommandPacketString builds an AT command packet whose parameter is
// the byte form of a text value.
func NewATCommandPacketString(frameID int, command string, parameter string) (*ATCommandPacket, error) {
	return NewATCommandPacket(frameID, command, []byte(parameter))
}

// ParseATCommandPacket decodes the body produced by ATCommandPacket.Body.
func ParseATCommandPacket(body []byte) (*ATCommandPacket, error) {
	if len(body) < 3 {
		return nil, fmt.Errorf("%w: AT command needs 3 bytes, got %d", ErrTruncated, len(body))
	}
	var parameter []byte
	if len(body) > 3 {
		parameter = body[3:]
	}

	return NewATCommandPacket(int(body[0]), string(body[1:3]), parameter)
}

func (p *ATCommandPacket) FrameType() FrameType {
	return FrameTypeATCommand
}

func (p *ATCommandPacket) Body() []byte {
	body := make([]byte, 0, 1+len(p.command)+len(p.parameter))
	body = append(body, p.frameID)
	body = append(body, p.command...)
	return append(body, p.parameter...)
}

func (p *ATCommandPacket) NeedsFrameID() bool {
	return true
}

func (p *ATCommandPacket) FrameID() uint8 {
	return p.frameID
}

func (p *ATCommandPacket) Command() string {
	return p.command
}

func (p *ATCommandPacket) HasParameter() bool {
	return p.parameter != nil
}

// Parameter returns a copy of the parameter bytes, nil when none is set.
func (p *ATCommandPacket) Parameter() []byte {
	return cloneBytes(p.parameter)
}

// ParameterString decodes the parameter as text. The bool is false when no
// parameter is set.
func (p *ATCommandPacket) ParameterString() (string, bool) {
	if p.parameter == nil {
		return "", false
	}
	return string(p.parameter), true
}

// SetParameter replaces the parameter. Nil clears it.
func (p *ATCommandPacket) SetParameter(parameter []byte) {
	p.parameter = cloneBytes(parameter)
}

func (p *ATCommandPacket) SetParameterString(parameter string) {
	p.parameter = []byte(parameter)
}

func (p *ATCommandPacket) ClearParameter() {
	p.parameter = nil
}

func (p *ATCommandPacket) Fields(c CommandClassifier) Fields {
	fields := Fields{
		{Label: "Frame ID", Value: prettyByte(p.frameID) + " (" + strconv.Itoa(int(p.frameID)) + ")"},
		{Label: "AT Command", Value: prettyHex([]byte(p.command)) + " (" + p.command + ")"},
	}
	if p.parameter != nil {
		value := prettyHex(p.parameter)
		if isStringValued(c, p.command) {
			value += " (" + string(p.parameter) + ")"
		}
		fields = append(fields, Field{Label: "Parameter", Value: value})
	}

	return fields
}

func (p *ATCommandPacket) sealed() {}

func checkFrameID(frameID int) (uint8, error) {
	if frameID < 0 || frameID > 255 {
		return 0, fmt.Errorf("%w: %d is outside 0-255", ErrInvalidFrameID, frameID)
	}
	return uint8(frameID), nil
}
