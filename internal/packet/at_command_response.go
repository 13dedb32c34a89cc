package packet

import (
	"fmt"
	"strconv"
)

// ATCommandStatus is the result code the module reports for an AT command.
type ATCommandStatus uint8

const (
	ATCommandStatusOK               ATCommandStatus = 0x00
	ATCommandStatusError            ATCommandStatus = 0x01
	ATCommandStatusInvalidCommand   ATCommandStatus = 0x02
	ATCommandStatusInvalidParameter ATCommandStatus = 0x03
	ATCommandStatusTxFailure        ATCommandStatus = 0x04
)

var atCommandStatusNames = map[ATCommandStatus]string{
	ATCommandStatusOK:               "OK",
	ATCommandStatusError:            "ERROR",
	ATCommandStatusInvalidCommand:   "Invalid command",
	ATCommandStatusInvalidParameter: "Invalid parameter",
	ATCommandStatusTxFailure:        "Tx failure",
}

func (s ATCommandStatus) String() string {
	if name, ok := atCommandStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(s))
}

// ATCommandResponsePacket is the module's answer to an ATCommandPacket,
// matched to the request by frame ID.
type ATCommandResponsePacket struct {
	frameID uint8
	command string
	status  ATCommandStatus
	value   []byte
}

func NewATCommandResponsePacket(frameID int, command string, status ATCommandStatus, value []byte) (*ATCommandResponsePacket, error) {
	if len(command) != 2 {
		return nil, fmt.Errorf("%w: response command %q must be two characters", ErrInvalidCommand, command)
	}
	id, err := checkFrameID(frameID)
	if err != nil {
		return nil, err
	}

	return &ATCommandResponsePacket{
		frameID: id,
		command: command,
		status:  status,
		value:   cloneBytes(value),
	}, nil
}

// ParseATCommandResponsePacket decodes a response body: frame ID, two
// command bytes, status, then the optional register value.
func ParseATCommandResponsePacket(body []byte) (*ATCommandResponsePacket, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("%w: AT command response needs 4 bytes, got %d", ErrTruncated, len(body))
	}
	var value []byte
	if len(body) > 4 {
		value = body[4:]
	}

	return NewATCommandResponsePacket(int(body[0]), string(body[1:3]), ATCommandStatus(body[3]), value)
}

func (p *ATCommandResponsePacket) FrameType() FrameType {
	return FrameTypeATCommandResponse
}

func (p *ATCommandResponsePacket) Body() []byte {
	body := make([]byte, 0, 4+len(p.value))
	body = append(body, p.frameID)
	body = append(body, p.command...)
	body = append(body, uint8(p.status))
	return append(body, p.value...)
}

func (p *ATCommandResponsePacket) NeedsFrameID() bool {
	return true
}

func (p *ATCommandResponsePacket) FrameID() uint8 {
	return p.frameID
}

func (p *ATCommandResponsePacket) Command() string {
	return p.command
}

func (p *ATCommandResponsePacket) Status() ATCommandStatus {
	return p.status
}

// Value returns a copy of the register value, nil for set acknowledgements.
func (p *ATCommandResponsePacket) Value() []byte {
	return cloneBytes(p.value)
}

func (p *ATCommandResponsePacket) Fields(c CommandClassifier) Fields {
	fields := Fields{
		{Label: "Frame ID", Value: prettyByte(p.frameID) + " (" + strconv.Itoa(int(p.frameID)) + ")"},
		{Label: "AT Command", Value: prettyHex([]byte(p.command)) + " (" + p.command + ")"},
		{Label: "Status", Value: prettyByte(uint8(p.status)) + " (" + p.status.String() + ")"},
	}
	if len(p.value) > 0 {
		value := prettyHex(p.value)
		if isStringValued(c, p.command) {
			value += " (" + string(p.value) + ")"
		}
		fields = append(fields, Field{Label: "Response", Value: value})
	}

	return fields
}

func (p *ATCommandResponsePacket) sealed() {}
