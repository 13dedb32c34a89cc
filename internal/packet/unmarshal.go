package packet

import "fmt"

// Unmarshal decodes frame data (tag byte followed by the body) into its
// variant. Tags without a model decode to *UnknownPacket.
func Unmarshal(data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame data", ErrTruncated)
	}
	frameType := FrameType(data[0])
	body := data[1:]

	var (
		p   Payload
		err error
	)
	switch frameType {
	case FrameTypeATCommand:
		p, err = ParseATCommandPacket(body)
	case FrameTypeRX64:
		p, err = ParseRX64Packet(body)
	case FrameTypeATCommandResponse:
		p, err = ParseATCommandResponsePacket(body)
	default:
		return NewUnknownPacket(frameType, body), nil
	}
	if err != nil {
		// Never hand out a typed nil pointer as a non-nil Payload.
		return nil, err
	}

	return p, nil
}
