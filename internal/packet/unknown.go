package packet

// UnknownPacket carries a frame whose type has no model here, typically one
// introduced by newer firmware. The body is kept verbatim.
type UnknownPacket struct {
	frameType FrameType
	body      []byte
}

func NewUnknownPacket(frameType FrameType, body []byte) *UnknownPacket {
	return &UnknownPacket{frameType: frameType, body: cloneBytes(body)}
}

func (p *UnknownPacket) FrameType() FrameType {
	return p.frameType
}

func (p *UnknownPacket) Body() []byte {
	return cloneBytes(p.body)
}

func (p *UnknownPacket) NeedsFrameID() bool {
	return false
}

func (p *UnknownPacket) Fields(_ CommandClassifier) Fields {
	return Fields{{Label: "Data", Value: prettyHex(p.body)}}
}

func (p *UnknownPacket) sealed() {}
