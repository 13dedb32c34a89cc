package connectors

const (
	TopicConnStatus  = "conn.status"
	TopicPacketIn    = "packet.in"
	TopicPacketOut   = "packet.out"
	TopicRawFrameIn  = "raw.frame.in"
	TopicRawFrameOut = "raw.frame.out"
)
