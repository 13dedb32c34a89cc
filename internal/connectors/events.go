package connectors

import (
	"log/slog"
	"time"

	"github.com/kscape/xbee-go/internal/packet"
)

// ConnectionState describes the link lifecycle published by the radio service.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnStatus is a bus event snapshot of the current link status.
type ConnStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	Timestamp     time.Time
}

// Direction tells whether a frame was read from or written to the module.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// RawFrame carries frame data diagnostics for debug output.
type RawFrame struct {
	Direction Direction
	Hex       string
	Len       int
	At        time.Time
}

// PacketEvent is a packet together with its field breakdown. Data is the
// frame data as read or written. When the frame could not be decoded, Packet
// and Fields are empty and Err says why.
type PacketEvent struct {
	Direction Direction
	Packet    packet.Payload
	Fields    packet.Fields
	Data      []byte
	Err       error
	At        time.Time
}

// FrameType reports the decoded packet's type, falling back to the tag byte
// of undecodable frame data.
func (e PacketEvent) FrameType() (packet.FrameType, bool) {
	switch {
	case e.Packet != nil:
		return e.Packet.FrameType(), true
	case len(e.Data) > 0:
		return packet.FrameType(e.Data[0]), true
	default:
		return 0, false
	}
}

func (s ConnStatus) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("state", string(s.State)),
		slog.String("transport", s.TransportName),
	}
	if s.Target != "" {
		attrs = append(attrs, slog.String("target", s.Target))
	}
	if s.Err != "" {
		attrs = append(attrs, slog.String("error", s.Err))
	}

	return slog.GroupValue(attrs...)
}

func (f RawFrame) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("direction", string(f.Direction)),
		slog.Int("len", f.Len),
	)
}

func (e PacketEvent) LogValue() slog.Value {
	frameType := "<nil>"
	if ft, ok := e.FrameType(); ok {
		frameType = ft.String()
	}

	attrs := []slog.Attr{
		slog.String("direction", string(e.Direction)),
		slog.String("frame_type", frameType),
		slog.Int("fields", len(e.Fields)),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}

	return slog.GroupValue(attrs...)
}
