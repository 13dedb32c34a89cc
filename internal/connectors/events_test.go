package connectors

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/kscape/xbee-go/internal/packet"
)

func render(t *testing.T, v any) string {
	t.Helper()
	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("msg", "ev", v)
	return buf.String()
}

func TestPacketEventLogValue(t *testing.T) {
	p, err := packet.NewATCommandPacket(1, "NI", nil)
	if err != nil {
		t.Fatalf("new packet: %v", err)
	}
	out := render(t, PacketEvent{Direction: DirectionOut, Packet: p, Fields: p.Fields(nil)})

	for _, want := range []string{"ev.direction=out", "ev.frame_type=", "ev.fields=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if out := render(t, PacketEvent{Direction: DirectionIn}); !strings.Contains(out, "ev.frame_type=<nil>") {
		t.Fatalf("expected nil frame type, got %q", out)
	}
}

func TestConnStatusLogValueOmitsEmptyAttrs(t *testing.T) {
	out := render(t, ConnStatus{State: ConnectionStateConnected, TransportName: "serial"})
	if !strings.Contains(out, "ev.state=connected") || !strings.Contains(out, "ev.transport=serial") {
		t.Fatalf("unexpected rendering: %q", out)
	}
	if strings.Contains(out, "ev.error") || strings.Contains(out, "ev.target") {
		t.Fatalf("empty attrs must be omitted: %q", out)
	}

	out = render(t, ConnStatus{State: ConnectionStateReconnecting, TransportName: "ip", Err: "refused"})
	if !strings.Contains(out, "ev.error=refused") {
		t.Fatalf("expected error attr: %q", out)
	}
}

func TestPacketEventLogValueForUndecodableFrame(t *testing.T) {
	ev := PacketEvent{
		Direction: DirectionIn,
		Data:      []byte{0x80, 0x01},
		Err:       packet.ErrTruncated,
	}

	ft, ok := ev.FrameType()
	if !ok || ft != packet.FrameTypeRX64 {
		t.Fatalf("expected frame type from the tag byte, got %v %v", ft, ok)
	}
	out := render(t, ev)
	for _, want := range []string{"ev.frame_type=" + packet.FrameTypeRX64.String(), "ev.fields=0", "ev.error="} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if out := render(t, PacketEvent{Direction: DirectionIn}); strings.Contains(out, "ev.error") {
		t.Fatalf("error attr must be omitted without an error: %q", out)
	}
}
