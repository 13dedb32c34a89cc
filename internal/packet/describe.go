package packet

import (
	"encoding/hex"
	"strings"
)

// prettyHex renders bytes as space separated upper-case pairs: "0A 1B 2C".
func prettyHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	raw := strings.ToUpper(hex.EncodeToString(b))
	var sb strings.Builder
	sb.Grow(len(raw) + len(b) - 1)
	for i := 0; i < len(raw); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(raw[i : i+2])
	}
	return sb.String()
}

func prettyByte(b byte) string {
	return prettyHex([]byte{b})
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
