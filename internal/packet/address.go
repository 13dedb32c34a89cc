package packet

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address64 is the long-form hardware address of a radio module.
type Address64 [8]byte

var (
	AddressCoordinator = Address64{}
	AddressBroadcast   = Address64{0, 0, 0, 0, 0, 0, 0xFF, 0xFF}
	AddressUnknown     = Address64{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
)

// ParseAddress64 accepts 16 hex digits, optionally prefixed with 0x and
// grouped with spaces, colons or dashes.
func ParseAddress64(raw string) (Address64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	if len(s) != 16 {
		return Address64{}, fmt.Errorf("%w: %q is not 16 hex digits", ErrInvalidAddress, raw)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address64{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
	}

	var a Address64
	copy(a[:], b)
	return a, nil
}

// Address64FromBytes copies exactly 8 bytes into an address.
func Address64FromBytes(b []byte) (Address64, error) {
	if len(b) != 8 {
		return Address64{}, fmt.Errorf("%w: need 8 bytes, got %d", ErrInvalidAddress, len(b))
	}
	var a Address64
	copy(a[:], b)
	return a, nil
}

func (a Address64) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

func (a Address64) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}
