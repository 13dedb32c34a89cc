package packet

import "errors"

var (
	ErrInvalidCommand        = errors.New("invalid AT command")
	ErrInvalidFrameID        = errors.New("invalid frame ID")
	ErrInvalidAddress        = errors.New("invalid source address")
	ErrInvalidSignalStrength = errors.New("invalid signal strength")
	ErrInvalidReceiveOptions = errors.New("invalid receive options")
	ErrTruncated             = errors.New("packet body truncated")
)
