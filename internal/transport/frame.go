package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

const (
	frameDelimiter byte = 0x7E
	escapeByte     byte = 0x7D
	xon            byte = 0x11
	xoff           byte = 0x13
	escapeXOR      byte = 0x20
)

// APIMode selects plain (1) or escaped (2) API framing.
type APIMode int

const (
	APIModeNormal  APIMode = 1
	APIModeEscaped APIMode = 2
)

var (
	ErrChecksumMismatch    = errors.New("frame checksum mismatch")
	ErrUnexpectedDelimiter = errors.New("unexpected frame delimiter inside frame")
)

type readFullFunc func(buf []byte) error

// Checksum returns 0xFF minus the low byte of the sum of frame data bytes.
func Checksum(frameData []byte) byte {
	var sum byte
	for _, b := range frameData {
		sum += b
	}
	return 0xFF - sum
}

func needsEscape(b byte) bool {
	switch b {
	case frameDelimiter, escapeByte, xon, xoff:
		return true
	default:
		return false
	}
}

// encodeFrame wraps frame data (type tag and body) into an API frame.
func encodeFrame(frameData []byte, mode APIMode) ([]byte, error) {
	if len(frameData) == 0 {
		return nil, errors.New("frame data is empty")
	}
	if len(frameData) > math.MaxUint16 {
		return nil, fmt.Errorf("frame data too large: %d", len(frameData))
	}

	raw := make([]byte, 2+len(frameData)+1)
	// #nosec G115 -- length is bounded by math.MaxUint16 above.
	binary.BigEndian.PutUint16(raw[0:2], uint16(len(frameData)))
	copy(raw[2:], frameData)
	raw[len(raw)-1] = Checksum(frameData)

	frame := make([]byte, 0, 1+len(raw))
	frame = append(frame, frameDelimiter)
	if mode != APIModeEscaped {
		return append(frame, raw...), nil
	}
	for _, b := range raw {
		if needsEscape(b) {
			frame = append(frame, escapeByte, b^escapeXOR)
			continue
		}
		frame = append(frame, b)
	}

	return frame, nil
}

// frameReader reads API frames from a byte stream. In escaped mode a
// delimiter inside a frame means the module restarted mid-frame; that
// delimiter is kept as the start of the next frame instead of being skipped.
type frameReader struct {
	mu           sync.Mutex
	atFrameStart bool
}

func (r *frameReader) reset() {
	r.mu.Lock()
	r.atFrameStart = false
	r.mu.Unlock()
}

// read waits for a delimiter with waitFull, then reads the rest of the frame
// with the reader bodyFull returns.
func (r *frameReader) read(mode APIMode, waitFull readFullFunc, bodyFull func() readFullFunc) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.atFrameStart {
		r.atFrameStart = false
	} else if err := resyncToDelimiter(waitFull); err != nil {
		return nil, err
	}

	data, err := readFrameBody(bodyFull(), mode)
	if errors.Is(err, ErrUnexpectedDelimiter) {
		r.atFrameStart = true
	}

	return data, err
}

// readFrame skips bytes until a delimiter, then reads one frame and returns
// its frame data after checksum verification.
func readFrame(readFull readFullFunc, mode APIMode) ([]byte, error) {
	var r frameReader
	return r.read(mode, readFull, func() readFullFunc { return readFull })
}

// readFrameBody reads length, frame data and checksum following a delimiter.
func readFrameBody(readFull readFullFunc, mode APIMode) ([]byte, error) {
	readByte := frameByteReader(readFull, mode)

	var lenBuf [2]byte
	for i := range lenBuf {
		b, err := readByte()
		if err != nil {
			return nil, fmt.Errorf("read frame length: %w", err)
		}
		lenBuf[i] = b
	}
	ln := int(binary.BigEndian.Uint16(lenBuf[:]))
	if ln <= 0 {
		return nil, fmt.Errorf("invalid frame length: %d", ln)
	}

	data := make([]byte, ln)
	for i := range data {
		b, err := readByte()
		if err != nil {
			return nil, fmt.Errorf("read frame data: %w", err)
		}
		data[i] = b
	}

	checksum, err := readByte()
	if err != nil {
		return nil, fmt.Errorf("read frame checksum: %w", err)
	}
	if want := Checksum(data); checksum != want {
		return nil, fmt.Errorf("%w: got 0x%02X want 0x%02X", ErrChecksumMismatch, checksum, want)
	}

	return data, nil
}

func frameByteReader(readFull readFullFunc, mode APIMode) func() (byte, error) {
	buf := make([]byte, 1)
	return func() (byte, error) {
		if err := readFull(buf); err != nil {
			return 0, err
		}
		if mode != APIModeEscaped {
			return buf[0], nil
		}
		switch buf[0] {
		case frameDelimiter:
			return 0, ErrUnexpectedDelimiter
		case escapeByte:
			if err := readFull(buf); err != nil {
				return 0, err
			}
			return buf[0] ^ escapeXOR, nil
		default:
			return buf[0], nil
		}
	}
}

func resyncToDelimiter(readFull readFullFunc) error {
	buf := make([]byte, 1)
	for {
		if err := readFull(buf); err != nil {
			return fmt.Errorf("read frame delimiter: %w", err)
		}
		if buf[0] == frameDelimiter {
			return nil
		}
	}
}

func ioReadFullFunc(r io.Reader) readFullFunc {
	return func(buf []byte) error {
		_, err := io.ReadFull(r, buf)

		return err
	}
}
