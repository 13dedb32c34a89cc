package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.bug.st/serial"
)

// serialPollInterval bounds how long a single port read blocks, which is how
// often ReadFrame notices ctx cancellation.
const serialPollInterval = 300 * time.Millisecond

// SerialTransport talks to a module attached to a local serial port, 8N1.
type SerialTransport struct {
	framer
	portName string
	baudRate int

	mu   sync.Mutex
	port serial.Port
}

func NewSerialTransport(portName string, baudRate int, mode APIMode) *SerialTransport {
	return &SerialTransport{
		framer:   framer{link: "serial", mode: mode},
		portName: portName,
		baudRate: baudRate,
	}
}

// ListPorts returns the serial devices present on this machine, sorted.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)

	return ports, nil
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) StatusTarget() string {
	if t.portName == "" {
		return ""
	}

	return fmt.Sprintf("%s@%d", t.portName, t.baudRate)
}

func (t *SerialTransport) Connected() bool {
	_, err := t.currentPort()
	return err == nil
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case t.portName == "":
		return errors.New("serial port is empty")
	case t.baudRate <= 0:
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	logger := transportLogger("serial", "port", t.portName, "baud", t.baudRate)

	port, err := serial.Open(t.portName, &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		logger.Warn("open failed", "error", err)
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := prepareModulePort(port); err != nil {
		_ = port.Close()
		return err
	}
	t.port = port
	t.reader.reset()
	logger.Info("connected", "api_mode", int(t.mode))

	return nil
}

// prepareModulePort drops bytes buffered before we opened the port, since they
// could hold half a frame, and raises DTR and RTS: DTR keeps a pin-sleep
// module awake and RTS lets it send when hardware flow control is on.
func prepareModulePort(port serial.Port) error {
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset serial input buffer: %w", err)
	}
	if err := port.SetDTR(true); err != nil {
		return fmt.Errorf("set DTR: %w", err)
	}
	if err := port.SetRTS(true); err != nil {
		return fmt.Errorf("set RTS: %w", err)
	}

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()
	if port == nil {
		return nil
	}

	if err := port.Close(); err != nil {
		return fmt.Errorf("close serial port %q: %w", t.portName, err)
	}
	transportLogger("serial", "port", t.portName).Info("closed")

	return nil
}

func (t *SerialTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	port, err := t.currentPort()
	if err != nil {
		return nil, err
	}

	return t.readFrame(ctx, func(ctx context.Context) readFullFunc {
		return func(buf []byte) error { return readFull(ctx, port, buf) }
	})
}

func (t *SerialTransport) WriteFrame(ctx context.Context, frameData []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	return t.writeFrame(frameData, func(frame []byte) error {
		if err := writeFull(ctx, port, frame); err != nil {
			return err
		}
		// Drain so the write deadline covers the bytes actually leaving the UART.
		return port.Drain()
	})
}

func (t *SerialTransport) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}

	return t.port, nil
}

// readFull keeps reading through poll timeouts (n == 0) until buf is full or
// ctx is done.
func readFull(ctx context.Context, r io.Reader, buf []byte) error {
	for read := 0; read < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}

	return nil
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	for written := 0; written < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}

	return nil
}
