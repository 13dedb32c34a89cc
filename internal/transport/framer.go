package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotConnected is returned by frame I/O on a transport that is not open.
var ErrNotConnected = errors.New("transport is not connected")

// frameBodyTimeout bounds the rest of a frame once its delimiter arrived,
// independent of the caller's deadline for waiting.
const frameBodyTimeout = 5 * time.Second

// byteSource binds raw reads of a link to ctx.
type byteSource func(ctx context.Context) readFullFunc

// framer is the envelope handling shared by every transport. Writes are
// serialized so two frames never interleave on the wire.
type framer struct {
	link    string
	mode    APIMode
	reader  frameReader
	writeMu sync.Mutex
}

// readFrame waits for a frame until ctx is done. A frame that has started
// is read to the end even if ctx's deadline passes meanwhile.
func (f *framer) readFrame(ctx context.Context, source byteSource) ([]byte, error) {
	release := func() {}
	defer func() { release() }()
	body := func() readFullFunc {
		var bodyCtx context.Context
		bodyCtx, release = frameBodyContext(ctx)
		return source(bodyCtx)
	}

	frameData, err := f.reader.read(f.mode, source(ctx), body)
	if err != nil {
		return nil, err
	}
	transportLogger(f.link).Debug("read frame", "data_len", len(frameData))

	return frameData, nil
}

func (f *framer) writeFrame(frameData []byte, write func(frame []byte) error) error {
	frame, err := encodeFrame(frameData, f.mode)
	if err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := write(frame); err != nil {
		transportLogger(f.link).Warn("write frame failed", "data_len", len(frameData), "error", err)
		return fmt.Errorf("write frame: %w", err)
	}
	transportLogger(f.link).Debug("write frame", "data_len", len(frameData), "frame_len", len(frame))

	return nil
}

// frameBodyContext drops ctx's deadline in favour of frameBodyTimeout but
// keeps its cancellation.
func frameBodyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	bodyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), frameBodyTimeout)
	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.Canceled) {
			cancel()
		}
	})

	return bodyCtx, func() {
		stop()
		cancel()
	}
}
