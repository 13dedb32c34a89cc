// Package radio runs the link to an XBee module: connection lifecycle,
// outbound AT commands and decoding of inbound frames.
package radio

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kscape/xbee-go/internal/bus"
	"github.com/kscape/xbee-go/internal/connectors"
	"github.com/kscape/xbee-go/internal/metrics"
	"github.com/kscape/xbee-go/internal/packet"
	"github.com/kscape/xbee-go/internal/transport"
)

const (
	maxBackoff   = 15 * time.Second
	readTimeout  = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// SendResult reports the packet written to the module.
type SendResult struct {
	Packet  packet.Payload
	FrameID uint8
	Err     error
}

type sendRequest struct {
	build  func(frameID uint8) (packet.Payload, error)
	result chan SendResult
}

// Options tune a Service. The zero value is usable.
type Options struct {
	// ProbeCommand is sent as an AT query after every successful connect.
	ProbeCommand string
	Classifier   packet.CommandClassifier
	Metrics      *metrics.RadioMetrics
}

type Service struct {
	logger    *slog.Logger
	transport transport.Transport
	bus       bus.MessageBus
	opts      Options
	frameIDs  frameIDSequence
	outbox    chan sendRequest
}

func NewService(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, opts Options) *Service {
	return &Service{
		logger:    logger,
		transport: tr,
		bus:       b,
		opts:      opts,
		outbox:    make(chan sendRequest, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.runOutbox(ctx)
	go s.runConnector(ctx)
}

// SendATCommand queues a two-character AT command for the local module. A
// nil parameter sends a query. The frame ID is allocated when the packet is written.
func (s *Service) SendATCommand(command string, parameter []byte) <-chan SendResult {
	command = strings.TrimSpace(command)
	if command == "" {
		return failedResult(fmt.Errorf("%w: command is required", packet.ErrInvalidCommand))
	}
	// The module reads exactly two command bytes; anything else would shift
	// the parameter.
	if len(command) != 2 {
		return failedResult(fmt.Errorf("%w: %q must be two characters", packet.ErrInvalidCommand, command))
	}
	parameter = append([]byte(nil), parameter...)
	if len(parameter) == 0 {
		parameter = nil
	}

	return s.enqueue(func(frameID uint8) (packet.Payload, error) {
		return packet.NewATCommandPacket(int(frameID), command, parameter)
	})
}

// Send queues a prebuilt packet as is.
func (s *Service) Send(p packet.Payload) <-chan SendResult {
	if p == nil {
		return failedResult(errors.New("packet is nil"))
	}

	return s.enqueue(func(uint8) (packet.Payload, error) {
		return p, nil
	})
}

func (s *Service) enqueue(build func(frameID uint8) (packet.Payload, error)) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	s.outbox <- sendRequest{build: build, result: resCh}
	return resCh
}

func failedResult(err error) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	resCh <- SendResult{Err: err}
	close(resCh)
	return resCh
}

func (s *Service) runConnector(ctx context.Context) {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		s.publishConnStatus(connectors.ConnectionStateConnecting, nil)
		err := s.transport.Connect(ctx)
		s.opts.Metrics.Connect(err)
		if err != nil {
			s.publishConnStatus(connectors.ConnectionStateReconnecting, err)
			s.logger.Error("transport connect failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = time.Second
		s.publishConnStatus(connectors.ConnectionStateConnected, nil)
		if err := s.sendProbe(ctx); err != nil {
			s.logger.Warn("probe command failed", "command", s.opts.ProbeCommand, "error", err)
		}

		err = s.runReader(ctx)
		_ = s.transport.Close()
		if ctx.Err() != nil {
			s.publishConnStatus(connectors.ConnectionStateDisconnected, nil)
			return
		}
		s.publishConnStatus(connectors.ConnectionStateReconnecting, err)

		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Service) runReader(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		frameData, err := s.transport.ReadFrame(readCtx)
		cancel()
		if err != nil {
			if transport.IsTimeout(err) && ctx.Err() == nil {
				continue
			}
			s.opts.Metrics.ReadError()
			if errors.Is(err, transport.ErrChecksumMismatch) || errors.Is(err, transport.ErrUnexpectedDelimiter) {
				s.logger.Warn("dropping corrupted frame", "error", err)
				continue
			}
			return err
		}
		if len(frameData) == 0 {
			continue
		}

		now := time.Now()
		s.bus.Publish(connectors.TopicRawFrameIn, rawFrame(connectors.DirectionIn, frameData, now))
		s.opts.Metrics.FrameIn(frameTypeLabel(frameData[0]))

		p, err := packet.Unmarshal(frameData)
		if err != nil {
			s.opts.Metrics.DecodeError()
			s.logger.Warn("decode frame failed", "frame_type", packet.FrameType(frameData[0]).String(), "error", err)
			s.bus.Publish(connectors.TopicPacketIn, connectors.PacketEvent{
				Direction: connectors.DirectionIn,
				Data:      frameData,
				Err:       err,
				At:        now,
			})
			continue
		}
		s.bus.Publish(connectors.TopicPacketIn, connectors.PacketEvent{
			Direction: connectors.DirectionIn,
			Packet:    p,
			Fields:    p.Fields(s.opts.Classifier),
			Data:      frameData,
			At:        now,
		})
	}
}

func (s *Service) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.outbox:
			res := s.handleSend(ctx, req)
			req.result <- res
			close(req.result)
		}
	}
}

func (s *Service) handleSend(ctx context.Context, req sendRequest) SendResult {
	p, err := req.build(s.frameIDs.Next())
	if err != nil {
		return SendResult{Err: fmt.Errorf("build outgoing packet: %w", err)}
	}
	if err := s.write(ctx, p); err != nil {
		return SendResult{Err: fmt.Errorf("send outgoing frame: %w", err)}
	}

	res := SendResult{Packet: p}
	if at, ok := p.(*packet.ATCommandPacket); ok {
		res.FrameID = at.FrameID()
	}
	return res
}

func (s *Service) sendProbe(ctx context.Context) error {
	command := strings.TrimSpace(s.opts.ProbeCommand)
	if command == "" {
		return nil
	}
	p, err := packet.NewATCommandPacket(int(s.frameIDs.Next()), command, nil)
	if err != nil {
		return err
	}

	return s.write(ctx, p)
}

func (s *Service) write(ctx context.Context, p packet.Payload) error {
	frameData := packet.Marshal(p)
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := s.transport.WriteFrame(writeCtx, frameData); err != nil {
		return err
	}

	now := time.Now()
	s.opts.Metrics.FrameOut(frameTypeLabel(frameData[0]))
	s.bus.Publish(connectors.TopicRawFrameOut, rawFrame(connectors.DirectionOut, frameData, now))
	s.bus.Publish(connectors.TopicPacketOut, connectors.PacketEvent{
		Direction: connectors.DirectionOut,
		Packet:    p,
		Fields:    p.Fields(s.opts.Classifier),
		Data:      frameData,
		At:        now,
	})
	return nil
}

func (s *Service) publishConnStatus(state connectors.ConnectionState, err error) {
	status := connectors.ConnStatus{
		State:         state,
		TransportName: s.transport.Name(),
		Timestamp:     time.Now(),
	}
	if resolver, ok := s.transport.(transport.StatusTargetResolver); ok {
		status.Target = resolver.StatusTarget()
	}
	if err != nil {
		status.Err = err.Error()
	}
	s.bus.Publish(connectors.TopicConnStatus, status)
}

func rawFrame(dir connectors.Direction, frameData []byte, at time.Time) connectors.RawFrame {
	return connectors.RawFrame{
		Direction: dir,
		Hex:       strings.ToUpper(hex.EncodeToString(frameData)),
		Len:       len(frameData),
		At:        at,
	}
}

func frameTypeLabel(tag byte) string {
	return fmt.Sprintf("0x%02X", tag)
}

func nextBackoff(d time.Duration) time.Duration {
	if d < maxBackoff {
		return d * 2
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
