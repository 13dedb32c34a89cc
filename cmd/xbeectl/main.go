package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kscape/xbee-go/internal/app"
	"github.com/kscape/xbee-go/internal/atcmd"
	"github.com/kscape/xbee-go/internal/bus"
	"github.com/kscape/xbee-go/internal/config"
	"github.com/kscape/xbee-go/internal/connectors"
	"github.com/kscape/xbee-go/internal/domain"
	"github.com/kscape/xbee-go/internal/logging"
	"github.com/kscape/xbee-go/internal/metrics"
	"github.com/kscape/xbee-go/internal/packet"
	"github.com/kscape/xbee-go/internal/persistence"
	"github.com/kscape/xbee-go/internal/platform"
	"github.com/kscape/xbee-go/internal/radio"
	"github.com/kscape/xbee-go/internal/transport"
)

const (
	connectTimeout      = 30 * time.Second
	sendTimeout         = 10 * time.Second
	responseTimeout     = 5 * time.Second
	journalFlushTimeout = 5 * time.Second
	maxHexPreviewLen    = 64
)

var errBothParams = errors.New("-param and -param-hex are mutually exclusive")

type options struct {
	dataDir     string
	connector   string
	port        string
	baud        int
	host        string
	tcpPort     int
	apiMode     int
	command     string
	param       string
	paramHex    string
	listenFor   time.Duration
	metricsAddr string
	noJournal   bool
	debug       bool
	version     bool
	listPorts   bool
}

func main() {
	if err := run(); err != nil {
		slog.Error("run xbeectl", "error", err)
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.StringVar(&o.dataDir, "data-dir", "", "directory for config, journal and log (default: user config dir)")
	fs.StringVar(&o.connector, "connector", "", "connector type: serial or ip")
	fs.StringVar(&o.port, "port", "", "serial port, e.g. /dev/ttyUSB0 or COM3")
	fs.IntVar(&o.baud, "baud", 0, "serial baud rate")
	fs.StringVar(&o.host, "host", "", "ip/hostname of a serial-to-network bridge")
	fs.IntVar(&o.tcpPort, "tcp-port", 0, "tcp port of the bridge")
	fs.IntVar(&o.apiMode, "api-mode", 0, "API mode: 1 (plain) or 2 (escaped)")
	fs.StringVar(&o.command, "at", "", "AT command to send, e.g. NI")
	fs.StringVar(&o.param, "param", "", "AT command parameter as text")
	fs.StringVar(&o.paramHex, "param-hex", "", "AT command parameter as hex bytes")
	fs.DurationVar(&o.listenFor, "listen-for", 0, "listen duration, e.g. 30s (0 listens until interrupt)")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9108")
	fs.BoolVar(&o.noJournal, "no-journal", false, "do not record frames in the sqlite journal")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	fs.BoolVar(&o.listPorts, "list-ports", false, "print available serial ports and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.param != "" && o.paramHex != "" {
		return options{}, errBothParams
	}

	return o, nil
}

// applyOverrides copies non-zero flag values over the loaded config.
func applyOverrides(cfg *config.AppConfig, o options) {
	if v := strings.TrimSpace(o.connector); v != "" {
		cfg.Connection.Connector = config.ConnectorType(strings.ToLower(v))
	}
	if v := strings.TrimSpace(o.port); v != "" {
		cfg.Connection.SerialPort = v
	}
	if o.baud > 0 {
		cfg.Connection.SerialBaud = o.baud
	}
	if v := strings.TrimSpace(o.host); v != "" {
		cfg.Connection.Host = v
	}
	if o.tcpPort > 0 {
		cfg.Connection.Port = o.tcpPort
	}
	if o.apiMode != 0 {
		cfg.Connection.APIMode = o.apiMode
	}
	if v := strings.TrimSpace(o.metricsAddr); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if o.noJournal {
		cfg.Journal.Enabled = false
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
}

func parseParameter(text, hexParam string) ([]byte, error) {
	if text != "" {
		return []byte(text), nil
	}
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(strings.TrimSpace(hexParam))
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	if cleaned == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode -param-hex: %w", err)
	}

	return b, nil
}

func run() error {
	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	if o.version {
		fmt.Println(app.CurrentBuildInfo())
		return nil
	}
	if o.listPorts {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		for _, port := range ports {
			fmt.Println(port)
		}
		return nil
	}
	param, err := parseParameter(o.param, o.paramHex)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var paths app.Paths
	if o.dataDir != "" {
		paths, err = app.ResolvePathsIn(o.dataDir)
	} else {
		paths, err = app.ResolvePaths()
	}
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg, o)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("cli")
	logger.Info("starting xbeectl", "version", app.BuildVersion(), "build_date", app.BuildDateYMD())

	b := bus.New(logMgr.Logger("bus"), 0)
	defer b.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	guard := &linkGuard{logger: logger}
	if err := guard.swap(connectionTarget(cfg.Connection)); err != nil {
		return err
	}
	defer guard.release()

	tr, err := app.NewConnectionTransport(cfg.Connection)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	reloadOnHangup(ctx, logger, paths.ConfigFile, o, tr, guard)

	reg := metrics.NewRegistry()
	radioMetrics := metrics.NewRadioMetrics(reg)
	if cfg.Metrics.ListenAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.Metrics.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Journal.Enabled {
		closeJournal, err := startJournal(ctx, logMgr, b, paths.DBFile, cfg)
		if err != nil {
			return err
		}
		defer closeJournal()
	}

	classifier := atcmd.NewTable()
	watch(ctx, b, logger)
	nodes := domain.NewNodeStore()
	nodes.Start(ctx, b)
	defer logHeardNodes(logger, nodes)

	command := strings.TrimSpace(o.command)
	var cw *commandWatch
	if command != "" {
		// Subscribed before the radio starts so the first connect is seen.
		cw = watchCommand(b)
		defer cw.close()
	}

	radioSvc := radio.NewService(logMgr.Logger("radio"), b, tr, radio.Options{
		ProbeCommand: cfg.Connection.ProbeCommand,
		Classifier:   classifier,
		Metrics:      radioMetrics,
	})
	radioSvc.Start(ctx)
	logger.Info("radio started", "transport", tr.Name(), "target", connectionTarget(cfg.Connection))

	if cw != nil {
		err := cw.run(ctx, logger, radioSvc, classifier, command, param)
		cw.close()
		if err != nil {
			return err
		}
		if o.listenFor == 0 {
			return nil
		}
	}

	if o.listenFor > 0 {
		logger.Info("listen mode", "duration", o.listenFor)
		select {
		case <-ctx.Done():
		case <-time.After(o.listenFor):
		}
		return nil
	}

	logger.Info("listening until interrupt")
	<-ctx.Done()

	return nil
}

func startJournal(ctx context.Context, logMgr *logging.Manager, b bus.MessageBus, path string, cfg config.AppConfig) (func(), error) {
	logger := logMgr.Logger("journal")
	db, err := persistence.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := persistence.NewFrameRepo(db)
	session := persistence.Session{
		ID:        uuid.NewString(),
		Transport: app.TransportNameFromConnector(cfg.Connection.Connector),
		Target:    connectionTarget(cfg.Connection),
		StartedAt: time.Now(),
	}
	if err := repo.StartSession(ctx, session); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("start journal session: %w", err)
	}
	logger.Info("journal session started", "session_id", session.ID, "path", path)

	journal := persistence.StartJournal(ctx, b, repo, persistence.JournalOptions{
		SessionID: session.ID,
		Retain:    cfg.Journal.RetainFrames,
		Logger:    logger,
	})

	return func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), journalFlushTimeout)
		if err := journal.Close(flushCtx); err != nil {
			logger.Warn("flush journal", "error", err)
		}
		flushCancel()
		if n, err := repo.CountBySession(context.Background(), session.ID); err == nil {
			logger.Info("journal session closed", "session_id", session.ID, "frames", n)
		}
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("close sqlite", "error", closeErr)
		}
	}, nil
}

// commandWatch holds the subscription read by the -at flow. It must not
// outlive it: an unread subscription fills up and stalls every publisher.
type commandWatch struct {
	b         bus.MessageBus
	sub       bus.Subscription
	closeOnce sync.Once
}

func watchCommand(b bus.MessageBus) *commandWatch {
	return &commandWatch{
		b:   b,
		sub: b.Subscribe(connectors.TopicConnStatus, connectors.TopicPacketIn),
	}
}

func (w *commandWatch) run(ctx context.Context, logger *slog.Logger, svc *radio.Service, classifier packet.CommandClassifier, command string, param []byte) error {
	if err := waitForConnected(ctx, w.sub, connectTimeout); err != nil {
		return err
	}
	res, err := sendCommand(ctx, logger, svc, classifier, command, param)
	if err != nil {
		return err
	}
	resp, err := awaitResponse(ctx, w.sub, res.FrameID, responseTimeout)
	if err != nil {
		logger.Warn("no command response", "command", command, "error", err)
		return nil
	}
	if resp.Status() != packet.ATCommandStatusOK {
		logger.Warn("command rejected", "command", resp.Command(), "status", resp.Status().String())
	}

	return nil
}

func (w *commandWatch) close() {
	w.closeOnce.Do(func() { w.b.Unsubscribe(w.sub) })
}

func waitForConnected(ctx context.Context, connSub bus.Subscription, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if lastErr != "" {
				return fmt.Errorf("radio not connected after %s: %s", timeout, lastErr)
			}
			return fmt.Errorf("radio not connected after %s", timeout)
		case raw, ok := <-connSub:
			if !ok {
				return errors.New("bus closed while waiting for connection")
			}
			status, ok := raw.(connectors.ConnStatus)
			if !ok {
				continue
			}
			if status.State == connectors.ConnectionStateConnected {
				return nil
			}
			if status.Err != "" {
				lastErr = status.Err
			}
		}
	}
}

func sendCommand(ctx context.Context, logger *slog.Logger, svc *radio.Service, classifier packet.CommandClassifier, command string, param []byte) (radio.SendResult, error) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	select {
	case <-sendCtx.Done():
		return radio.SendResult{}, fmt.Errorf("send %s: %w", command, sendCtx.Err())
	case res := <-svc.SendATCommand(strings.ToUpper(command), param):
		if res.Err != nil {
			return res, fmt.Errorf("send %s: %w", command, res.Err)
		}
		logger.Info("sent", fieldAttrs(res.Packet, res.Packet.Fields(classifier))...)
		return res, nil
	}
}

// awaitResponse waits for the AT command response frame carrying frameID.
// The response fields themselves are logged by watch.
func awaitResponse(ctx context.Context, packetSub bus.Subscription, frameID uint8, timeout time.Duration) (*packet.ATCommandResponsePacket, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("no response for frame id %d after %s", frameID, timeout)
		case raw, ok := <-packetSub:
			if !ok {
				return nil, errors.New("bus closed while waiting for response")
			}
			ev, ok := raw.(connectors.PacketEvent)
			if !ok {
				continue
			}
			if resp, ok := ev.Packet.(*packet.ATCommandResponsePacket); ok && resp.FrameID() == frameID {
				return resp, nil
			}
		}
	}
}

func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger) {
	sub := b.Subscribe(
		connectors.TopicConnStatus,
		connectors.TopicPacketIn,
		connectors.TopicRawFrameIn,
		connectors.TopicRawFrameOut,
	)

	go func() {
		defer b.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				switch ev := raw.(type) {
				case connectors.ConnStatus:
					logger.Info("conn", "state", ev.State, "transport", ev.TransportName, "target", ev.Target, "error", ev.Err)
				case connectors.PacketEvent:
					if ev.Err != nil {
						logger.Warn("received undecodable frame", "data", ev.Data, "error", ev.Err)
						continue
					}
					logger.Info("received", fieldAttrs(ev.Packet, ev.Fields)...)
				case connectors.RawFrame:
					logger.Debug("raw-"+string(ev.Direction), "len", ev.Len, "hex", previewHex(ev.Hex))
				}
			}
		}
	}()
}

// linkGuard holds the lock on the link currently in use.
type linkGuard struct {
	logger *slog.Logger
	mu     sync.Mutex
	target string
	lock   platform.LinkLock
}

// swap locks target before releasing the previous link, so a busy target
// leaves the current lock in place.
func (g *linkGuard) swap(target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lock != nil && platform.SameLink(g.target, target) {
		g.target = target
		return nil
	}

	next, err := platform.AcquireLinkLock(target)
	switch {
	case errors.Is(err, platform.ErrLinkLockUnsupported):
		g.logger.Warn("link lock unavailable, continuing without it", "error", err)
	case err != nil:
		return fmt.Errorf("lock %s: %w", target, err)
	}
	g.releaseLocked()
	g.target, g.lock = target, next

	return nil
}

func (g *linkGuard) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked()
}

func (g *linkGuard) releaseLocked() {
	if g.lock == nil {
		return
	}
	if err := g.lock.Release(); err != nil {
		g.logger.Warn("release link lock", "target", g.target, "error", err)
	}
	g.lock = nil
}

// reloadOnHangup re-reads the config file on SIGHUP and switches the link
// when the connection settings changed. Flags keep precedence over the file.
func reloadOnHangup(ctx context.Context, logger *slog.Logger, configPath string, o options, tr *app.SwitchableTransport, guard *linkGuard) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
			}

			cfg, err := config.Load(configPath)
			if err == nil {
				applyOverrides(&cfg, o)
				err = cfg.Validate()
			}
			if err != nil {
				logger.Error("reload config", "error", err)
				continue
			}
			if cfg.Connection == tr.Config() {
				logger.Info("reload config: connection unchanged")
				continue
			}
			if err := guard.swap(connectionTarget(cfg.Connection)); err != nil {
				logger.Error("reload config", "error", err)
				continue
			}
			if _, err := tr.Apply(cfg.Connection); err != nil {
				logger.Error("switch transport", "error", err)
				continue
			}
			logger.Info("switched link", "transport", tr.Name(), "target", connectionTarget(cfg.Connection))
		}
	}()
}

const maxNodeSummary = 10

func logHeardNodes(logger *slog.Logger, store *domain.NodeStore) {
	nodes := store.SnapshotSorted()
	if len(nodes) == 0 {
		return
	}
	logger.Info("heard nodes", "count", len(nodes))
	for i, node := range nodes {
		if i >= maxNodeSummary {
			logger.Info("heard nodes truncated", "remaining", len(nodes)-i)
			break
		}
		logger.Info("node",
			"address", node.Address.String(),
			"frames", node.Frames,
			"bytes", node.Bytes,
			"rssi", fmt.Sprintf("-%ddBm", node.LastRSSI),
			"quality", node.Quality.String(),
			"last_heard", node.LastHeardAt.Format(time.RFC3339),
		)
	}
}

// fieldAttrs flattens a field breakdown into slog key/value pairs, keeping
// the breakdown order.
func fieldAttrs(p packet.Payload, fields packet.Fields) []any {
	attrs := make([]any, 0, 2+2*len(fields))
	if p != nil {
		attrs = append(attrs, "frame_type", p.FrameType().String())
	}
	for _, f := range fields {
		attrs = append(attrs, f.Label, f.Value)
	}

	return attrs
}

func connectionTarget(cfg config.ConnectionConfig) string {
	target := app.ConnectionTarget(cfg)
	if cfg.Connector != config.ConnectorSerial || target == "" {
		return target
	}
	baud := cfg.SerialBaud
	if baud <= 0 {
		baud = config.DefaultSerialBaud
	}

	return fmt.Sprintf("%s@%d", target, baud)
}

func previewHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) <= maxHexPreviewLen {
		return hex
	}
	return hex[:maxHexPreviewLen] + "..."
}
