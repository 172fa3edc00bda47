package tasks

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/collector"
	"thermo-poller/internal/config"
	"thermo-poller/internal/db"
	"thermo-poller/internal/model"
	"thermo-poller/internal/monitor"
	"thermo-poller/internal/publish"
)

// Options defines initialization overrides for the collector.
// Mirrors the CLI flags used in cmd/collector/main.go.
type Options struct {
	ConfigPath string
	// LogFolder enables history logging into the given folder.
	LogFolder string
	// Port overrides serial.port.
	Port string
	// NoMQTT disables the broker even when the config enables it.
	NoMQTT bool
	// OnSummary, when set, receives every refreshed summary.
	OnSummary func(monitor.Summary)
}

// engine is the acquisition side as seen by the consumer.
type engine interface {
	Start(ctx context.Context)
	Events() <-chan model.Event
	Done() <-chan struct{}
	Err() error
	SetVariables(vars []model.Variable)
	SetLogging(settings model.LoggingSettings)
	Stop(timeout time.Duration) bool
}

// connJournal also records link state changes.
type connJournal interface {
	monitor.Journal
	RecordConnection(at time.Time, connected bool, message string) error
}

// sink mirrors events and summaries to the outside world.
type sink interface {
	PublishEvent(ev model.Event) error
	PublishSummary(sum monitor.Summary) error
}

// Service is the consumer: it feeds worker events into the monitor, refreshes
// summaries on a fixed tick, applies acknowledgements and reloads the config.
type Service struct {
	cfgPath   string
	overrides Options
	cfg       *config.Config
	worker    engine
	monitor   *monitor.Monitor
	journal   connJournal
	sink      sink
	outbox    *outbox
	logger    *zap.Logger

	acks    chan string
	reload  chan struct{}
	refresh time.Duration
	now     func() time.Time

	// OnSummary, when set, receives every refreshed summary.
	OnSummary func(monitor.Summary)
}

// InitAndRunCollector loads config, applies overrides, wires the optional
// journal and broker, then runs the worker and consumer until ctx ends or the
// serial port cannot be opened.
func InitAndRunCollector(ctx context.Context, opts Options, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, created, err := config.LoadOrCreate(opts.ConfigPath)
	if err != nil {
		return err
	}
	if created {
		logger.Info("wrote default config", zap.String("path", opts.ConfigPath))
	}
	applyOverrides(cfg, opts)

	var journal connJournal
	if cfg.Journal.Enabled {
		d, err := db.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer d.Close()
		journal = d
	}

	var out sink
	acks := make(chan string, 16)
	if cfg.MQTT.Enabled && !opts.NoMQTT {
		p, err := publish.Connect(publish.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		}, logger.Named("mqtt"))
		if err != nil {
			// acquisition does not depend on the broker
			logger.Warn("mqtt disabled", zap.Error(err))
		} else {
			defer p.Close()
			if err := p.SubscribeAcks(acks); err != nil {
				logger.Warn("ack subscription failed", zap.Error(err))
			}
			out = p
		}
	}

	snap := cfg.Snapshot()
	worker := collector.NewWorker(collector.WorkerOptions{
		Serial:   cfg.SerialSettings(),
		Window:   cfg.BlockWindow(),
		Snapshot: snap,
		Logger:   logger.Named("worker"),
	})

	svc := NewService(opts.ConfigPath, cfg, worker, journal, out, logger)
	svc.overrides = opts
	svc.acks = acks
	svc.OnSummary = opts.OnSummary

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				svc.Reload()
			}
		}
	}()

	return svc.Run(ctx)
}

func applyOverrides(cfg *config.Config, opts Options) {
	if opts.LogFolder != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.Folder = opts.LogFolder
	}
	if opts.Port != "" {
		cfg.Serial.Port = opts.Port
	}
}

// NewService wires a consumer around worker. journal and out may be nil.
func NewService(cfgPath string, cfg *config.Config, worker engine, journal connJournal, out sink, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	var mj monitor.Journal
	if journal != nil {
		mj = journal
	}
	var ob *outbox
	if out != nil {
		ob = newOutbox(out, outboxSize, logger.Named("outbox"))
		out = ob
	}
	return &Service{
		cfgPath: cfgPath,
		cfg:     cfg,
		worker:  worker,
		monitor: monitor.New(cfg.Snapshot(), mj, logger.Named("monitor")),
		journal: journal,
		sink:    out,
		outbox:  ob,
		logger:  logger,
		acks:    make(chan string, 16),
		reload:  make(chan struct{}, 1),
		refresh: cfg.RefreshInterval(),
		now:     time.Now,
	}
}

// Monitor exposes the consumer state.
func (s *Service) Monitor() *monitor.Monitor { return s.monitor }

// Ack queues an alarm acknowledgement for the consumer loop.
func (s *Service) Ack(alarmID string) {
	select {
	case s.acks <- alarmID:
	default:
		s.logger.Warn("ack request dropped", zap.String("alarm_id", alarmID))
	}
}

// Reload asks the consumer loop to re-read the config file.
func (s *Service) Reload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Run starts the worker and consumes its events until ctx is cancelled or the
// worker exits. It returns the worker's fatal error, if any.
func (s *Service) Run(ctx context.Context) error {
	s.worker.Start(ctx)
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()
	defer s.closeOutbox()

	for {
		select {
		case <-ctx.Done():
			if !s.worker.Stop(collector.DefaultStopTimeout) {
				s.logger.Warn("worker did not stop in time; session force-closed")
			}
			s.drain()
			return nil

		case ev := <-s.worker.Events():
			s.handle(ev)

		case <-ticker.C:
			s.publishSummary()

		case id := <-s.acks:
			if s.monitor.Ack(id) {
				s.logger.Info("alarm acknowledged", zap.String("alarm_id", id))
				s.publishSummary()
			} else {
				s.logger.Debug("ack ignored", zap.String("alarm_id", id))
			}

		case <-s.reload:
			s.applyReload()

		case <-s.worker.Done():
			s.drain()
			s.publishSummary()
			return s.worker.Err()
		}
	}
}

func (s *Service) closeOutbox() {
	if s.outbox == nil {
		return
	}
	if !s.outbox.Close(outboxCloseTimeout) {
		s.logger.Warn("publish queue not drained before shutdown")
	}
	if n := s.outbox.Dropped(); n > 0 {
		s.logger.Warn("messages dropped while the broker was unavailable", zap.Int64("dropped", n))
	}
}

func (s *Service) drain() {
	for {
		select {
		case ev := <-s.worker.Events():
			s.handle(ev)
		default:
			return
		}
	}
}

func (s *Service) handle(ev model.Event) {
	s.monitor.Handle(ev)

	switch ev.Kind {
	case model.EventConnectionState:
		if ev.Connected {
			s.logger.Info("serial link up", zap.String("message", ev.Message))
		} else {
			s.logger.Warn("serial link down", zap.String("message", ev.Message))
		}
		if s.journal != nil {
			if err := s.journal.RecordConnection(ev.At, ev.Connected, ev.Message); err != nil {
				s.logger.Warn("journal connection failed", zap.Error(err))
			}
		}
	case model.EventVariableError:
		s.logger.Debug("variable read failed", zap.String("variable_id", ev.VariableID), zap.String("error", ev.Message))
	}

	if s.sink != nil {
		if err := s.sink.PublishEvent(ev); err != nil {
			s.logger.Debug("publish event failed", zap.Error(err))
		}
	}
}

func (s *Service) publishSummary() {
	sum := s.monitor.Refresh(s.now())
	if s.sink != nil {
		if err := s.sink.PublishSummary(sum); err != nil {
			s.logger.Debug("publish summary failed", zap.Error(err))
		}
	}
	if s.OnSummary != nil {
		s.OnSummary(sum)
	}
}

func (s *Service) applyReload() {
	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		s.logger.Error("reload config", zap.String("path", s.cfgPath), zap.Error(err))
		return
	}
	applyOverrides(cfg, s.overrides)
	if cfg.SerialSettings() != s.cfg.SerialSettings() || cfg.BlockWindow() != s.cfg.BlockWindow() {
		s.logger.Warn("serial or block changes take effect after restart")
	}
	snap := cfg.Snapshot()
	s.worker.SetVariables(snap.Variables)
	s.worker.SetLogging(snap.Logging)
	s.monitor.Apply(snap)
	s.cfg = cfg
	s.logger.Info("config reloaded",
		zap.Int("variables", len(snap.Variables)),
		zap.Int("zones", len(snap.Zones)))
}
