package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/model"
)

// Worker owns the serial session and runs the acquisition loop on one goroutine.
// Configuration flows in through replace-only channels and readings flow out,
// in order, through Events.
type Worker struct {
	opts   WorkerOptions
	logger *zap.Logger

	events chan model.Event
	varsCh chan []model.Variable
	logCh  chan model.LoggingSettings
	done   chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	session Session
	err     error
}

func NewWorker(opts WorkerOptions) *Worker {
	opts.applyDefaults()
	opts.Snapshot = opts.Snapshot.Clone()
	return &Worker{
		opts:   opts,
		logger: opts.Logger,
		events: make(chan model.Event, opts.EventQueue),
		varsCh: make(chan []model.Variable, 1),
		logCh:  make(chan model.LoggingSettings, 1),
		done:   make(chan struct{}),
	}
}

// Events delivers readings, errors and link state in emission order.
func (w *Worker) Events() <-chan model.Event { return w.events }

// Done is closed when the loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Err returns the fatal error that ended the loop, if any.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Start launches the loop. Calling it twice has no effect.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(ctx)
}

// SetVariables replaces the variable list; only the newest pending list is kept.
func (w *Worker) SetVariables(vars []model.Variable) {
	vars = append([]model.Variable(nil), vars...)
	for {
		select {
		case w.varsCh <- vars:
			return
		default:
		}
		select {
		case <-w.varsCh:
		default:
		}
	}
}

// SetLogging replaces the history logging settings.
func (w *Worker) SetLogging(settings model.LoggingSettings) {
	for {
		select {
		case w.logCh <- settings:
			return
		default:
		}
		select {
		case <-w.logCh:
		default:
		}
	}
}

// Stop asks the loop to exit and waits up to timeout. The session is closed
// afterwards either way. It reports whether the loop acknowledged in time.
func (w *Worker) Stop(timeout time.Duration) bool {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return true
	}
	cancel()
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	acked := true
	select {
	case <-w.done:
	case <-time.After(timeout):
		acked = false
		w.logger.Warn("timeout waiting for acquisition loop to stop", zap.Duration("timeout", timeout))
	}
	w.closeSession()
	return acked
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	sess, err := w.opts.Dial(w.opts.Serial, w.logger)
	if err != nil {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		w.logger.Error("connect failed", zap.String("port", w.opts.Serial.Port), zap.Error(err))
		w.emit(ctx, model.ConnectionState(false, err.Error(), w.opts.Now()))
		return
	}
	w.mu.Lock()
	w.session = sess
	w.mu.Unlock()
	defer w.closeSession()

	w.emit(ctx, model.ConnectionState(true, "connected to "+w.opts.Serial.Port, w.opts.Now()))

	snap := w.opts.Snapshot
	history := NewStorage(snap.Logging, w.logger.Named("history"))
	history.now = w.opts.Now
	sched := NewScheduler(w.opts.Window, sess, history, func(ev model.Event) { w.emit(ctx, ev) }, w.logger)
	sched.setClock(w.opts.Now)
	sched.SetDefaultInterval(snap.DefaultPollInterval)
	sched.SetVariables(snap.Variables)
	sched.Mapper().Prime(snap.Variables)

	w.logger.Info("acquisition started",
		zap.Int("variables", len(snap.Variables)),
		zap.Uint16("block_start", w.opts.Window.Start),
		zap.Uint16("block_count", w.opts.Window.Count))

	for {
		select {
		case <-ctx.Done():
			w.finish()
			return
		default:
		}
		w.applyUpdates(sched, history)

		wait := sched.RunCycle()
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.finish()
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) applyUpdates(sched *Scheduler, history *Storage) {
	select {
	case vars := <-w.varsCh:
		sched.SetVariables(vars)
		ids := make(map[string]struct{}, len(vars))
		for _, v := range vars {
			ids[v.ID] = struct{}{}
		}
		history.Retain(ids)
		w.logger.Info("variables replaced", zap.Int("variables", len(vars)))
	default:
	}
	select {
	case settings := <-w.logCh:
		history.Configure(settings)
		w.logger.Info("history logging updated",
			zap.Bool("enabled", settings.Enabled),
			zap.String("folder", settings.Folder),
			zap.String("mode", string(settings.Mode)))
	default:
	}
}

// finish reports the disconnect without blocking on a consumer that may be gone.
func (w *Worker) finish() {
	select {
	case w.events <- model.ConnectionState(false, "stopped", w.opts.Now()):
	default:
	}
	w.logger.Info("acquisition stopped")
}

func (w *Worker) emit(ctx context.Context, ev model.Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func (w *Worker) closeSession() {
	w.mu.Lock()
	sess := w.session
	w.session = nil
	w.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
}
