package collector

import (
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/model"
)

// Anchor window defaults: the block of registers most devices on the bus expose.
const (
	DefaultBlockStart = 104
	DefaultBlockCount = 8

	// DetectBackoff is how long a (slave, kind) pair waits after offset detection fails.
	DetectBackoff = 5 * time.Second
	// DefaultStopTimeout bounds how long Stop waits for the loop to acknowledge.
	DefaultStopTimeout = 2 * time.Second

	idleSleep    = 5 * time.Millisecond
	maxIdleSleep = 10 * time.Millisecond
)

// BlockWindow is the contiguous register range read in one request per (slave, kind).
type BlockWindow struct {
	Start uint16
	Count uint16
}

// DefaultBlockWindow returns the 104..111 window.
func DefaultBlockWindow() BlockWindow {
	return BlockWindow{Start: DefaultBlockStart, Count: DefaultBlockCount}
}

// Contains reports whether addr falls inside the window.
func (w BlockWindow) Contains(addr uint16) bool {
	return w.Count > 0 && addr >= w.Start && int(addr) < int(w.Start)+int(w.Count)
}

// WorkerOptions configures an acquisition worker.
type WorkerOptions struct {
	Serial   model.SerialSettings
	Window   BlockWindow
	Snapshot model.Snapshot
	// Dial opens the session; defaults to Connect.
	Dial       func(model.SerialSettings, *zap.Logger) (Session, error)
	EventQueue int
	Logger     *zap.Logger
	Now        func() time.Time
}

func (o *WorkerOptions) applyDefaults() {
	if o.Window.Count == 0 {
		o.Window = DefaultBlockWindow()
	}
	if o.Dial == nil {
		o.Dial = func(s model.SerialSettings, l *zap.Logger) (Session, error) {
			sess, err := Connect(s, l)
			if err != nil {
				return nil, err
			}
			return sess, nil
		}
	}
	if o.EventQueue <= 0 {
		o.EventQueue = 1024
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
