package collector

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"thermo-poller/internal/model"
	"thermo-poller/internal/utils"
)

const (
	// TimestampLayout is second-precision ISO-8601 in local time.
	TimestampLayout = "2006-01-02T15:04:05"
	dateLayout      = "2006-01-02"

	singleFileName = "termo_log.csv"
	dailyPrefix    = "termo_"
)

var historyHeader = []string{"timestamp", "variable_id", "variable_name", "raw", "value", "unit"}

// Storage appends throttled readings to CSV history files.
// Write failures never reach the caller; they are logged at debug level.
type Storage struct {
	mu       sync.Mutex
	settings model.LoggingSettings
	throttle *utils.Throttle
	now      func() time.Time
	logger   *zap.Logger
}

func NewStorage(settings model.LoggingSettings, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{throttle: utils.NewThrottle(), now: time.Now, logger: logger}
	s.Configure(settings)
	return s
}

// Configure replaces the settings and creates the folder when logging is on.
func (s *Storage) Configure(settings model.LoggingSettings) {
	if settings.Separator == 0 {
		settings.Separator = ','
	}
	if settings.Mode == "" {
		settings.Mode = model.LogPerVariable
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	if settings.Enabled && settings.Folder != "" {
		if err := os.MkdirAll(settings.Folder, 0o755); err != nil {
			s.logger.Debug("create history folder", zap.String("folder", settings.Folder), zap.Error(err))
		}
	}
}

// Settings returns the active settings.
func (s *Storage) Settings() model.LoggingSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Retain forgets throttle state for variables not in ids.
func (s *Storage) Retain(ids map[string]struct{}) {
	s.throttle.Retain(func(k string) bool {
		_, ok := ids[k]
		return ok
	})
}

// Log appends one row unless logging is off or the variable logged too recently.
func (s *Storage) Log(v model.Variable, raw uint16, value float64) {
	settings := s.Settings()
	if !settings.Enabled {
		return
	}
	now := s.now()
	if !s.throttle.Allow(v.ID, now, settings.Interval) {
		return
	}
	path := filepath.Join(settings.Folder, FileName(settings.Mode, v, now))
	if err := appendRow(path, settings.Separator, []string{
		now.Format(TimestampLayout),
		v.ID,
		v.Name,
		strconv.Itoa(int(raw)),
		strconv.FormatFloat(value, 'f', -1, 64),
		v.Unit,
	}); err != nil {
		s.logger.Debug("history write failed", zap.String("path", path), zap.Error(err))
	}
}

func appendRow(path string, sep rune, rec []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = sep
	if off, _ := f.Seek(0, io.SeekEnd); off == 0 {
		if err := w.Write(historyHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// FileName returns the history file a reading of v at ts belongs to.
func FileName(mode model.LogMode, v model.Variable, ts time.Time) string {
	date := ts.Format(dateLayout)
	switch mode {
	case model.LogSingle:
		return singleFileName
	case model.LogDaily:
		return dailyPrefix + date + ".csv"
	default:
		name := SafeName(v.Name)
		if name == "" {
			name = "var"
		}
		if v.ID != "" {
			return fmt.Sprintf("%s_%s_%s.csv", name, v.ID, date)
		}
		return fmt.Sprintf("%s_%s.csv", name, date)
	}
}

// SafeName keeps letters, digits, '-', '_' and spaces, replaces anything else
// with '_' and trims surrounding spaces.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.TrimSpace(b.String())
}
