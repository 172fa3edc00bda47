package collector

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/model"
)

// BlockReader is the session capability the mapper needs.
type BlockReader interface {
	ReadBlock(slave uint8, kind model.RegisterKind, start, count uint16) ([]uint16, error)
}

type blockKey struct {
	slave uint8
	kind  model.RegisterKind
}

func (k blockKey) less(o blockKey) bool {
	if k.slave != o.slave {
		return k.slave < o.slave
	}
	return k.kind < o.kind
}

// offsetCandidates are tried in order: devices either match the documented
// addresses or expose them one register lower.
var offsetCandidates = [...]uint16{0, 1}

// BlockMapper learns, per (slave, kind), whether the anchor window is served
// at its documented start or one register earlier, and reads the window.
// Not safe for concurrent use; it lives on the acquisition goroutine.
type BlockMapper struct {
	window BlockWindow
	reader BlockReader
	now    func() time.Time
	logger *zap.Logger

	offsets map[blockKey]uint16
	retryAt map[blockKey]time.Time
	primed  map[blockKey][]uint16
}

func NewBlockMapper(window BlockWindow, reader BlockReader, logger *zap.Logger) *BlockMapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &BlockMapper{window: window, reader: reader, now: time.Now, logger: logger}
	m.Reset()
	return m
}

// Reset forgets every learned offset, backoff and pending block.
func (m *BlockMapper) Reset() {
	m.offsets = make(map[blockKey]uint16)
	m.retryAt = make(map[blockKey]time.Time)
	m.primed = make(map[blockKey][]uint16)
}

// Offset returns the learned offset for a pair.
func (m *BlockMapper) Offset(slave uint8, kind model.RegisterKind) (uint16, bool) {
	off, ok := m.offsets[blockKey{slave, kind}]
	return off, ok
}

// Prime runs detection for every pair that has an enabled variable inside the window.
// Detected blocks are kept and handed out by the next Read of that pair.
func (m *BlockMapper) Prime(vars []model.Variable) {
	seen := make(map[blockKey]struct{})
	var keys []blockKey
	for _, v := range vars {
		if !v.Enabled || !m.window.Contains(v.Address) {
			continue
		}
		k := blockKey{v.Slave, v.Kind}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	for _, k := range keys {
		if _, err := m.detect(k, true); err != nil {
			m.logger.Warn("block offset not detected",
				zap.Uint8("slave", k.slave), zap.String("kind", string(k.kind)), zap.Error(err))
		}
	}
}

// Read returns the window's registers for a pair.
func (m *BlockMapper) Read(slave uint8, kind model.RegisterKind) ([]uint16, error) {
	k := blockKey{slave, kind}
	if regs, ok := m.primed[k]; ok {
		delete(m.primed, k)
		return regs, nil
	}

	off, ok := m.offsets[k]
	if !ok {
		if until, waiting := m.retryAt[k]; waiting {
			if remaining := until.Sub(m.now()); remaining > 0 {
				return nil, fmt.Errorf("%w: slave %d %s, retry in %s", ErrBlockUnresolved, slave, kind, remaining.Round(time.Millisecond))
			}
		}
		return m.detect(k, false)
	}

	regs, err := m.readAt(k, off)
	if err == nil {
		return regs, nil
	}
	alt := offsetCandidates[0]
	if off == alt {
		alt = offsetCandidates[1]
	}
	if m.window.Start < alt {
		return nil, err
	}
	regs, altErr := m.readAt(k, alt)
	if altErr != nil {
		return nil, altErr
	}
	m.logger.Info("block offset changed",
		zap.Uint8("slave", slave), zap.String("kind", string(kind)),
		zap.Uint16("from", off), zap.Uint16("to", alt))
	m.offsets[k] = alt
	return regs, nil
}

func (m *BlockMapper) readAt(k blockKey, off uint16) ([]uint16, error) {
	return m.reader.ReadBlock(k.slave, k.kind, m.window.Start-off, m.window.Count)
}

// detect tries each candidate offset. On success the offset is cached and,
// when keep is set, the block is stored for the next Read. Failure arms the backoff.
func (m *BlockMapper) detect(k blockKey, keep bool) ([]uint16, error) {
	var lastErr error
	for _, off := range offsetCandidates {
		if m.window.Start < off {
			continue
		}
		regs, err := m.readAt(k, off)
		if err != nil {
			lastErr = err
			continue
		}
		m.offsets[k] = off
		delete(m.retryAt, k)
		if keep {
			m.primed[k] = regs
		}
		m.logger.Info("block offset detected",
			zap.Uint8("slave", k.slave), zap.String("kind", string(k.kind)), zap.Uint16("offset", off))
		return regs, nil
	}
	m.retryAt[k] = m.now().Add(DetectBackoff)
	if lastErr == nil {
		return nil, fmt.Errorf("%w: slave %d %s, no usable offset", ErrBlockUnresolved, k.slave, k.kind)
	}
	return nil, fmt.Errorf("%w: slave %d %s: %w", ErrBlockUnresolved, k.slave, k.kind, lastErr)
}
