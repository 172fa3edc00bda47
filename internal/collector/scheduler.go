package collector

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/model"
)

// HistoryLogger receives every successful reading.
type HistoryLogger interface {
	Log(v model.Variable, raw uint16, value float64)
}

// EmitFunc delivers an event to the consumer.
type EmitFunc func(model.Event)

// Scheduler decides which variables are due and reads them, grouping block
// members into one request per (slave, kind). It runs on a single goroutine.
type Scheduler struct {
	window          BlockWindow
	session         Session
	mapper          *BlockMapper
	history         HistoryLogger
	emit            EmitFunc
	now             func() time.Time
	logger          *zap.Logger
	defaultInterval time.Duration

	vars    []model.Variable
	nextDue map[string]time.Time
}

func NewScheduler(window BlockWindow, session Session, history HistoryLogger, emit EmitFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		window:          window,
		session:         session,
		mapper:          NewBlockMapper(window, session, logger),
		history:         history,
		emit:            emit,
		now:             time.Now,
		logger:          logger,
		defaultInterval: model.DefaultPollInterval,
		nextDue:         make(map[string]time.Time),
	}
}

func (s *Scheduler) setClock(now func() time.Time) {
	s.now = now
	s.mapper.now = now
}

// Mapper exposes the block mapper, for priming after connect.
func (s *Scheduler) Mapper() *BlockMapper { return s.mapper }

// SetDefaultInterval sets the interval used by variables without their own.
func (s *Scheduler) SetDefaultInterval(d time.Duration) {
	if d > 0 {
		s.defaultInterval = d
	}
}

// SetVariables replaces the variable list. Due times of variables that
// disappeared are dropped and learned block offsets are forgotten.
func (s *Scheduler) SetVariables(vars []model.Variable) {
	s.vars = append([]model.Variable(nil), vars...)
	keep := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		keep[v.ID] = struct{}{}
	}
	for id := range s.nextDue {
		if _, ok := keep[id]; !ok {
			delete(s.nextDue, id)
		}
	}
	s.mapper.Reset()
}

// Variables returns the current list.
func (s *Scheduler) Variables() []model.Variable { return s.vars }

type group struct {
	key     blockKey
	members []model.Variable
}

// RunCycle reads every due variable once and returns how long the caller
// should sleep before the next cycle. Zero means work was done.
func (s *Scheduler) RunCycle() time.Duration {
	now := s.now()
	byKey := make(map[blockKey]*group)
	var groups []*group
	var singles []model.Variable
	var nextWake time.Time
	haveWake := false
	dueCount := 0
	for _, v := range s.vars {
		if !v.Enabled {
			continue
		}
		if due, ok := s.nextDue[v.ID]; ok && now.Before(due) {
			if !haveWake || due.Before(nextWake) {
				nextWake, haveWake = due, true
			}
			continue
		}
		dueCount++
		if !s.window.Contains(v.Address) {
			singles = append(singles, v)
			continue
		}
		k := blockKey{v.Slave, v.Kind}
		g, ok := byKey[k]
		if !ok {
			g = &group{key: k}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, v)
	}

	if dueCount == 0 {
		return idleWait(now, nextWake, haveWake)
	}

	for _, g := range groups {
		s.readGroup(g)
	}
	for _, v := range singles {
		s.readSingle(v)
	}
	return 0
}

func idleWait(now, nextWake time.Time, haveWake bool) time.Duration {
	if !haveWake {
		return idleSleep
	}
	remaining := nextWake.Sub(now)
	if remaining <= 0 {
		return idleSleep
	}
	if remaining < maxIdleSleep {
		return remaining
	}
	return maxIdleSleep
}

func (s *Scheduler) readGroup(g *group) {
	regs, err := s.mapper.Read(g.key.slave, g.key.kind)
	if err != nil {
		s.logger.Debug("block read failed",
			zap.Uint8("slave", g.key.slave), zap.String("kind", string(g.key.kind)), zap.Error(err))
		for _, v := range g.members {
			s.fail(v, err)
		}
		return
	}
	for _, v := range g.members {
		idx := int(v.Address) - int(s.window.Start)
		if idx < 0 || idx >= len(regs) {
			s.fail(v, fmt.Errorf("%w: address %d, block has %d registers", ErrAddressOutOfBlock, v.Address, len(regs)))
			continue
		}
		s.deliver(v, regs[idx])
	}
}

func (s *Scheduler) readSingle(v model.Variable) {
	raw, err := s.session.ReadSingle(v.Slave, v.Kind, v.Address)
	if err != nil {
		s.fail(v, err)
		return
	}
	s.deliver(v, raw)
}

func (s *Scheduler) deliver(v model.Variable, raw uint16) {
	value := Convert(v, raw)
	s.emit(model.ValueUpdated(v.ID, value, raw, s.now()))
	if s.history != nil {
		s.history.Log(v, raw, value)
	}
	s.advance(v)
}

func (s *Scheduler) fail(v model.Variable, err error) {
	s.emit(model.VariableError(v.ID, err.Error(), s.now()))
	s.advance(v)
}

func (s *Scheduler) advance(v model.Variable) {
	s.nextDue[v.ID] = s.now().Add(v.Interval(s.defaultInterval))
}
