package collector

import (
	"errors"
	"sync"
	"time"

	"thermo-poller/internal/model"
)

var errNoResponse = errors.New("no response from slave")

type readCall struct {
	slave uint8
	kind  model.RegisterKind
	start uint16
	count uint16
}

// fakeSession answers a read only when every requested address is populated.
type fakeSession struct {
	mu      sync.Mutex
	regs    map[blockKey]map[uint16]uint16
	short   map[blockKey]int
	blocks  []readCall
	singles []readCall
	closes  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		regs:  make(map[blockKey]map[uint16]uint16),
		short: make(map[blockKey]int),
	}
}

func (f *fakeSession) set(slave uint8, kind model.RegisterKind, start uint16, vals ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := blockKey{slave, kind}
	if f.regs[k] == nil {
		f.regs[k] = make(map[uint16]uint16)
	}
	for i, v := range vals {
		f.regs[k][start+uint16(i)] = v
	}
}

func (f *fakeSession) clear(slave uint8, kind model.RegisterKind) {
	f.mu.Lock()
	delete(f.regs, blockKey{slave, kind})
	f.mu.Unlock()
}

func (f *fakeSession) lookup(slave uint8, kind model.RegisterKind, start, count uint16) ([]uint16, error) {
	dev := f.regs[blockKey{slave, kind}]
	out := make([]uint16, 0, count)
	for a := int(start); a < int(start)+int(count); a++ {
		v, ok := dev[uint16(a)]
		if !ok {
			return nil, &ReadError{Slave: slave, Kind: kind, Address: start, Count: count, Err: errNoResponse}
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeSession) ReadBlock(slave uint8, kind model.RegisterKind, start, count uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, readCall{slave, kind, start, count})
	regs, err := f.lookup(slave, kind, start, count)
	if err != nil {
		return nil, err
	}
	if n, ok := f.short[blockKey{slave, kind}]; ok && n < len(regs) {
		regs = regs[:n]
	}
	return regs, nil
}

func (f *fakeSession) ReadSingle(slave uint8, kind model.RegisterKind, address uint16) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, readCall{slave, kind, address, 1})
	regs, err := f.lookup(slave, kind, address, 1)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) blockCalls() []readCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]readCall(nil), f.blocks...)
}

func (f *fakeSession) singleCalls() []readCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]readCall(nil), f.singles...)
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// eventLog collects emitted events.
type eventLog struct {
	events []model.Event
}

func (l *eventLog) emit(ev model.Event) { l.events = append(l.events, ev) }

func (l *eventLog) byKind(kind model.EventKind) []model.Event {
	var out []model.Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) reset() { l.events = nil }

func variable(id string, slave uint8, kind model.RegisterKind, addr uint16) model.Variable {
	return model.Variable{
		ID:           id,
		Name:         "Var " + id,
		Unit:         "°C",
		Slave:        slave,
		Kind:         kind,
		Address:      addr,
		DataType:     model.Uint16,
		Scale:        1,
		PollInterval: time.Second,
		Enabled:      true,
	}
}
