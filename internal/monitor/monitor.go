package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/model"
)

// Journal receives alarm transitions. Implementations must not block for long;
// they run on the consumer goroutine.
type Journal interface {
	RecordAlarm(ev model.AlarmEvent) error
}

// VariableStatus is one variable's state as of a refresh.
type VariableStatus struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ZoneID     string    `json:"zone_id"`
	Unit       string    `json:"unit,omitempty"`
	Enabled    bool      `json:"enabled"`
	Value      *float64  `json:"value,omitempty"`
	Raw        *uint16   `json:"raw,omitempty"`
	Display    string    `json:"display"`
	LastUpdate time.Time `json:"last_update,omitempty"`
	Stale      bool      `json:"stale"`
	InAlarm    bool      `json:"in_alarm"`
	Acked      bool      `json:"acked"`
	// Error is the last read failure, cleared by the next good reading.
	Error string `json:"error,omitempty"`
}

// ZoneSummary aggregates the fresh members of a zone.
type ZoneSummary struct {
	ZoneID     string   `json:"zone_id"`
	Name       string   `json:"name"`
	Monitor    bool     `json:"monitor"`
	Active     int      `json:"active"`
	Total      int      `json:"total"`
	Avg        *float64 `json:"avg,omitempty"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	AlarmCount int      `json:"alarm_count"`
	InAlarm    bool     `json:"in_alarm"`
	Acked      bool     `json:"acked"`
	Text       string   `json:"text"`
}

// Alarm is an entry of the active alarm list.
type Alarm struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Acked  bool   `json:"acked"`
	Zone   bool   `json:"zone"`
}

// Summary is the consumer view produced by Refresh.
type Summary struct {
	At          time.Time        `json:"at"`
	Connected   bool             `json:"connected"`
	Message     string           `json:"message,omitempty"` // last link state message
	LastReading time.Time        `json:"last_reading,omitempty"`
	Variables   []VariableStatus `json:"variables"`
	Zones       []ZoneSummary    `json:"zones"`
	Alarms      []Alarm          `json:"alarms"`
}

// MonitorZones returns the zones flagged for monitor mode, or every zone
// when none is flagged.
func (s Summary) MonitorZones() []ZoneSummary {
	var flagged []ZoneSummary
	for _, z := range s.Zones {
		if z.Monitor {
			flagged = append(flagged, z)
		}
	}
	if len(flagged) == 0 {
		return s.Zones
	}
	return flagged
}

// Monitor holds consumer-side state derived from worker events: last values,
// alarm flags and acknowledgements. It is safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	logger  *zap.Logger
	journal Journal
	now     func() time.Time

	snap  model.Snapshot
	index map[string]int

	lastValue   map[string]float64
	lastRaw     map[string]uint16
	lastUpdate  map[string]time.Time
	lastError   map[string]string
	lastReading time.Time

	varAlarm  map[string]bool
	varAck    map[string]struct{}
	zoneAlarm map[string]bool
	zoneAck   map[string]struct{}
	zoneAvg   map[string]*float64

	connected bool
	message   string
}

// New builds a Monitor for snap. journal and logger may be nil.
func New(snap model.Snapshot, journal Journal, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		logger:     logger,
		journal:    journal,
		now:        time.Now,
		lastValue:  make(map[string]float64),
		lastRaw:    make(map[string]uint16),
		lastUpdate: make(map[string]time.Time),
		lastError:  make(map[string]string),
		varAlarm:   make(map[string]bool),
		varAck:     make(map[string]struct{}),
		zoneAlarm:  make(map[string]bool),
		zoneAck:    make(map[string]struct{}),
		zoneAvg:    make(map[string]*float64),
	}
	m.Apply(snap)
	return m
}

// Apply installs a new configuration and drops state for removed variables and zones.
func (m *Monitor) Apply(snap model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap = snap.Clone()
	m.index = make(map[string]int, len(m.snap.Variables))
	for i, v := range m.snap.Variables {
		m.index[v.ID] = i
	}
	zones := make(map[string]struct{}, len(m.snap.Zones))
	for _, z := range m.snap.Zones {
		zones[z.ID] = struct{}{}
	}

	known := func(id string) bool { _, ok := m.index[id]; return ok }
	for id := range m.lastValue {
		if !known(id) {
			delete(m.lastValue, id)
		}
	}
	for id := range m.lastRaw {
		if !known(id) {
			delete(m.lastRaw, id)
		}
	}
	for id := range m.lastUpdate {
		if !known(id) {
			delete(m.lastUpdate, id)
		}
	}
	for id := range m.lastError {
		if !known(id) {
			delete(m.lastError, id)
		}
	}
	for id := range m.varAlarm {
		if !known(id) {
			delete(m.varAlarm, id)
		}
	}
	for id := range m.varAck {
		if !known(id) {
			delete(m.varAck, id)
		}
	}
	for id := range m.zoneAlarm {
		if _, ok := zones[id]; !ok {
			delete(m.zoneAlarm, id)
			delete(m.zoneAvg, id)
		}
	}
	for id := range m.zoneAck {
		if _, ok := zones[id]; !ok {
			delete(m.zoneAck, id)
		}
	}
}

// Handle folds one worker event into the state.
func (m *Monitor) Handle(ev model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case model.EventValueUpdated:
		m.lastValue[ev.VariableID] = ev.Value
		m.lastRaw[ev.VariableID] = ev.Raw
		m.lastUpdate[ev.VariableID] = ev.At
		delete(m.lastError, ev.VariableID)
		m.lastReading = ev.At

		i, ok := m.index[ev.VariableID]
		if !ok {
			return
		}
		v := m.snap.Variables[i]
		value := ev.Value
		m.setVariableAlarm(v, VariableInAlarm(v, value), &value, ev.At)

	case model.EventVariableError:
		// the variable goes stale and leaves zone aggregates
		delete(m.lastUpdate, ev.VariableID)
		m.lastError[ev.VariableID] = ev.Message

	case model.EventConnectionState:
		m.connected = ev.Connected
		m.message = ev.Message
	}
}

// Ack acknowledges an active alarm: a variable ID or "zone:<id>".
// It reports false when no such alarm is active or it was already acknowledged.
func (m *Monitor) Ack(alarmID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if zid, ok := strings.CutPrefix(alarmID, ZoneAlarmPrefix); ok {
		if !m.zoneAlarm[zid] {
			return false
		}
		if _, done := m.zoneAck[zid]; done {
			return false
		}
		m.zoneAck[zid] = struct{}{}
		m.record(model.AlarmEvent{At: now, AlarmID: alarmID, Title: m.zoneTitle(zid), State: model.AlarmAcked, Value: m.zoneAvg[zid]})
		return true
	}

	if !m.varAlarm[alarmID] {
		return false
	}
	if _, done := m.varAck[alarmID]; done {
		return false
	}
	m.varAck[alarmID] = struct{}{}
	var value *float64
	if v, ok := m.lastValue[alarmID]; ok {
		value = &v
	}
	m.record(model.AlarmEvent{At: now, AlarmID: alarmID, Title: m.variableTitle(alarmID), State: model.AlarmAcked, Value: value})
	return true
}

// Refresh recomputes staleness, zone aggregates and zone alarms as of now.
func (m *Monitor) Refresh(now time.Time) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := Summary{
		At:          now,
		Connected:   m.connected,
		Message:     m.message,
		LastReading: m.lastReading,
	}

	members := make(map[string][]int, len(m.snap.Zones))
	for i, v := range m.snap.Variables {
		st := m.variableStatus(v, now)
		sum.Variables = append(sum.Variables, st)
		members[v.ZoneID] = append(members[v.ZoneID], i)
	}

	for _, z := range m.snap.Zones {
		zs := m.zoneSummary(z, members[z.ID], sum.Variables, now)
		sum.Zones = append(sum.Zones, zs)
	}

	for _, st := range sum.Variables {
		if !st.InAlarm {
			continue
		}
		detail := "No value"
		if st.Value != nil {
			v := m.snap.Variables[m.index[st.ID]]
			detail = alarmDetail(*st.Value, v.Alarm, v.Unit)
		}
		sum.Alarms = append(sum.Alarms, Alarm{ID: st.ID, Title: st.Name, Detail: detail, Acked: st.Acked})
	}
	for i, zs := range sum.Zones {
		if !zs.InAlarm {
			continue
		}
		detail := "No data"
		if zs.Avg != nil {
			detail = alarmDetail(*zs.Avg, m.snap.Zones[i].Alarm, zs.Unit)
		}
		sum.Alarms = append(sum.Alarms, Alarm{
			ID:     ZoneAlarmID(zs.ZoneID),
			Title:  "Zone: " + zs.Name,
			Detail: detail,
			Acked:  zs.Acked,
			Zone:   true,
		})
	}
	return sum
}

func (m *Monitor) variableStatus(v model.Variable, now time.Time) VariableStatus {
	st := VariableStatus{
		ID:      v.ID,
		Name:    v.Name,
		ZoneID:  v.ZoneID,
		Unit:    v.Unit,
		Enabled: v.Enabled,
		Display: "--",
		InAlarm: m.varAlarm[v.ID],
		Error:   m.lastError[v.ID],
	}
	if value, ok := m.lastValue[v.ID]; ok {
		st.Value = &value
		st.Display = strconv.FormatFloat(value, 'f', v.Decimals, 64)
	}
	if raw, ok := m.lastRaw[v.ID]; ok {
		st.Raw = &raw
	}
	last, ok := m.lastUpdate[v.ID]
	if ok {
		st.LastUpdate = last
	}
	st.Stale = IsStale(last, ok, v.Interval(m.snap.DefaultPollInterval), now)
	_, st.Acked = m.varAck[v.ID]
	st.Acked = st.Acked && st.InAlarm
	return st
}

func (m *Monitor) zoneSummary(z model.Zone, idx []int, statuses []VariableStatus, now time.Time) ZoneSummary {
	zs := ZoneSummary{ZoneID: z.ID, Name: z.Name, Monitor: z.Monitor, Total: len(idx)}

	units := make(map[string]struct{})
	var values []float64
	for _, i := range idx {
		st := statuses[i]
		if st.Unit != "" {
			units[st.Unit] = struct{}{}
		}
		if st.InAlarm {
			zs.AlarmCount++
		}
		if st.Stale {
			continue
		}
		zs.Active++
		if st.Value != nil {
			values = append(values, *st.Value)
		}
	}
	if len(units) == 1 {
		for u := range units {
			zs.Unit = u
		}
	}

	if len(values) > 0 {
		lo, hi, total := values[0], values[0], 0.0
		for _, v := range values {
			total += v
			lo = min(lo, v)
			hi = max(hi, v)
		}
		avg := total / float64(len(values))
		zs.Avg, zs.Min, zs.Max = &avg, &lo, &hi
		zs.Text = fmt.Sprintf("Active %d/%d | Avg %.2f%s | Min %.2f%s | Max %.2f%s",
			zs.Active, zs.Total, avg, zs.Unit, lo, zs.Unit, hi, zs.Unit)
	} else {
		zs.Text = fmt.Sprintf("Active %d/%d | No data", zs.Active, zs.Total)
	}

	inAlarm := ZoneInAlarm(z, zs.Avg)
	m.zoneAvg[z.ID] = zs.Avg
	m.setZoneAlarm(z, inAlarm, zs.Avg, now)
	zs.InAlarm = inAlarm
	_, zs.Acked = m.zoneAck[z.ID]
	return zs
}

func (m *Monitor) setVariableAlarm(v model.Variable, inAlarm bool, value *float64, at time.Time) {
	was := m.varAlarm[v.ID]
	m.varAlarm[v.ID] = inAlarm
	if !inAlarm {
		delete(m.varAck, v.ID)
	}
	if was == inAlarm {
		return
	}
	state := model.AlarmCleared
	if inAlarm {
		state = model.AlarmRaised
	}
	m.record(model.AlarmEvent{At: at, AlarmID: v.ID, Title: v.Name, State: state, Value: value})
}

func (m *Monitor) setZoneAlarm(z model.Zone, inAlarm bool, avg *float64, at time.Time) {
	was := m.zoneAlarm[z.ID]
	m.zoneAlarm[z.ID] = inAlarm
	if !inAlarm {
		delete(m.zoneAck, z.ID)
	}
	if was == inAlarm {
		return
	}
	state := model.AlarmCleared
	if inAlarm {
		state = model.AlarmRaised
	}
	m.record(model.AlarmEvent{At: at, AlarmID: ZoneAlarmID(z.ID), Title: "Zone: " + z.Name, State: state, Value: avg})
}

func (m *Monitor) record(ev model.AlarmEvent) {
	m.logger.Info("alarm",
		zap.String("alarm_id", ev.AlarmID),
		zap.String("title", ev.Title),
		zap.String("state", string(ev.State)))
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordAlarm(ev); err != nil {
		m.logger.Warn("journal alarm failed", zap.String("alarm_id", ev.AlarmID), zap.Error(err))
	}
}

func (m *Monitor) variableTitle(id string) string {
	if i, ok := m.index[id]; ok {
		return m.snap.Variables[i].Name
	}
	return id
}

func (m *Monitor) zoneTitle(id string) string {
	for _, z := range m.snap.Zones {
		if z.ID == id {
			return "Zone: " + z.Name
		}
	}
	return ZoneAlarmID(id)
}
