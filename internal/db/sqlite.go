package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"thermo-poller/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS alarm_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    alarm_id TEXT NOT NULL,
    title TEXT NOT NULL,
    state TEXT NOT NULL,
    value REAL
);
CREATE INDEX IF NOT EXISTS idx_alarm_events_alarm ON alarm_events(alarm_id, timestamp);
CREATE TABLE IF NOT EXISTS connection_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    connected INTEGER NOT NULL,
    message TEXT
);`

const timeLayout = time.RFC3339Nano

// DB is the alarm journal backed by SQLite.
type DB struct {
	sql *sql.DB

	mu         sync.Mutex
	insertEv   *sql.Stmt
	insertConn *sql.Stmt
}

// ConnectionRecord mirrors a row of connection_events.
type ConnectionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Connected bool      `json:"connected"`
	Message   string    `json:"message"`
}

// Journal is the JSON document produced by JournalJSON.
type Journal struct {
	AlarmCount      int                `json:"alarm_count"`
	Alarms          []model.AlarmEvent `json:"alarms"`
	ConnectionCount int                `json:"connection_count"`
	Connections     []ConnectionRecord `json:"connections"`
}

// Open opens (creating if needed) the journal at path and ensures the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	s, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// SQLite allows one writer at a time
	s.SetMaxOpenConns(1)
	if _, err := s.Exec(schema); err != nil {
		s.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	d := &DB{sql: s}
	if d.insertEv, err = s.Prepare("INSERT INTO alarm_events(timestamp, alarm_id, title, state, value) VALUES(?, ?, ?, ?, ?)"); err != nil {
		s.Close()
		return nil, err
	}
	if d.insertConn, err = s.Prepare("INSERT INTO connection_events(timestamp, connected, message) VALUES(?, ?, ?)"); err != nil {
		d.insertEv.Close()
		s.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the prepared statements and the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.insertEv != nil {
		d.insertEv.Close()
	}
	if d.insertConn != nil {
		d.insertConn.Close()
	}
	return d.sql.Close()
}

// RecordAlarm appends one alarm transition.
func (d *DB) RecordAlarm(ev model.AlarmEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var value sql.NullFloat64
	if ev.Value != nil {
		value = sql.NullFloat64{Float64: *ev.Value, Valid: true}
	}
	_, err := d.insertEv.Exec(ev.At.Format(timeLayout), ev.AlarmID, ev.Title, string(ev.State), value)
	if err != nil {
		return fmt.Errorf("insert alarm event: %w", err)
	}
	return nil
}

// RecordConnection appends one link state change.
func (d *DB) RecordConnection(at time.Time, connected bool, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.insertConn.Exec(at.Format(timeLayout), connected, message)
	if err != nil {
		return fmt.Errorf("insert connection event: %w", err)
	}
	return nil
}

// RecentAlarms returns up to limit alarm transitions, newest first.
// limit <= 0 returns all of them.
func (d *DB) RecentAlarms(ctx context.Context, limit int) ([]model.AlarmEvent, error) {
	q := "SELECT timestamp, alarm_id, title, state, value FROM alarm_events ORDER BY id DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.AlarmEvent, 0)
	for rows.Next() {
		var (
			ts, state string
			value     sql.NullFloat64
			ev        model.AlarmEvent
		)
		if err := rows.Scan(&ts, &ev.AlarmID, &ev.Title, &state, &value); err != nil {
			return nil, err
		}
		if ev.At, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("alarm_events timestamp %q: %w", ts, err)
		}
		ev.State = model.AlarmState(state)
		if value.Valid {
			v := value.Float64
			ev.Value = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecentConnections returns up to limit link state changes, newest first.
func (d *DB) RecentConnections(ctx context.Context, limit int) ([]ConnectionRecord, error) {
	q := "SELECT timestamp, connected, message FROM connection_events ORDER BY id DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ConnectionRecord, 0)
	for rows.Next() {
		var (
			ts  string
			msg sql.NullString
			rec ConnectionRecord
		)
		if err := rows.Scan(&ts, &rec.Connected, &msg); err != nil {
			return nil, err
		}
		if rec.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("connection_events timestamp %q: %w", ts, err)
		}
		rec.Message = msg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// JournalJSON returns the latest alarm and connection events as JSON.
func (d *DB) JournalJSON(ctx context.Context, limit int) ([]byte, error) {
	alarms, err := d.RecentAlarms(ctx, limit)
	if err != nil {
		return nil, err
	}
	conns, err := d.RecentConnections(ctx, limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Journal{
		AlarmCount:      len(alarms),
		Alarms:          alarms,
		ConnectionCount: len(conns),
		Connections:     conns,
	})
}

// AlarmStat summarizes the journal rows of one alarm.
type AlarmStat struct {
	AlarmID   string           `json:"alarm_id"`
	Title     string           `json:"title"`
	Raised    int              `json:"raised"`
	Acked     int              `json:"acked"`
	MaxValue  *float64         `json:"max_value,omitempty"`
	LastAt    time.Time        `json:"last_at"`
	LastState model.AlarmState `json:"last_state"`
}

const statsQuery = `
SELECT e.alarm_id,
       SUM(CASE WHEN e.state = ? THEN 1 ELSE 0 END),
       SUM(CASE WHEN e.state = ? THEN 1 ELSE 0 END),
       MAX(e.value),
       MAX(e.id)
FROM alarm_events e
GROUP BY e.alarm_id
ORDER BY e.alarm_id`

// AlarmStats returns per-alarm counters ordered by alarm id. Title, last
// state and last timestamp come from the newest row of each alarm.
func (d *DB) AlarmStats(ctx context.Context) ([]AlarmStat, error) {
	rows, err := d.sql.QueryContext(ctx, statsQuery, string(model.AlarmRaised), string(model.AlarmAcked))
	if err != nil {
		return nil, err
	}
	var (
		out  = make([]AlarmStat, 0)
		last []int64
	)
	for rows.Next() {
		var (
			st    AlarmStat
			maxV  sql.NullFloat64
			maxID int64
		)
		if err := rows.Scan(&st.AlarmID, &st.Raised, &st.Acked, &maxV, &maxID); err != nil {
			rows.Close()
			return nil, err
		}
		if maxV.Valid {
			v := maxV.Float64
			st.MaxValue = &v
		}
		out = append(out, st)
		last = append(last, maxID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range last {
		var ts, state string
		err := d.sql.QueryRowContext(ctx,
			"SELECT timestamp, title, state FROM alarm_events WHERE id = ?", id,
		).Scan(&ts, &out[i].Title, &state)
		if err != nil {
			return nil, err
		}
		if out[i].LastAt, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("alarm_events timestamp %q: %w", ts, err)
		}
		out[i].LastState = model.AlarmState(state)
	}
	return out, nil
}

// StatsJSON returns AlarmStats as JSON.
func (d *DB) StatsJSON(ctx context.Context) ([]byte, error) {
	stats, err := d.AlarmStats(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stats)
}
