package journal

import (
	"context"
	"time"

	dbpkg "thermo-poller/internal/db"
	"thermo-poller/internal/model"
)

// Client exposes a stable API for third-party packages to read the alarm journal.
type Client struct{ db *dbpkg.DB }

// Open opens the SQLite journal (creating the schema) and returns a client.
func Open(path string) (*Client, error) {
	d, err := dbpkg.Open(path)
	if err != nil {
		return nil, err
	}
	return &Client{db: d}, nil
}

// Close closes the underlying DB.
func (c *Client) Close() error { return c.db.Close() }

// --------------------
// Alarm DTOs and converters
// --------------------

type Alarm struct {
	At      time.Time
	AlarmID string
	Title   string
	State   string
	Value   *float64
}

func fromModelAlarm(ev model.AlarmEvent) Alarm {
	return Alarm{
		At:      ev.At,
		AlarmID: ev.AlarmID,
		Title:   ev.Title,
		State:   string(ev.State),
		Value:   ev.Value,
	}
}

func toModelAlarm(a Alarm) model.AlarmEvent {
	return model.AlarmEvent{
		At:      a.At,
		AlarmID: a.AlarmID,
		Title:   a.Title,
		State:   model.AlarmState(a.State),
		Value:   a.Value,
	}
}

type Connection struct {
	At        time.Time
	Connected bool
	Message   string
}

type Stat struct {
	AlarmID   string
	Title     string
	Raised    int
	Acked     int
	MaxValue  *float64
	LastAt    time.Time
	LastState string
}

// --------------------
// Client methods
// --------------------

// RecordAlarm appends an alarm transition, e.g. when importing from another system.
func (c *Client) RecordAlarm(a Alarm) error {
	return c.db.RecordAlarm(toModelAlarm(a))
}

// Alarms returns up to limit transitions, newest first (limit <= 0 returns all).
func (c *Client) Alarms(ctx context.Context, limit int) ([]Alarm, error) {
	evs, err := c.db.RecentAlarms(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Alarm, 0, len(evs))
	for _, ev := range evs {
		out = append(out, fromModelAlarm(ev))
	}
	return out, nil
}

// Connections returns up to limit link state changes, newest first.
func (c *Client) Connections(ctx context.Context, limit int) ([]Connection, error) {
	recs, err := c.db.RecentConnections(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Connection, 0, len(recs))
	for _, r := range recs {
		out = append(out, Connection{At: r.Timestamp, Connected: r.Connected, Message: r.Message})
	}
	return out, nil
}

// Stats returns per-alarm counters.
func (c *Client) Stats(ctx context.Context) ([]Stat, error) {
	stats, err := c.db.AlarmStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Stat, 0, len(stats))
	for _, s := range stats {
		out = append(out, Stat{
			AlarmID:   s.AlarmID,
			Title:     s.Title,
			Raised:    s.Raised,
			Acked:     s.Acked,
			MaxValue:  s.MaxValue,
			LastAt:    s.LastAt,
			LastState: string(s.LastState),
		})
	}
	return out, nil
}

// JSON returns the latest limit journal rows as a JSON document.
func (c *Client) JSON(ctx context.Context, limit int) ([]byte, error) {
	return c.db.JournalJSON(ctx, limit)
}
