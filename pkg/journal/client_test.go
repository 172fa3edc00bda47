package journal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := Open(filepath.Join(t.TempDir(), "alarms.db"))
	if err != nil {
		t.Fatalf("failed to open test journal: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestAlarmRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	v := 72.5
	if err := client.RecordAlarm(Alarm{At: at, AlarmID: "t1", Title: "Oven 1", State: "RAISED", Value: &v}); err != nil {
		t.Fatalf("RecordAlarm failed: %v", err)
	}
	if err := client.RecordAlarm(Alarm{At: at.Add(time.Minute), AlarmID: "t1", Title: "Oven 1", State: "CLEARED"}); err != nil {
		t.Fatalf("RecordAlarm failed: %v", err)
	}

	alarms, err := client.Alarms(ctx, 0)
	if err != nil {
		t.Fatalf("Alarms failed: %v", err)
	}
	if len(alarms) != 2 || alarms[0].State != "CLEARED" || alarms[1].Value == nil || *alarms[1].Value != v {
		t.Fatalf("unexpected alarms: %+v", alarms)
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Raised != 1 || stats[0].LastState != "CLEARED" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestConnectionsAndJSON(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	conns, err := client.Connections(ctx, 5)
	if err != nil {
		t.Fatalf("Connections failed: %v", err)
	}
	if len(conns) != 0 {
		t.Fatalf("expected empty journal, got %d rows", len(conns))
	}

	raw, err := client.JSON(ctx, 5)
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc["alarm_count"].(float64) != 0 {
		t.Fatalf("unexpected document: %s", raw)
	}
}
