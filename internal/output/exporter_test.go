package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thermo-poller/internal/collector"
)

func samples() []collector.Sample {
	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	return []collector.Sample{
		{At: at, VariableID: "t1", Name: "Oven, left", Raw: 215, Value: 21.5, Unit: "°C"},
		{At: at.Add(time.Minute), VariableID: "t1", Name: "Oven, left", Raw: 220, Value: 22, Unit: "°C"},
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSV(path, samples()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Equal(t, []string{
		"timestamp,variable_id,variable_name,raw,value,unit",
		`2024-03-10T08:00:00Z,t1,"Oven, left",215,21.5,°C`,
		`2024-03-10T08:01:00Z,t1,"Oven, left",220,22,°C`,
	}, lines)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	s := samples()
	require.NoError(t, WriteJSON(path, Export{VariableID: "t1", Stats: collector.Summarize(s), Samples: s}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Export
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got.Samples, 2)
	require.Equal(t, 2, got.Stats.Count)
	require.InDelta(t, 21.75, got.Stats.Avg, 1e-9)
}

func TestWriteJSONEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteJSON(path, Export{VariableID: "t1"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"samples": []`)
}
