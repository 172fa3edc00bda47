package collector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thermo-poller/internal/model"
)

func newTestStorage(t *testing.T, settings model.LoggingSettings, clk *fakeClock) *Storage {
	t.Helper()
	s := NewStorage(settings, nil)
	s.now = clk.Now
	return s
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestStorageDisabledWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	s := newTestStorage(t, model.LoggingSettings{Folder: dir, Mode: model.LogSingle}, newFakeClock())
	s.Log(variable("a", 1, model.KindHolding, 104), 1, 1)
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestStoragePerVariableFile(t *testing.T) {
	dir := t.TempDir()
	clk := newFakeClock()
	s := newTestStorage(t, model.LoggingSettings{Enabled: true, Folder: dir, Mode: model.LogPerVariable, Separator: ';'}, clk)

	v := variable("id-1", 1, model.KindHolding, 104)
	v.Name = "Cámara 1/Sur"
	s.Log(v, 215, 21.5)

	path := filepath.Join(dir, "Cámara 1_Sur_id-1_2024-03-10.csv")
	lines := readLines(t, path)
	require.Equal(t, []string{
		"timestamp;variable_id;variable_name;raw;value;unit",
		"2024-03-10T08:00:00;id-1;Cámara 1/Sur;215;21.5;°C",
	}, lines)
}

func TestStorageThrottlesPerVariable(t *testing.T) {
	dir := t.TempDir()
	clk := newFakeClock()
	s := newTestStorage(t, model.LoggingSettings{Enabled: true, Folder: dir, Mode: model.LogSingle, Separator: ',', Interval: 10 * time.Second}, clk)

	a := variable("a", 1, model.KindHolding, 104)
	b := variable("b", 1, model.KindHolding, 105)
	s.Log(a, 1, 1)
	s.Log(b, 2, 2)
	clk.Advance(5 * time.Second)
	s.Log(a, 3, 3)
	clk.Advance(5 * time.Second)
	s.Log(a, 4, 4)

	lines := readLines(t, filepath.Join(dir, "termo_log.csv"))
	require.Len(t, lines, 4, "header plus three rows")
	require.True(t, strings.HasPrefix(lines[3], "2024-03-10T08:00:10,a,"))
}

func TestStorageHeaderWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	clk := newFakeClock()
	settings := model.LoggingSettings{Enabled: true, Folder: dir, Mode: model.LogDaily, Separator: '\t'}
	s := newTestStorage(t, settings, clk)
	v := variable("a", 1, model.KindHolding, 104)
	s.Log(v, 1, 1)
	s.Log(v, 2, 2)

	// a fresh logger appending to the same file must not repeat the header
	s2 := newTestStorage(t, settings, clk)
	s2.Log(v, 3, 3)

	lines := readLines(t, filepath.Join(dir, "termo_2024-03-10.csv"))
	require.Len(t, lines, 4)
	require.Equal(t, "timestamp\tvariable_id\tvariable_name\traw\tvalue\tunit", lines[0])
}

func TestStorageEmptyFileGetsHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "termo_log.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	s := newTestStorage(t, model.LoggingSettings{Enabled: true, Folder: dir, Mode: model.LogSingle}, newFakeClock())
	s.Log(variable("a", 1, model.KindHolding, 104), 1, 1)
	lines := readLines(t, path)
	require.Equal(t, "timestamp,variable_id,variable_name,raw,value,unit", lines[0])
}

func TestStorageSwallowsIOErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := newTestStorage(t, model.LoggingSettings{Enabled: true, Folder: blocker, Mode: model.LogSingle}, newFakeClock())
	require.NotPanics(t, func() { s.Log(variable("a", 1, model.KindHolding, 104), 1, 1) })
}

func TestStorageConfigureCreatesFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	s := NewStorage(model.LoggingSettings{}, nil)
	s.Configure(model.LoggingSettings{Enabled: true, Folder: dir})
	st, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, st.IsDir())
	require.Equal(t, ',', s.Settings().Separator)
	require.Equal(t, model.LogPerVariable, s.Settings().Mode)
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	v := model.Variable{ID: "x1", Name: "Horno #2"}
	require.Equal(t, "termo_log.csv", FileName(model.LogSingle, v, ts))
	require.Equal(t, "termo_2024-01-02.csv", FileName(model.LogDaily, v, ts))
	require.Equal(t, "Horno _2_x1_2024-01-02.csv", FileName(model.LogPerVariable, v, ts))
	require.Equal(t, "Horno _2_2024-01-02.csv", FileName(model.LogPerVariable, model.Variable{Name: "Horno #2"}, ts))
}

func TestSafeName(t *testing.T) {
	require.Equal(t, "a-b_c d", SafeName("a-b_c d"))
	require.Equal(t, "x", SafeName("  x  "))
	require.Equal(t, "T_1 _A_", SafeName("T/1 (A)"))
	require.Equal(t, "Cámara", SafeName("Cámara"))
}
