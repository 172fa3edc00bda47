package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestAlarmLimitsViolated(t *testing.T) {
	cases := []struct {
		name   string
		limits AlarmLimits
		value  float64
		want   bool
	}{
		{"disabled", AlarmLimits{Min: ptr(0), Max: ptr(10)}, 50, false},
		{"inside", AlarmLimits{Enabled: true, Min: ptr(0), Max: ptr(10)}, 5, false},
		{"at max", AlarmLimits{Enabled: true, Min: ptr(0), Max: ptr(10)}, 10, false},
		{"above max", AlarmLimits{Enabled: true, Max: ptr(30)}, 31, true},
		{"below min", AlarmLimits{Enabled: true, Min: ptr(-5)}, -5.5, true},
		{"no bounds", AlarmLimits{Enabled: true}, 1e9, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.limits.Violated(tc.value))
		})
	}
}

func TestVariableInterval(t *testing.T) {
	require.Equal(t, 250*time.Millisecond, Variable{PollInterval: 250 * time.Millisecond}.Interval(time.Second))
	require.Equal(t, 2*time.Second, Variable{}.Interval(2*time.Second))
	require.Equal(t, DefaultPollInterval, Variable{}.Interval(0))
}

func TestParsers(t *testing.T) {
	k, err := ParseRegisterKind("Input")
	require.NoError(t, err)
	require.Equal(t, KindInput, k)
	_, err = ParseRegisterKind("coil")
	require.Error(t, err)

	dt, err := ParseDataType("")
	require.NoError(t, err)
	require.Equal(t, Uint16, dt)

	sep, err := ParseSeparator("tab")
	require.NoError(t, err)
	require.Equal(t, '\t', sep)
	_, err = ParseSeparator("|")
	require.Error(t, err)

	mode, err := ParseLogMode("DAILY")
	require.NoError(t, err)
	require.Equal(t, LogDaily, mode)
}

func TestSnapshotCloneDoesNotShare(t *testing.T) {
	s := Snapshot{Variables: []Variable{{ID: "a"}}, Zones: []Zone{{ID: "z"}}}
	c := s.Clone()
	c.Variables[0].ID = "b"
	c.Zones[0].Name = "changed"
	require.Equal(t, "a", s.Variables[0].ID)
	require.Empty(t, s.Zones[0].Name)
}
