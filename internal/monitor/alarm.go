package monitor

import (
	"fmt"

	"thermo-poller/internal/model"
)

// ZoneAlarmPrefix marks zone alarm IDs: "zone:<zone id>".
const ZoneAlarmPrefix = "zone:"

// VariableInAlarm reports whether value trips the variable's limits.
func VariableInAlarm(v model.Variable, value float64) bool {
	return v.Alarm.Violated(value)
}

// ZoneInAlarm evaluates a zone against its average. A zone without fresh
// members (nil avg) is never in alarm.
func ZoneInAlarm(z model.Zone, avg *float64) bool {
	if avg == nil {
		return false
	}
	return z.Alarm.Violated(*avg)
}

// ZoneAlarmID returns the alarm ID used for zone zoneID.
func ZoneAlarmID(zoneID string) string { return ZoneAlarmPrefix + zoneID }

// alarmDetail describes which bound value crossed.
func alarmDetail(value float64, limits model.AlarmLimits, unit string) string {
	switch {
	case limits.Min != nil && value < *limits.Min:
		return fmt.Sprintf("%.2f%s < %.2f%s", value, unit, *limits.Min, unit)
	case limits.Max != nil && value > *limits.Max:
		return fmt.Sprintf("%.2f%s > %.2f%s", value, unit, *limits.Max, unit)
	default:
		return fmt.Sprintf("%.2f%s", value, unit)
	}
}
