package collector

import (
	"math"

	"thermo-poller/internal/model"
)

// Decode interprets a raw register according to the data type.
func Decode(dt model.DataType, raw uint16) int {
	if dt == model.Int16 {
		return int(int16(raw))
	}
	return int(raw)
}

// Convert turns a raw register into engineering units:
// decoded * 10^-shift * scale + offset + calibration.
func Convert(v model.Variable, raw uint16) float64 {
	factor := 1.0
	if v.DecimalShift != 0 {
		factor = math.Pow(10, float64(-v.DecimalShift))
	}
	return float64(Decode(v.DataType, raw))*factor*v.Scale + v.Offset + v.Calibration
}
