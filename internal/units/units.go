// Package units converts the metre-per-second speeds used internally
// into the units match reports are read in.
package units

// Speed unit identifiers accepted in configs and report output.
const (
	MPS = "mps"
	KPH = "kph"
	MPH = "mph"
)

// ValidUnits lists all accepted speed unit identifiers.
var ValidUnits = []string{MPS, KPH, MPH}

// IsValid reports whether unit is an accepted speed unit identifier.
func IsValid(unit string) bool {
	for _, v := range ValidUnits {
		if unit == v {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed in metres per second to the target unit.
// Unknown units pass the value through unchanged.
func ConvertSpeed(speedMPS float64, targetUnit string) float64 {
	switch targetUnit {
	case KPH:
		return speedMPS * 3.6
	case MPH:
		return speedMPS * 2.2369362920544
	default:
		return speedMPS
	}
}
