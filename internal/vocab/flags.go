package vocab

import "strings"

// QualityFlag is the single data-quality verdict attached to a measurement.
// The numeric value is the persisted quality_flag_id.
type QualityFlag uint8

const (
	FlagOK         QualityFlag = 0
	FlagOutOfRange QualityFlag = 1
	FlagMissing    QualityFlag = 2
	FlagOutlier    QualityFlag = 3
)

var flagInfo = [...]struct{ code, label, desc string }{
	FlagOK:         {"ok", "OK", "Value present and within range"},
	FlagOutOfRange: {"out_of_range", "Out of range", "Present but outside expected range"},
	FlagMissing:    {"missing", "Missing", "Value missing or non-numeric"},
	FlagOutlier:    {"outlier", "Outlier", "Statistical outlier"},
}

// QualityFlags lists every flag in id order.
func QualityFlags() []QualityFlag {
	return []QualityFlag{FlagOK, FlagOutOfRange, FlagMissing, FlagOutlier}
}

func (f QualityFlag) ID() int { return int(f) }

func (f QualityFlag) Code() string {
	if int(f) < len(flagInfo) {
		return flagInfo[f].code
	}
	return "unknown"
}

func (f QualityFlag) Label() string {
	if int(f) < len(flagInfo) {
		return flagInfo[f].label
	}
	return "Unknown"
}

func (f QualityFlag) Description() string {
	if int(f) < len(flagInfo) {
		return flagInfo[f].desc
	}
	return ""
}

func (f QualityFlag) String() string { return f.Code() }

// WaterbodyType classifies a waterbody.
type WaterbodyType string

const (
	WaterbodyReservoir WaterbodyType = "reservoir"
	WaterbodyLake      WaterbodyType = "lake"
	WaterbodyRiver     WaterbodyType = "river"
	WaterbodyLagoon    WaterbodyType = "lagoon"
	WaterbodyWetland   WaterbodyType = "wetland"
	WaterbodyCanal     WaterbodyType = "canal"
	WaterbodyUnknown   WaterbodyType = "unknown"
)

// WaterbodyTypes lists every accepted type.
func WaterbodyTypes() []WaterbodyType {
	return []WaterbodyType{
		WaterbodyReservoir, WaterbodyLake, WaterbodyRiver,
		WaterbodyLagoon, WaterbodyWetland, WaterbodyCanal, WaterbodyUnknown,
	}
}

// ParseWaterbodyType coerces s to a known type; anything unrecognized is
// WaterbodyUnknown.
func ParseWaterbodyType(s string) WaterbodyType {
	t := WaterbodyType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range WaterbodyTypes() {
		if t == known {
			return t
		}
	}
	return WaterbodyUnknown
}
