package types

import "cobitis-go/x/mathx"

// ---- Measurements ----

// Measurement is one completed sampling cycle. Values are rounded before
// publication: Temperature to 0.1 °C, TDS to whole ppm.
type Measurement struct {
	Timestamp   int64   // Unix milliseconds at the start of the cycle
	Temperature float32 // °C
	TDS         float32 // ppm
}

// ---- Link status ----

// SignalQuality buckets received signal strength into five levels.
type SignalQuality uint8

const (
	SignalUnreliable SignalQuality = iota
	SignalPoor
	SignalFair
	SignalGood
	SignalExcellent
)

// SignalFromRSSI classifies an RSSI reading in dBm. The magnitude is clamped
// to [0,100] first, so positive or absurd readings still map to a bucket.
func SignalFromRSSI(rssi int) SignalQuality {
	m := mathx.Clamp(-rssi, 0, 100)
	switch {
	case m <= 50:
		return SignalExcellent
	case m <= 60:
		return SignalGood
	case m <= 70:
		return SignalFair
	case m <= 85:
		return SignalPoor
	default:
		return SignalUnreliable
	}
}

// Level maps the quality onto 0 (Unreliable) .. 4 (Excellent).
func (q SignalQuality) Level() int {
	if q > SignalExcellent {
		return 0
	}
	return int(q)
}

func (q SignalQuality) String() string {
	switch q {
	case SignalPoor:
		return "poor"
	case SignalFair:
		return "fair"
	case SignalGood:
		return "good"
	case SignalExcellent:
		return "excellent"
	default:
		return "unreliable"
	}
}

// LinkStatus is one completed connectivity cycle.
type LinkStatus struct {
	SignalQuality SignalQuality
	RSSI          int // dBm as reported by the radio
}
