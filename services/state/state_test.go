package state

import (
	"testing"

	"cobitis-go/types"
)

func TestEmptyUntilStored(t *testing.T) {
	s := New()
	var r Reader = s
	if _, ok := r.LatestMeasurement(); ok {
		t.Fatal("measurement present before first store")
	}
	if _, ok := r.LatestLinkStatus(); ok {
		t.Fatal("link status present before first store")
	}

	s.Measurements().Store(types.Measurement{Timestamp: 1, Temperature: 20.3, TDS: 180})
	m, ok := r.LatestMeasurement()
	if !ok || m.TDS != 180 {
		t.Fatalf("measurement = %+v, %v", m, ok)
	}
	if _, ok := r.LatestLinkStatus(); ok {
		t.Fatal("caches are independent")
	}

	s.Links().Store(types.LinkStatus{SignalQuality: types.SignalGood, RSSI: -58})
	l, ok := r.LatestLinkStatus()
	if !ok || l.SignalQuality != types.SignalGood {
		t.Fatalf("link = %+v, %v", l, ok)
	}
}
