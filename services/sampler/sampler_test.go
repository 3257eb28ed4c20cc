package sampler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cobitis-go/drivers/ads1115"
	"cobitis-go/drivers/ds18b20"
	"cobitis-go/errcode"
	"cobitis-go/sim"
	"cobitis-go/types"
	"cobitis-go/x/logx"
	"cobitis-go/x/snapshot"
)

// code3406 is the ADS1115 input that yields 180 ppm at 20.3 °C.
const code3406 = 3406 * 4.096 / 32767

type rig struct {
	th    *sim.Thermometer
	bus   *sim.OneWire
	chip  *sim.ADS1115
	cache *snapshot.Cache[types.Measurement]
	s     *Sampler
	logs  *bytes.Buffer
	obs   *recorder
}

type recorder struct{ errs []error }

func (r *recorder) ObserveCycle(_ string, err error) { r.errs = append(r.errs, err) }

func newRig(t *testing.T, celsius, volts float64) *rig {
	t.Helper()
	r := &rig{
		th:    sim.NewThermometer(0x0102030405, celsius),
		chip:  sim.NewADS1115(),
		cache: snapshot.New[types.Measurement](),
		logs:  &bytes.Buffer{},
		obs:   &recorder{},
	}
	r.bus = sim.NewOneWire(r.th)
	r.chip.SetInput(0, volts)
	adc := ads1115.New(r.chip)
	r.s = New(logx.New(r.logs, "debug", "text"), r.bus, adc, r.cache, Config{
		Interval:      20 * time.Millisecond,
		DiscoverDelay: time.Millisecond,
		Observer:      r.obs,
	})
	r.s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return r
}

func TestTDSFormula(t *testing.T) {
	if got := TDS(Compensate(1.0, 25)); got != 367 {
		t.Fatalf("TDS(1.0 V @ 25 °C) = %v, want 367", got)
	}
	if got := Compensate(1.0, 25); got != 1.0 {
		t.Fatalf("compensation at 25 °C = %v", got)
	}
	if got := TDS(0); got != 0 {
		t.Fatalf("TDS(0) = %v", got)
	}
	if v := Voltage(32767); v < 4.0959 || v > 4.0961 {
		t.Fatalf("Voltage(full scale) = %v", v)
	}
}

func TestEndToEndCycle(t *testing.T) {
	r := newRig(t, 20.3, code3406)
	ctx := context.Background()
	if err := r.s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if r.th.Config() != 0x7F {
		t.Fatalf("resolution config = %#x, want 12-bit", r.th.Config())
	}
	if _, ok := r.cache.Load(); ok {
		t.Fatal("cache populated before first cycle")
	}

	fixed := time.UnixMilli(1_700_000_000_123)
	r.s.now = func() time.Time { return fixed }
	if err := r.s.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	m, ok := r.cache.Load()
	if !ok {
		t.Fatal("no measurement after cycle")
	}
	want := types.Measurement{Timestamp: fixed.UnixMilli(), Temperature: 20.3, TDS: 180}
	if m != want {
		t.Fatalf("measurement = %+v, want %+v", m, want)
	}
	if got := r.chip.Config() & 0x0E00; got != 0x0200 {
		t.Fatalf("pga bits = %#x, want ±4.096 V", got)
	}
}

func TestInitDeviceNotFound(t *testing.T) {
	r := newRig(t, 20, 1)
	r.bus.SetAbsent(true)
	err := r.s.Init(context.Background())
	if !errors.Is(err, errcode.DeviceNotFound) || !errors.Is(err, ds18b20.ErrNotFound) {
		t.Fatalf("err = %v, want device_not_found", err)
	}
	if n := strings.Count(r.logs.String(), "rescanning"); n != 2 {
		t.Fatalf("rescans logged = %d, want 2", n)
	}
}

func TestTransientReadRecovers(t *testing.T) {
	r := newRig(t, 25, 1.0)
	ctx := context.Background()
	if err := r.s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	r.th.CorruptReads(2)
	if err := r.s.Cycle(ctx); err != nil {
		t.Fatalf("cycle with 2 bad reads: %v", err)
	}
	if r.th.Conversions() != 3 {
		t.Fatalf("conversions = %d, want 3", r.th.Conversions())
	}
	m, ok := r.cache.Load()
	if !ok || m.Temperature != 25 {
		t.Fatalf("measurement = %+v, %v", m, ok)
	}
}

func TestExhaustedReadLeavesCacheStale(t *testing.T) {
	r := newRig(t, 25, 1.0)
	ctx := context.Background()
	if err := r.s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.s.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := r.cache.Load()

	r.th.Set(30)
	for k := 0; k < 3; k++ {
		r.th.CorruptReads(3)
		err := r.s.Cycle(ctx)
		if !errors.Is(err, ds18b20.ErrCRC) {
			t.Fatalf("cycle %d err = %v, want crc", k, err)
		}
	}
	after, ok := r.cache.Load()
	if !ok || after != before {
		t.Fatalf("cache = %+v, want unchanged %+v", after, before)
	}
}

func TestADCFailureIsCycleFailure(t *testing.T) {
	r := newRig(t, 25, 1.0)
	ctx := context.Background()
	if err := r.s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	r.chip.FailNext(1)
	if err := r.s.Cycle(ctx); err == nil {
		t.Fatal("expected adc error")
	}
	if _, ok := r.cache.Load(); ok {
		t.Fatal("cache written on failed cycle")
	}
}

func TestRunLogsFailuresAndKeepsGoing(t *testing.T) {
	r := newRig(t, 25, 1.0)
	r.th.CorruptReads(3) // first cycle fails

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	err := r.s.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v", err)
	}
	if len(r.obs.errs) < 2 {
		t.Fatalf("cycles observed = %d", len(r.obs.errs))
	}
	if r.obs.errs[0] == nil || r.obs.errs[1] != nil {
		t.Fatalf("observed = %v, want [fail ok ...]", r.obs.errs)
	}
	if !strings.Contains(r.logs.String(), "cycle failed") {
		t.Fatal("failure not logged")
	}
	if m, ok := r.cache.Load(); !ok || m.TDS != 367 {
		t.Fatalf("measurement = %+v, %v", m, ok)
	}
}

func TestRunReturnsInitError(t *testing.T) {
	r := newRig(t, 25, 1.0)
	r.bus.SetAbsent(true)
	if err := r.s.Run(context.Background()); !errors.Is(err, errcode.DeviceNotFound) {
		t.Fatalf("Run = %v", err)
	}
}
