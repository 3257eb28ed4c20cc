// Package sampler is the sample acquisition loop: it owns the DS18B20 and the
// ADS1115, derives a temperature-compensated TDS value every cycle and
// publishes a Measurement.
package sampler

import (
	"context"
	"log/slog"
	"math"
	"time"

	"cobitis-go/drivers/ads1115"
	"cobitis-go/drivers/ds18b20"
	"cobitis-go/errcode"
	"cobitis-go/services/state"
	"cobitis-go/types"
	"cobitis-go/x/logx"
	"cobitis-go/x/mathx"
	"cobitis-go/x/retry"
	"cobitis-go/x/snapshot"
	"cobitis-go/x/tick"
)

const Component = "sampler"

const (
	DefaultInterval      = 5 * time.Second
	DefaultDiscoverDelay = 1 * time.Second

	// ADC input range and positive full-scale code used for the TDS probe.
	FullScaleVolts = 4.096
	FullScaleCode  = ads1115.MaxCode

	compPerDegree = 0.02
	compRefC      = 25.0
)

// Thermometer is a two-phase temperature sensor.
type Thermometer interface {
	StartConversion() error
	ConversionTime() time.Duration
	ReadCelsius() (float32, error)
}

// ADC is a single-shot analog input.
type ADC interface {
	SetRange(r ads1115.Range)
	Read(ch ads1115.Channel) (int16, error)
}

// Config tunes the loop. Zero fields take defaults.
type Config struct {
	Interval      time.Duration
	DiscoverDelay time.Duration
	Channel       ads1115.Channel
	Observer      state.Observer
}

// Sampler is the sample acquirer. It is the only writer of its cache.
type Sampler struct {
	log   *slog.Logger
	bus   ds18b20.Bus
	adc   ADC
	out   *snapshot.Cache[types.Measurement]
	cfg   Config
	therm Thermometer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(log *slog.Logger, bus ds18b20.Bus, adc ADC, out *snapshot.Cache[types.Measurement], cfg Config) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DiscoverDelay <= 0 {
		cfg.DiscoverDelay = DefaultDiscoverDelay
	}
	if cfg.Observer == nil {
		cfg.Observer = state.Nop{}
	}
	return &Sampler{
		log:   log.With(slog.String("svc", Component)),
		bus:   bus,
		adc:   adc,
		out:   out,
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Init finds the thermometer (3 scans, DiscoverDelay apart), sets it to
// 12-bit resolution and selects the ADC range. Any error is fatal.
func (s *Sampler) Init(ctx context.Context) error {
	p := retry.Policy{
		Delay: s.cfg.DiscoverDelay,
		OnRetry: func(n int, err error) {
			s.log.Warn("thermometer not found, rescanning", slog.Int("attempt", n), logx.Err(err))
		},
	}
	rom, err := retry.Value(ctx, p, func() (ds18b20.ROM, error) { return ds18b20.Discover(s.bus) })
	if err != nil {
		return errcode.Wrap(errcode.Of(err), "sampler.init", err)
	}
	dev := ds18b20.New(s.bus, rom)
	if err := dev.SetResolution(ds18b20.Bits12); err != nil {
		return errcode.Wrap(errcode.Of(err), "sampler.init", err)
	}
	s.therm = dev
	s.adc.SetRange(ads1115.Range4V096)
	s.log.Info("sensors ready", slog.String("rom", hexROM(rom)))
	return nil
}

// Cycle performs one measurement and publishes it. On error the cache is
// left untouched.
func (s *Sampler) Cycle(ctx context.Context) error {
	ts := s.now().UnixMilli()

	p := retry.Policy{
		OnRetry: func(n int, err error) {
			s.log.Debug("temperature read failed, retrying", slog.Int("attempt", n), logx.Err(err))
		},
	}
	temp, err := retry.Value(ctx, p, func() (float32, error) { return s.readTemperature(ctx) })
	if err != nil {
		return errcode.Wrap(errcode.Of(err), "sampler.temperature", err)
	}
	temp = mathx.RoundTo(temp, 1)

	raw, err := s.adc.Read(s.cfg.Channel)
	if err != nil {
		return errcode.Wrap(errcode.Of(err), "sampler.adc", err)
	}

	v := Compensate(Voltage(raw), temp)
	s.out.Store(types.Measurement{
		Timestamp:   ts,
		Temperature: temp,
		TDS:         TDS(v),
	})
	return nil
}

func (s *Sampler) readTemperature(ctx context.Context) (float32, error) {
	if err := s.therm.StartConversion(); err != nil {
		return 0, err
	}
	if err := s.sleep(ctx, s.therm.ConversionTime()); err != nil {
		return 0, err
	}
	return s.therm.ReadCelsius()
}

// Run initialises the sensors and then samples every Interval until ctx is
// done. It only returns early on an initialisation failure.
func (s *Sampler) Run(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		s.log.Error("init failed", logx.Err(err))
		return err
	}
	return tick.Every(ctx, s.cfg.Interval, func(ctx context.Context, _ time.Time) {
		err := s.Cycle(ctx)
		if err != nil {
			s.log.Error("cycle failed", logx.Err(err))
		}
		s.cfg.Observer.ObserveCycle(Component, err)
	})
}

// Voltage converts a raw ADS1115 code at ±4.096 V into volts.
func Voltage(raw int16) float32 {
	return float32(raw) * FullScaleVolts / FullScaleCode
}

// Compensate normalises a probe voltage to its 25 °C equivalent.
func Compensate(v, tempC float32) float32 {
	return v / (1 + compPerDegree*(tempC-compRefC))
}

// TDS applies the probe's calibration cubic and rounds to whole ppm.
func TDS(v float32) float32 {
	x := float64(v)
	return float32(math.Round((133.42*x*x*x - 255.86*x*x + 857.39*x) * 0.5))
}

func hexROM(r ds18b20.ROM) string {
	const digits = "0123456789abcdef"
	b := make([]byte, 0, 16)
	for _, c := range r {
		b = append(b, digits[c>>4], digits[c&0x0f])
	}
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
