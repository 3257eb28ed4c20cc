// Package ads1115 provides a single-shot driver for the TI ADS1115 16-bit ADC.
//
//	adc := ads1115.New(bus)
//	adc.Configure(ads1115.Config{Range: ads1115.Range4V096})
//	raw, err := adc.Read(ads1115.A0)   // start conversion, poll, fetch
//	v := adc.Volts(raw)
//
// Every Read writes a complete config word (OS | MUX | PGA | MODE | DR |
// comparator disabled), polls the OS bit until the conversion completes and
// then reads the conversion register. The driver holds no state between reads
// other than its configuration.
package ads1115

import (
	"errors"
	"time"

	"cobitis-go/errcode"

	"tinygo.org/x/drivers"
)

// Default I2C address (ADDR pin tied to GND).
const Address = 0x48

// Registers.
const (
	regConversion = 0x00
	regConfig     = 0x01
)

// Config register fields.
const (
	cfgOSSingle   uint16 = 0x8000 // write: start; read: 1 when idle
	cfgModeSingle uint16 = 0x0100
	cfgCompQueOff uint16 = 0x0003
)

// Errors returned by the driver.
var (
	ErrTimeout = errcode.Wrap(errcode.Timeout, "ads1115", errors.New("conversion did not complete"))
	ErrChannel = errcode.Wrap(errcode.InvalidParams, "ads1115", errors.New("unknown channel"))
)

// Channel selects a single-ended input (AINx vs GND).
type Channel uint8

const (
	A0 Channel = iota
	A1
	A2
	A3
)

func (c Channel) mux() (uint16, bool) {
	if c > A3 {
		return 0, false
	}
	return 0x4000 + uint16(c)<<12, true
}

// Range is the programmable-gain full-scale setting.
type Range uint8

const (
	_ Range = iota
	Range6V144
	Range4V096
	Range2V048
	Range1V024
	Range0V512
	Range0V256
)

// pga returns the config register bits for r.
func (r Range) pga() uint16 {
	if r < Range6V144 || r > Range0V256 {
		r = Range2V048
	}
	return uint16(r-Range6V144) << 9
}

// FullScale returns the positive full-scale voltage of r.
func (r Range) FullScale() float32 {
	switch r {
	case Range6V144:
		return 6.144
	case Range4V096:
		return 4.096
	case Range1V024:
		return 1.024
	case Range0V512:
		return 0.512
	case Range0V256:
		return 0.256
	default:
		return 2.048 // power-on default
	}
}

// DataRate is the conversion rate in samples per second.
type DataRate uint16

const (
	Rate250 DataRate = 0x00A0
	Rate128 DataRate = 0x0080
	Rate860 DataRate = 0x00E0
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x48 if zero.
	Address uint16
	// Range defaults to ±2.048 V (the chip's power-on value).
	Range Range
	// DataRate defaults to 128 SPS.
	DataRate DataRate
	// PollInterval between OS-bit reads. Default 200 µs.
	PollInterval time.Duration
	// Timeout bounds one conversion. Default 50 ms.
	Timeout time.Duration
}

// MaxCode is the conversion code reported at positive full scale.
const MaxCode = 32767

// Device wraps an I2C connection to an ADS1115.
type Device struct {
	bus drivers.I2C
	cfg Config
	buf [3]byte
}

// New creates a Device with default configuration. It does not touch the bus.
func New(bus drivers.I2C) *Device {
	d := &Device{bus: bus}
	d.Configure(Config{})
	return d
}

// Configure applies cfg, filling defaults for zero fields.
func (d *Device) Configure(cfg Config) {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.Range == 0 {
		cfg.Range = Range2V048
	}
	if cfg.DataRate == 0 {
		cfg.DataRate = Rate128
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Microsecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 50 * time.Millisecond
	}
	d.cfg = cfg
}

// SetRange changes the full-scale range used by subsequent reads.
func (d *Device) SetRange(r Range) { d.cfg.Range = r }

// Range returns the configured full-scale range.
func (d *Device) Range() Range { return d.cfg.Range }

// Read performs one single-shot conversion on ch and returns the raw code.
func (d *Device) Read(ch Channel) (int16, error) {
	mux, ok := ch.mux()
	if !ok {
		return 0, ErrChannel
	}
	word := cfgOSSingle | mux | d.cfg.Range.pga() | cfgModeSingle | uint16(d.cfg.DataRate) | cfgCompQueOff
	if err := d.writeReg(regConfig, word); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(d.cfg.Timeout)
	for {
		st, err := d.readReg(regConfig)
		if err != nil {
			return 0, err
		}
		if st&cfgOSSingle != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		time.Sleep(d.cfg.PollInterval)
	}

	v, err := d.readReg(regConversion)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

// Volts converts a raw code to volts using the configured range.
func (d *Device) Volts(raw int16) float32 {
	return float32(raw) * d.cfg.Range.FullScale() / MaxCode
}

func (d *Device) writeReg(reg byte, v uint16) error {
	d.buf[0] = reg
	d.buf[1] = byte(v >> 8)
	d.buf[2] = byte(v)
	return d.bus.Tx(d.cfg.Address, d.buf[:3], nil)
}

func (d *Device) readReg(reg byte) (uint16, error) {
	d.buf[0] = reg
	if err := d.bus.Tx(d.cfg.Address, d.buf[:1], d.buf[1:3]); err != nil {
		return 0, err
	}
	return uint16(d.buf[1])<<8 | uint16(d.buf[2]), nil
}
