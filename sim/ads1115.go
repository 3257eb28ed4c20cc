package sim

import (
	"errors"
	"math"
	"sync"
)

var (
	errNACK = errors.New("sim: i2c address not acknowledged")
	errBus  = errors.New("sim: i2c bus error")
)

// ADS1115 emulates the converter's config and conversion registers over the
// drivers.I2C interface. Conversions complete after BusyPolls reads of the
// config register.
type ADS1115 struct {
	Addr uint16
	// BusyPolls is the number of config reads that still report a
	// conversion in progress.
	BusyPolls int

	mu       sync.Mutex
	inputs   [4]float64
	config   uint16
	conv     int16
	pending  int
	pointer  byte
	failNext int
	txCount  int
}

// NewADS1115 returns a converter at 0x48 with its power-on config.
func NewADS1115() *ADS1115 {
	return &ADS1115{Addr: 0x48, config: 0x8583}
}

// SetInput sets the voltage on single-ended input ch (0..3).
func (a *ADS1115) SetInput(ch int, volts float64) {
	a.mu.Lock()
	a.inputs[ch&3] = volts
	a.mu.Unlock()
}

// FailNext makes the next n transactions return a bus error.
func (a *ADS1115) FailNext(n int) {
	a.mu.Lock()
	a.failNext = n
	a.mu.Unlock()
}

// Config returns the last written config word.
func (a *ADS1115) Config() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// Transactions returns the number of Tx calls addressed to the chip.
func (a *ADS1115) Transactions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.txCount
}

var pgaFullScale = [8]float64{6.144, 4.096, 2.048, 1.024, 0.512, 0.256, 0.256, 0.256}

// Tx implements drivers.I2C.
func (a *ADS1115) Tx(addr uint16, w, r []byte) error {
	if addr != a.Addr {
		return errNACK
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.txCount++
	if a.failNext > 0 {
		a.failNext--
		return errBus
	}
	if len(w) > 0 {
		a.pointer = w[0] & 0x03
	}
	if len(w) == 3 && a.pointer == 0x01 {
		a.writeConfig(uint16(w[1])<<8 | uint16(w[2]))
	}
	if len(r) >= 2 {
		v := a.readReg()
		r[0], r[1] = byte(v>>8), byte(v)
	}
	return nil
}

func (a *ADS1115) writeConfig(v uint16) {
	a.config = v &^ 0x8000
	if v&0x8000 == 0 {
		a.config |= 0x8000
		return
	}
	mux := (v >> 12) & 0x07
	fs := pgaFullScale[(v>>9)&0x07]
	var in float64
	if mux >= 4 {
		in = a.inputs[mux-4]
	}
	code := math.Round(in / fs * 32767)
	a.conv = int16(math.Max(-32768, math.Min(32767, code)))
	a.pending = a.BusyPolls
	if a.pending == 0 {
		a.config |= 0x8000
	}
}

func (a *ADS1115) readReg() uint16 {
	switch a.pointer {
	case 0x00:
		return uint16(a.conv)
	case 0x01:
		if a.pending > 0 {
			a.pending--
			if a.pending == 0 {
				a.config |= 0x8000
			}
			return a.config &^ 0x8000
		}
		return a.config
	default:
		return 0
	}
}
