// Package sim emulates the probe's peripherals at their wire protocols: a
// one-wire bus with DS18B20 thermometers, an ADS1115 register file behind an
// I2C interface and an ESP-AT modem behind a serial port. The drivers run
// against them unmodified, which is how cmd/probe-sim and the service tests
// exercise the full stack on a host.
package sim

import (
	"errors"
	"math"
	"sync"

	"cobitis-go/drivers/ds18b20"
)

var errNoPresence = errors.New("sim: no presence pulse")

// Thermometer is one emulated DS18B20.
type Thermometer struct {
	rom ds18b20.ROM

	mu         sync.Mutex
	celsius    float64
	config     byte
	th, tl     byte
	scratch    [9]byte
	badCRC     int // corrupt the next n scratchpad reads
	conversion int // CONVERT T commands seen
}

// NewThermometer returns a DS18B20 with the given 48-bit serial, reading
// celsius. It powers up at 12-bit resolution with 85 °C in the scratchpad.
func NewThermometer(serial uint64, celsius float64) *Thermometer {
	var rom ds18b20.ROM
	rom[0] = ds18b20.FamilyCode
	for i := 1; i <= 6; i++ {
		rom[i] = byte(serial >> (8 * (i - 1)))
	}
	rom[7] = crc8(rom[:7])
	t := &Thermometer{rom: rom, celsius: celsius, config: 0x7F, th: 0x4B, tl: 0x46}
	t.latch(85)
	return t
}

func (t *Thermometer) ROM() ds18b20.ROM { return t.rom }

// Set changes the temperature reported by the next conversion.
func (t *Thermometer) Set(celsius float64) {
	t.mu.Lock()
	t.celsius = celsius
	t.mu.Unlock()
}

// CorruptReads makes the next n scratchpad reads fail their CRC.
func (t *Thermometer) CorruptReads(n int) {
	t.mu.Lock()
	t.badCRC = n
	t.mu.Unlock()
}

// Config returns the configuration register.
func (t *Thermometer) Config() byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config
}

// Conversions returns how many CONVERT T commands were received.
func (t *Thermometer) Conversions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversion
}

func (t *Thermometer) convert() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversion++
	t.latch(t.celsius)
}

// latch fills the scratchpad; callers hold mu.
func (t *Thermometer) latch(c float64) {
	raw := int16(math.Round(c * 16))
	// lower resolutions leave the undefined low bits clear
	raw &^= int16(1<<(3-(t.config>>5&0x03))) - 1
	t.scratch = [9]byte{byte(raw), byte(uint16(raw) >> 8), t.th, t.tl, t.config, 0xFF, 0x0C, 0x10}
	t.scratch[8] = crc8(t.scratch[:8])
}

func (t *Thermometer) readScratchpad() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.scratch
	if t.badCRC > 0 {
		t.badCRC--
		out[8] ^= 0xFF
	}
	return out[:]
}

func (t *Thermometer) writeScratchpad(th, tl, cfg byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.th, t.tl, t.config = th, tl, cfg&0x60|0x1F
	t.scratch[2], t.scratch[3], t.scratch[4] = t.th, t.tl, t.config
	t.scratch[8] = crc8(t.scratch[:8])
}

// OneWire is an emulated bus master with any number of thermometers.
// It implements ds18b20.Bus, and so the TinyGo ds18b20 OneWireDevice.
type OneWire struct {
	mu      sync.Mutex
	devices []*Thermometer
	absent  bool

	// transaction state since the last Select
	phase    int
	romBuf   []byte
	selected *Thermometer
	args     []byte
	rx       []byte
}

const (
	phaseROM = iota
	phaseMatch
	phaseFunction
	phaseWriteArgs
	phaseIdle
)

func NewOneWire(devs ...*Thermometer) *OneWire {
	return &OneWire{devices: devs, phase: phaseIdle}
}

// Attach adds a device to the bus.
func (b *OneWire) Attach(t *Thermometer) {
	b.mu.Lock()
	b.devices = append(b.devices, t)
	b.mu.Unlock()
}

// SetAbsent simulates a disconnected data line: Select sees no presence pulse
// and Search finds nothing.
func (b *OneWire) SetAbsent(v bool) {
	b.mu.Lock()
	b.absent = v
	b.mu.Unlock()
}

// Select resets the bus and addresses romid with MATCH ROM, or every device
// with SKIP ROM when romid is empty.
func (b *OneWire) Select(romid []uint8) error {
	if err := b.reset(); err != nil {
		return err
	}
	if len(romid) == 0 {
		b.Write(0xCC)
		return nil
	}
	b.Write(0x55)
	for _, v := range romid {
		b.Write(v)
	}
	return nil
}

func (b *OneWire) Сrc8(p []uint8) uint8 { return crc8(p) }

func (b *OneWire) reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phase, b.selected, b.romBuf, b.args, b.rx = phaseROM, nil, nil, nil, nil
	if b.absent || len(b.devices) == 0 {
		b.phase = phaseIdle
		return errNoPresence
	}
	return nil
}

func (b *OneWire) Write(v uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.phase {
	case phaseROM:
		switch v {
		case 0x55:
			b.phase = phaseMatch
		case 0xCC:
			if len(b.devices) == 1 {
				b.selected = b.devices[0]
			}
			b.phase = phaseFunction
		default:
			b.phase = phaseIdle
		}
	case phaseMatch:
		b.romBuf = append(b.romBuf, v)
		if len(b.romBuf) == 8 {
			for _, d := range b.devices {
				if string(d.rom[:]) == string(b.romBuf) {
					b.selected = d
				}
			}
			b.phase = phaseFunction
		}
	case phaseFunction:
		if b.selected == nil {
			b.phase = phaseIdle
			return
		}
		switch v {
		case 0x44:
			b.selected.convert()
			b.phase = phaseIdle
		case 0xBE:
			b.rx = b.selected.readScratchpad()
			b.phase = phaseIdle
		case 0x4E:
			b.phase = phaseWriteArgs
		default:
			b.phase = phaseIdle
		}
	case phaseWriteArgs:
		b.args = append(b.args, v)
		if len(b.args) == 3 {
			b.selected.writeScratchpad(b.args[0], b.args[1], b.args[2])
			b.phase = phaseIdle
		}
	}
}

// Read returns the next scratchpad byte, or 0xFF (released line) when there
// is nothing to send.
func (b *OneWire) Read() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rx) == 0 {
		return 0xFF
	}
	v := b.rx[0]
	b.rx = b.rx[1:]
	return v
}

func (b *OneWire) Search() ([]ds18b20.ROM, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.absent {
		return nil, nil
	}
	out := make([]ds18b20.ROM, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, d.rom)
	}
	return out, nil
}

// crc8 is the Dallas/Maxim one-wire CRC (x^8 + x^5 + x^4 + 1) the emulated
// devices sign their ROM and scratchpad with.
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			mix := (crc ^ b) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			b >>= 1
		}
	}
	return crc
}
