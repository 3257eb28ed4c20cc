// Package ds18b20 adapts the TinyGo DS18B20 driver to the probe: ROM
// discovery, typed errors and a two-phase measurement API.
//
//	d.StartConversion()              // issue CONVERT T (fast)
//	time.Sleep(d.ConversionTime())   // resolution-dependent
//	c, err := d.ReadCelsius()        // fetch and CRC-check the scratchpad
//
// The bus is the TinyGo OneWireDevice plus a ROM search, so the same code
// runs on onewire.Device and on an emulated bus.
package ds18b20

import (
	"errors"
	"time"

	"cobitis-go/errcode"

	tgds "tinygo.org/x/drivers/ds18b20"
)

// FamilyCode is the first ROM byte of every DS18B20.
const FamilyCode = 0x28

// Errors returned by the driver.
var (
	ErrNotFound = errcode.Wrap(errcode.DeviceNotFound, "ds18b20", errors.New("no device with family 0x28 on the bus"))
	ErrCRC      = errcode.Wrap(errcode.CRCMismatch, "ds18b20", errors.New("scratchpad crc mismatch"))
)

// Bus is a one-wire master: byte I/O, ROM select and the Dallas CRC from
// tinygo.org/x/drivers/ds18b20, plus a search of the attached ROMs.
type Bus interface {
	tgds.OneWireDevice
	Search() ([]ROM, error)
}

// ROM is a 64-bit one-wire device address: family, 48-bit serial, CRC.
type ROM [8]byte

// Family returns the family code byte.
func (r ROM) Family() byte { return r[0] }

// Discover scans the bus once and returns the first DS18B20 whose ROM CRC
// checks out.
func Discover(bus Bus) (ROM, error) {
	roms, err := bus.Search()
	if err != nil {
		return ROM{}, err
	}
	for _, r := range roms {
		if r.Family() == FamilyCode && bus.Сrc8(r[:]) == 0 {
			return r, nil
		}
	}
	return ROM{}, ErrNotFound
}

// Resolution is the conversion resolution in bits (9..12).
type Resolution uint8

const (
	Bits9  Resolution = 9
	Bits10 Resolution = 10
	Bits11 Resolution = 11
	Bits12 Resolution = 12
)

func (r Resolution) valid() bool { return r >= Bits9 && r <= Bits12 }

// ConversionTime is the worst-case CONVERT T duration at r.
func (r Resolution) ConversionTime() time.Duration {
	if !r.valid() {
		r = Bits12
	}
	return 93750 * time.Microsecond << (r - Bits9)
}

// Device addresses one DS18B20 on a shared bus.
type Device struct {
	dev tgds.Device
	rom ROM
	res Resolution
}

// New binds a device address to a bus. The power-on resolution is 12 bits.
func New(bus Bus, rom ROM) *Device {
	return &Device{dev: tgds.New(bus), rom: rom, res: Bits12}
}

func (d *Device) ROM() ROM { return d.rom }

func (d *Device) Resolution() Resolution { return d.res }

// ConversionTime is the wait required between StartConversion and ReadCelsius.
func (d *Device) ConversionTime() time.Duration { return d.res.ConversionTime() }

// SetResolution writes the configuration register.
func (d *Device) SetResolution(r Resolution) error {
	if !r.valid() {
		return errcode.Wrap(errcode.InvalidParams, "ds18b20.resolution", nil)
	}
	d.dev.ThermometerResolution(d.rom[:], uint8(r))
	d.res = r
	return nil
}

// StartConversion issues CONVERT T. A missing device is not detected here;
// it shows up as a CRC failure on the following read.
func (d *Device) StartConversion() error {
	d.dev.RequestTemperature(d.rom[:])
	return nil
}

// ReadCelsius reads the scratchpad and returns the last converted temperature.
func (d *Device) ReadCelsius() (float32, error) {
	raw, err := d.dev.ReadTemperatureRaw(d.rom[:])
	if err != nil {
		return 0, &errcode.E{C: errcode.CRCMismatch, Op: "ds18b20.read", Msg: err.Error(), Err: ErrCRC}
	}
	return float32(int16(uint16(raw[1])<<8|uint16(raw[0]))) / 16, nil
}
