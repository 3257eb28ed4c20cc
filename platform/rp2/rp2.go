//go:build rp2040 || rp2350

// Package rp2 binds the probe's drivers to Pico hardware.
package rp2

import (
	"runtime"
	"time"

	"cobitis-go/drivers/ds18b20"
	"cobitis-go/errcode"
	"cobitis-go/x/i2cshare"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers/onewire"
)

// Board wiring.
const (
	OneWirePin = machine.GPIO5
	I2CSDA     = machine.GPIO6
	I2CSCL     = machine.GPIO7
	I2CHz      = 400_000

	ModemTX   = machine.GPIO8
	ModemRX   = machine.GPIO9
	ModemBaud = 115200

	// per-transaction bound for shared-bus handles
	I2CTimeout = 250 * time.Millisecond
)

// Board holds the configured peripherals.
type Board struct {
	I2C   *i2cshare.Owner
	Modem *uartx.UART
	Wire  *OneWire
}

// Setup configures pins, the I2C bus and the modem UART. Start the I2C
// owner (Board.I2C.Run) before using any handle.
func Setup() (*Board, error) {
	I2CSDA.Configure(machine.PinConfig{Mode: machine.PinI2C})
	I2CSCL.Configure(machine.PinConfig{Mode: machine.PinI2C})
	hw := machine.I2C1
	if err := hw.Configure(machine.I2CConfig{SDA: I2CSDA, SCL: I2CSCL, Frequency: I2CHz}); err != nil {
		return nil, err
	}

	u := uartx.UART1
	if err := u.Configure(uartx.UARTConfig{BaudRate: ModemBaud, TX: ModemTX, RX: ModemRX}); err != nil {
		return nil, err
	}

	return &Board{
		I2C:   i2cshare.New(hw),
		Modem: u,
		Wire:  NewOneWire(OneWirePin),
	}, nil
}

// OneWire adapts the bit-banged TinyGo master to ds18b20.Bus: byte I/O,
// Select and the CRC come straight from onewire.Device.
type OneWire struct {
	dev onewire.Device
}

func NewOneWire(pin machine.Pin) *OneWire {
	return &OneWire{dev: onewire.New(pin)}
}

func (w *OneWire) Write(b uint8) { w.dev.Write(b) }
func (w *OneWire) Read() uint8 { return w.dev.Read() }
func (w *OneWire) Select(romid []uint8) error { return w.dev.Select(romid) }
func (w *OneWire) Сrc8(p []uint8) uint8 { return w.dev.Сrc8(p) }

func (w *OneWire) Search() ([]ds18b20.ROM, error) {
	found, err := w.dev.Search(onewire.SEARCH_ROM)
	if err != nil {
		return nil, errcode.Wrap(errcode.NoPresence, "onewire.search", err)
	}
	roms := make([]ds18b20.ROM, 0, len(found))
	for _, f := range found {
		if len(f) != len(ds18b20.ROM{}) {
			continue
		}
		var r ds18b20.ROM
		copy(r[:], f)
		roms = append(roms, r)
	}
	return roms, nil
}

// SetClock moves the runtime's wall clock to t. The monotonic clock used
// by timers is unaffected.
func SetClock(t time.Time) {
	runtime.AdjustTimeOffset(t.UnixNano() - time.Now().UnixNano())
}
