//go:build rp2040 || rp2350

package display

import (
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/sh1106"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freemono"
)

var on = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// OLED draws frames on a 128x64 SH1106 panel.
type OLED struct {
	dev sh1106.Device
}

// NewOLED configures the panel on an I2C handle (normally an i2cshare
// handle shared with the ADC).
func NewOLED(bus drivers.I2C) *OLED {
	dev := sh1106.NewI2C(bus)
	dev.Configure(sh1106.Config{Width: 128, Height: 64, Address: sh1106.Address})
	dev.ClearDisplay()
	return &OLED{dev: dev}
}

func (o *OLED) Greet(title, subtitle string) error {
	o.dev.ClearBuffer()
	tinyfont.WriteLine(&o.dev, &freemono.Bold9pt7b, 4, 28, title, on)
	tinyfont.WriteLine(&o.dev, &freemono.Regular9pt7b, 8, 48, subtitle, on)
	return o.dev.Display()
}

func (o *OLED) Draw(f Frame) error {
	o.dev.ClearBuffer()
	tinyfont.WriteLine(&o.dev, &freemono.Bold9pt7b, 0, 12, f.Clock, on)

	// signal bars grow rightwards in the top-right corner
	for i := int16(1); i <= int16(f.Bars); i++ {
		x := 107 + i*2
		for y := 12 - i*2; y <= 11; y++ {
			o.dev.SetPixel(x, y, on)
		}
	}

	tinyfont.WriteLine(&o.dev, &freemono.Bold12pt7b, 0, 36, f.Temperature, on)
	tinyfont.WriteLine(&o.dev, &freemono.Regular9pt7b, 102, 36, "C", on)
	tinyfont.WriteLine(&o.dev, &freemono.Bold12pt7b, 0, 60, f.TDS, on)
	tinyfont.WriteLine(&o.dev, &freemono.Regular9pt7b, 96, 60, "ppm", on)
	return o.dev.Display()
}
