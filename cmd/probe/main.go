//go:build rp2040 || rp2350

// Command probe is the water-quality probe firmware.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"cobitis-go/drivers/ads1115"
	"cobitis-go/drivers/espat"
	"cobitis-go/platform/rp2"
	"cobitis-go/services/config"
	"cobitis-go/services/display"
	"cobitis-go/services/netmon"
	"cobitis-go/services/sampler"
	"cobitis-go/services/state"
	"cobitis-go/services/supervisor"
	"cobitis-go/x/logx"
)

const device = "pico"

func main() {
	// Allow USB CDC to enumerate before we log.
	time.Sleep(2 * time.Second)

	conf, err := config.Embedded(device)
	if err != nil {
		println("config:", err.Error())
		return
	}
	log := logx.New(machine.Serial, config.GetOr(conf, config.KeyLogLevel, "info"), "text")
	log.Info("boot", slog.String("device", device))

	board, err := rp2.Setup()
	if err != nil {
		log.Error("board setup failed", logx.Err(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go board.I2C.Run(ctx)

	st := state.New()

	screen := display.New(log, st, display.NewOLED(board.I2C.Handle(rp2.I2CTimeout)), conf)
	if err := screen.Greet(); err != nil {
		log.Warn("greeting not shown", logx.Err(err))
	}

	smp := sampler.New(log, board.Wire, ads1115.New(board.I2C.Handle(rp2.I2CTimeout)), st.Measurements(), sampler.Config{})
	mon := netmon.New(log, espat.New(board.Modem, espat.Config{}), conf, st.Links(), netmon.Config{
		SetClock: rp2.SetClock,
	})

	err = supervisor.Run(ctx, log,
		supervisor.Task{Name: sampler.Component, Run: smp.Run},
		supervisor.Task{Name: netmon.Component, Run: mon.Run},
		supervisor.Task{Name: display.Component, Run: screen.Run},
	)
	log.Error("probe stopped", logx.Err(err))
}
