//go:build !rp2040 && !rp2350

// Command probe-sim runs the probe services on a workstation against
// simulated hardware, with the HTTP responder and a metrics endpoint.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cobitis-go/drivers/ads1115"
	"cobitis-go/drivers/espat"
	"cobitis-go/services/config"
	"cobitis-go/services/display"
	"cobitis-go/services/metrics"
	"cobitis-go/services/netmon"
	"cobitis-go/services/responder"
	"cobitis-go/services/sampler"
	"cobitis-go/services/state"
	"cobitis-go/services/supervisor"
	"cobitis-go/sim"
	"cobitis-go/x/i2cshare"
	"cobitis-go/x/logx"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML); empty reads the environment")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("failed to load config", logx.Err(err))
		os.Exit(1)
	}
	log := logx.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	log.Info("starting probe simulator",
		slog.String("listen_addr", cfg.ListenAddr),
		slog.String("metrics_addr", cfg.MetricsAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// simulated hardware
	therm := sim.NewThermometer(0x00000a1b2c3d, cfg.Sim.Temperature)
	wire := sim.NewOneWire(therm)
	chip := sim.NewADS1115()
	chip.SetInput(0, cfg.Sim.ProbeVolts)
	modem := sim.NewModem(cfg.SSID, cfg.PSK, cfg.Sim.RSSI)

	bus := i2cshare.New(chip)
	go bus.Run(ctx)

	st := state.New()
	reg := prometheus.NewRegistry()
	mx, err := metrics.New(reg, st)
	if err != nil {
		log.Error("failed to register metrics", logx.Err(err))
		os.Exit(1)
	}

	screen := display.New(log, st, display.LogSink{Log: log}, cfg)
	if err := screen.Greet(); err != nil {
		log.Warn("greeting not shown", logx.Err(err))
	}

	smp := sampler.New(log, wire, ads1115.New(bus.Handle(250*time.Millisecond)), st.Measurements(), sampler.Config{
		Observer: mx,
	})
	mon := netmon.New(log, espat.New(modem, espat.Config{}), cfg, st.Links(), netmon.Config{
		SetClock: func(t time.Time) { log.Info("sntp time", slog.Time("time", t)) },
		Observer: mx,
	})
	api := responder.NewServer(log, cfg.ListenAddr, st, cfg.CORSOrigins)
	prom := metrics.NewServer(log, cfg.MetricsAddr, reg)

	err = supervisor.Run(ctx, log,
		supervisor.Task{Name: sampler.Component, Run: smp.Run},
		supervisor.Task{Name: netmon.Component, Run: mon.Run},
		supervisor.Task{Name: display.Component, Run: screen.Run},
		supervisor.Task{Name: "responder", Run: api.Run},
		supervisor.Task{Name: "metrics", Run: prom.Run},
	)
	if err != nil && ctx.Err() == nil {
		log.Error("probe stopped", logx.Err(err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
