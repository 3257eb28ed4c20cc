// Package netmon is the connectivity monitor. It joins the configured WiFi
// network, sets the wall clock from SNTP and then keeps the link up,
// publishing a LinkStatus every cycle.
package netmon

import (
	"context"
	"log/slog"
	"time"

	"cobitis-go/errcode"
	"cobitis-go/services/config"
	"cobitis-go/services/state"
	"cobitis-go/types"
	"cobitis-go/x/logx"
	"cobitis-go/x/snapshot"
	"cobitis-go/x/tick"
	"cobitis-go/x/timex"
)

const Component = "netmon"

const (
	DefaultInterval = 5 * time.Second
	DefaultPoll     = 10 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Link is the radio. drivers/espat.Device satisfies it.
type Link interface {
	Init(ctx context.Context) error
	Join(ctx context.Context, ssid, psk string) error
	Connected(ctx context.Context) (bool, error)
	NetworkReady(ctx context.Context) (bool, error)
	RSSI(ctx context.Context) (int, error)
	ConfigureSNTP(ctx context.Context, server string) error
	SNTPTime(ctx context.Context) (time.Time, error)
}

// Config tunes the monitor. Zero fields take defaults.
type Config struct {
	Interval       time.Duration
	Poll           time.Duration // connect and SNTP poll period
	ConnectTimeout time.Duration
	SyncTimeout    time.Duration

	// SetClock receives the SNTP time once synchronised. Nil leaves the
	// system clock alone.
	SetClock func(time.Time)
	Observer state.Observer
}

// Monitor is the only writer of the link-status cache.
type Monitor struct {
	log  *slog.Logger
	link Link
	conf config.Provider
	out  *snapshot.Cache[types.LinkStatus]
	cfg  Config

	ssid, psk, ntp string
}

func New(log *slog.Logger, link Link, conf config.Provider, out *snapshot.Cache[types.LinkStatus], cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultTimeout
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultTimeout
	}
	if cfg.Observer == nil {
		cfg.Observer = state.Nop{}
	}
	return &Monitor{
		log:  log.With(slog.String("svc", Component)),
		link: link,
		conf: conf,
		out:  out,
		cfg:  cfg,
	}
}

// Init reads the credentials, brings the radio up, joins the network and
// synchronises time. Every error is fatal.
func (m *Monitor) Init(ctx context.Context) error {
	keys, err := config.Require(m.conf, config.KeySSID, config.KeyPSK, config.KeyNTPServer)
	if err != nil {
		return err
	}
	m.ssid, m.psk, m.ntp = keys[config.KeySSID], keys[config.KeyPSK], keys[config.KeyNTPServer]

	if err := m.link.Init(ctx); err != nil {
		return errcode.Wrap(errcode.Of(err), "netmon.init", err)
	}
	m.log.Info("joining network", slog.String("ssid", m.ssid))
	if err := m.ConnectAndWait(ctx); err != nil {
		return err
	}
	if err := m.SyncTime(ctx); err != nil {
		return err
	}
	return nil
}

// ConnectAndWait issues a join and polls until the station has an address
// and a DNS server, or ConnectTimeout passes.
func (m *Monitor) ConnectAndWait(ctx context.Context) error {
	if err := m.link.Join(ctx, m.ssid, m.psk); err != nil {
		return errcode.Wrap(errcode.Of(err), "netmon.connect", err)
	}
	var last error
	err := timex.PollUntil(ctx, m.cfg.Poll, m.cfg.ConnectTimeout, func() bool {
		ok, err := m.link.NetworkReady(ctx)
		if err != nil {
			last = err
		}
		return ok
	})
	if err != nil {
		if last == nil {
			last = err
		}
		return &errcode.E{C: errcode.Of(err), Op: "netmon.connect", Msg: "no network configuration", Err: last}
	}
	m.log.Info("network ready")
	return nil
}

// SyncTime points the radio at the NTP server and waits for a valid time.
func (m *Monitor) SyncTime(ctx context.Context) error {
	if err := m.link.ConfigureSNTP(ctx, m.ntp); err != nil {
		return errcode.Wrap(errcode.Of(err), "netmon.sntp", err)
	}
	var now time.Time
	err := timex.PollUntil(ctx, m.cfg.Poll, m.cfg.SyncTimeout, func() bool {
		t, err := m.link.SNTPTime(ctx)
		if err != nil {
			return false
		}
		now = t
		return true
	})
	if err != nil {
		return &errcode.E{C: errcode.Of(err), Op: "netmon.sntp", Msg: "time not synchronised", Err: err}
	}
	if m.cfg.SetClock != nil {
		m.cfg.SetClock(now)
	}
	m.log.Info("time synchronised", slog.String("server", m.ntp), slog.Time("time", now))
	return nil
}

// Cycle checks the link, reconnecting if it is down or its status cannot be
// read, and publishes the signal quality. A failed cycle leaves the cache
// untouched.
func (m *Monitor) Cycle(ctx context.Context) error {
	up, err := m.link.Connected(ctx)
	if err != nil {
		m.log.Warn("link status unavailable", logx.Err(err))
		up = false
	}
	if !up {
		m.log.Warn("link down, reconnecting", slog.String("ssid", m.ssid))
		if err := m.ConnectAndWait(ctx); err != nil {
			return err
		}
	}
	rssi, err := m.link.RSSI(ctx)
	if err != nil {
		return errcode.Wrap(errcode.Of(err), "netmon.rssi", err)
	}
	m.out.Store(types.LinkStatus{SignalQuality: types.SignalFromRSSI(rssi), RSSI: rssi})
	return nil
}

// Run initialises the link and then monitors it every Interval until ctx is
// done. It only returns early on an initialisation failure.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		m.log.Error("init failed", logx.Err(err))
		return err
	}
	return tick.Every(ctx, m.cfg.Interval, func(ctx context.Context, _ time.Time) {
		err := m.Cycle(ctx)
		if err != nil {
			m.log.Error("cycle failed", logx.Err(err))
		}
		m.cfg.Observer.ObserveCycle(Component, err)
	})
}
