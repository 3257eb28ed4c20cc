// Package display refreshes the front-panel screen once a second from the
// shared state. Formatting lives here; pixels are drawn by a Sink.
package display

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cobitis-go/errcode"
	"cobitis-go/services/config"
	"cobitis-go/services/state"
	"cobitis-go/x/logx"
	"cobitis-go/x/tick"
)

const Component = "display"

const (
	DefaultInterval = 1 * time.Second

	Title    = "Cobitis v1.2"
	Starting = "Starting..."

	noTemperature = "    -.-"
	noTDS         = "      -"
)

// Frame is one screen's worth of formatted values.
type Frame struct {
	Clock       string // "MM/DD HH:MM" in the display timezone
	Bars        int    // 0..4
	Temperature string // 7 columns, right aligned
	TDS         string // 7 columns, right aligned
}

// Sink renders frames.
type Sink interface {
	Greet(title, subtitle string) error
	Draw(f Frame) error
}

// Compose formats the current state. Missing values render as dash
// placeholders and zero signal bars.
func Compose(r state.Reader, now time.Time, loc *time.Location) Frame {
	f := Frame{
		Clock:       now.In(loc).Format("01/02 15:04"),
		Temperature: noTemperature,
		TDS:         noTDS,
	}
	if m, ok := r.LatestMeasurement(); ok {
		f.Temperature = fmt.Sprintf("%7.1f", m.Temperature)
		f.TDS = fmt.Sprintf("%7.0f", m.TDS)
	}
	if l, ok := r.LatestLinkStatus(); ok {
		f.Bars = l.SignalQuality.Level()
	}
	return f
}

// Display is the consumer loop.
type Display struct {
	log      *slog.Logger
	state    state.Reader
	sink     Sink
	conf     config.Provider
	loc      *time.Location
	interval time.Duration
	now      func() time.Time
}

func New(log *slog.Logger, r state.Reader, sink Sink, conf config.Provider) *Display {
	return &Display{
		log:      log.With(slog.String("svc", Component)),
		state:    r,
		sink:     sink,
		conf:     conf,
		loc:      time.UTC,
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// Init resolves the display timezone. A missing or unknown zone is fatal.
func (d *Display) Init() error {
	tz, err := d.conf.Get(config.KeyTimezone)
	if err != nil {
		return err
	}
	loc, err := ParseTimezone(tz)
	if err != nil {
		return err
	}
	d.loc = loc
	return nil
}

// Greet shows the start-up banner.
func (d *Display) Greet() error {
	return d.sink.Greet(Title, Starting)
}

// Refresh composes and draws one frame.
func (d *Display) Refresh() error {
	return d.sink.Draw(Compose(d.state, d.now(), d.loc))
}

// Run redraws every interval until ctx is done. Draw errors are logged.
func (d *Display) Run(ctx context.Context) error {
	if err := d.Init(); err != nil {
		d.log.Error("init failed", logx.Err(err))
		return err
	}
	return tick.Every(ctx, d.interval, func(context.Context, time.Time) {
		if err := d.Refresh(); err != nil {
			d.log.Error("draw failed", logx.Err(err))
		}
	})
}

// ParseTimezone accepts an IANA zone name ("Asia/Tokyo") or a fixed offset
// written as UTC, UTC+9, UTC-05:30.
func ParseTimezone(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "UTC") || s == "Z" {
		return time.UTC, nil
	}
	if rest, ok := cutPrefixFold(s, "UTC"); ok {
		if off, ok := parseOffset(rest); ok {
			return time.FixedZone("UTC"+rest, off), nil
		}
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "display.timezone", Msg: "bad offset " + strconv.Quote(s)}
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "display.timezone", err)
	}
	return loc, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

// parseOffset reads +H, +HH, +HH:MM or +HHMM into seconds east of UTC.
func parseOffset(s string) (int, bool) {
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		return 0, false
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	s = s[1:]
	hh, mm := s, "0"
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hh, mm = s[:i], s[i+1:]
	} else if len(s) == 4 {
		hh, mm = s[:2], s[2:]
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 || len(hh) > 2 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) > 2 {
		return 0, false
	}
	return sign * (h*3600 + m*60), true
}
