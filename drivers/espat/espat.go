// Package espat drives an Espressif coprocessor running the ESP-AT firmware
// as a WiFi station over a serial port.
//
// Commands are strictly sequential: Command writes one AT line and collects
// response lines until a final result code (OK, ERROR, FAIL). Unsolicited
// "WIFI ..." lines arriving in between are dropped, never returned as command
// output. Anything still buffered when a command starts belongs to an earlier
// one and is discarded.
package espat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"cobitis-go/errcode"
)

// Port is the serial link to the coprocessor. It matches the receive side of
// the UART wrappers used on the board.
type Port interface {
	Write(p []byte) (int, error)
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

// Errors returned by the driver.
var (
	ErrCommand   = errcode.Wrap(errcode.Protocol, "espat", errors.New("command failed"))
	ErrNotSynced = errcode.Wrap(errcode.NotConnected, "espat", errors.New("sntp not synchronised"))
)

// Config controls timeouts. All fields are optional.
type Config struct {
	// CommandTimeout bounds ordinary commands. Default 2 s.
	CommandTimeout time.Duration
	// JoinTimeout bounds AT+CWJAP. Default 20 s, above the firmware's own
	// 15 s association timeout.
	JoinTimeout time.Duration
	// Settle is how long the line must stay quiet before the next command
	// after one timed out. Default 200 ms.
	Settle time.Duration
}

// Device is one ESP-AT modem.
type Device struct {
	port Port
	cfg  Config

	mu      sync.Mutex
	pending []byte
	buf     [128]byte
	stale   bool // last command timed out; its reply may still arrive
}

// New wraps port. It does not send anything.
func New(port Port, cfg Config) *Device {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 20 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 200 * time.Millisecond
	}
	return &Device{port: port, cfg: cfg}
}

// Init checks the modem answers, disables echo and selects station mode.
func (d *Device) Init(ctx context.Context) error {
	for _, c := range []string{"AT", "ATE0", "AT+CWMODE=1"} {
		if _, err := d.Command(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Command sends cmd and returns the response lines preceding the final
// result code.
func (d *Device) Command(ctx context.Context, cmd string) ([]string, error) {
	return d.command(ctx, cmd, d.cfg.CommandTimeout)
}

func (d *Device) command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resync(ctx, timeout+d.cfg.Settle)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := d.port.Write([]byte(cmd + "\r\n")); err != nil {
		return nil, errcode.Wrap(errcode.Error, "espat.write", err)
	}

	var out []string
	for {
		line, err := d.readLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.stale = true
				return out, errcode.Wrap(errcode.Timeout, "espat "+cmd, err)
			}
			return out, err
		}
		switch {
		case line == "" || line == cmd:
			// blank or echo
		case line == "OK":
			return out, nil
		case line == "ERROR" || line == "FAIL" || line == "SEND FAIL":
			return out, &errcode.E{C: errcode.Protocol, Op: "espat " + cmd, Msg: line, Err: ErrCommand}
		case strings.HasPrefix(line, "WIFI "):
			// link notification
		case line == "busy p..." || line == "busy s...":
			// modem still processing; keep waiting for the final code
		default:
			out = append(out, line)
		}
	}
}

// resync drops buffered input left by earlier commands. After a timeout it
// keeps reading until the line has been quiet for Settle, or limit passes.
func (d *Device) resync(ctx context.Context, limit time.Duration) {
	d.pending = d.pending[:0]
	var quiet time.Duration
	if d.stale {
		quiet = d.cfg.Settle
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	for ctx.Err() == nil {
		rctx, rcancel := context.WithTimeout(ctx, quiet)
		n, _ := d.port.RecvSomeContext(rctx, d.buf[:])
		rcancel()
		if n == 0 {
			break
		}
	}
	d.stale = false
}

// readLine returns the next CR/LF-terminated line without its terminator.
func (d *Device) readLine(ctx context.Context) (string, error) {
	for {
		if i := strings.IndexByte(string(d.pending), '\n'); i >= 0 {
			line := strings.TrimRight(string(d.pending[:i]), "\r")
			d.pending = d.pending[i+1:]
			return strings.TrimSpace(line), nil
		}
		n, err := d.port.RecvSomeContext(ctx, d.buf[:])
		if n > 0 {
			d.pending = append(d.pending, d.buf[:n]...)
		}
		if err != nil {
			return "", err
		}
	}
}

// Join associates with an access point. A failed join maps the modem's
// +CWJAP error code onto the returned error message.
func (d *Device) Join(ctx context.Context, ssid, psk string) error {
	cmd := "AT+CWJAP=" + quote(ssid) + "," + quote(psk)
	lines, err := d.command(ctx, cmd, d.cfg.JoinTimeout)
	if err == nil {
		return nil
	}
	for _, l := range lines {
		if v, ok := strings.CutPrefix(l, "+CWJAP:"); ok {
			return &errcode.E{C: joinCode(v), Op: "espat.join", Msg: joinReason(v), Err: err}
		}
	}
	return err
}

func joinCode(v string) errcode.Code {
	if v == "1" {
		return errcode.Timeout
	}
	return errcode.NotConnected
}

func joinReason(v string) string {
	switch v {
	case "1":
		return "connection timeout"
	case "2":
		return "wrong password"
	case "3":
		return "access point not found"
	default:
		return "connect failed"
	}
}

// apInfo queries AT+CWJAP? and returns the fields of the +CWJAP line, or
// nil when the station is not associated.
func (d *Device) apInfo(ctx context.Context) ([]string, error) {
	lines, err := d.Command(ctx, "AT+CWJAP?")
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if v, ok := strings.CutPrefix(l, "+CWJAP:"); ok {
			return splitFields(v), nil
		}
	}
	return nil, nil
}

// Connected reports whether the station is associated with an access point.
func (d *Device) Connected(ctx context.Context) (bool, error) {
	f, err := d.apInfo(ctx)
	if err != nil {
		return false, err
	}
	return f != nil, nil
}

// RSSI returns the received signal strength of the current association in dBm.
func (d *Device) RSSI(ctx context.Context) (int, error) {
	f, err := d.apInfo(ctx)
	if err != nil {
		return 0, err
	}
	if len(f) < 4 {
		return 0, errcode.Wrap(errcode.NotConnected, "espat.rssi", nil)
	}
	v, err := strconv.Atoi(f[3])
	if err != nil {
		return 0, errcode.Wrap(errcode.Protocol, "espat.rssi", err)
	}
	return v, nil
}

// StationIP returns the station IPv4 address, "0.0.0.0" when unassigned.
func (d *Device) StationIP(ctx context.Context) (string, error) {
	lines, err := d.Command(ctx, "AT+CIPSTA?")
	if err != nil {
		return "", err
	}
	for _, l := range lines {
		if v, ok := strings.CutPrefix(l, "+CIPSTA:ip:"); ok {
			return strings.Trim(v, `"`), nil
		}
	}
	return "0.0.0.0", nil
}

// DNS returns the first configured DNS server, or "" if none is set.
func (d *Device) DNS(ctx context.Context) (string, error) {
	lines, err := d.Command(ctx, "AT+CIPDNS?")
	if err != nil {
		return "", err
	}
	for _, l := range lines {
		if v, ok := strings.CutPrefix(l, "+CIPDNS:"); ok {
			for _, f := range splitFields(v) {
				if strings.Count(f, ".") == 3 {
					return f, nil
				}
			}
		}
	}
	return "", nil
}

// NetworkReady reports whether the station holds an IP address and a usable
// DNS server.
func (d *Device) NetworkReady(ctx context.Context) (bool, error) {
	ip, err := d.StationIP(ctx)
	if err != nil {
		return false, err
	}
	if unspecified(ip) {
		return false, nil
	}
	dns, err := d.DNS(ctx)
	if err != nil {
		return false, err
	}
	return !unspecified(dns), nil
}

// ConfigureSNTP enables the modem's SNTP client against server (UTC).
func (d *Device) ConfigureSNTP(ctx context.Context, server string) error {
	_, err := d.Command(ctx, "AT+CIPSNTPCFG=1,0,"+quote(server))
	return err
}

const sntpLayout = "Mon Jan 2 15:04:05 2006"

// SNTPTime returns the modem's SNTP clock. ErrNotSynced is returned while
// the modem still reports its 1970 epoch.
func (d *Device) SNTPTime(ctx context.Context) (time.Time, error) {
	lines, err := d.Command(ctx, "AT+CIPSNTPTIME?")
	if err != nil {
		return time.Time{}, err
	}
	for _, l := range lines {
		if v, ok := strings.CutPrefix(l, "+CIPSNTPTIME:"); ok {
			t, err := time.Parse(sntpLayout, strings.Join(strings.Fields(v), " "))
			if err != nil {
				return time.Time{}, errcode.Wrap(errcode.Protocol, "espat.sntp", err)
			}
			if t.Year() <= 1970 {
				return time.Time{}, ErrNotSynced
			}
			return t, nil
		}
	}
	return time.Time{}, errcode.Wrap(errcode.Protocol, "espat.sntp", nil)
}

func unspecified(ip string) bool { return ip == "" || ip == "0.0.0.0" }

// quote escapes an AT string argument.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `,`, `\,`)
	return `"` + r.Replace(s) + `"`
}

// splitFields splits a comma-separated response, dropping surrounding quotes.
// Commas inside quotes are kept.
func splitFields(s string) []string {
	var out []string
	var cur strings.Builder
	inQ := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQ = !inQ
		case c == ',' && !inQ:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, cur.String())
}
