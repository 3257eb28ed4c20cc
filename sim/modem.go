package sim

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Modem emulates an ESP-AT coprocessor in station mode. It implements the
// serial Port used by drivers/espat.
type Modem struct {
	SSID string
	PSK  string
	// Now supplies the SNTP clock. Defaults to time.Now.
	Now func() time.Time
	// SyncAfter is how many AT+CIPSNTPTIME? queries report 1970 after
	// AT+CIPSNTPCFG before the clock is considered synchronised.
	SyncAfter int
	// IPAfter is how many AT+CIPSTA? queries report 0.0.0.0 after a
	// successful join.
	IPAfter int

	mu        sync.Mutex
	rx        []byte
	notify    chan struct{}
	echo      bool
	joined    bool
	ipPending int
	rssi      int
	sntpOn    bool
	sntpQuery int
	failJoins int
	failQuery int
	silent    bool
	joinCount int
	ip, dns   string
	commands  []string
}

// NewModem returns a modem that accepts the given credentials.
func NewModem(ssid, psk string, rssi int) *Modem {
	return &Modem{
		SSID:   ssid,
		PSK:    psk,
		notify: make(chan struct{}, 1),
		echo:   true,
		rssi:   rssi,
		ip:     "192.168.4.20",
		dns:    "192.168.4.1",
	}
}

// SetRSSI changes the reported signal strength.
func (m *Modem) SetRSSI(dbm int) {
	m.mu.Lock()
	m.rssi = dbm
	m.mu.Unlock()
}

// FailJoins makes the next n join attempts fail as if the AP were absent.
func (m *Modem) FailJoins(n int) {
	m.mu.Lock()
	m.failJoins = n
	m.mu.Unlock()
}

// FailStatus makes the next n AT+CWJAP? queries answer ERROR.
func (m *Modem) FailStatus(n int) {
	m.mu.Lock()
	m.failQuery = n
	m.mu.Unlock()
}

// SetSilent stops the modem from answering, as if it had hung.
func (m *Modem) SetSilent(v bool) {
	m.mu.Lock()
	m.silent = v
	m.mu.Unlock()
}

// DropLink disassociates the station and emits WIFI DISCONNECT.
func (m *Modem) DropLink() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joined {
		m.joined = false
		m.emit("WIFI DISCONNECT\r\n")
	}
}

// Joins returns how many successful associations happened.
func (m *Modem) Joins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinCount
}

// Commands returns every command received so far.
func (m *Modem) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Write accepts one or more CR/LF terminated commands.
func (m *Modem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		cmd := strings.TrimSpace(line)
		if cmd == "" {
			continue
		}
		m.commands = append(m.commands, cmd)
		if m.silent {
			continue
		}
		if m.echo {
			m.emit(cmd + "\r\n")
		}
		m.emit(m.handle(cmd))
	}
	return len(p), nil
}

// RecvSomeContext blocks until at least one byte is available or ctx ends.
func (m *Modem) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	for {
		m.mu.Lock()
		if len(m.rx) > 0 {
			n := copy(p, m.rx)
			m.rx = m.rx[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-m.notify:
		}
	}
}

// emit queues bytes for the host; callers hold mu.
func (m *Modem) emit(s string) {
	m.rx = append(m.rx, s...)
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

const (
	respOK    = "\r\nOK\r\n"
	respFail  = "\r\nFAIL\r\n"
	respError = "\r\nERROR\r\n"
)

func (m *Modem) handle(cmd string) string {
	switch {
	case cmd == "AT":
		return respOK
	case cmd == "ATE0":
		m.echo = false
		return respOK
	case cmd == "ATE1":
		m.echo = true
		return respOK
	case cmd == "AT+CWMODE=1":
		return respOK
	case strings.HasPrefix(cmd, "AT+CWJAP="):
		return m.join(cmd[len("AT+CWJAP="):])
	case cmd == "AT+CWJAP?":
		if m.failQuery > 0 {
			m.failQuery--
			return respError
		}
		if !m.joined {
			return "No AP\r\n" + respOK
		}
		return `+CWJAP:"` + m.SSID + `","24:0a:c4:00:00:01",6,` + strconv.Itoa(m.rssi) + ",0,1,3,0,0\r\n" + respOK
	case cmd == "AT+CWQAP":
		if m.joined {
			m.joined = false
			m.emit("WIFI DISCONNECT\r\n")
		}
		return respOK
	case cmd == "AT+CIPSTA?":
		ip := "0.0.0.0"
		if m.joined {
			if m.ipPending > 0 {
				m.ipPending--
			} else {
				ip = m.ip
			}
		}
		return `+CIPSTA:ip:"` + ip + `"` + "\r\n" + `+CIPSTA:gateway:"` + m.dns + `"` + "\r\n" + respOK
	case cmd == "AT+CIPDNS?":
		if !m.joined {
			return "+CIPDNS:0\r\n" + respOK
		}
		return `+CIPDNS:1,"` + m.dns + `"` + "\r\n" + respOK
	case strings.HasPrefix(cmd, "AT+CIPSNTPCFG=1,"):
		m.sntpOn = true
		m.sntpQuery = 0
		return respOK
	case cmd == "AT+CIPSNTPTIME?":
		return "+CIPSNTPTIME:" + m.sntpTime().Format("Mon Jan 02 15:04:05 2006") + "\r\n" + respOK
	default:
		return respError
	}
}

func (m *Modem) join(args string) string {
	ssid, psk, okArgs := splitJoinArgs(args)
	if !okArgs {
		return respError
	}
	if m.failJoins > 0 {
		m.failJoins--
		return "+CWJAP:3\r\n" + respFail
	}
	if ssid != m.SSID {
		return "+CWJAP:3\r\n" + respFail
	}
	if psk != m.PSK {
		return "+CWJAP:2\r\n" + respFail
	}
	m.joined = true
	m.joinCount++
	m.ipPending = m.IPAfter
	return "WIFI CONNECTED\r\nWIFI GOT IP\r\n" + respOK
}

func (m *Modem) sntpTime() time.Time {
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	if !m.sntpOn || !m.joined {
		return epoch
	}
	if m.sntpQuery < m.SyncAfter {
		m.sntpQuery++
		return epoch
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return now().UTC()
}

// splitJoinArgs parses `"ssid","psk"` with ESP-AT backslash escapes.
func splitJoinArgs(s string) (ssid, psk string, ok bool) {
	var fields []string
	var cur strings.Builder
	inQ, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			cur.WriteByte(c)
			esc = false
		case c == '\\':
			esc = true
		case c == '"':
			inQ = !inQ
		case c == ',' && !inQ:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}
