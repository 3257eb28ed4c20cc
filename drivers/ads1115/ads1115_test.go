package ads1115

import (
	"errors"
	"testing"
	"time"

	"cobitis-go/errcode"
)

// fakeADC emulates the pointer/config/conversion registers.
type fakeADC struct {
	ptr        byte
	config     uint16
	conversion int16
	busyPolls  int // OS bit reads 0 this many times after a start
	writes     []uint16
	addr       uint16
	err        error
}

func (f *fakeADC) Tx(addr uint16, w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	f.addr = addr
	if len(w) > 0 {
		f.ptr = w[0]
	}
	if len(w) == 3 && f.ptr == regConfig {
		f.config = uint16(w[1])<<8 | uint16(w[2])
		f.writes = append(f.writes, f.config)
		f.config &^= cfgOSSingle // conversion in progress
	}
	if len(r) == 2 {
		var v uint16
		switch f.ptr {
		case regConfig:
			if f.busyPolls > 0 {
				f.busyPolls--
			} else {
				f.config |= cfgOSSingle
			}
			v = f.config
		case regConversion:
			v = uint16(f.conversion)
		}
		r[0], r[1] = byte(v>>8), byte(v)
	}
	return nil
}

func TestReadBuildsConfigWordAndReturnsCode(t *testing.T) {
	bus := &fakeADC{conversion: 8000, busyPolls: 2}
	d := New(bus)
	d.Configure(Config{Range: Range4V096, PollInterval: time.Microsecond})

	raw, err := d.Read(A0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if raw != 8000 {
		t.Fatalf("raw = %d, want 8000", raw)
	}
	if bus.addr != Address {
		t.Fatalf("addr = %#x", bus.addr)
	}
	// OS | MUX=100 (AIN0) | PGA=001 (4.096) | MODE single | DR=100 | COMP_QUE off
	if got, want := bus.writes[0], uint16(0xC383); got != want {
		t.Fatalf("config word = %#04x, want %#04x", got, want)
	}
}

func TestChannelAndRangeBits(t *testing.T) {
	bus := &fakeADC{}
	d := New(bus)
	d.Configure(Config{Range: Range6V144, DataRate: Rate860, PollInterval: time.Microsecond})
	if _, err := d.Read(A3); err != nil {
		t.Fatal(err)
	}
	// OS | MUX=111 | PGA=000 | MODE | DR=111 | COMP_QUE off
	if got, want := bus.writes[0], uint16(0xF1E3); got != want {
		t.Fatalf("config word = %#04x, want %#04x", got, want)
	}
	if _, err := d.Read(Channel(7)); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("err = %v, want invalid params", err)
	}
}

func TestConversionTimeout(t *testing.T) {
	bus := &fakeADC{busyPolls: 1 << 30}
	d := New(bus)
	d.Configure(Config{Timeout: 2 * time.Millisecond, PollInterval: 100 * time.Microsecond})
	if _, err := d.Read(A0); !errors.Is(err, errcode.Timeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestBusErrorPropagates(t *testing.T) {
	nack := errors.New("nack")
	d := New(&fakeADC{err: nack})
	if _, err := d.Read(A0); !errors.Is(err, nack) {
		t.Fatalf("err = %v, want nack", err)
	}
}

func TestVolts(t *testing.T) {
	d := New(&fakeADC{})
	d.SetRange(Range4V096)
	if got := d.Volts(MaxCode); got < 4.0959 || got > 4.0961 {
		t.Fatalf("Volts(full scale) = %v", got)
	}
	if got := d.Volts(0); got != 0 {
		t.Fatalf("Volts(0) = %v", got)
	}
	if d.Range().FullScale() != 4.096 {
		t.Fatal("Range not applied")
	}
}
