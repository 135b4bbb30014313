// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"errors"
	"testing"
	"time"
)

// miiDev simulates the switch side of the paged protocol: a banked
// 32 bit register file reached through 16 bit reads and writes, with
// the page latch on phy 0x18.
type miiDev struct {
	page        uint16
	regs        map[uint32]uint32
	pageSelects int
	failReads   bool
}

func newMiiDev() *miiDev {
	return &miiDev{regs: make(map[uint32]uint32)}
}

// flat rebuilds the register address from the wire fields plus the
// currently latched page.
func (d *miiDev) flat(phy, reg uint16) (addr uint32, hi bool) {
	r2 := uint32(phy & 0x7)
	hi = reg&1 != 0
	r1 := uint32(reg &^ 1)
	addr = uint32(d.page)<<9 | r2<<6 | r1<<1
	return
}

func (d *miiDev) Read(phy, reg uint16) (uint16, error) {
	if d.failReads {
		return 0, errors.New("mii read fault")
	}
	addr, hi := d.flat(phy, reg)
	v := d.regs[addr]
	if hi {
		return uint16(v >> 16), nil
	}
	return uint16(v), nil
}

func (d *miiDev) Write(phy, reg, val uint16) error {
	if phy == pageSelectPhy {
		d.page = val
		d.pageSelects++
		return nil
	}
	addr, hi := d.flat(phy, reg)
	v := d.regs[addr]
	if hi {
		v = v&0x0000ffff | uint32(val)<<16
	} else {
		v = v&0xffff0000 | uint32(val)
	}
	d.regs[addr] = v
	return nil
}

// fakeClock makes sleeps advance a virtual clock so timeout paths run
// without wall-clock delay.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) sleep(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) now() time.Time        { return c.t }

func newTestPaged(d *miiDev) (*Paged, *fakeClock) {
	c := &fakeClock{}
	p := NewPaged(d)
	p.Sleep = c.sleep
	p.Now = c.now
	return p, c
}

func TestSplitAddr(t *testing.T) {
	for _, x := range []struct {
		reg          uint32
		r1, r2, page uint16
	}{
		{0x000, 0x00, 0, 0},
		{0x004, 0x02, 0, 0},
		{0x03c, 0x1e, 0, 0},
		{0x660, 0x10, 1, 3},
		{0x66c, 0x16, 1, 3},
		{0x16ac, 0x16, 2, 0xb},
	} {
		r1, r2, page := splitAddr(x.reg)
		if r1 != x.r1 || r2 != x.r2 || page != x.page {
			t.Errorf("split %#x: got %#x %#x %#x want %#x %#x %#x",
				x.reg, r1, r2, page, x.r1, x.r2, x.page)
		}
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	d := newMiiDev()
	p, _ := newTestPaged(d)

	for _, x := range []struct {
		reg, val uint32
	}{
		{0x000, 0x13020000},
		{0x660, 0x0007007e},
		{0x10ac, 0xdeadbeef},
	} {
		if err := p.Write32(x.reg, x.val); err != nil {
			t.Fatalf("write %#x: %v", x.reg, err)
		}
		v, err := p.Read32(x.reg)
		if err != nil {
			t.Fatalf("read %#x: %v", x.reg, err)
		}
		if v != x.val {
			t.Errorf("reg %#x: got %#x want %#x", x.reg, v, x.val)
		}
	}
}

func TestPageSelectCached(t *testing.T) {
	d := newMiiDev()
	p, _ := newTestPaged(d)

	// 0x10 and 0x14 share page 0: one select for the pair.
	if err := p.Write32(0x10, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Write32(0x14, 2); err != nil {
		t.Fatal(err)
	}
	if d.pageSelects != 1 {
		t.Errorf("same-page accesses: %d page selects, want 1", d.pageSelects)
	}

	// Crossing into page 3 costs exactly one more.
	if _, err := p.Read32(0x660); err != nil {
		t.Fatal(err)
	}
	if d.pageSelects != 2 {
		t.Errorf("cross-page access: %d page selects, want 2", d.pageSelects)
	}

	// And coming back re-selects page 0 even though it was seen before.
	if _, err := p.Read32(0x10); err != nil {
		t.Fatal(err)
	}
	if d.pageSelects != 3 {
		t.Errorf("return access: %d page selects, want 3", d.pageSelects)
	}
}

func TestFirstAccessSelectsPageZero(t *testing.T) {
	d := newMiiDev()
	p, _ := newTestPaged(d)

	// The cache starts invalid, so even page 0 must be selected once.
	if _, err := p.Read32(0x000); err != nil {
		t.Fatal(err)
	}
	if d.pageSelects != 1 {
		t.Errorf("got %d page selects, want 1", d.pageSelects)
	}
}

func TestModify(t *testing.T) {
	d := newMiiDev()
	p, _ := newTestPaged(d)

	if err := p.Write32(0x660, 0x00070033); err != nil {
		t.Fatal(err)
	}
	if err := p.Modify(0x660, 0x7f, 0x40); err != nil {
		t.Fatal(err)
	}
	v, err := p.Read32(0x660)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint32(0x00070040); v != want {
		t.Errorf("modify: got %#x want %#x", v, want)
	}

	if err := p.Set(0x660, 1<<20); err != nil {
		t.Fatal(err)
	}
	if err := p.Clear(0x660, 0x40); err != nil {
		t.Fatal(err)
	}
	v, _ = p.Read32(0x660)
	if want := uint32(0x00170000); v != want {
		t.Errorf("set/clear: got %#x want %#x", v, want)
	}
}

func TestPollTimesOut(t *testing.T) {
	d := newMiiDev()
	p, _ := newTestPaged(d)

	// Busy bit never clears.
	if err := p.Write32(0x60c, 1<<31); err != nil {
		t.Fatal(err)
	}
	err := p.Poll(0x60c, 1<<31)
	if err == nil {
		t.Fatal("poll of a stuck bit returned success")
	}
	if !IsTimeout(err) {
		t.Fatalf("got %v, want timeout", err)
	}
}

func TestPollStopsOnTransportError(t *testing.T) {
	d := newMiiDev()
	p, _ := newTestPaged(d)

	if err := p.Write32(0x60c, 1<<31); err != nil {
		t.Fatal(err)
	}
	d.failReads = true
	err := p.Poll(0x60c, 1<<31)
	if err == nil || IsTimeout(err) {
		t.Fatalf("got %v, want transport error", err)
	}
}

// clearAfter counts down reads of one register, then clears a bit,
// standing in for a command engine finishing.
type clearAfter struct {
	regs  map[uint32]uint32
	reg   uint32
	bit   uint32
	reads int
}

func (c *clearAfter) Read32(reg uint32) (uint32, error) {
	v := c.regs[reg]
	if reg == c.reg {
		if c.reads == 0 {
			v &^= c.bit
			c.regs[reg] = v
		} else {
			c.reads--
		}
	}
	return v, nil
}

func (c *clearAfter) Write32(reg, val uint32) error {
	c.regs[reg] = val
	return nil
}

func TestPollSeesCompletion(t *testing.T) {
	io := &clearAfter{
		regs:  map[uint32]uint32{0x60c: 1 << 31},
		reg:   0x60c,
		bit:   1 << 31,
		reads: 3,
	}
	c := &fakeClock{}
	d := NewDirect(io)
	d.Sleep = c.sleep
	d.Now = c.now

	if err := d.Poll(0x60c, 1<<31); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if v := io.regs[0x60c]; v&(1<<31) != 0 {
		t.Errorf("busy bit still set: %#x", v)
	}
}

func TestDirectModify(t *testing.T) {
	io := &clearAfter{regs: map[uint32]uint32{}}
	d := NewDirect(io)

	if err := d.Write32(0x7c, 0x3f); err != nil {
		t.Fatal(err)
	}
	if err := d.Modify(0x7c, 0x0f, 0x80); err != nil {
		t.Fatal(err)
	}
	v, err := d.Read32(0x7c)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint32(0xb0); v != want {
		t.Errorf("got %#x want %#x", v, want)
	}
}
