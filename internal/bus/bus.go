// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bus provides 32 bit register access to the qca8k switch family
// over its two transports: the indirect paged protocol spoken across a
// 16 bit MDIO bus (stand-alone QCA832x/QCA833x parts) and plain memory
// mapped i/o (SoC integrated parts). Callers above this package see one
// contract and never the paging.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// IO is the raw MDIO transport supplied by the platform: clause 22
// style 16 bit reads and writes addressed by phy and register number.
type IO interface {
	Read(phy, reg uint16) (uint16, error)
	Write(phy, reg, val uint16) error
}

// RegIO is the raw 32 bit register transport for memory mapped
// variants, addressed by byte offset into the switch register space.
type RegIO interface {
	Read32(reg uint32) (uint32, error)
	Write32(reg, val uint32) error
}

// Bus is the register access contract shared by both transports. All
// operations on one Bus are serialized internally; Modify, Set and
// Clear are read-modify-write cycles done under a single lock hold.
type Bus interface {
	Read32(reg uint32) (uint32, error)
	Write32(reg, val uint32) error
	Modify(reg, mask, set uint32) error
	Set(reg, bits uint32) error
	Clear(reg, bits uint32) error
	Poll(reg, mask uint32) error
}

const (
	// Phy address carrying the page select register.
	pageSelectPhy = 0x18
	// Data window: phy 0x10|r2, register r1 (low word) and r1+1.
	dataPhyBase = 0x10

	// The switch needs settle time after every page change.
	pageSettle = 2 * time.Millisecond

	invalidPage = 0xffff
)

// DefaultPollTimeout bounds every busy-wait on the switch.
const DefaultPollTimeout = 2 * time.Second

// TimeoutError reports a busy-wait that ran out its bound with the
// polled bits still set. It is distinct from a transport failure and
// from a hardware-reported error; callers must not treat it as success.
type TimeoutError struct {
	Reg  uint32
	Mask uint32
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for reg %#06x mask %#x to clear", e.Reg, e.Mask)
}

// IsTimeout reports whether err is a busy-wait timeout.
func IsTimeout(err error) bool {
	_, ok := err.(*TimeoutError)
	return ok
}

// splitAddr decomposes a flat 32 bit register address into the page,
// the phy-number low bits and the register field used on the wire:
//
//	r1   [5:1] of the address, still doubled (register numbers step by 2)
//	r2   [8:6]
//	page [18:9]
//
// This encoding never leaks above the transport.
func splitAddr(reg uint32) (r1, r2, page uint16) {
	reg >>= 1
	r1 = uint16(reg & 0x1e)

	reg >>= 5
	r2 = uint16(reg & 0x7)

	reg >>= 3
	page = uint16(reg & 0x3ff)
	return
}

// Paged drives the indirect paged MDIO protocol. The current page is
// cached per instance so that back to back accesses within one page pay
// a single page select; the cache starts out invalid so the first
// access always selects.
type Paged struct {
	mu   sync.Mutex
	io   IO
	page uint16

	// Timeout bounds Poll; zero means DefaultPollTimeout.
	Timeout time.Duration

	// Sleep and Now are test hooks; nil means time.Sleep/time.Now.
	Sleep func(time.Duration)
	Now   func() time.Time
}

func NewPaged(io IO) *Paged {
	return &Paged{io: io, page: invalidPage}
}

func (p *Paged) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (p *Paged) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// setPage is called with p.mu held.
func (p *Paged) setPage(page uint16) error {
	if page == p.page {
		return nil
	}
	if err := p.io.Write(pageSelectPhy, 0, page); err != nil {
		return fmt.Errorf("page select %#x: %w", page, err)
	}
	p.page = page
	p.sleep(pageSettle)
	return nil
}

// read32 is called with p.mu held and the page already selected.
func (p *Paged) read32(r1, r2 uint16) (uint32, error) {
	lo, err := p.io.Read(dataPhyBase|r2, r1)
	if err != nil {
		return 0, err
	}
	hi, err := p.io.Read(dataPhyBase|r2, r1+1)
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// write32 is called with p.mu held and the page already selected. The
// low word goes out first; the switch latches on the high word.
func (p *Paged) write32(r1, r2 uint16, val uint32) error {
	if err := p.io.Write(dataPhyBase|r2, r1, uint16(val)); err != nil {
		return err
	}
	return p.io.Write(dataPhyBase|r2, r1+1, uint16(val>>16))
}

func (p *Paged) Read32(reg uint32) (uint32, error) {
	r1, r2, page := splitAddr(reg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.setPage(page); err != nil {
		return 0, err
	}
	v, err := p.read32(r1, r2)
	if err != nil {
		return 0, fmt.Errorf("reg %#06x read: %w", reg, err)
	}
	return v, nil
}

func (p *Paged) Write32(reg, val uint32) error {
	r1, r2, page := splitAddr(reg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.setPage(page); err != nil {
		return err
	}
	if err := p.write32(r1, r2, val); err != nil {
		return fmt.Errorf("reg %#06x write: %w", reg, err)
	}
	return nil
}

// Modify clears mask, ors in set and writes back, all under one lock
// hold so the cycle cannot interleave with another access.
func (p *Paged) Modify(reg, mask, set uint32) error {
	r1, r2, page := splitAddr(reg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.setPage(page); err != nil {
		return err
	}
	v, err := p.read32(r1, r2)
	if err != nil {
		return fmt.Errorf("reg %#06x read: %w", reg, err)
	}
	v &^= mask
	v |= set
	if err := p.write32(r1, r2, v); err != nil {
		return fmt.Errorf("reg %#06x write: %w", reg, err)
	}
	return nil
}

func (p *Paged) Set(reg, bits uint32) error   { return p.Modify(reg, 0, bits) }
func (p *Paged) Clear(reg, bits uint32) error { return p.Modify(reg, bits, 0) }

// Poll busy-waits until all bits in mask read back zero.
func (p *Paged) Poll(reg, mask uint32) error {
	return poll(p.Read32, p.sleep, p.now, p.Timeout, reg, mask)
}

// Direct serves the same contract over memory mapped registers; no
// page bookkeeping, but read-modify-write still serializes.
type Direct struct {
	mu sync.Mutex
	io RegIO

	Timeout time.Duration
	Sleep   func(time.Duration)
	Now     func() time.Time
}

func NewDirect(io RegIO) *Direct {
	return &Direct{io: io}
}

func (d *Direct) sleep(t time.Duration) {
	if d.Sleep != nil {
		d.Sleep(t)
		return
	}
	time.Sleep(t)
}

func (d *Direct) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Direct) Read32(reg uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.io.Read32(reg)
}

func (d *Direct) Write32(reg, val uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.io.Write32(reg, val)
}

func (d *Direct) Modify(reg, mask, set uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.io.Read32(reg)
	if err != nil {
		return err
	}
	v &^= mask
	v |= set
	return d.io.Write32(reg, v)
}

func (d *Direct) Set(reg, bits uint32) error   { return d.Modify(reg, 0, bits) }
func (d *Direct) Clear(reg, bits uint32) error { return d.Modify(reg, bits, 0) }

func (d *Direct) Poll(reg, mask uint32) error {
	return poll(d.Read32, d.sleep, d.now, d.Timeout, reg, mask)
}

func poll(read func(uint32) (uint32, error), sleep func(time.Duration),
	now func() time.Time, timeout time.Duration, reg, mask uint32) error {
	if timeout == 0 {
		timeout = DefaultPollTimeout
	}
	b := &backoff.Backoff{
		Min:    100 * time.Microsecond,
		Max:    10 * time.Millisecond,
		Factor: 2,
	}
	deadline := now().Add(timeout)
	for {
		v, err := read(reg)
		if err != nil {
			// A broken transport is not a timeout.
			return err
		}
		if v&mask == 0 {
			return nil
		}
		if !now().Before(deadline) {
			return &TimeoutError{Reg: reg, Mask: mask}
		}
		sleep(b.Duration())
	}
}
