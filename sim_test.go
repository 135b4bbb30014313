// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

import (
	"errors"
	"sort"
	"sync"
	"testing"
)

var errSim = errors.New("sim: transport fail")

// simDev emulates the paged MDIO register protocol plus enough of the
// ATU, VTU, MIB and MDIO master state machines to exercise the driver:
// a command write with the busy bit completes immediately and the busy
// bit reads back clear.

type simKey uint64

func fdbKey(mac [6]byte, vid uint16) simKey {
	var k simKey
	for _, b := range mac {
		k = k<<8 | simKey(b)
	}
	return k<<12 | simKey(vid&0xfff)
}

type simFdbEntry struct {
	key   simKey
	mac   [6]byte
	vid   uint16
	ports uint8
	aging uint8
}

type simDev struct {
	mu sync.Mutex

	id  uint8
	rev uint8

	regs map[uint32]uint32
	page uint16
	lo   map[uint32]uint16 // staged low words, keyed by flat address

	fdb  []simFdbEntry
	vlan map[uint16]uint32

	phys map[uint32]uint16 // internal phy registers, phy<<8|reg

	// writes logs committed 32 bit register writes in order.
	writes []uint32

	atuFull  bool
	vtuFull  bool
	noSentry bool // table walks never report end of table

	fail map[uint32]bool // reads of these flat addresses fail
}

func newSim(id, rev uint8) *simDev {
	return &simDev{
		id:   id,
		rev:  rev,
		regs: make(map[uint32]uint32),
		page: 0xffff,
		lo:   make(map[uint32]uint16),
		vlan: make(map[uint16]uint32),
		phys: make(map[uint32]uint16),
		fail: make(map[uint32]bool),
	}
}

func flatAddr(page, r2, r1 uint16) uint32 {
	return uint32(page)<<9 | uint32(r2)<<6 | uint32(r1)<<1
}

// poke changes a register from the test side while a scanner may be
// reading.
func (d *simDev) poke(addr, val uint32) {
	d.mu.Lock()
	d.regs[addr] = val
	d.mu.Unlock()
}

func (d *simDev) Read(phy, reg uint16) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if phy == 0x18 {
		return d.page, nil
	}
	addr := flatAddr(d.page, phy&0x7, reg&^1)
	if d.fail[addr] {
		return 0, errSim
	}
	v := d.get(addr)
	if reg&1 != 0 {
		return uint16(v >> 16), nil
	}
	return uint16(v), nil
}

func (d *simDev) Write(phy, reg, val uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if phy == 0x18 {
		d.page = val
		return nil
	}
	addr := flatAddr(d.page, phy&0x7, reg&^1)
	if reg&1 == 0 {
		d.lo[addr] = val
		return nil
	}
	d.commit(addr, uint32(d.lo[addr])|uint32(val)<<16)
	return nil
}

func (d *simDev) get(addr uint32) uint32 {
	if addr == regMaskCtrl {
		return uint32(d.id)<<maskCtrlIdShift | uint32(d.rev)
	}
	return d.regs[addr]
}

func (d *simDev) commit(addr, val uint32) {
	d.regs[addr] = val
	d.writes = append(d.writes, addr)
	switch addr {
	case regAtuFunc:
		if val&atuFuncBusy != 0 {
			d.atuCommand(val)
		}
	case regVtuFunc1:
		if val&vtuFunc1Busy != 0 {
			d.vtuCommand(val)
		}
	case regMib:
		d.regs[addr] = val &^ mibBusy
	case 0x003c: // mdio master control
		if val&(1<<31) != 0 {
			d.mdioCommand(val)
		}
	}
}

// writeCount lets tests assert that an operation touched no registers.
func (d *simDev) writeCount() int { return len(d.writes) }

func (d *simDev) atuCommand(val uint32) {
	defer func() { d.regs[regAtuFunc] &^= atuFuncBusy }()

	var e simFdbEntry
	r0 := d.regs[regAtuData0]
	r1 := d.regs[regAtuData1]
	r2 := d.regs[regAtuData2]
	e.mac[0] = byte(r1 >> 8)
	e.mac[1] = byte(r1)
	e.mac[2] = byte(r0 >> 24)
	e.mac[3] = byte(r0 >> 16)
	e.mac[4] = byte(r0 >> 8)
	e.mac[5] = byte(r0)
	e.ports = uint8(r1 >> 16 & 0x7f)
	e.vid = uint16(r2 >> 8 & 0xfff)
	e.aging = uint8(r2 & 0xf)
	e.key = fdbKey(e.mac, e.vid)

	port := -1
	if val&atuFuncPortEn != 0 {
		port = int(val >> atuFuncPortShift & atuFuncPortMask)
	}

	switch val &^ (atuFuncBusy | atuFuncPortEn |
		uint32(atuFuncPortMask)<<atuFuncPortShift) {
	case atuFlush:
		d.fdbFilter(func(x *simFdbEntry) bool {
			return x.aging == 0xf
		})
	case atuLoad:
		if d.atuFull {
			d.regs[regAtuFunc] |= atuFuncFull
			return
		}
		d.fdbFilter(func(x *simFdbEntry) bool { return x.key != e.key })
		d.fdb = append(d.fdb, e)
		sort.Slice(d.fdb, func(i, j int) bool {
			return d.fdb[i].key < d.fdb[j].key
		})
	case atuPurge:
		d.fdbFilter(func(x *simFdbEntry) bool { return x.key != e.key })
	case atuFlushPort:
		d.fdbFilter(func(x *simFdbEntry) bool {
			return x.aging == 0xf || port < 0 ||
				x.ports&(1<<uint(port)) == 0
		})
	case atuNext:
		d.fdbNext(e.key)
	}
}

func (d *simDev) fdbFilter(keep func(*simFdbEntry) bool) {
	out := d.fdb[:0]
	for i := range d.fdb {
		if keep(&d.fdb[i]) {
			out = append(out, d.fdb[i])
		}
	}
	d.fdb = out
}

func (d *simDev) fdbNext(after simKey) {
	for i := range d.fdb {
		e := &d.fdb[i]
		if e.key <= after && !d.noSentry {
			continue
		}
		if e.key <= after {
			// walk never terminates: hand the first entry back
			e = &d.fdb[0]
		}
		d.regs[regAtuData0] = uint32(e.mac[2])<<24 |
			uint32(e.mac[3])<<16 |
			uint32(e.mac[4])<<8 |
			uint32(e.mac[5])
		d.regs[regAtuData1] = uint32(e.ports)<<16 |
			uint32(e.mac[0])<<8 |
			uint32(e.mac[1])
		d.regs[regAtuData2] = uint32(e.vid)<<8 | uint32(e.aging)
		return
	}
	// end of table sentinel
	d.regs[regAtuData0] = 0
	d.regs[regAtuData1] = 0
	d.regs[regAtuData2] = 0
}

func (d *simDev) vtuCommand(val uint32) {
	defer func() { d.regs[regVtuFunc1] &^= vtuFunc1Busy }()

	vid := uint16(val >> vtuFunc1VidShift & 0xfff)
	switch val &^ (vtuFunc1Busy | 0xfff<<vtuFunc1VidShift) {
	case vtuRead:
		d.regs[regVtuFunc0] = d.vlan[vid]
	case vtuLoad:
		if d.vtuFull {
			d.regs[regVtuFunc1] |= vtuFunc1Full
			return
		}
		d.vlan[vid] = d.regs[regVtuFunc0]
	case vtuPurge:
		delete(d.vlan, vid)
	}
}

func (d *simDev) mdioCommand(val uint32) {
	defer func() { d.regs[0x003c] &^= 1 << 31 }()

	phy := val >> 21 & 0x1f
	reg := val >> 16 & 0x1f
	if val&(1<<27) != 0 {
		d.regs[0x003c] = d.regs[0x003c]&^uint32(0xffff) |
			uint32(d.phys[phy<<8|reg])
		return
	}
	d.phys[phy<<8|reg] = uint16(val)
}

// simRegIO exposes the same device over the memory mapped transport.
type simRegIO struct{ d *simDev }

func (r simRegIO) Read32(reg uint32) (uint32, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if r.d.fail[reg] {
		return 0, errSim
	}
	return r.d.get(reg), nil
}

func (r simRegIO) Write32(reg, val uint32) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.commit(reg, val)
	return nil
}

// attachSim brings up a QCA8337 with internal PHYs on all user ports.
func attachSim(t *testing.T) (*Switch, *simDev) {
	t.Helper()
	d := newSim(0x13, 2)
	ports := make([]PortConfig, 7)
	for i := 1; i <= 5; i++ {
		ports[i].Mode = ModeInternal
	}
	sw, err := Attach(Config{Variant: QCA8337, Mii: d, Ports: ports})
	if err != nil {
		t.Fatal(err)
	}
	return sw, d
}
