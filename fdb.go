// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

// ATU access commands.
const (
	atuNoop      uint32 = 0
	atuFlush     uint32 = 1
	atuLoad      uint32 = 2
	atuPurge     uint32 = 3
	atuFlushPort uint32 = 5
	atuNext      uint32 = 6
)

// fdbWalkBound caps a Next walk.  The table has 2048 bins; anything
// past that means the end sentinel never showed up.
const fdbWalkBound = 2048

// FdbEntry is one address table record.
type FdbEntry struct {
	Mac   [6]byte
	Vid   uint16
	Ports PortMask

	// Aging is the raw 4 bit age field; atuStatusStatic marks a
	// static entry and zero never leaves the hardware on a read.
	Aging uint8
}

// Static reports whether the record is exempt from aging.
func (e *FdbEntry) Static() bool { return e.Aging == atuStatusStatic }

// fdbWrite stages an entry into the ATU data registers.
func (sw *Switch) fdbWrite(e *FdbEntry) error {
	reg0 := uint32(e.Mac[2])<<atuAddr2Shift |
		uint32(e.Mac[3])<<atuAddr3Shift |
		uint32(e.Mac[4])<<atuAddr4Shift |
		uint32(e.Mac[5])
	reg1 := (uint32(e.Ports)&atuPortMask)<<atuPortShift |
		uint32(e.Mac[0])<<atuAddr0Shift |
		uint32(e.Mac[1])
	reg2 := (uint32(e.Vid)&atuVidMask)<<atuVidShift |
		uint32(e.Aging)&atuStatusMask

	if err := sw.b.Write32(regAtuData0, reg0); err != nil {
		return err
	}
	if err := sw.b.Write32(regAtuData1, reg1); err != nil {
		return err
	}
	return sw.b.Write32(regAtuData2, reg2)
}

// fdbRead pulls the staged entry back out.
func (sw *Switch) fdbRead(e *FdbEntry) error {
	reg0, err := sw.b.Read32(regAtuData0)
	if err != nil {
		return err
	}
	reg1, err := sw.b.Read32(regAtuData1)
	if err != nil {
		return err
	}
	reg2, err := sw.b.Read32(regAtuData2)
	if err != nil {
		return err
	}
	e.Mac[0] = byte(reg1 >> atuAddr0Shift)
	e.Mac[1] = byte(reg1)
	e.Mac[2] = byte(reg0 >> atuAddr2Shift)
	e.Mac[3] = byte(reg0 >> atuAddr3Shift)
	e.Mac[4] = byte(reg0 >> atuAddr4Shift)
	e.Mac[5] = byte(reg0)
	e.Ports = PortMask(reg1 >> atuPortShift & atuPortMask)
	e.Vid = uint16(reg2 >> atuVidShift & atuVidMask)
	e.Aging = uint8(reg2 & atuStatusMask)
	return nil
}

// fdbAccess issues an ATU command and waits it out.  A LOAD that comes
// back with the full bit set means no free bin.  port is only
// meaningful for the per-port flush.
func (sw *Switch) fdbAccess(cmd uint32, port int) error {
	v := cmd | atuFuncBusy
	if port >= 0 {
		v |= atuFuncPortEn
		v |= (uint32(port) & atuFuncPortMask) << atuFuncPortShift
	}
	if err := sw.b.Write32(regAtuFunc, v); err != nil {
		return err
	}
	if err := sw.b.Poll(regAtuFunc, atuFuncBusy); err != nil {
		return err
	}
	if cmd == atuLoad {
		v, err := sw.b.Read32(regAtuFunc)
		if err != nil {
			return err
		}
		if v&atuFuncFull != 0 {
			return ErrTableFull
		}
	}
	return nil
}

// FdbAdd installs a static address on a set of ports.  A zero vid means
// the port default VLAN.
func (sw *Switch) FdbAdd(mac [6]byte, vid uint16, ports PortMask) error {
	if vid == 0 {
		vid = defaultVid
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	e := FdbEntry{Mac: mac, Vid: vid, Ports: ports, Aging: atuStatusStatic}
	if err := sw.fdbWrite(&e); err != nil {
		return err
	}
	return sw.fdbAccess(atuLoad, -1)
}

// FdbDel removes an address.  The hardware purges by key, so the
// staged port mask is zero.
func (sw *Switch) FdbDel(mac [6]byte, vid uint16) error {
	if vid == 0 {
		vid = defaultVid
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	e := FdbEntry{Mac: mac, Vid: vid, Aging: atuStatusStatic}
	if err := sw.fdbWrite(&e); err != nil {
		return err
	}
	return sw.fdbAccess(atuPurge, -1)
}

// FdbFlush drops every learned address.  Static entries survive.
func (sw *Switch) FdbFlush() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.fdbAccess(atuFlush, -1)
}

// FdbFlushPort drops the learned addresses of one port.
func (sw *Switch) FdbFlushPort(port int) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.fdbAccess(atuFlushPort, port)
}

// fdbNext stages the cursor entry and fetches the one after it.  A
// zero aging field in the result is the end of table.
func (sw *Switch) fdbNext(e *FdbEntry) (bool, error) {
	if err := sw.fdbWrite(e); err != nil {
		return false, err
	}
	if err := sw.fdbAccess(atuNext, -1); err != nil {
		return false, err
	}
	if err := sw.fdbRead(e); err != nil {
		return false, err
	}
	return e.Aging != 0, nil
}

// FdbDump walks the address table and calls visit for each entry held
// on port.  A visit error stops the walk and is returned as is.
func (sw *Switch) FdbDump(port int, visit func(FdbEntry) error) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	var e FdbEntry
	for i := 0; i < fdbWalkBound; i++ {
		more, err := sw.fdbNext(&e)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		if !e.Ports.Has(port) {
			continue
		}
		if err = visit(e); err != nil {
			return err
		}
	}
	return ErrWalkExhausted
}
