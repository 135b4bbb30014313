// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mdio drives the switch's internal MDIO master, the indirect
// path to the built-in phys. While the master-enable bit is set the
// external MDC passthrough to those phys is disconnected, so the enable
// is dropped again on every exit path, including timeouts; leaving it
// set would park the bus and block the passthrough for good.
package mdio

import (
	"fmt"

	"github.com/platinasystems/qca8k/internal/bus"
)

const (
	masterCtrl uint32 = 0x003c

	masterBusy uint32 = 1 << 31
	masterEn   uint32 = 1 << 30
	masterRead uint32 = 1 << 27
	// A write request is the zero opcode.

	phyAddrShift = 21
	regAddrShift = 16
	dataMask     = 0xffff
)

// MaxReg bounds the clause 22 register space reachable through the
// master.
const MaxReg = 32

// Master issues phy reads and writes through the MDIO master control
// register.
type Master struct {
	b bus.Bus
}

func New(b bus.Bus) *Master {
	return &Master{b: b}
}

func (m *Master) request(phy, reg uint16) (uint32, error) {
	if reg >= MaxReg {
		return 0, fmt.Errorf("mdio: register %#x out of range", reg)
	}
	if phy > 0x1f {
		return 0, fmt.Errorf("mdio: phy address %#x out of range", phy)
	}
	return masterBusy | masterEn |
		uint32(phy)<<phyAddrShift | uint32(reg)<<regAddrShift, nil
}

// finish returns the bus to passthrough mode. Called on every path out
// of a transaction, error or not.
func (m *Master) finish() error {
	return m.b.Write32(masterCtrl, 0)
}

func (m *Master) Read(phy, reg uint16) (uint16, error) {
	req, err := m.request(phy, reg)
	if err != nil {
		return 0, err
	}

	if err = m.b.Write32(masterCtrl, req|masterRead); err != nil {
		m.finish()
		return 0, err
	}
	err = m.b.Poll(masterCtrl, masterBusy)
	if err != nil {
		m.finish()
		return 0, err
	}
	v, err := m.b.Read32(masterCtrl)
	if ferr := m.finish(); err == nil {
		err = ferr
	}
	if err != nil {
		return 0, err
	}
	return uint16(v & dataMask), nil
}

func (m *Master) Write(phy, reg, val uint16) error {
	req, err := m.request(phy, reg)
	if err != nil {
		return err
	}

	if err = m.b.Write32(masterCtrl, req|uint32(val)); err != nil {
		m.finish()
		return err
	}
	err = m.b.Poll(masterCtrl, masterBusy)
	if ferr := m.finish(); err == nil {
		err = ferr
	}
	return err
}

// Disable drops the master enable so externally wired phys own the
// bus. Used once at setup for external-phy port maps.
func (m *Master) Disable() error {
	return m.b.Clear(masterCtrl, masterEn)
}
