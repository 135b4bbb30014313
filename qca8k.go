// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qca8k drives the QCA8327/QCA8337 Ethernet switch family and
// the IPQ4019 integrated variant.
//
// The QCA83xx parts expose their 32 bit register file indirectly
// through a 16 bit MDIO bus using a paged split transfer; the IPQ4019
// core is the same register file mapped into SoC memory.  Both paths
// sit behind the bus package so everything above the transport is
// shared.
package qca8k

import (
	"fmt"
	"sync"
	"time"

	"github.com/platinasystems/gpio"
	"github.com/platinasystems/log"

	"github.com/platinasystems/qca8k/internal/bus"
	"github.com/platinasystems/qca8k/internal/mdio"
)

// Variant selects the chip generation.
type Variant int

const (
	QCA8327 Variant = iota
	QCA8337
	IPQ4019
)

func (v Variant) String() string {
	switch v {
	case QCA8327:
		return "qca8327"
	case QCA8337:
		return "qca8337"
	case IPQ4019:
		return "ipq4019"
	}
	return "unknown"
}

// Mode is a port MAC interface mode.
type Mode int

const (
	ModeNone Mode = iota
	ModeInternal
	ModeRgmii
	ModeRgmiiId
	ModeRgmiiTxId
	ModeRgmiiRxId
	ModeSgmii
	Mode1000BaseX
	ModePsgmii
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeInternal:
		return "internal"
	case ModeRgmii:
		return "rgmii"
	case ModeRgmiiId:
		return "rgmii-id"
	case ModeRgmiiTxId:
		return "rgmii-txid"
	case ModeRgmiiRxId:
		return "rgmii-rxid"
	case ModeSgmii:
		return "sgmii"
	case Mode1000BaseX:
		return "1000base-x"
	case ModePsgmii:
		return "psgmii"
	}
	return "invalid"
}

// PortMask is a set of switch ports.
type PortMask uint8

func (m PortMask) Has(port int) bool { return m&(1<<uint(port)) != 0 }

func (m *PortMask) Set(port int)   { *m |= 1 << uint(port) }
func (m *PortMask) Clear(port int) { *m &^= 1 << uint(port) }

// PortConfig describes one front panel or CPU port.
type PortConfig struct {
	Mode Mode

	// RGMII delays in ns, used by the *id modes.
	RxDelay int
	TxDelay int

	// Inband enables in-band SGMII autonegotiation; without it the
	// serdes runs with parameters forced through MacLinkUp.
	Inband bool

	// SgmiiClkFalling inverts the SGMII receive clock edge.
	SgmiiClkFalling bool
}

// Config carries everything Attach needs.  Mii is the transport for
// the paged MDIO parts; Regs is the transport for the memory-mapped
// IPQ4019 core, which still takes an Mii bus for its external PHYs.
type Config struct {
	Variant Variant

	Mii  bus.IO
	Regs bus.RegIO

	// Ports is indexed by port number; a zero Mode leaves the port
	// unconfigured.  Port 0 is always the CPU port.
	Ports []PortConfig

	// Reset, when non-nil, is pulsed before identification.
	Reset *gpio.Pin

	// Serdes and EssReset drive the IPQ4019 PSGMII calibration and
	// are ignored on the MDIO parts.
	Serdes   bus.Bus
	EssReset func() error

	// LeaveMib keeps counters across a soft reset instead of
	// flushing them during setup.
	LeaveMib bool
}

// chip is the per-variant personality, resolved once at attach.
type chip struct {
	variant  Variant
	id       uint8
	numPorts int
	tag      string

	mmio       bool
	holTuning  bool
	fcTuning   bool
	rawFwMasks bool
}

var chips = map[Variant]chip{
	QCA8327: {
		variant: QCA8327, id: 0x12, numPorts: 7, tag: "qca",
		fcTuning: true,
	},
	QCA8337: {
		variant: QCA8337, id: 0x13, numPorts: 7, tag: "qca",
		holTuning: true,
	},
	IPQ4019: {
		variant: IPQ4019, id: 0x13, numPorts: 6, tag: "ipq4019",
		mmio: true, rawFwMasks: true,
	},
}

// cpuPort is fixed across the family; the forwarding control register
// has no way to name another one.
const cpuPort = 0

const resetPulse = 20 * time.Millisecond

// Switch is an attached device.  Register level access serializes
// inside the bus; the handle mutex serializes the multi-register table
// and MIB sequences on top of that.
type Switch struct {
	b    bus.Bus
	chip chip
	cfg  Config
	rev  uint8

	phy    bus.IO
	master *mdio.Master

	mu         sync.Mutex
	calibrated bool
	enabled    PortMask
	mtu        []int

	scan *linkScanner

	sleep func(time.Duration)
}

// Attach resets and identifies the device, validates the port
// configuration and runs the one-time switch setup.
func Attach(cfg Config) (*Switch, error) {
	c, ok := chips[cfg.Variant]
	if !ok {
		return nil, fmt.Errorf("qca8k: unknown variant %v", cfg.Variant)
	}
	if c.mmio {
		if cfg.Regs == nil {
			return nil, fmt.Errorf("qca8k: %v needs a Regs transport", cfg.Variant)
		}
	} else if cfg.Mii == nil {
		return nil, fmt.Errorf("qca8k: %v needs an Mii transport", cfg.Variant)
	}
	sw := &Switch{
		chip:  c,
		cfg:   cfg,
		mtu:   make([]int, c.numPorts),
		sleep: time.Sleep,
	}
	if c.mmio {
		sw.b = bus.NewDirect(cfg.Regs)
	} else {
		sw.b = bus.NewPaged(cfg.Mii)
	}

	if cfg.Reset != nil {
		if err := cfg.Reset.SetValue(true); err != nil {
			return nil, err
		}
		sw.sleep(resetPulse)
		if err := cfg.Reset.SetValue(false); err != nil {
			return nil, err
		}
		sw.sleep(resetPulse)
	}

	v, err := sw.b.Read32(regMaskCtrl)
	if err != nil {
		return nil, err
	}
	id := uint8(v >> maskCtrlIdShift & maskCtrlIdMask)
	sw.rev = uint8(v & maskCtrlRevMask)
	if id != c.id {
		return nil, &IdentityError{Id: id, Rev: sw.rev}
	}
	log.Print("daemon", "info", cfg.Variant, " id ", id, " rev ", sw.rev)

	if err = sw.setupMdio(); err != nil {
		return nil, err
	}
	if err = sw.setup(); err != nil {
		return nil, err
	}
	return sw, nil
}

// setupMdio picks the PHY management path.  Ports declared internal
// are reached through the switch's own MDIO master; anything else goes
// out the host bus with the legacy port-1 address map.  The two styles
// cannot mix because the master enable bit disconnects the passthrough
// for the whole bus.
func (sw *Switch) setupMdio() error {
	var internal, external bool
	for port, p := range sw.cfg.Ports {
		if port == cpuPort || p.Mode == ModeNone {
			continue
		}
		if p.Mode == ModeInternal {
			internal = true
		} else {
			external = true
		}
	}
	if internal && external {
		return ErrMixedMdioConfig
	}
	if sw.chip.mmio {
		// SoC PHYs sit on the host bus directly.
		sw.phy = sw.cfg.Mii
		return nil
	}
	if internal {
		sw.master = mdio.New(sw.b)
		sw.phy = sw.master
		return nil
	}
	sw.phy = sw.cfg.Mii
	// Make sure a previous driver did not leave the passthrough
	// disconnected.
	return mdio.New(sw.b).Disable()
}

// Close quiesces the device: any link poller stops, front panel MACs
// go down and the internal MDIO master releases the bus.
func (sw *Switch) Close() error {
	sw.StopLinkScan()
	for port := 1; port < sw.chip.numPorts; port++ {
		if err := sw.PortDisable(port); err != nil {
			return err
		}
	}
	if sw.master != nil {
		return sw.master.Disable()
	}
	return nil
}

// Revision returns the mask control revision read at attach.
func (sw *Switch) Revision() uint8 { return sw.rev }

// NumPorts returns the port count for the attached variant, CPU port
// included.
func (sw *Switch) NumPorts() int { return sw.chip.numPorts }

// TagProtocol names the DSA tagging format the CPU port emits.
func (sw *Switch) TagProtocol() string { return sw.chip.tag }

// AssistedLearning reports that the host must install addresses reached
// through the CPU port itself.  Hardware learning on that port is
// unreliable on this family, so setup leaves it off there.
func (sw *Switch) AssistedLearning() bool { return true }

// LinkPollRequired reports that the switch raises no link change
// interrupts; callers poll LinkState or run StartLinkScan.
func (sw *Switch) LinkPollRequired() bool { return true }

// PhyRead reads a register of the PHY behind a front panel port.
func (sw *Switch) PhyRead(port int, reg uint16) (uint16, error) {
	phy, err := sw.phyAddr(port)
	if err != nil {
		return 0, err
	}
	return sw.phy.Read(phy, reg)
}

// PhyWrite writes a register of the PHY behind a front panel port.
func (sw *Switch) PhyWrite(port int, reg, val uint16) error {
	phy, err := sw.phyAddr(port)
	if err != nil {
		return err
	}
	return sw.phy.Write(phy, reg, val)
}

func (sw *Switch) phyAddr(port int) (uint16, error) {
	if port <= cpuPort || port >= sw.chip.numPorts || sw.phy == nil {
		return 0, &ModeError{Port: port, Mode: ModeInternal}
	}
	return uint16(port - 1), nil
}

func (sw *Switch) validPort(port int) bool {
	return port >= 0 && port < sw.chip.numPorts
}
