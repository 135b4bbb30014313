// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

import (
	"github.com/platinasystems/log"

	"github.com/platinasystems/qca8k/internal/psgmii"
)

// LinkState is a decoded port status register.
type LinkState struct {
	Up      bool
	AutoNeg bool
	Speed   int
	Duplex  bool
	TxPause bool
	RxPause bool
}

// LinkState reads and decodes a port's status register.
func (sw *Switch) LinkState(port int) (LinkState, error) {
	var ls LinkState
	if !sw.validPort(port) {
		return ls, &ModeError{Port: port, Mode: ModeNone}
	}
	v, err := sw.b.Read32(regPortStatus(port))
	if err != nil {
		return ls, err
	}
	ls.Up = v&portStatusLinkUp != 0
	ls.AutoNeg = v&portStatusLinkAuto != 0
	ls.Duplex = v&portStatusDuplex != 0
	ls.TxPause = v&portStatusTxFlow != 0
	ls.RxPause = v&portStatusRxFlow != 0
	switch v & portStatusSpeedMask {
	case portStatusSpeed10:
		ls.Speed = 10
	case portStatusSpeed100:
		ls.Speed = 100
	case portStatusSpeed1000:
		ls.Speed = 1000
	}
	return ls, nil
}

// PhyFlags returns hints for the PHY driver bound to a port.  Internal
// PHYs get the switch revision in the low bits so the driver can pick
// the right debug and MMD fixups.
func (sw *Switch) PhyFlags(port int) uint32 {
	if port < len(sw.cfg.Ports) && sw.cfg.Ports[port].Mode == ModeInternal {
		return uint32(sw.rev)
	}
	return 0
}

// padReg returns the pad control register owning a port's MAC pins.
// Only the three possible CPU-facing MACs have pads.
func padReg(port int) (uint32, bool) {
	switch port {
	case 0:
		return regPort0PadCtrl, true
	case 5:
		return regPort5PadCtrl, true
	case 6:
		return regPort6PadCtrl, true
	}
	return 0, false
}

// PortModes lists the interface modes a port can provide.
func (sw *Switch) PortModes(port int) []Mode {
	if !sw.validPort(port) {
		return nil
	}
	if sw.chip.mmio {
		if port == cpuPort {
			return []Mode{ModeInternal}
		}
		return []Mode{ModePsgmii, ModeRgmii}
	}
	switch port {
	case 0:
		// The first MAC has no fiber support; 1000BASE-X is a
		// port 6 affair only.
		return []Mode{
			ModeRgmii, ModeRgmiiId, ModeRgmiiTxId, ModeRgmiiRxId,
			ModeSgmii,
		}
	case 6:
		return []Mode{
			ModeRgmii, ModeRgmiiId, ModeRgmiiTxId, ModeRgmiiRxId,
			ModeSgmii, Mode1000BaseX,
		}
	case 5:
		return []Mode{
			ModeRgmii, ModeRgmiiId, ModeRgmiiTxId, ModeRgmiiRxId,
		}
	default:
		return []Mode{ModeInternal}
	}
}

func modeOk(modes []Mode, m Mode) bool {
	for _, v := range modes {
		if v == m {
			return true
		}
	}
	return false
}

func clampDelay(ns int) uint32 {
	if ns < 0 {
		return 0
	}
	if ns > maxRgmiiDelay {
		return maxRgmiiDelay
	}
	return uint32(ns)
}

// The usual internal delay values when the board leaves them unset.
const (
	defaultRxDelay = 2
	defaultTxDelay = 1
)

func rgmiiDelays(pc PortConfig) (rx, tx uint32) {
	r, t := pc.RxDelay, pc.TxDelay
	if r == 0 {
		r = defaultRxDelay
	}
	if t == 0 {
		t = defaultTxDelay
	}
	return clampDelay(r), clampDelay(t)
}

// MacConfig programs a port's MAC for an interface mode.  An
// unsupported mode is rejected before any register is touched.
func (sw *Switch) MacConfig(port int, pc PortConfig) error {
	if !sw.validPort(port) || !modeOk(sw.PortModes(port), pc.Mode) {
		return &ModeError{Port: port, Mode: pc.Mode}
	}
	switch pc.Mode {
	case ModeInternal:
		// Internal PHYs need no pad setup.
		return nil
	case ModePsgmii:
		return sw.calibrate()
	case ModeRgmii, ModeRgmiiId, ModeRgmiiTxId, ModeRgmiiRxId:
		return sw.configRgmii(port, pc)
	case ModeSgmii, Mode1000BaseX:
		return sw.configSgmii(port, pc)
	}
	return &ModeError{Port: port, Mode: pc.Mode}
}

// rgmiiWrapperClkEn enables the SoC side RGMII wrapper clock on the
// integrated core, which repurposes the port 0 pad register.
const rgmiiWrapperClkEn uint32 = 1 << 10

func (sw *Switch) configRgmii(port int, pc PortConfig) error {
	if sw.chip.mmio {
		return sw.b.Write32(regPort0PadCtrl, rgmiiWrapperClkEn)
	}
	reg, ok := padReg(port)
	if !ok {
		return &ModeError{Port: port, Mode: pc.Mode}
	}
	v := padRgmiiEn
	rx, tx := rgmiiDelays(pc)
	switch pc.Mode {
	case ModeRgmiiId:
		v |= padRgmiiTxDelayEn | padRgmiiRxDelayEn
		v |= tx << padRgmiiTxDelayShift
		v |= rx << padRgmiiRxDelayShift
	case ModeRgmiiTxId:
		v |= padRgmiiTxDelayEn
		v |= tx << padRgmiiTxDelayShift
	case ModeRgmiiRxId:
		v |= padRgmiiRxDelayEn
		v |= rx << padRgmiiRxDelayShift
	}
	if err := sw.b.Write32(reg, v); err != nil {
		return err
	}
	// The QCA8337 takes its receive delay enable from the port 5 pad
	// for every RGMII port.
	if sw.chip.variant == QCA8337 && pc.Mode != ModeRgmii &&
		reg != regPort5PadCtrl {
		return sw.b.Set(regPort5PadCtrl, padRgmiiRxDelayEn)
	}
	return nil
}

func (sw *Switch) configSgmii(port int, pc PortConfig) error {
	reg, ok := padReg(port)
	if !ok {
		return &ModeError{Port: port, Mode: pc.Mode}
	}
	if err := sw.b.Write32(reg, padSgmiiEn); err != nil {
		return err
	}
	// Serdes autoneg runs only with in-band signaling; otherwise the
	// link parameters come from MacLinkUp.
	if pc.Inband {
		if err := sw.b.Clear(regPws, pwsSerdesAutonegDisable); err != nil {
			return err
		}
	} else {
		if err := sw.b.Set(regPws, pwsSerdesAutonegDisable); err != nil {
			return err
		}
	}
	// The CPU port faces the SoC MAC, so the switch side plays the
	// PHY role there.
	mode := sgmiiModeMac
	if port == cpuPort {
		mode = sgmiiModePhy
	} else if pc.Mode == Mode1000BaseX {
		mode = sgmiiModeBaseX
	}
	set := sgmiiEnPll | sgmiiEnRx | sgmiiEnTx | sgmiiEnSd | mode
	mask := sgmiiEnPll | sgmiiEnRx | sgmiiEnTx | sgmiiEnSd |
		sgmiiModeMask | sgmiiClk125mDelay
	if pc.SgmiiClkFalling {
		set |= sgmiiClk125mDelay
	}
	return sw.b.Modify(regSgmiiCtrl, mask, set)
}

// MacLinkDown forces a port's MAC down.
func (sw *Switch) MacLinkDown(port int) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	return sw.b.Clear(regPortStatus(port), portStatusTxMac|portStatusRxMac)
}

// MacLinkUp programs resolved link parameters and turns the MAC on.
func (sw *Switch) MacLinkUp(port, speed int, duplex, txPause, rxPause bool) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	if port < len(sw.cfg.Ports) && sw.cfg.Ports[port].Mode == ModePsgmii {
		if err := sw.calibrate(); err != nil {
			return err
		}
	}
	var v uint32
	switch speed {
	case 10:
		v = portStatusSpeed10
	case 100:
		v = portStatusSpeed100
	default:
		v = portStatusSpeed1000
	}
	if duplex {
		v |= portStatusDuplex
	}
	if txPause {
		v |= portStatusTxFlow
	}
	if rxPause {
		v |= portStatusRxFlow
	}
	v |= portStatusTxMac | portStatusRxMac
	return sw.b.Write32(regPortStatus(port), v)
}

// calibrate runs the PSGMII link calibration once per attach.  The
// sequence is long and self checking, so a failure is logged and the
// link is left to limp rather than failing the caller.
func (sw *Switch) calibrate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.calibrated {
		return nil
	}
	if sw.cfg.Serdes == nil || sw.cfg.Mii == nil {
		sw.calibrated = true
		return nil
	}
	seq := psgmii.Sequencer{
		Mii:    sw.cfg.Mii,
		Ess:    sw.b,
		Serdes: sw.cfg.Serdes,
		Reset:  sw.cfg.EssReset,
		Sleep:  sw.sleep,
	}
	if err := seq.Run(); err != nil {
		log.Print("daemon", "err", "psgmii calibration: ", err)
	}
	sw.calibrated = true
	return nil
}
