// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

// StpState is a spanning tree port state.
type StpState int

const (
	StpDisabled StpState = iota
	StpBlocking
	StpListening
	StpLearning
	StpForwarding
)

func (s StpState) String() string {
	switch s {
	case StpDisabled:
		return "disabled"
	case StpBlocking:
		return "blocking"
	case StpListening:
		return "listening"
	case StpLearning:
		return "learning"
	case StpForwarding:
		return "forwarding"
	}
	return "invalid"
}

const (
	defaultMtu = 1500

	// Ethernet header plus FCS; the frame size register counts the
	// whole wire frame, MTU does not.
	ethOverhead = 18

	maxFrame = 9000
)

// PortEnable turns a front panel port's MAC on.
func (sw *Switch) PortEnable(port int) error {
	if !sw.validPort(port) || port == cpuPort {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	if err := sw.setStatus(port, true); err != nil {
		return err
	}
	sw.mu.Lock()
	sw.enabled.Set(port)
	sw.mu.Unlock()
	return nil
}

// PortDisable turns a front panel port's MAC off.
func (sw *Switch) PortDisable(port int) error {
	if !sw.validPort(port) || port == cpuPort {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	if err := sw.setStatus(port, false); err != nil {
		return err
	}
	sw.mu.Lock()
	sw.enabled.Clear(port)
	sw.mu.Unlock()
	return nil
}

// setStatus flips the MAC on or off.  Ports 1-5 have attached PHYs, so
// their speed and duplex track autonegotiation; the CPU and fixed-link
// ports keep whatever the MAC configuration programmed.
func (sw *Switch) setStatus(port int, up bool) error {
	mask := portStatusTxMac | portStatusRxMac
	if port > 0 && port < 6 {
		mask |= portStatusLinkAuto
	}
	if up {
		return sw.b.Set(regPortStatus(port), mask)
	}
	return sw.b.Clear(regPortStatus(port), mask)
}

// Suspend takes every enabled MAC down without forgetting which ports
// were up; Resume puts them back.
func (sw *Switch) Suspend() error {
	sw.mu.Lock()
	enabled := sw.enabled
	sw.mu.Unlock()
	for port := 1; port < sw.chip.numPorts; port++ {
		if !enabled.Has(port) {
			continue
		}
		if err := sw.setStatus(port, false); err != nil {
			return err
		}
	}
	return nil
}

func (sw *Switch) Resume() error {
	sw.mu.Lock()
	enabled := sw.enabled
	sw.mu.Unlock()
	for port := 1; port < sw.chip.numPorts; port++ {
		if !enabled.Has(port) {
			continue
		}
		if err := sw.setStatus(port, true); err != nil {
			return err
		}
	}
	return nil
}

// SetStpState programs the lookup state machine for a port.  Address
// learning only runs in the learning and forwarding states.
func (sw *Switch) SetStpState(port int, state StpState) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	var v uint32
	switch state {
	case StpDisabled:
		v = lookupStateDisabled
	case StpBlocking:
		v = lookupStateBlocking
	case StpListening:
		v = lookupStateListening
	case StpLearning:
		v = lookupStateLearning
	case StpForwarding:
		v = lookupStateForward
	default:
		return &ModeError{Port: port, Mode: ModeNone}
	}
	return sw.b.Modify(regPortLookupCtrl(port), lookupStateMask, v)
}

// BridgeJoin makes port a member of a bridge whose full membership,
// port included, is members.  Every member's lookup mask learns every
// other member; the CPU port always stays reachable.  The update is
// not transactional, a transport error can leave it half applied.
func (sw *Switch) BridgeJoin(port int, members PortMask) error {
	if !sw.validPort(port) || port == cpuPort {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	portMember := uint32(1) << uint(cpuPort)
	for other := 0; other < sw.chip.numPorts; other++ {
		if other == port || !members.Has(other) {
			continue
		}
		err := sw.b.Set(regPortLookupCtrl(other), 1<<uint(port))
		if err != nil {
			return err
		}
		portMember |= 1 << uint(other)
	}
	return sw.b.Modify(regPortLookupCtrl(port),
		lookupMemberMask, portMember&lookupMemberMask)
}

// BridgeLeave takes port out of a bridge whose remaining membership is
// members.  The leaving port falls back to talking to the CPU only.
func (sw *Switch) BridgeLeave(port int, members PortMask) error {
	if !sw.validPort(port) || port == cpuPort {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for other := 0; other < sw.chip.numPorts; other++ {
		if other == port || !members.Has(other) {
			continue
		}
		err := sw.b.Clear(regPortLookupCtrl(other), 1<<uint(port))
		if err != nil {
			return err
		}
	}
	return sw.b.Modify(regPortLookupCtrl(port),
		lookupMemberMask, 1<<uint(cpuPort))
}

// SetVlanFiltering switches a port between VLAN-unaware forwarding and
// secure 802.1Q mode, where frames with unknown VIDs are dropped.
func (sw *Switch) SetVlanFiltering(port int, on bool) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	mode := lookupVlanModeNone
	if on {
		mode = lookupVlanModeSecure
	}
	return sw.b.Modify(regPortLookupCtrl(port), lookupVlanModeMask, mode)
}

// SetPvid programs a port's default VLAN for untagged ingress and the
// default egress tag.
func (sw *Switch) SetPvid(port int, vid uint16) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if err := sw.setEgressVid(port, vid); err != nil {
		return err
	}
	return sw.b.Write32(regPortVlanCtrl0(port),
		portVlanCvid(vid)|portVlanSvid(vid))
}

// MaxMTU returns the largest MTU any port can carry.
func (sw *Switch) MaxMTU() int { return maxFrame - ethOverhead }

// ChangeMTU sets a port's MTU.  The frame size limit is global, so the
// register gets the largest MTU configured on any port plus the
// Ethernet overhead.
func (sw *Switch) ChangeMTU(port, mtu int) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	if mtu < 0 || mtu > sw.MaxMTU() {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	old := sw.mtu[port]
	sw.mtu[port] = mtu
	if err := sw.writeMaxFrame(); err != nil {
		sw.mtu[port] = old
		return err
	}
	return nil
}

func (sw *Switch) writeMaxFrame() error {
	max := 0
	for _, m := range sw.mtu {
		if m > max {
			max = m
		}
	}
	return sw.b.Write32(regMaxFrameSize, uint32(max+ethOverhead))
}

// SetEEE enables or disables low power idle signaling toward the PHY
// on a port.
func (sw *Switch) SetEEE(port int, on bool) error {
	if !sw.validPort(port) || port == cpuPort {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if on {
		return sw.b.Set(regEeeCtrl, eeeLpiEn(port))
	}
	return sw.b.Clear(regEeeCtrl, eeeLpiEn(port))
}

// GetEEE reports whether low power idle is enabled on a port.
func (sw *Switch) GetEEE(port int) (bool, error) {
	if !sw.validPort(port) || port == cpuPort {
		return false, &ModeError{Port: port, Mode: ModeNone}
	}
	v, err := sw.b.Read32(regEeeCtrl)
	if err != nil {
		return false, err
	}
	return v&eeeLpiEn(port) != 0, nil
}
