// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

import "github.com/platinasystems/log"

// defaultVid is programmed as both ingress and egress default until a
// bridge changes it.
const defaultVid = 1

// setup brings the switch to a known state: CPU port forwarding on,
// tagging headers on the CPU port, all user ports isolated with their
// MACs down, flood masks pointed at the CPU, learning enabled and the
// address table empty.  Order matters; forwarding must not be enabled
// before the member masks are zeroed.
func (sw *Switch) setup() error {
	b := sw.b

	if err := b.Set(regGlobalFwCtrl0, fwCtrl0CpuPortEn); err != nil {
		return err
	}

	// Counters are best effort; a stuck MIB block is not worth
	// failing attach over.
	if err := sw.mibInit(); err != nil {
		log.Print("daemon", "err", "mib init: ", err)
	}

	hdr := hdrCtrlAll<<hdrCtrlTxShift | hdrCtrlAll<<hdrCtrlRxShift
	if err := b.Write32(regPortHdrCtrl(cpuPort), hdr); err != nil {
		return err
	}

	for port := 0; port < sw.chip.numPorts; port++ {
		if err := b.Clear(regPortLookupCtrl(port), lookupMemberMask); err != nil {
			return err
		}
		if port != cpuPort {
			if err := sw.setStatus(port, false); err != nil {
				return err
			}
		}
	}

	if err := b.Write32(regGlobalFwCtrl1, sw.floodMasks()); err != nil {
		return err
	}

	cpuBit := uint32(1) << uint(cpuPort)
	userMask := uint32(0)
	for port := 1; port < sw.chip.numPorts; port++ {
		userMask |= 1 << uint(port)
	}
	err := b.Modify(regPortLookupCtrl(cpuPort),
		lookupMemberMask, userMask&lookupMemberMask)
	if err != nil {
		return err
	}
	// Hardware learning stays off on the CPU port; the host installs
	// its own addresses instead (AssistedLearning).
	for port := 1; port < sw.chip.numPorts; port++ {
		err := b.Modify(regPortLookupCtrl(port),
			lookupMemberMask|lookupLearnEn,
			cpuBit|lookupLearnEn)
		if err != nil {
			return err
		}
		if err = sw.setEgressVid(port, defaultVid); err != nil {
			return err
		}
		err = b.Write32(regPortVlanCtrl0(port),
			portVlanCvid(defaultVid)|portVlanSvid(defaultVid))
		if err != nil {
			return err
		}
	}

	if err := sw.tuneBuffers(); err != nil {
		return err
	}

	for port := 0; port < sw.chip.numPorts; port++ {
		sw.mtu[port] = defaultMtu
	}
	if err := sw.writeMaxFrame(); err != nil {
		return err
	}

	return sw.FdbFlush()
}

// floodMasks builds GLOBAL_FW_CTRL1.  The integrated core floods
// unknown traffic to every port and lets the lookup masks restrict it;
// the discrete parts flood to the CPU only.
func (sw *Switch) floodMasks() uint32 {
	cpuBit := uint32(1) << uint(cpuPort)
	flood := cpuBit
	if sw.chip.rawFwMasks {
		flood = 0
		for port := 0; port < sw.chip.numPorts; port++ {
			flood |= 1 << uint(port)
		}
	}
	return cpuBit<<fwCtrl1IgmpShift |
		flood<<fwCtrl1BcShift |
		flood<<fwCtrl1McShift |
		flood<<fwCtrl1UcShift
}

func (sw *Switch) setEgressVid(port int, vid uint16) error {
	shift := egressVlanShift(port)
	return sw.b.Modify(regEgressVlan(port),
		0xfff<<shift, uint32(vid)<<shift)
}

// tuneBuffers applies the per-generation queue fixups: the QCA8337
// ships with head-of-line thresholds too aggressive for line rate
// forwarding, the QCA8327 with flow control watermarks too low.
func (sw *Switch) tuneBuffers() error {
	switch {
	case sw.chip.holTuning:
		for port := 0; port < sw.chip.numPorts; port++ {
			var mask uint32
			switch port {
			case 0, 5, 6:
				mask = holCtrl0EgPri(0, 0x3) |
					holCtrl0EgPri(1, 0x4) |
					holCtrl0EgPri(2, 0x4) |
					holCtrl0EgPri(3, 0x4) |
					holCtrl0EgPri(4, 0x6) |
					holCtrl0EgPri(5, 0x8) |
					holCtrl0EgPort(0x1e)
			default:
				mask = holCtrl0EgPri(0, 0x3) |
					holCtrl0EgPri(1, 0x4) |
					holCtrl0EgPri(2, 0x6) |
					holCtrl0EgPri(3, 0x8) |
					holCtrl0EgPort(0x19)
			}
			if err := sw.b.Write32(regPortHolCtrl0(port), mask); err != nil {
				return err
			}
			mask = holCtrl1Ing(0x6) |
				holCtrl1EgPriBufEn |
				holCtrl1EgPortBufEn |
				holCtrl1WredEn
			err := sw.b.Modify(regPortHolCtrl1(port),
				holCtrl1IngBufMask|holCtrl1EgPriBufEn|
					holCtrl1EgPortBufEn|holCtrl1WredEn,
				mask)
			if err != nil {
				return err
			}
		}
	case sw.chip.fcTuning:
		return sw.b.Modify(regGlobalFcThresh,
			fcXonMask|fcXoffMask,
			fcXonThres(288)|fcXoffThres(496))
	}
	return nil
}
