// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package psgmii brings up the PSGMII link between an IPQ40xx SoC and
// its integrated switch core.
//
// The five Malibu PHYs share one SerDes.  After reset the SerDes VCO
// may settle on a marginal lock, so bring-up runs a packet loopback
// self test through every PHY and repeats the whole reset and
// calibration cycle until the counters come back clean or the retry
// bound is hit.  The sequence only runs at attach; it never touches
// the data path afterwards.
package psgmii

import (
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"

	"github.com/platinasystems/qca8k/internal/bus"
)

const (
	serdesPhy    uint16 = 5
	broadcastPhy uint16 = 0x1f
	numPhys             = 5

	// Clause 22 MMD indirect access.
	mmdCtrl   uint16 = 0x0d
	mmdData   uint16 = 0x0e
	mmdNoIncr uint16 = 0x4000
	mmdPmaPmd uint16 = 1
	mmdPcs    uint16 = 3
	mmdAn     uint16 = 7

	regBmcr       uint16 = 0x00
	bmcrSpeed1000 uint16 = 0x0040
	bmcrFullDplx  uint16 = 0x0100
	bmcrAnEnable  uint16 = 0x1000
	bmcrPowerDown uint16 = 0x0800
	bmcrLoopback  uint16 = 0x4000
	bmcrReset     uint16 = 0x8000

	regSpecStatus  uint16 = 0x11
	specStatusLink uint16 = 1 << 10

	// Malibu tuning registers.
	regPsgmiiModeCtrl uint16 = 0x6d // MMD1, phy 5
	psgmiiModeAdjust  uint16 = 0x220c
	regDacCtrl        uint16 = 0x801a // MMD7
	dacCtrlMask       uint16 = 0x380
	dacCtrlValue      uint16 = 0x280
	regRlpCtrl        uint16 = 0x805a // MMD3, last phy only
	regTxDriver1Ctrl  uint16 = 0x0b
	reduceSerdesTxAmp uint16 = 0x8a

	// MMD7 packet generator.
	genPktNumber uint16 = 0x8021
	genPktSize   uint16 = 0x8062
	genCheck     uint16 = 0x8029
	genCtrl      uint16 = 0x8020
	genStart     uint16 = 0xa000

	genBroadcast uint16 = 0x8028

	cntRxOkHigh uint16 = 0x802a
	cntRxOk     uint16 = 0x802b
	cntRxError  uint16 = 0x802c
	cntTxOkHigh uint16 = 0x802d
	cntTxOk     uint16 = 0x802e
	cntTxError  uint16 = 0x802f

	testPkts uint32 = 0x1000 // 4096 packets of 1524 bytes
	pktSize  uint16 = 0x05e0

	// PSGMII wrapper registers.
	regModeControl  uint32 = 0x1b4
	regPhyTxControl uint32 = 0x288
	regVcoStatus    uint32 = 0x0a0

	vcoCalibReady uint32 = 1 << 0

	modeControlValue  uint32 = 0x2200
	phyTxControlValue uint32 = 0x8380
)

func regPortLookup(port int) uint32 { return 0x660 + uint32(port)*0xc }

const portLookupLoopback uint32 = 1 << 21

// calibAttempts bounds every poll and the outer reset cycle.
const calibAttempts = 100

// Sequencer holds the three register spaces the bring-up touches.
type Sequencer struct {
	Mii    bus.IO  // MDIO bus with the Malibu PHYs and the SerDes
	Ess    bus.Bus // switch core, for port loopback
	Serdes bus.Bus // PSGMII wrapper block

	// Reset pulses the ESS reset line and waits out the table
	// reinit, 5 to 10ms on silicon.
	Reset func() error

	Sleep    func(time.Duration)
	Attempts int

	err error
}

// sticky error accessors: after the first transport failure the rest
// of the sequence turns into no-ops and Run reports that failure.

func (s *Sequencer) read(phy, reg uint16) uint16 {
	if s.err != nil {
		return 0
	}
	v, err := s.Mii.Read(phy, reg)
	if err != nil {
		s.err = err
	}
	return v
}

func (s *Sequencer) write(phy, reg, val uint16) {
	if s.err != nil {
		return
	}
	s.err = s.Mii.Write(phy, reg, val)
}

func (s *Sequencer) mmdWrite(phy, mmd, reg, val uint16) {
	s.write(phy, mmdCtrl, mmd)
	s.write(phy, mmdData, reg)
	s.write(phy, mmdCtrl, mmdNoIncr|mmd)
	s.write(phy, mmdData, val)
}

func (s *Sequencer) mmdRead(phy, mmd, reg uint16) uint16 {
	s.write(phy, mmdCtrl, mmd)
	s.write(phy, mmdData, reg)
	s.write(phy, mmdCtrl, mmdNoIncr|mmd)
	return s.read(phy, mmdData)
}

func (s *Sequencer) sleep(d time.Duration) {
	if s.err == nil {
		s.Sleep(d)
	}
}

// Run executes the full bring-up.  A failed self test is reported but
// the wrapper is still programmed; the link may train anyway, just not
// reliably.
func (s *Sequencer) Run() error {
	if s.Sleep == nil {
		s.Sleep = time.Sleep
	}
	if s.Attempts <= 0 {
		s.Attempts = calibAttempts
	}
	s.err = nil

	s.malibuInit()
	testErr := s.selfTest()
	s.cleanup()

	if s.err == nil {
		if err := s.Serdes.Write32(regModeControl, modeControlValue); err != nil {
			s.err = err
		}
	}
	if s.err == nil {
		if err := s.Serdes.Write32(regPhyTxControl, phyTxControlValue); err != nil {
			s.err = err
		}
	}
	if s.err != nil {
		return s.err
	}
	return testErr
}

// malibuInit applies the PHY tuning the SerDes needs before any
// calibration: EEE transmit workaround, DAC control, hibernation off
// on the last PHY, reduced SerDes TX amplitude.
func (s *Sequencer) malibuInit() {
	s.mmdWrite(serdesPhy, mmdPmaPmd, regPsgmiiModeCtrl, psgmiiModeAdjust)
	for phy := uint16(0); phy < numPhys; phy++ {
		v := s.mmdRead(phy, mmdAn, regDacCtrl)
		v = v&^dacCtrlMask | dacCtrlValue
		s.mmdWrite(phy, mmdAn, regDacCtrl, v)
		if phy == numPhys-1 {
			v = s.mmdRead(phy, mmdPcs, regRlpCtrl)
			s.mmdWrite(phy, mmdPcs, regRlpCtrl, v&^(1<<1))
		}
	}
	s.write(serdesPhy, regTxDriver1Ctrl, reduceSerdesTxAmp)
}

// serdesReset recalibrates the SerDes from scratch: hold the receive
// path in its 20 bit mode, reset, wait for the Malibu VCO PLL, freeze
// the RX CDR across an ESS reset, wait for the wrapper side PLL, then
// release everything.
func (s *Sequencer) serdesReset() {
	s.write(serdesPhy, regBmcr, 0x005b)
	s.write(serdesPhy, regBmcr, 0x001b)
	s.write(serdesPhy, regBmcr, 0x005b)

	// Worst case VCO settle is under 9ms at a 25MHz reference.
	s.pollMmd(serdesPhy, mmdPmaPmd, 0x28, 1<<0)

	s.write(serdesPhy, 0x1a, 0x2230)

	if s.err == nil && s.Reset != nil {
		s.err = s.Reset()
	}

	s.pollSerdes(regVcoStatus, vcoCalibReady)

	s.write(serdesPhy, 0x1a, 0x3230)
	s.write(serdesPhy, regBmcr, 0x005f)
}

func (s *Sequencer) pollMmd(phy, mmd, reg, mask uint16) {
	b := backoff.Backoff{Min: 2 * time.Millisecond, Max: 10 * time.Millisecond}
	for n := 0; n < calibAttempts; n++ {
		if s.err != nil || s.mmdRead(phy, mmd, reg)&mask != 0 {
			return
		}
		s.sleep(b.Duration())
	}
}

func (s *Sequencer) pollSerdes(reg, mask uint32) {
	b := backoff.Backoff{Min: 2 * time.Millisecond, Max: 10 * time.Millisecond}
	for n := 0; n < calibAttempts; n++ {
		if s.err != nil {
			return
		}
		v, err := s.Serdes.Read32(reg)
		if err != nil {
			s.err = err
			return
		}
		if v&mask != 0 {
			return
		}
		s.sleep(b.Duration())
	}
}

// testRun fires the packet generator and waits for the burst to drain:
// 4096 packets of 1524 bytes at 125MHz is just under 50ms.
func (s *Sequencer) testRun(phy uint16) {
	s.mmdWrite(phy, mmdAn, genCheck, 0x0000)
	s.mmdWrite(phy, mmdAn, genCheck, 0x0003)
	s.mmdWrite(phy, mmdAn, genCtrl, genStart)
	s.sleep(50 * time.Millisecond)
}

// checkCounters verifies one PHY transmitted the whole burst without
// error.  The receive side counters are only interesting when it did
// not.
func (s *Sequencer) checkCounters(phy uint16) bool {
	txOk := uint32(s.mmdRead(phy, mmdAn, cntTxOk))
	txOkHigh := uint32(s.mmdRead(phy, mmdAn, cntTxOkHigh))
	txError := s.mmdRead(phy, mmdAn, cntTxError)
	rxOk := uint32(s.mmdRead(phy, mmdAn, cntRxOk))
	rxOkHigh := uint32(s.mmdRead(phy, mmdAn, cntRxOkHigh))
	rxError := s.mmdRead(phy, mmdAn, cntRxError)
	if s.err != nil {
		return false
	}
	txAll := txOk + txOkHigh<<16
	if txAll != testPkts || txError != 0 {
		log.Print("daemon", "debug", "phy ", phy,
			" tx ", txAll, "/", txError,
			" rx ", rxOk+rxOkHigh<<16, "/", rxError)
		return false
	}
	return true
}

func (s *Sequencer) pollLink(phy uint16) {
	b := backoff.Backoff{Min: 8 * time.Millisecond, Max: 20 * time.Millisecond}
	for n := 0; n < calibAttempts; n++ {
		if s.err != nil || s.read(phy, regSpecStatus)&specStatusLink != 0 {
			return
		}
		s.sleep(b.Duration())
	}
}

// singleTest loops one PHY back through the SerDes and checks its
// counters.  The PHY is powered back down afterwards so it cannot
// disturb the others.
func (s *Sequencer) singleTest(phy uint16) bool {
	s.write(phy, regBmcr, bmcrReset|bmcrAnEnable)
	s.write(phy, regBmcr, bmcrLoopback|bmcrFullDplx|bmcrSpeed1000)
	s.pollLink(phy)
	s.testRun(phy)
	ok := s.checkCounters(phy)
	s.write(phy, regBmcr, bmcrAnEnable|bmcrPowerDown|bmcrSpeed1000)
	return ok
}

// allTest loops every PHY back at once and pushes the burst through
// all of them via the broadcast address.  This catches lane crosstalk
// that the single PHY runs cannot see.
func (s *Sequencer) allTest() bool {
	s.write(broadcastPhy, regBmcr, bmcrReset|bmcrAnEnable)
	s.write(broadcastPhy, regBmcr, bmcrLoopback|bmcrFullDplx|bmcrSpeed1000)

	b := backoff.Backoff{Min: 8 * time.Millisecond, Max: 20 * time.Millisecond}
	for n := 0; n < calibAttempts; n++ {
		up := 0
		for phy := uint16(0); phy < numPhys; phy++ {
			if s.read(phy, regSpecStatus)&specStatusLink == 0 {
				break
			}
			up++
		}
		if s.err != nil || up == numPhys {
			break
		}
		s.sleep(b.Duration())
	}

	s.testRun(broadcastPhy)

	ok := true
	for phy := uint16(0); phy < numPhys; phy++ {
		if !s.checkCounters(phy) {
			ok = false
		}
	}
	return ok
}

// selfTest is the outer calibration loop: every attempt loops the user
// ports back in the lookup stage, tests each PHY alone and then all
// together, and resets the SerDes for another round on any failure.
func (s *Sequencer) selfTest() error {
	s.serdesReset()

	// Switch PHY 4 to its copper page so the MII registers below
	// talk to the right interface.
	s.write(4, 0x1f, 0x8500)

	for phy := uint16(0); phy < numPhys; phy++ {
		s.mmdWrite(phy, mmdAn, genBroadcast, 0x801f)
	}

	// Force the links down so only the loopback path carries the
	// test burst.
	s.write(broadcastPhy, regBmcr, bmcrAnEnable|bmcrPowerDown|bmcrSpeed1000)

	s.mmdWrite(broadcastPhy, mmdAn, genPktNumber, uint16(testPkts))
	s.mmdWrite(broadcastPhy, mmdAn, genPktSize, pktSize)
	s.write(broadcastPhy, 0x10, 0x6800)

	pass := false
	attempt := 0
	for ; attempt < s.Attempts && s.err == nil; attempt++ {
		for phy := 0; phy < numPhys; phy++ {
			if s.err == nil {
				s.err = s.Ess.Set(regPortLookup(phy+1), portLookupLoopback)
			}
		}
		ok := true
		for phy := uint16(0); phy < numPhys; phy++ {
			if !s.singleTest(phy) {
				ok = false
			}
		}
		if !s.allTest() {
			ok = false
		}
		if ok && s.err == nil {
			pass = true
			break
		}
		s.serdesReset()
	}

	s.mmdWrite(broadcastPhy, mmdAn, genPktNumber, 0)
	s.mmdWrite(broadcastPhy, mmdAn, genCheck, 0)
	s.mmdWrite(broadcastPhy, mmdAn, genCtrl, 0)

	if s.err != nil {
		return s.err
	}
	if !pass {
		return fmt.Errorf("psgmii: self test failed after %d resets", attempt)
	}
	if attempt > 0 {
		log.Print("daemon", "info", "psgmii recovered after ", attempt, " resets")
	}
	return nil
}

// cleanup undoes the test plumbing whether or not the test passed.
func (s *Sequencer) cleanup() {
	s.write(broadcastPhy, 0x10, 0x6860)
	s.write(broadcastPhy, regBmcr, bmcrAnEnable|bmcrReset|bmcrSpeed1000)
	for phy := 0; phy < numPhys; phy++ {
		if s.err == nil {
			s.err = s.Ess.Clear(regPortLookup(phy+1), portLookupLoopback)
		}
		s.mmdWrite(uint16(phy), mmdAn, genBroadcast, 0x001f)
	}
}
