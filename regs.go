// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

// Switch register map. Addresses and bit layouts are fixed contract
// with the ASIC generation and must not drift:
//
//	0x0000-0x00e4  global control
//	0x0100-0x0168  EEE control
//	0x0200-0x0270  parser control
//	0x0400-0x0454  ACL
//	0x0600-0x0718  lookup, ATU, VTU
//	0x0800-0x0b70  queue management
//	0x0c00-0x0c80  PKT edit
//	0x1000-0x16ac  per-port MIB blocks

const (
	regMaskCtrl uint32 = 0x000

	maskCtrlRevMask = 0xff
	maskCtrlIdShift = 8
	maskCtrlIdMask  = 0xff

	regPort0PadCtrl uint32 = 0x004
	regPort5PadCtrl uint32 = 0x008
	regPort6PadCtrl uint32 = 0x00c

	padRgmiiEn           uint32 = 1 << 26
	padRgmiiTxDelayEn    uint32 = 1 << 25
	padRgmiiRxDelayEn    uint32 = 1 << 24
	padRgmiiTxDelayShift        = 22
	padRgmiiRxDelayShift        = 20
	padSgmiiEn           uint32 = 1 << 7

	// RGMII delay values are in ns and saturate at the pad limit.
	maxRgmiiDelay = 3

	regPws uint32 = 0x010

	pwsSerdesAutonegDisable uint32 = 1 << 7

	regModuleEn uint32 = 0x030

	moduleEnMib uint32 = 1 << 0

	regMib uint32 = 0x034

	mibFlush   uint32 = 1 << 24
	mibCpuKeep uint32 = 1 << 20
	mibBusy    uint32 = 1 << 17

	regMaxFrameSize uint32 = 0x078
)

func regPortStatus(port int) uint32 { return 0x07c + uint32(port)*4 }

const (
	portStatusSpeedMask uint32 = 3 << 0
	portStatusSpeed10   uint32 = 0
	portStatusSpeed100  uint32 = 1
	portStatusSpeed1000 uint32 = 2
	portStatusTxMac     uint32 = 1 << 2
	portStatusRxMac     uint32 = 1 << 3
	portStatusTxFlow    uint32 = 1 << 4
	portStatusRxFlow    uint32 = 1 << 5
	portStatusDuplex    uint32 = 1 << 6
	portStatusLinkUp    uint32 = 1 << 8
	portStatusLinkAuto  uint32 = 1 << 9
	portStatusLinkPause uint32 = 1 << 10
)

func regPortHdrCtrl(port int) uint32 { return 0x09c + uint32(port)*4 }

const (
	hdrCtrlTxShift = 0
	hdrCtrlRxShift = 2

	hdrCtrlNone uint32 = 0
	hdrCtrlMgmt uint32 = 1
	hdrCtrlAll  uint32 = 2
)

const (
	regSgmiiCtrl uint32 = 0x0e0

	sgmiiEnPll        uint32 = 1 << 1
	sgmiiEnRx         uint32 = 1 << 2
	sgmiiEnTx         uint32 = 1 << 3
	sgmiiEnSd         uint32 = 1 << 4
	sgmiiClk125mDelay uint32 = 1 << 7

	sgmiiModeMask  uint32 = 3 << 22
	sgmiiModeBaseX uint32 = 0 << 22
	sgmiiModePhy   uint32 = 1 << 22
	sgmiiModeMac   uint32 = 2 << 22
)

const regEeeCtrl uint32 = 0x100

// eeeLpiEn is the low-power-idle enable bit for a port.
func eeeLpiEn(port int) uint32 { return 1 << uint((port+1)*2) }

// Port VLAN (parser) registers.

func regPortVlanCtrl0(port int) uint32 { return 0x420 + uint32(port)*8 }
func regPortVlanCtrl1(port int) uint32 { return 0x424 + uint32(port)*8 }

func portVlanCvid(vid uint16) uint32 { return uint32(vid) << 16 }
func portVlanSvid(vid uint16) uint32 { return uint32(vid) }

// Lookup block: ATU data/function, VTU function, forwarding control,
// per-port lookup control.

const (
	regAtuData0 uint32 = 0x600
	regAtuData1 uint32 = 0x604
	regAtuData2 uint32 = 0x608

	atuAddr2Shift = 24
	atuAddr3Shift = 16
	atuAddr4Shift = 8
	atuPortShift  = 16
	atuPortMask   = 0x7f
	atuAddr0Shift = 8
	atuVidShift   = 8
	atuVidMask    = 0xfff
	atuStatusMask = 0xf

	// Aging value marking a static entry; 0 is the end-of-table
	// sentinel on walks, never a stored entry.
	atuStatusStatic uint8 = 0xf

	regAtuFunc uint32 = 0x60c

	atuFuncBusy      uint32 = 1 << 31
	atuFuncPortEn    uint32 = 1 << 14
	atuFuncFull      uint32 = 1 << 12
	atuFuncPortShift        = 8
	atuFuncPortMask         = 0xf

	regVtuFunc0 uint32 = 0x610

	vtuFunc0Valid uint32 = 1 << 20
	vtuFunc0IvlEn uint32 = 1 << 19

	vtuEgModeMask   uint32 = 3
	vtuEgModeUnmod  uint32 = 0
	vtuEgModeUntag  uint32 = 1
	vtuEgModeTag    uint32 = 2
	vtuEgModeNotMem uint32 = 3

	regVtuFunc1 uint32 = 0x614

	vtuFunc1Busy     uint32 = 1 << 31
	vtuFunc1VidShift        = 16
	vtuFunc1Full     uint32 = 1 << 4

	regGlobalFwCtrl0 uint32 = 0x620

	fwCtrl0CpuPortEn uint32 = 1 << 10

	regGlobalFwCtrl1 uint32 = 0x624

	fwCtrl1IgmpShift = 24
	fwCtrl1BcShift   = 16
	fwCtrl1McShift   = 8
	fwCtrl1UcShift   = 0

	regGlobalFcThresh uint32 = 0x64c

	fcXonMask  uint32 = 0x1ff << 16
	fcXoffMask uint32 = 0x1ff
)

func fcXonThres(cells uint32) uint32  { return cells << 16 }
func fcXoffThres(cells uint32) uint32 { return cells }

// vtuEgModeShift positions a port's egress mode field within VTU_FUNC0.
func vtuEgModeShift(port int) uint { return uint(4 + 2*port) }

func regPortLookupCtrl(port int) uint32 { return 0x660 + uint32(port)*0xc }

const (
	lookupMemberMask uint32 = 0x7f

	lookupVlanModeMask     uint32 = 3 << 8
	lookupVlanModeNone     uint32 = 0 << 8
	lookupVlanModeFallback uint32 = 1 << 8
	lookupVlanModeCheck    uint32 = 2 << 8
	lookupVlanModeSecure   uint32 = 3 << 8

	lookupStateMask      uint32 = 7 << 16
	lookupStateDisabled  uint32 = 0 << 16
	lookupStateBlocking  uint32 = 1 << 16
	lookupStateListening uint32 = 2 << 16
	lookupStateLearning  uint32 = 3 << 16
	lookupStateForward   uint32 = 4 << 16

	lookupLearnEn  uint32 = 1 << 20
	lookupLoopback uint32 = 1 << 21
)

// Queue management: head-of-line blocking control, egress VLAN tag.

func regPortHolCtrl0(port int) uint32 { return 0x970 + uint32(port)*8 }
func regPortHolCtrl1(port int) uint32 { return 0x974 + uint32(port)*8 }

func holCtrl0EgPri(pri int, cells uint32) uint32 { return cells << uint(4*pri) }
func holCtrl0EgPort(cells uint32) uint32         { return cells << 24 }

const (
	holCtrl1IngBufMask  uint32 = 0xf
	holCtrl1EgPriBufEn  uint32 = 1 << 6
	holCtrl1EgPortBufEn uint32 = 1 << 7
	holCtrl1WredEn      uint32 = 1 << 8
)

func holCtrl1Ing(cells uint32) uint32 { return cells }

// regEgressVlan holds the default egress VID for a pair of ports, low
// port in the low half-word.
func regEgressVlan(port int) uint32 { return 0xc70 + 4*uint32(port/2) }

func egressVlanShift(port int) uint { return uint(16 * (port % 2)) }

// Per-port MIB counter block base.
func regPortMib(port int) uint32 { return 0x1000 + uint32(port)*0x100 }
