// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

import "testing"

func attachIpq4019(t *testing.T) (*Switch, *simDev) {
	t.Helper()
	d := newSim(0x13, 1)
	ports := make([]PortConfig, 6)
	for i := 1; i <= 5; i++ {
		ports[i].Mode = ModePsgmii
	}
	sw, err := Attach(Config{
		Variant: IPQ4019,
		Regs:    simRegIO{d},
		Ports:   ports,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sw, d
}

func TestAttachIpq4019(t *testing.T) {
	sw, d := attachIpq4019(t)

	if sw.NumPorts() != 6 {
		t.Fatal("ports:", sw.NumPorts())
	}
	if sw.TagProtocol() != "ipq4019" {
		t.Fatal("tag:", sw.TagProtocol())
	}

	// The integrated core floods to every port, not just the CPU.
	want := uint32(1)<<fwCtrl1IgmpShift | 0x3f<<fwCtrl1BcShift |
		0x3f<<fwCtrl1McShift | 0x3f<<fwCtrl1UcShift
	if v := d.regs[regGlobalFwCtrl1]; v != want {
		t.Fatalf("flood masks %#x want %#x", v, want)
	}

	// No buffer tuning on this generation.
	if d.regs[regPortHolCtrl0(1)] != 0 || d.regs[regGlobalFcThresh] != 0 {
		t.Fatal("discrete-part tuning applied")
	}
}

func TestIpq4019RgmiiWrapper(t *testing.T) {
	sw, d := attachIpq4019(t)
	if err := sw.MacConfig(1, PortConfig{Mode: ModeRgmii}); err != nil {
		t.Fatal(err)
	}
	if v := d.regs[regPort0PadCtrl]; v != rgmiiWrapperClkEn {
		t.Fatalf("rgmii ctrl %#x", v)
	}
}

// Without a SerDes block configured the calibration degenerates to the
// guard flag, which still must flip exactly once.
func TestPsgmiiLazyCalibration(t *testing.T) {
	sw, _ := attachIpq4019(t)

	if sw.calibrated {
		t.Fatal("calibrated before any psgmii mac-config")
	}
	if err := sw.MacConfig(2, PortConfig{Mode: ModePsgmii}); err != nil {
		t.Fatal(err)
	}
	if !sw.calibrated {
		t.Fatal("mac-config did not calibrate")
	}
	if err := sw.MacLinkUp(2, 1000, true, false, false); err != nil {
		t.Fatal(err)
	}
}

func TestIpq4019PortModes(t *testing.T) {
	sw, _ := attachIpq4019(t)
	if !modeOk(sw.PortModes(1), ModePsgmii) {
		t.Fatal("user port lost psgmii")
	}
	if modeOk(sw.PortModes(1), ModeSgmii) {
		t.Fatal("sgmii is not a wrapper mode here")
	}
	if modes := sw.PortModes(0); len(modes) != 1 || modes[0] != ModeInternal {
		t.Fatal("cpu port modes:", modes)
	}
}
