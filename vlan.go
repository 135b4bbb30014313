// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

// VTU access commands.
const (
	vtuFlush uint32 = 1
	vtuRead  uint32 = 2
	vtuLoad  uint32 = 3
	vtuPurge uint32 = 4
)

// vtuAccess issues a VLAN table command for vid and waits it out.  A
// LOAD with the full bit set means the table has no free bin.
func (sw *Switch) vtuAccess(cmd uint32, vid uint16) error {
	v := cmd | vtuFunc1Busy | uint32(vid)<<vtuFunc1VidShift
	if err := sw.b.Write32(regVtuFunc1, v); err != nil {
		return err
	}
	if err := sw.b.Poll(regVtuFunc1, vtuFunc1Busy); err != nil {
		return err
	}
	if cmd == vtuLoad {
		v, err := sw.b.Read32(regVtuFunc1)
		if err != nil {
			return err
		}
		if v&vtuFunc1Full != 0 {
			return ErrTableFull
		}
	}
	return nil
}

// vtuRead32 fetches the member register for vid.  The valid bit tells
// the caller whether the VLAN exists at all.
func (sw *Switch) vtuRead32(vid uint16) (uint32, error) {
	if err := sw.vtuAccess(vtuRead, vid); err != nil {
		return 0, err
	}
	return sw.b.Read32(regVtuFunc0)
}

// VlanAdd makes port a member of vid, tagged or untagged on egress.
// Membership of the other ports is preserved; VLAN 0 is reserved and
// ignored.
func (sw *Switch) VlanAdd(port int, vid uint16, untagged bool) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	if vid == 0 {
		return nil
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	v, err := sw.vtuRead32(vid)
	if err != nil {
		return err
	}
	if v&vtuFunc0Valid == 0 {
		// New VLAN: every port starts as a non-member.
		v = vtuFunc0Valid | vtuFunc0IvlEn
		for p := 0; p < sw.chip.numPorts; p++ {
			v |= vtuEgModeNotMem << vtuEgModeShift(p)
		}
	}
	mode := vtuEgModeTag
	if untagged {
		mode = vtuEgModeUntag
	}
	shift := vtuEgModeShift(port)
	v = v&^(vtuEgModeMask<<shift) | mode<<shift

	if err = sw.b.Write32(regVtuFunc0, v); err != nil {
		return err
	}
	return sw.vtuAccess(vtuLoad, vid)
}

// VlanDel removes port from vid.  When the last member leaves, the
// whole VLAN is purged from the table.
func (sw *Switch) VlanDel(port int, vid uint16) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	if vid == 0 {
		return nil
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	v, err := sw.vtuRead32(vid)
	if err != nil {
		return err
	}
	if v&vtuFunc0Valid == 0 {
		return nil
	}
	shift := vtuEgModeShift(port)
	v = v&^(vtuEgModeMask<<shift) | vtuEgModeNotMem<<shift

	members := false
	for p := 0; p < sw.chip.numPorts; p++ {
		mode := v >> vtuEgModeShift(p) & vtuEgModeMask
		if mode != vtuEgModeNotMem {
			members = true
			break
		}
	}
	if !members {
		return sw.vtuAccess(vtuPurge, vid)
	}
	if err = sw.b.Write32(regVtuFunc0, v); err != nil {
		return err
	}
	return sw.vtuAccess(vtuLoad, vid)
}

// VlanPresent reports whether vid has a valid table entry.
func (sw *Switch) VlanPresent(vid uint16) (bool, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	v, err := sw.vtuRead32(vid)
	if err != nil {
		return false, err
	}
	return v&vtuFunc0Valid != 0, nil
}

// VlanMembers returns the egress mode of every port in vid.  Entries
// are vtuEgModeNotMem for non-members; ok is false when the VLAN does
// not exist.
func (sw *Switch) VlanMembers(vid uint16) (tagged, untagged PortMask, ok bool, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	v, err := sw.vtuRead32(vid)
	if err != nil {
		return
	}
	if v&vtuFunc0Valid == 0 {
		return
	}
	ok = true
	for p := 0; p < sw.chip.numPorts; p++ {
		switch v >> vtuEgModeShift(p) & vtuEgModeMask {
		case vtuEgModeTag, vtuEgModeUnmod:
			tagged.Set(p)
		case vtuEgModeUntag:
			untagged.Set(p)
		}
	}
	return
}
