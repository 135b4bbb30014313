// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

// mibDesc is one hardware counter: offset into the per-port block and
// its width in 32 bit words.
type mibDesc struct {
	size uint32
	off  uint32
	name string
}

// The ar8327 generation counter layout, shared by the whole family.
var mibTable = []mibDesc{
	{1, 0x00, "RxBroad"},
	{1, 0x04, "RxPause"},
	{1, 0x08, "RxMulti"},
	{1, 0x0c, "RxFcsErr"},
	{1, 0x10, "RxAlignErr"},
	{1, 0x14, "RxRunt"},
	{1, 0x18, "RxFragment"},
	{1, 0x1c, "Rx64Byte"},
	{1, 0x20, "Rx128Byte"},
	{1, 0x24, "Rx256Byte"},
	{1, 0x28, "Rx512Byte"},
	{1, 0x2c, "Rx1024Byte"},
	{1, 0x30, "Rx1518Byte"},
	{1, 0x34, "RxMaxByte"},
	{1, 0x38, "RxTooLong"},
	{2, 0x3c, "RxGoodByte"},
	{2, 0x44, "RxBadByte"},
	{1, 0x4c, "RxOverFlow"},
	{1, 0x50, "Filtered"},
	{1, 0x54, "TxBroad"},
	{1, 0x58, "TxPause"},
	{1, 0x5c, "TxMulti"},
	{1, 0x60, "TxUnderRun"},
	{1, 0x64, "Tx64Byte"},
	{1, 0x68, "Tx128Byte"},
	{1, 0x6c, "Tx256Byte"},
	{1, 0x70, "Tx512Byte"},
	{1, 0x74, "Tx1024Byte"},
	{1, 0x78, "Tx1518Byte"},
	{1, 0x7c, "TxMaxByte"},
	{1, 0x80, "TxOverSize"},
	{2, 0x84, "TxByte"},
	{1, 0x8c, "TxCollision"},
	{1, 0x90, "TxAbortCol"},
	{1, 0x94, "TxMultiCol"},
	{1, 0x98, "TxSingleCol"},
	{1, 0x9c, "TxExcDefer"},
	{1, 0xa0, "TxDefer"},
	{1, 0xa4, "TxLateCol"},
}

// CounterCount returns the number of counters per port.
func (sw *Switch) CounterCount() int { return len(mibTable) }

// CounterNames returns the counter names in register order.
func (sw *Switch) CounterNames() []string {
	names := make([]string, len(mibTable))
	for i, d := range mibTable {
		names[i] = d.name
	}
	return names
}

// mibInit flushes the counter block and turns it on.  Counters hit by
// the CPU keep accumulating rather than clearing on read.
func (sw *Switch) mibInit() error {
	set := mibFlush | mibBusy
	if sw.cfg.LeaveMib {
		set = mibCpuKeep | mibBusy
	}
	err := sw.b.Modify(regMib, mibFlush|mibCpuKeep|mibBusy, set)
	if err != nil {
		return err
	}
	if err = sw.b.Poll(regMib, mibBusy); err != nil {
		return err
	}
	return sw.b.Set(regModuleEn, moduleEnMib)
}

// Stats reads a port's counters into out, which must hold
// CounterCount values.  The read is not atomic across counters; a
// counter that fails to read is left as is and the first error is
// returned after the remaining counters were still attempted.
func (sw *Switch) Stats(port int, out []uint64) error {
	if !sw.validPort(port) {
		return &ModeError{Port: port, Mode: ModeNone}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	base := regPortMib(port)
	var first error
	for i, d := range mibTable {
		if i >= len(out) {
			break
		}
		lo, err := sw.b.Read32(base + d.off)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		v := uint64(lo)
		if d.size == 2 {
			hi, err := sw.b.Read32(base + d.off + 4)
			if err != nil {
				if first == nil {
					first = err
				}
				continue
			}
			v |= uint64(hi) << 32
		}
		out[i] = v
	}
	return first
}
