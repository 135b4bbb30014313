// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

import (
	"time"

	"github.com/platinasystems/log"
)

// The switch raises no interrupts toward the host, so link state has
// to be polled.  The scanner is optional; callers that have their own
// poll loop just use LinkState directly.

type linkScanner struct {
	stop chan struct{}
	done chan struct{}
}

// StartLinkScan polls every front panel port at the given interval and
// calls notify for each port whose decoded state changed.  notify runs
// on the scanner goroutine and must not call back into the scanner.
func (sw *Switch) StartLinkScan(interval time.Duration, notify func(port int, ls LinkState)) {
	sw.StopLinkScan()
	scan := &linkScanner{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	sw.mu.Lock()
	sw.scan = scan
	sw.mu.Unlock()

	go sw.scanLoop(scan, interval, notify)
}

// StopLinkScan stops the poller and waits for it to exit.  Safe to
// call when no scan is running.
func (sw *Switch) StopLinkScan() {
	sw.mu.Lock()
	scan := sw.scan
	sw.scan = nil
	sw.mu.Unlock()
	if scan == nil {
		return
	}
	close(scan.stop)
	<-scan.done
}

func (sw *Switch) scanLoop(scan *linkScanner, interval time.Duration, notify func(int, LinkState)) {
	defer close(scan.done)

	last := make([]LinkState, sw.chip.numPorts)
	seen := make([]bool, sw.chip.numPorts)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-scan.stop:
			return
		case <-t.C:
		}
		for port := 1; port < sw.chip.numPorts; port++ {
			ls, err := sw.LinkState(port)
			if err != nil {
				log.Print("daemon", "err", "link scan port ", port, ": ", err)
				continue
			}
			if seen[port] && ls == last[port] {
				continue
			}
			seen[port] = true
			last[port] = ls
			notify(port, ls)
		}
	}
}
