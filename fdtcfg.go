// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

import (
	"fmt"
	"strings"

	"github.com/platinasystems/fdt"
)

// ParseMode maps a devicetree phy-mode string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "internal":
		return ModeInternal, nil
	case "rgmii":
		return ModeRgmii, nil
	case "rgmii-id":
		return ModeRgmiiId, nil
	case "rgmii-txid":
		return ModeRgmiiTxId, nil
	case "rgmii-rxid":
		return ModeRgmiiRxId, nil
	case "sgmii":
		return ModeSgmii, nil
	case "1000base-x":
		return Mode1000BaseX, nil
	case "psgmii":
		return ModePsgmii, nil
	}
	return ModeNone, fmt.Errorf("qca8k: unknown phy-mode %q", s)
}

// PortsFromFdt walks the port@N children of a switch's ports node and
// builds the per-port configuration.  Ports absent from the tree stay
// unconfigured.
func PortsFromFdt(t *fdt.Tree, numPorts int) ([]PortConfig, error) {
	ports := make([]PortConfig, numPorts)
	var err error
	t.MatchNode("ports", func(n *fdt.Node) {
		for _, c := range n.Children {
			if e := portFromNode(t, c, ports); e != nil && err == nil {
				err = e
			}
		}
	})
	return ports, err
}

// ParseFdt parses a flattened devicetree blob and extracts the port
// configuration.
func ParseFdt(blob []byte, numPorts int) ([]PortConfig, error) {
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	if err := t.Parse(blob); err != nil {
		return nil, err
	}
	return PortsFromFdt(t, numPorts)
}

func portFromNode(t *fdt.Tree, n *fdt.Node, ports []PortConfig) error {
	if !strings.HasPrefix(n.Name, "port") {
		return nil
	}
	reg, ok := n.Properties["reg"]
	if !ok {
		return fmt.Errorf("qca8k: node %s has no reg", n.Name)
	}
	port := int(t.PropUint32(reg))
	if port < 0 || port >= len(ports) {
		return fmt.Errorf("qca8k: node %s: port %d out of range", n.Name, port)
	}
	pc := &ports[port]
	if v, ok := n.Properties["phy-mode"]; ok {
		mode, err := ParseMode(t.PropString(v))
		if err != nil {
			return err
		}
		pc.Mode = mode
	}
	if v, ok := n.Properties["rx-delay"]; ok {
		pc.RxDelay = int(t.PropUint32(v))
	}
	if v, ok := n.Properties["tx-delay"]; ok {
		pc.TxDelay = int(t.PropUint32(v))
	}
	if v, ok := n.Properties["managed"]; ok {
		if t.PropString(v) == "in-band-status" {
			pc.Inband = true
		}
	}
	if _, ok := n.Properties["sgmii-rxclk-falling-edge"]; ok {
		pc.SgmiiClkFalling = true
	}
	return nil
}
