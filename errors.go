// Copyright 2021-2023 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qca8k

import (
	"errors"
	"fmt"
)

var (
	// ErrTableFull is returned when a LOAD finds no free bin in the
	// address or VLAN table.
	ErrTableFull = errors.New("qca8k: table full")

	// ErrWalkExhausted is returned by FdbDump when the walk bound is
	// reached without seeing the end-of-table sentinel.
	ErrWalkExhausted = errors.New("qca8k: address table walk exhausted")

	// ErrMixedMdioConfig is returned by Attach when the port
	// configuration asks for both internal and external PHY
	// management.
	ErrMixedMdioConfig = errors.New("qca8k: both internal and external mdio ports configured")
)

// IdentityError reports a device id read at attach that does not match
// any chip the driver knows.
type IdentityError struct {
	Id, Rev uint8
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("qca8k: unknown device id %#02x rev %d", e.Id, e.Rev)
}

// ModeError reports an interface mode a port cannot provide.
type ModeError struct {
	Port int
	Mode Mode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("qca8k: port %d does not support mode %v", e.Port, e.Mode)
}
