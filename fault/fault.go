// Package fault keeps the VCU fault vector: a 32-bit set of latched fault
// flags that subsystems raise and the application (dash, shutdown logic)
// polls.
package fault

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Fault is one bit of the fault vector.
type Fault uint32

// Core faults occupy bits 0-7, board peripherals bits 8-15 and on-board
// communication bits 16-23.
const (
	CoreAPPS Fault = 1 << 0 // accelerator pedal plausibility
	CoreBSE  Fault = 1 << 1 // brake system encoder

	CAN  Fault = 1 << 8
	SPI  Fault = 1 << 9
	GPS  Fault = 1 << 10
	NVM  Fault = 1 << 11
	Cell Fault = 1 << 12
	ADC  Fault = 1 << 13

	GPSBadRx Fault = 1 << 16
	GPSBadTx Fault = 1 << 17
	CANBadTx Fault = 1 << 18
	CANBadRx Fault = 1 << 19
)

var names = []struct {
	f    Fault
	name string
}{
	{CoreAPPS, "core_apps"},
	{CoreBSE, "core_bse"},
	{CAN, "can"},
	{SPI, "spi"},
	{GPS, "gps"},
	{NVM, "nvm"},
	{Cell, "cell"},
	{ADC, "adc"},
	{GPSBadRx, "gps_bad_rx"},
	{GPSBadTx, "gps_bad_tx"},
	{CANBadTx, "can_bad_tx"},
	{CANBadRx, "can_bad_rx"},
}

// String lists the set flags separated by "|", or "none".
func (f Fault) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	rest := f
	for _, n := range names {
		if f&n.f != 0 {
			parts = append(parts, n.name)
			rest &^= n.f
		}
	}
	if rest != 0 {
		parts = append(parts, "0x"+strings.ToUpper(strconv.FormatUint(uint64(rest), 16)))
	}
	return strings.Join(parts, "|")
}

// Sink receives fault notifications.
type Sink interface {
	Set(Fault)
}

// Vector is a latched fault vector. Faults stay set until cleared. The zero
// value is ready to use and safe for concurrent use.
type Vector struct {
	bits atomic.Uint32
}

// Set latches f.
func (v *Vector) Set(f Fault) { v.bits.Or(uint32(f)) }

// Clear resets f.
func (v *Vector) Clear(f Fault) { v.bits.And(^uint32(f)) }

// ClearAll resets every fault.
func (v *Vector) ClearAll() { v.bits.Store(0) }

// Check reports whether any bit of f is set.
func (v *Vector) Check(f Fault) bool { return Fault(v.bits.Load())&f != 0 }

// Bits returns the current vector.
func (v *Vector) Bits() Fault { return Fault(v.bits.Load()) }
