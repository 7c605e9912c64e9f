package kemper

import (
	"bytes"
	"time"
)

// MIDI status bytes
const (
	SysExStart          = 0xF0
	SysExEnd            = 0xF7
	StatusControlChange = 0xB0
	StatusProgramChange = 0xC0
)

// Kemper SysEx envelope: F0 00 20 33 <product> <device> <function> <instance> ...
const (
	ManufacturerID1 = 0x00
	ManufacturerID2 = 0x20
	ManufacturerID3 = 0x33

	DeviceOmni      = 0x7F
	InstanceDefault = 0x00

	// Bidirectional protocol function and its sub commands
	FuncBidirectional = 0x7E
	cmdHandshake      = 0x40
	cmdKeepAlive      = 0x7F

	headerLen = 8
)

// Default function codes by value type
const (
	FuncNumericRequest = 0x41
	FuncNumericSet     = 0x01
	FuncNumericReturn  = 0x01
	FuncTextRequest    = 0x43
	FuncTextSet        = 0x03
	FuncTextReturn     = 0x03
)

// Handshake flag bits (byte 10 of the handshake frame)
const (
	FlagInit     = 0x01
	FlagSysEx    = 0x02
	FlagEcho     = 0x04
	FlagNoFE     = 0x08
	FlagNoCtr    = 0x10
	FlagTuneMode = 0x20
)

const (
	// LeaseUnit is the lease length represented by one lease unit
	LeaseUnit = 2000 * time.Millisecond
	// KeepAlivePeriod is the cadence of keep-alive frames while connected
	KeepAlivePeriod = 500 * time.Millisecond
)

// envelope returns the eight header bytes of a Kemper SysEx frame
func envelope(productType, device, function byte) []byte {
	return []byte{SysExStart, ManufacturerID1, ManufacturerID2, ManufacturerID3, productType, device, function, InstanceDefault}
}

func hasPrefix(msg, prefix []byte) bool {
	return bytes.HasPrefix(msg, prefix)
}

// sysExPayload returns msg[from:] without a trailing SysEx end byte
func sysExPayload(msg []byte, from int) []byte {
	end := len(msg)
	if end > from && msg[end-1] == SysExEnd {
		end--
	}
	if from > end {
		return nil
	}
	return msg[from:end]
}
