// Package ap33772s drives the AP33772S-class USB-C Power Delivery sink
// controller over a register-addressed I2C command bus. The package splits
// into pure capability logic (PDO decode, source power range resolution,
// request building — no I/O) and a thin Device facade that moves bytes over a
// Bus implementation.
package ap33772s

const (
	// 7-bit I2C address.
	AddressDefault = 0x52

	// --- Command (register) sub-addresses ---

	// Status / mode
	cmdStatus        = 0x01 // R, clears on read
	cmdInterruptMask = 0x02 // R/W
	cmdOperationMode = 0x03 // R

	// Configuration
	cmdSystemConfig = 0x04 // R/W
	cmdPDConfig     = 0x05 // R/W
	cmdSystemCtl    = 0x06 // W

	// Thermal resistances (NTC lookup points)
	cmdTR25  = 0x0C // R/W
	cmdTR50  = 0x0D // R/W
	cmdTR75  = 0x0E // R/W
	cmdTR100 = 0x0F // R/W

	// Telemetry
	cmdVoltage     = 0x11 // R, 80 mV/LSB
	cmdCurrent     = 0x12 // R, 24 mA/LSB
	cmdTemperature = 0x13 // R, 1 C/LSB
	cmdVReq        = 0x14 // R, 50 mV/LSB, updated on successful negotiation
	cmdIReq        = 0x15 // R, 10 mA/LSB
	cmdVSelMin     = 0x16 // R/W, 200 mV/LSB

	// Protection thresholds
	cmdUVPThr      = 0x17 // R/W, enumerated percentage of VREQ
	cmdOVPThr      = 0x18 // R/W, 80 mV/LSB
	cmdOCPThr      = 0x19 // R/W, 50 mA/LSB
	cmdOTPThr      = 0x1A // R/W, 1 C/LSB
	cmdDeratingThr = 0x1B // R/W, 1 C/LSB

	// Source capability table
	cmdSrcPDOAll = 0x20 // R, all 13 slots, 26 bytes LE
	cmdSrcSPR1   = 0x21 // R, slots 1..7 follow contiguously
	cmdSrcEPR8   = 0x28 // R, slots 8..13 follow contiguously

	// Power delivery
	cmdRequestMsg = 0x31 // W, 2 bytes
	cmdCommandMsg = 0x32 // W
	cmdMsgResult  = 0x33 // R
)

// Slot geometry. Positions are 1-based and stable for a negotiation session:
// 1..7 are Standard Power Range slots, 8..13 Extended Power Range slots.
const (
	NumStandardSlots = 7
	NumExtendedSlots = 6
	NumSlots         = NumStandardSlots + NumExtendedSlots

	pdoTableBytes = NumSlots * 2
)

// Raw source PDO record layout (register map v2, 16-bit little-endian):
//
//	bit  15     detected
//	bits 14..13 supply-type tag (00 fixed, 01 variable/battery,
//	            10 adjustable, 11 reserved)
//	bits 12..10 max-current code (8-entry enumeration)
//	bits  9..8  min-voltage code (adjustable/variable) or
//	            peak-current code (fixed)
//	bits  7..0  max-voltage code, linear at the slot's voltage resolution
type rawPDO uint16

func (r rawPDO) detected() bool        { return r&(1<<15) != 0 }
func (r rawPDO) supplyTag() uint8      { return uint8(r>>13) & 0b11 }
func (r rawPDO) currentCode() uint8    { return uint8(r>>10) & 0b111 }
func (r rawPDO) minVoltageCode() uint8 { return uint8(r>>8) & 0b11 }
func (r rawPDO) voltageCode() uint8    { return uint8(r) }

// Supply-type tag values.
const (
	tagFixed      = 0b00
	tagVariable   = 0b01
	tagAdjustable = 0b10
	tagReserved   = 0b11
)

// PD_REQMSG layout (16-bit):
//
//	bits 15..12 PDO slot index, 0-based
//	bits 11..8  current selection code (1 A floor + 250 mA/code)
//	bits  7..0  voltage selection code at the slot's voltage resolution
type rawRequest uint16

func (r rawRequest) slotIndex() uint8  { return uint8(r >> 12) }
func (r rawRequest) currentSel() uint8 { return uint8(r>>8) & 0b1111 }
func (r rawRequest) voltageSel() uint8 { return uint8(r) }

func packRequest(slotIndex, currentSel, voltageSel uint8) rawRequest {
	return rawRequest(slotIndex&0b1111)<<12 |
		rawRequest(currentSel&0b1111)<<8 |
		rawRequest(voltageSel)
}

// STATUS register bits.
const (
	statusStarted = 1 << 0
	statusReady   = 1 << 1
	statusNewPDO  = 1 << 2
	statusUVP     = 1 << 3
	statusOVP     = 1 << 4
	statusOCP     = 1 << 5
	statusOTP     = 1 << 6
)

// OPMODE register bits.
const (
	opmodeLegacy   = 1 << 0
	opmodePD       = 1 << 1
	opmodeDerating = 1 << 6
	opmodeCCFlip   = 1 << 7
)

// PD_CMDMSG bits.
const (
	cmdMsgHardReset = 1 << 0
)

// PD_MSGRLT response codes (low 3 bits).
const (
	msgResultBusy         = 0
	msgResultSuccess      = 1
	msgResultInvalid      = 2
	msgResultNotSupported = 3
	msgResultTxFailed     = 4
)
