package ap33772s

import "sync"

// Record fixtures for simulated capability tables. The hardware only ever
// produces these records; composing them is for the simulator and tests.

func packPDO(tag uint8, detected bool, currentCode, minVoltCode, voltageCode uint8) uint16 {
	var w uint16
	if detected {
		w |= 1 << 15
	}
	w |= uint16(tag&0b11) << 13
	w |= uint16(currentCode&0b111) << 10
	w |= uint16(minVoltCode&0b11) << 8
	w |= uint16(voltageCode)
	return w
}

// MakeFixedRecord composes a fixed-supply slot record advertising v at up to
// i. v is quantized to the class's voltage step.
func MakeFixedRecord(class RangeClass, v Millivolts, i Milliamps, detected bool) uint16 {
	step := class.VoltageStep()
	return packPDO(tagFixed, detected, currentCodeFor(i), 0, uint8(roundNearest(v, step)/step))
}

// MakeAdjustableRecord composes a PPS (Standard) or AVS (Extended) slot
// record. minV selects the enumerated min-voltage code: the exact value
// (3300 mV Standard, 15000 mV Extended) maps to the exact code, anything
// else to the range code.
func MakeAdjustableRecord(class RangeClass, minV, maxV Millivolts, i Milliamps, detected bool) uint16 {
	minCode := uint8(minVoltRange)
	if (class == Standard && minV == 3300) || (class == Extended && minV == 15000) {
		minCode = minVoltExact
	}
	step := class.VoltageStep()
	return packPDO(tagAdjustable, detected, currentCodeFor(i), minCode, uint8(roundNearest(maxV, step)/step))
}

// MakeVariableRecord composes a variable/battery slot record.
func MakeVariableRecord(class RangeClass, minV, maxV Millivolts, i Milliamps, detected bool) uint16 {
	minCode := uint8(minVoltRange)
	if (class == Standard && minV == 3300) || (class == Extended && minV == 15000) {
		minCode = minVoltExact
	}
	step := class.VoltageStep()
	return packPDO(tagVariable, detected, currentCodeFor(i), minCode, uint8(roundNearest(maxV, step)/step))
}

// Simulator is an in-memory Bus that behaves like a sink controller attached
// to a well-behaved PD source. It validates incoming requests against its own
// capability table with the same rules the driver uses, so negotiation
// outcomes match what real hardware would produce. Safe for concurrent use.
type Simulator struct {
	mu sync.Mutex

	slots [NumSlots]uint16

	status    byte
	msgResult byte
	busyReads int // Result reads reporting busy before the outcome lands

	vreqCode uint16 // 50 mV/LSB
	ireqCode uint16 // 10 mA/LSB
	voltCode uint16 // 80 mV/LSB
	currCode byte   // 24 mA/LSB
	tempC    byte

	vselMin byte
	uvpThr  byte
	ovpThr  byte
	ocpThr  byte
	otpThr  byte
	drThr   byte
}

// NewSimulator returns a simulator advertising a typical multi-profile
// source: 5 V/3 A, 9 V/3 A and 12 V/2.25 A fixed, a 3.3-5..11 V PPS and a
// 15..20 V/5 A AVS.
func NewSimulator() *Simulator {
	s := &Simulator{
		status: statusStarted | statusReady | statusNewPDO,
		tempC:  35,
		uvpThr: byte(UVP75Percent), // hardware power-on default
		otpThr: 120,
		drThr:  120,
	}
	s.slots[0] = MakeFixedRecord(Standard, 5000, 3000, true)
	s.slots[1] = MakeFixedRecord(Standard, 9000, 3000, true)
	s.slots[2] = MakeFixedRecord(Standard, 12000, 2250, true)
	s.slots[5] = MakeAdjustableRecord(Standard, 5100, 11000, 3000, true)
	s.slots[7] = MakeAdjustableRecord(Extended, 15000, 20000, 5000, true)
	s.setOutput(5000, 900) // vSafe5V before any negotiation
	return s
}

// SetSlot overwrites one capability slot record.
func (s *Simulator) SetSlot(pos Position, record uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos.valid() {
		s.slots[pos-1] = record
	}
}

// ClearSlots empties the capability table.
func (s *Simulator) ClearSlots() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = [NumSlots]uint16{}
}

func (s *Simulator) setOutput(v Millivolts, i Milliamps) {
	s.voltCode = uint16(v / voltageLSB)
	s.currCode = byte(i / currentLSB)
}

func (s *Simulator) ReadCommand(cmd byte, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd {
	case cmdStatus:
		put8(buf, s.status)
		s.status = 0 // clears on read
	case cmdOperationMode:
		put8(buf, opmodePD)
	case cmdVoltage:
		put16(buf, s.voltCode)
	case cmdCurrent:
		put8(buf, s.currCode)
	case cmdTemperature:
		put8(buf, s.tempC)
	case cmdVReq:
		put16(buf, s.vreqCode)
	case cmdIReq:
		put16(buf, s.ireqCode)
	case cmdVSelMin:
		put8(buf, s.vselMin)
	case cmdUVPThr:
		put8(buf, s.uvpThr)
	case cmdOVPThr:
		put8(buf, s.ovpThr)
	case cmdOCPThr:
		put8(buf, s.ocpThr)
	case cmdOTPThr:
		put8(buf, s.otpThr)
	case cmdDeratingThr:
		put8(buf, s.drThr)
	case cmdMsgResult:
		if s.busyReads > 0 {
			s.busyReads--
			put8(buf, msgResultBusy)
		} else {
			put8(buf, s.msgResult)
		}
	case cmdSrcPDOAll:
		for i := 0; i < NumSlots && 2*i+1 < len(buf); i++ {
			buf[2*i] = byte(s.slots[i])
			buf[2*i+1] = byte(s.slots[i] >> 8)
		}
	default:
		if cmd >= cmdSrcSPR1 && cmd < cmdSrcSPR1+NumSlots {
			put16(buf, s.slots[cmd-cmdSrcSPR1])
		} else {
			put8(buf, 0)
		}
	}
	return nil
}

func (s *Simulator) WriteCommand(cmd byte, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd {
	case cmdVSelMin:
		s.vselMin = at(data, 0)
	case cmdUVPThr:
		s.uvpThr = at(data, 0)
	case cmdOVPThr:
		s.ovpThr = at(data, 0)
	case cmdOCPThr:
		s.ocpThr = at(data, 0)
	case cmdOTPThr:
		s.otpThr = at(data, 0)
	case cmdDeratingThr:
		s.drThr = at(data, 0)
	case cmdRequestMsg:
		word := uint16(at(data, 0)) | uint16(at(data, 1))<<8
		s.handleRequest(word)
	case cmdCommandMsg:
		if at(data, 0)&cmdMsgHardReset != 0 {
			s.hardReset()
		}
	}
	return nil
}

// handleRequest plays the source's side of a negotiation: decode, re-validate
// against the advertised table, grant or reject.
func (s *Simulator) handleRequest(word uint16) {
	s.busyReads = 1 // the first poll still sees the negotiation running
	req, err := DecodeRequest(word)
	if err != nil {
		s.msgResult = msgResultInvalid
		return
	}
	table, _ := DecodeAll(s.tableBytes())
	pdo, ok := table.At(req.Position)
	if !ok || !pdo.Detected() {
		s.msgResult = msgResultNotSupported
		return
	}
	if _, err := BuildRequest(pdo, req.Voltage, req.Current); err != nil {
		s.msgResult = msgResultInvalid
		return
	}
	s.msgResult = msgResultSuccess
	s.vreqCode = uint16(req.Voltage / reqVoltageLSB)
	s.ireqCode = uint16(req.Current / reqCurrentLSB)
	s.setOutput(req.Voltage, req.Current/2) // load draws half the grant
}

// hardReset drops the contract back to vSafe5V and re-advertises the
// capability table, the way a source answers a hard reset.
func (s *Simulator) hardReset() {
	s.msgResult = msgResultBusy
	s.busyReads = 0
	s.vreqCode = 0
	s.ireqCode = 0
	s.setOutput(5000, 900)
	s.status |= statusStarted | statusReady | statusNewPDO
}

func (s *Simulator) tableBytes() []byte {
	b := make([]byte, pdoTableBytes)
	for i, w := range s.slots {
		b[2*i] = byte(w)
		b[2*i+1] = byte(w >> 8)
	}
	return b
}

func put8(buf []byte, v byte) {
	if len(buf) > 0 {
		buf[0] = v
	}
	for i := 1; i < len(buf); i++ {
		buf[i] = 0
	}
}

func put16(buf []byte, v uint16) {
	if len(buf) > 0 {
		buf[0] = byte(v)
	}
	if len(buf) > 1 {
		buf[1] = byte(v >> 8)
	}
}

func at(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}
