package ap33772s

// Position is the 1-based slot index of a PDO in the source capability table.
// It is assigned by the register layout, never by the decoder, and stays
// stable for the lifetime of one negotiation session.
type Position uint8

// Class reports which power range the slot belongs to: positions 1..7 are
// Standard Power Range, 8..13 Extended Power Range.
func (p Position) Class() RangeClass {
	if p > NumStandardSlots {
		return Extended
	}
	return Standard
}

func (p Position) valid() bool { return p >= 1 && p <= NumSlots }

// RangeClass distinguishes the two voltage/current ceilings of USB-PD.
type RangeClass uint8

const (
	// Standard covers the SPR slots (up to 21 V, 100 mV voltage codes).
	Standard RangeClass = iota
	// Extended covers the EPR slots (up to 51 V, 200 mV voltage codes).
	Extended
)

// VoltageStep returns the voltage code resolution of the class.
func (c RangeClass) VoltageStep() Millivolts {
	if c == Extended {
		return eprVoltageStep
	}
	return sprVoltageStep
}

func (c RangeClass) String() string {
	if c == Extended {
		return "EPR"
	}
	return "SPR"
}

// SupplyKind names the decoded PDO variant.
type SupplyKind uint8

const (
	KindFixed SupplyKind = iota
	KindVariable
	KindPPS
	KindAVS
)

func (k SupplyKind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindVariable:
		return "variable"
	case KindPPS:
		return "pps"
	case KindAVS:
		return "avs"
	}
	return "unknown"
}

// PDO is one decoded power capability slot. The variant set is closed:
// FixedSupply, VariableSupply, PPS and AVS. Decoded values are immutable;
// resolution and request building never mutate them.
type PDO interface {
	Position() Position
	Class() RangeClass
	Kind() SupplyKind
	Detected() bool

	record() rawPDO
}

// Adjustable is the common capability surface of the two continuously
// adjustable variants. PPS and AVS look identical through it; their encoded
// code representations stay distinct underneath.
type Adjustable interface {
	PDO
	MinVoltage() (Millivolts, error)
	MaxVoltage() Millivolts
	MaxCurrent() Milliamps
}

// pdoMeta carries the fields shared by every variant.
type pdoMeta struct {
	r   rawPDO
	pos Position
}

func (m pdoMeta) Position() Position { return m.pos }
func (m pdoMeta) Class() RangeClass  { return m.pos.Class() }
func (m pdoMeta) Detected() bool     { return m.r.detected() }
func (m pdoMeta) record() rawPDO     { return m.r }

// FixedSupply is a fixed-voltage capability.
type FixedSupply struct {
	pdoMeta
}

func (FixedSupply) Kind() SupplyKind { return KindFixed }

// Voltage returns the advertised supply voltage.
func (f FixedSupply) Voltage() Millivolts {
	return Millivolts(f.r.voltageCode()) * f.Class().VoltageStep()
}

// MaxCurrent returns the guaranteed maximum current of the advertised band.
func (f FixedSupply) MaxCurrent() Milliamps {
	return maxCurrentByCode[f.r.currentCode()]
}

// PeakCurrent returns the raw 2-bit peak-current condition code. Fixed
// supplies reuse the min-voltage field for it.
func (f FixedSupply) PeakCurrent() uint8 { return f.r.minVoltageCode() }

// VariableSupply is a variable or battery-backed capability. It is decoded
// and listed but never selectable for a sink request; callers wanting it must
// go through a range class and slot the core does not negotiate.
type VariableSupply struct {
	pdoMeta
}

func (VariableSupply) Kind() SupplyKind { return KindVariable }

// MaxVoltage returns the upper bound of the advertised span.
func (v VariableSupply) MaxVoltage() Millivolts {
	return Millivolts(v.r.voltageCode()) * v.Class().VoltageStep()
}

// MinVoltage resolves the enumerated minimum-voltage code, including the
// hardware floor correction for range codes.
func (v VariableSupply) MinVoltage() (Millivolts, error) {
	return resolveMinVoltage(v.Class(), v.r.minVoltageCode())
}

// MaxPowerOrCurrent returns the current-equivalent bound of the band. For
// battery-backed sources the code encodes the power-equivalent limit at the
// maximum voltage.
func (v VariableSupply) MaxPowerOrCurrent() Milliamps {
	return maxCurrentByCode[v.r.currentCode()]
}

// adjustableSupply implements the shared logic behind PPS and AVS.
type adjustableSupply struct {
	pdoMeta
}

func (a adjustableSupply) MaxVoltage() Millivolts {
	return Millivolts(a.r.voltageCode()) * a.Class().VoltageStep()
}

func (a adjustableSupply) MinVoltage() (Millivolts, error) {
	return resolveMinVoltage(a.Class(), a.r.minVoltageCode())
}

func (a adjustableSupply) MaxCurrent() Milliamps {
	return maxCurrentByCode[a.r.currentCode()]
}

// PPS is a Standard Power Range programmable supply (3.3..21 V territory).
type PPS struct {
	adjustableSupply
}

func (PPS) Kind() SupplyKind { return KindPPS }

// AVS is an Extended Power Range adjustable supply (15..28 V territory).
type AVS struct {
	adjustableSupply
}

func (AVS) Kind() SupplyKind { return KindAVS }

// DecodePDO interprets one raw 16-bit slot record. The slot position supplies
// the Standard/Extended classification; the record's 2-bit supply-type tag
// selects the variant. The reserved tag fails with ErrConversionFailed —
// silently defaulting a power capability would be unsafe. Decoding is total
// and pure: same inputs, same outputs, no I/O.
func DecodePDO(raw uint16, pos Position) (PDO, error) {
	if !pos.valid() {
		return nil, ErrOutOfRange
	}
	r := rawPDO(raw)
	meta := pdoMeta{r: r, pos: pos}
	switch r.supplyTag() {
	case tagFixed:
		return FixedSupply{meta}, nil
	case tagVariable:
		return VariableSupply{meta}, nil
	case tagAdjustable:
		if pos.Class() == Extended {
			return AVS{adjustableSupply{meta}}, nil
		}
		return PPS{adjustableSupply{meta}}, nil
	}
	return nil, ErrConversionFailed
}

// SlotError records a single slot that failed to decode. One bad slot never
// aborts the rest of the table.
type SlotError struct {
	Position Position
	Err      error
}

func (e SlotError) Error() string { return e.Err.Error() }
func (e SlotError) Unwrap() error { return e.Err }

// DecodeAll decodes the full 26-byte capability dump (13 little-endian words,
// positions 1..13). Slots that fail to decode are skipped and reported in the
// returned SlotError list.
func DecodeAll(raw []byte) (Table, []SlotError) {
	var t Table
	var errs []SlotError
	n := len(raw) / 2
	if n > NumSlots {
		n = NumSlots
	}
	for i := 0; i < n; i++ {
		pos := Position(i + 1)
		word := uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		p, err := DecodePDO(word, pos)
		if err != nil {
			errs = append(errs, SlotError{Position: pos, Err: err})
			continue
		}
		t.add(p)
	}
	return t, errs
}
