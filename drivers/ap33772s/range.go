package ap33772s

// Source power range resolution: enumerated register codes to concrete
// bounds. Resolution is pure and cheap, so results are computed on demand and
// never cached.

// Min-voltage codes shared by both range classes. Code 1 is an exact value,
// code 2 a span whose true floor the hardware does not honor; 0 and 3 are
// reserved/unmapped.
const (
	minVoltReserved = 0
	minVoltExact    = 1
	minVoltRange    = 2
	minVoltOther    = 3
)

// resolveMinVoltage maps an enumerated minimum-voltage code to millivolts.
//
// The range codes get a floor correction: the SPR "3.3-5 V" code resolves to
// 5100 mV (5000 + one 100 mV step) because sources advertising it have been
// observed to refuse regulation below roughly 5.1 V, and the EPR "15-20 V"
// code resolves to 20200 mV (20000 + one 200 mV step) for the same reason.
// Returning the nominal floor would let a caller request a voltage the
// source will not supply. Keyed on the exact codes, pinned by tests; do not
// generalize.
func resolveMinVoltage(class RangeClass, code uint8) (Millivolts, error) {
	switch class {
	case Standard:
		switch code {
		case minVoltExact:
			return 3300, nil
		case minVoltRange:
			return 5000 + sprVoltageStep, nil
		}
	case Extended:
		switch code {
		case minVoltExact:
			return 15000, nil
		case minVoltRange:
			return 20000 + eprVoltageStep, nil
		}
	}
	return 0, ErrConversionFailed
}

// Max-current enumeration: 3-bit code to the guaranteed maximum of the
// advertised band in mA. Code 7 means "5 A or more".
var maxCurrentByCode = [8]Milliamps{
	1240, // < 1.25 A
	1740, // 1.25 - 1.74 A
	2240, // 1.75 - 2.24 A
	2740, // 2.25 - 2.74 A
	3240, // 2.75 - 3.24 A
	3740, // 3.25 - 3.74 A
	4990, // 3.75 - 4.99 A
	5000, // >= 5 A
}

// minCurrentByCode gives the lower bound of each band. The resolver does not
// use it; it documents the band geometry and is pinned by tests.
var minCurrentByCode = [8]Milliamps{
	0, 1250, 1750, 2250, 2750, 3250, 3750, 5000,
}

// currentCodeFor returns the smallest band code whose guaranteed maximum
// covers i, used when composing capability records.
func currentCodeFor(i Milliamps) uint8 {
	for code, maxi := range maxCurrentByCode {
		if i <= maxi {
			return uint8(code)
		}
	}
	return uint8(len(maxCurrentByCode) - 1)
}

// ResolvedRange is the concrete envelope of one capability slot in canonical
// units.
type ResolvedRange struct {
	MinVoltage Millivolts
	MaxVoltage Millivolts
	MaxCurrent Milliamps
}

// Width returns the voltage span of the range.
func (r ResolvedRange) Width() Millivolts { return r.MaxVoltage - r.MinVoltage }

// Contains reports whether v lies within the range, inclusive at both ends.
func (r ResolvedRange) Contains(v Millivolts) bool {
	return v >= r.MinVoltage && v <= r.MaxVoltage
}

// Resolve computes the concrete voltage/current envelope of a PDO.
// Fixed supplies have no minimum-voltage field, so resolving one fails with
// ErrMissingArgument — "nothing to resolve", as opposed to an unmappable code
// which fails with ErrConversionFailed.
func Resolve(p PDO) (ResolvedRange, error) {
	switch v := p.(type) {
	case FixedSupply:
		return ResolvedRange{}, ErrMissingArgument
	case VariableSupply:
		minV, err := v.MinVoltage()
		if err != nil {
			return ResolvedRange{}, err
		}
		return ResolvedRange{
			MinVoltage: minV,
			MaxVoltage: v.MaxVoltage(),
			MaxCurrent: v.MaxPowerOrCurrent(),
		}, nil
	case Adjustable:
		minV, err := v.MinVoltage()
		if err != nil {
			return ResolvedRange{}, err
		}
		return ResolvedRange{
			MinVoltage: minV,
			MaxVoltage: v.MaxVoltage(),
			MaxCurrent: v.MaxCurrent(),
		}, nil
	}
	return ResolvedRange{}, ErrMissingArgument
}
