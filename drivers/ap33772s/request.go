package ap33772s

import "pdsink-go/x/mathx"

// SinkRequest is a validated, quantized power request, ready to encode into
// PD_REQMSG. Voltage and Current hold the values as they will be requested
// (after step rounding), not the caller's raw ask. Immutable once built;
// write it once.
type SinkRequest struct {
	Position Position
	Voltage  Millivolts
	Current  Milliamps
}

// BuildRequest validates a desired operating point against a capability slot
// and produces the request. It is a pure transform: no I/O, and the source
// table is never mutated.
//
// Adjustable slots accept any voltage inside the resolved range after
// nearest-step rounding; if rounding would leave the range the request fails
// with ErrOutOfRange rather than silently pulling the voltage back in.
// Current is rounded downward so the encoded request never asks for more
// than the caller did, and must not exceed the slot's maximum.
//
// Fixed slots accept only their advertised voltage (within one resolution
// step) and currents up to the advertised maximum. Variable/battery slots
// have no request path and always fail.
func BuildRequest(p PDO, v Millivolts, i Milliamps) (SinkRequest, error) {
	step := p.Class().VoltageStep()
	switch s := p.(type) {
	case Adjustable:
		rng, err := Resolve(s)
		if err != nil {
			return SinkRequest{}, err
		}
		if !rng.Contains(v) {
			return SinkRequest{}, ErrOutOfRange
		}
		qv := roundNearest(v, step)
		if !rng.Contains(qv) {
			return SinkRequest{}, ErrOutOfRange
		}
		if i > rng.MaxCurrent {
			return SinkRequest{}, ErrOutOfRange
		}
		return SinkRequest{Position: p.Position(), Voltage: qv, Current: quantizeCurrent(i)}, nil
	case FixedSupply:
		if !withinOneStep(s.Voltage(), v, step) {
			return SinkRequest{}, ErrOutOfRange
		}
		if i > s.MaxCurrent() {
			return SinkRequest{}, ErrOutOfRange
		}
		// Request the advertised voltage, not the (possibly off-step) ask.
		return SinkRequest{Position: p.Position(), Voltage: s.Voltage(), Current: quantizeCurrent(i)}, nil
	}
	return SinkRequest{}, ErrOutOfRange
}

// quantizeCurrent maps an ask onto the request register's current scale:
// a 1 A floor plus 250 mA per code, rounded downward. Asks below the floor
// encode as the floor code, the hardware's minimum selection. The scale is
// not linear at the top: code 15 means the full 5 A, so asks in the
// 4.5-5 A gap fall back to the highest linear value rather than round up.
func quantizeCurrent(i Milliamps) Milliamps {
	switch {
	case i >= requestCurrentMax:
		return requestCurrentMax
	case i <= requestCurrentFloor:
		return requestCurrentFloor
	}
	q := requestCurrentFloor + roundDown(i-requestCurrentFloor, requestCurrentStep)
	if q > requestCurrentLinearMax {
		q = requestCurrentLinearMax
	}
	return q
}

// Encode packs the request into the PD_REQMSG wire format. Encoding is
// deterministic: identical requests produce byte-identical output. Only
// requests with a valid Position encode to a meaningful slot index;
// SendRequest refuses anything else before it reaches the wire.
func (r SinkRequest) Encode() uint16 {
	step := r.Position.Class().VoltageStep()
	vsel := mathx.Clamp(int32(r.Voltage/step), 0, 0xFF)
	csel := mathx.Clamp(int32((r.Current-requestCurrentFloor)/requestCurrentStep), 0, 0xF)
	return uint16(packRequest(uint8(r.Position-1), uint8(csel), uint8(vsel)))
}

// EncodeBytes returns the little-endian byte pair written to PD_REQMSG.
func (r SinkRequest) EncodeBytes() [2]byte {
	w := r.Encode()
	return [2]byte{byte(w), byte(w >> 8)}
}

// DecodeRequest recovers a SinkRequest from the PD_REQMSG wire format.
// Voltage and current come back exactly as an encoder produced them, i.e.
// within one resolution step of the original ask.
func DecodeRequest(raw uint16) (SinkRequest, error) {
	r := rawRequest(raw)
	pos := Position(r.slotIndex() + 1)
	if !pos.valid() {
		return SinkRequest{}, ErrConversionFailed
	}
	step := pos.Class().VoltageStep()
	cur := requestCurrentMax // code 15 selects 5 A, not the linear value
	if sel := r.currentSel(); sel < 0xF {
		cur = requestCurrentFloor + Milliamps(sel)*requestCurrentStep
	}
	return SinkRequest{
		Position: pos,
		Voltage:  Millivolts(r.voltageSel()) * step,
		Current:  cur,
	}, nil
}
