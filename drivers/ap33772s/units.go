package ap33772s

// Canonical electrical units. Every value that crosses the package boundary is
// an exact integer in millivolts or milliamps; register codes are converted
// with integer multiplies only, so repeated conversions never drift.

type Millivolts int32

type Milliamps int32

type Milliwatts int32

// Register resolutions (hardware constants, per the command map).
const (
	// Source PDO max-voltage code LSB per range class.
	sprVoltageStep Millivolts = 100
	eprVoltageStep Millivolts = 200

	// PD_REQMSG current selection: 1 A floor plus 250 mA per code through
	// code 14; the top code jumps straight to the 5 A maximum.
	requestCurrentFloor     Milliamps = 1000
	requestCurrentStep      Milliamps = 250
	requestCurrentLinearMax Milliamps = 4500 // code 14
	requestCurrentMax       Milliamps = 5000 // code 15

	// Telemetry readback LSBs.
	voltageLSB    Millivolts = 80  // VOLTAGE (0x11)
	currentLSB    Milliamps  = 24  // CURRENT (0x12)
	reqVoltageLSB Millivolts = 50  // VREQ (0x14)
	reqCurrentLSB Milliamps  = 10  // IREQ (0x15)
	selMinLSB     Millivolts = 200 // VSELMIN (0x16)

	// Protection threshold LSBs.
	ovpVoltageLSB Millivolts = 80 // OVPTHR (0x18)
	ocpCurrentLSB Milliamps  = 50 // OCPTHR (0x19)
)

// roundNearest quantizes v to the closest multiple of step. Halfway values
// round up. Voltage selections use this; the request builder then re-checks
// the rounded value against the resolved range.
func roundNearest(v, step Millivolts) Millivolts {
	if step <= 0 {
		return v
	}
	return (v + step/2) / step * step
}

// roundDown quantizes i to the multiple of step at or below it. Current
// selections use this so a request never asks for more current than the
// caller did.
func roundDown(i, step Milliamps) Milliamps {
	if step <= 0 {
		return i
	}
	return i / step * step
}

// withinOneStep reports whether a and b differ by less than one step.
func withinOneStep(a, b, step Millivolts) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < step
}
