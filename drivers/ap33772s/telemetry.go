package ap33772s

// Telemetry and threshold readbacks. Each register has its own LSB; all
// results are canonical integer units.

// Voltage returns the measured output voltage (80 mV/LSB).
func (d *Device) Voltage() (Millivolts, error) {
	w, err := d.readWord(cmdVoltage)
	return Millivolts(w) * voltageLSB, err
}

// Current returns the measured output current (24 mA/LSB).
func (d *Device) Current() (Milliamps, error) {
	b, err := d.readByte(cmdCurrent)
	return Milliamps(b) * currentLSB, err
}

// Temperature returns the controller temperature in whole degrees Celsius.
func (d *Device) Temperature() (int, error) {
	b, err := d.readByte(cmdTemperature)
	return int(b), err
}

// RequestedVoltage returns the voltage granted by the last successful
// negotiation (VREQ, 50 mV/LSB). The hardware does not update it on a failed
// negotiation.
func (d *Device) RequestedVoltage() (Millivolts, error) {
	w, err := d.readWord(cmdVReq)
	return Millivolts(w) * reqVoltageLSB, err
}

// RequestedCurrent returns the current granted by the last successful
// negotiation (IREQ, 10 mA/LSB).
func (d *Device) RequestedCurrent() (Milliamps, error) {
	w, err := d.readWord(cmdIReq)
	return Milliamps(w) * reqCurrentLSB, err
}

// MinimumSelectionVoltage returns the floor below which the controller will
// not auto-select a PDO (VSELMIN, 200 mV/LSB).
func (d *Device) MinimumSelectionVoltage() (Millivolts, error) {
	b, err := d.readByte(cmdVSelMin)
	return Millivolts(b) * selMinLSB, err
}

// SetMinimumSelectionVoltage writes VSELMIN, rounding to its 200 mV step.
func (d *Device) SetMinimumSelectionVoltage(v Millivolts) error {
	if v < 0 || v > 0xFF*selMinLSB {
		return ErrOutOfRange
	}
	return d.writeByte(cmdVSelMin, byte(roundNearest(v, selMinLSB)/selMinLSB))
}

// OverVoltageThreshold reads OVPTHR (80 mV/LSB).
func (d *Device) OverVoltageThreshold() (Millivolts, error) {
	b, err := d.readByte(cmdOVPThr)
	return Millivolts(b) * ovpVoltageLSB, err
}

// SetOverVoltageThreshold writes OVPTHR, rounding to its 80 mV step.
func (d *Device) SetOverVoltageThreshold(v Millivolts) error {
	if v < 0 || v > 0xFF*ovpVoltageLSB {
		return ErrOutOfRange
	}
	return d.writeByte(cmdOVPThr, byte(roundNearest(v, ovpVoltageLSB)/ovpVoltageLSB))
}

// OverCurrentThreshold reads OCPTHR (50 mA/LSB).
func (d *Device) OverCurrentThreshold() (Milliamps, error) {
	b, err := d.readByte(cmdOCPThr)
	return Milliamps(b) * ocpCurrentLSB, err
}

// SetOverCurrentThreshold writes OCPTHR, rounding down to its 50 mA step so
// the protection never trips later than asked.
func (d *Device) SetOverCurrentThreshold(i Milliamps) error {
	if i < 0 || i > 0xFF*ocpCurrentLSB {
		return ErrOutOfRange
	}
	return d.writeByte(cmdOCPThr, byte(roundDown(i, ocpCurrentLSB)/ocpCurrentLSB))
}

// UVPThreshold selects the undervoltage trip point. The hardware enumerates
// it as a percentage of the negotiated request voltage rather than an
// absolute level.
type UVPThreshold uint8

const (
	UVP80Percent UVPThreshold = 0
	UVP75Percent UVPThreshold = 1
	UVP70Percent UVPThreshold = 2
)

// Percent returns the trip point as a whole percentage of VREQ.
func (t UVPThreshold) Percent() int {
	switch t {
	case UVP75Percent:
		return 75
	case UVP70Percent:
		return 70
	}
	return 80
}

// UVPThresholdForPercent maps a percentage onto the register enumeration.
// Only the values the hardware defines are accepted.
func UVPThresholdForPercent(pct int) (UVPThreshold, error) {
	switch pct {
	case 80:
		return UVP80Percent, nil
	case 75:
		return UVP75Percent, nil
	case 70:
		return UVP70Percent, nil
	}
	return 0, ErrOutOfRange
}

// UnderVoltageThreshold reads UVPTHR. Codes outside the enumeration fail
// with ErrMalformedData.
func (d *Device) UnderVoltageThreshold() (UVPThreshold, error) {
	b, err := d.readByte(cmdUVPThr)
	if err != nil {
		return 0, err
	}
	t := UVPThreshold(b & 0x0F)
	if t > UVP70Percent {
		return 0, ErrMalformedData
	}
	return t, nil
}

// SetUnderVoltageThreshold writes UVPTHR.
func (d *Device) SetUnderVoltageThreshold(t UVPThreshold) error {
	if t > UVP70Percent {
		return ErrOutOfRange
	}
	return d.writeByte(cmdUVPThr, byte(t))
}

// DeratingThreshold reads DRTHR, the temperature in whole degrees Celsius
// at which the controller starts derating the negotiated current.
func (d *Device) DeratingThreshold() (int, error) {
	b, err := d.readByte(cmdDeratingThr)
	return int(b), err
}

// SetDeratingThreshold writes DRTHR.
func (d *Device) SetDeratingThreshold(c int) error {
	if c < 0 || c > 0xFF {
		return ErrOutOfRange
	}
	return d.writeByte(cmdDeratingThr, byte(c))
}

// OverTemperatureThreshold reads OTPTHR in whole degrees Celsius.
func (d *Device) OverTemperatureThreshold() (int, error) {
	b, err := d.readByte(cmdOTPThr)
	return int(b), err
}

// SetOverTemperatureThreshold writes OTPTHR.
func (d *Device) SetOverTemperatureThreshold(c int) error {
	if c < 0 || c > 0xFF {
		return ErrOutOfRange
	}
	return d.writeByte(cmdOTPThr, byte(c))
}

// Statistics is one snapshot of measured and negotiated operating values.
// Power figures are derived (P = V * I) in integer milliwatts.
type Statistics struct {
	Voltage Millivolts
	Current Milliamps
	Power   Milliwatts

	TemperatureC int

	RequestedVoltage Millivolts
	RequestedCurrent Milliamps
	RequestedPower   Milliwatts
}

func powerOf(v Millivolts, i Milliamps) Milliwatts {
	return Milliwatts(int64(v) * int64(i) / 1000)
}

// Statistics reads the telemetry registers and assembles a snapshot. The
// reads are not atomic with respect to each other; treat the snapshot as a
// monitoring sample, not a coherent measurement.
func (d *Device) Statistics() (Statistics, error) {
	var s Statistics
	var err error
	if s.Voltage, err = d.Voltage(); err != nil {
		return s, err
	}
	if s.Current, err = d.Current(); err != nil {
		return s, err
	}
	if s.TemperatureC, err = d.Temperature(); err != nil {
		return s, err
	}
	if s.RequestedVoltage, err = d.RequestedVoltage(); err != nil {
		return s, err
	}
	if s.RequestedCurrent, err = d.RequestedCurrent(); err != nil {
		return s, err
	}
	s.Power = powerOf(s.Voltage, s.Current)
	s.RequestedPower = powerOf(s.RequestedVoltage, s.RequestedCurrent)
	return s, nil
}
