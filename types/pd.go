package types

// ------------------------
// USB-PD sink (ap33772s)
// ------------------------

// PowerProfile is one advertised capability slot in canonical units.
// Retained value: pdsink/<id>/profiles
type PowerProfile struct {
	Position uint8  `json:"position"` // 1-based slot
	Class    string `json:"class"`    // "SPR" | "EPR"
	Kind     string `json:"kind"`     // "fixed" | "variable" | "pps" | "avs"
	Detected bool   `json:"detected"`

	Voltage_mV    int32 `json:"voltage_mV,omitempty"`     // fixed supplies
	MinVoltage_mV int32 `json:"min_voltage_mV,omitempty"` // adjustable/variable
	MaxVoltage_mV int32 `json:"max_voltage_mV,omitempty"`
	MaxCurrent_mA int32 `json:"max_current_mA"`
}

// SinkInfo is the driver detail carried in the retained Info envelope:
// the attachment kind plus the controller's operating flags.
// Retained value: pdsink/<id>/info
type SinkInfo struct {
	Attach   Attach `json:"attach"`
	Derating bool   `json:"derating"`
	CCFlip   bool   `json:"cc_flip"` // orientation: CC2 active
}

// ProfileTable is the whole decoded capability table plus per-slot decode
// failures.
type ProfileTable struct {
	Profiles []PowerProfile `json:"profiles"`
	Failed   []SlotFailure  `json:"failed,omitempty"`
	TS       int64          `json:"ts_ms"`
}

type SlotFailure struct {
	Position uint8  `json:"position"`
	Code     string `json:"code"`
}

// TelemetryValue is one measured operating point.
// Retained value: pdsink/<id>/telemetry
type TelemetryValue struct {
	Voltage_mV int32 `json:"voltage_mV"`
	Current_mA int32 `json:"current_mA"`
	Power_mW   int32 `json:"power_mW"`
	TempC      int32 `json:"temp_C"`

	ReqVoltage_mV int32 `json:"req_voltage_mV"`
	ReqCurrent_mA int32 `json:"req_current_mA"`
	ReqPower_mW   int32 `json:"req_power_mW"`
	TS            int64 `json:"ts_ms"`
}

// NegotiationValue is the outcome of the last request.
// Retained value: pdsink/<id>/negotiation
type NegotiationValue struct {
	Position   uint8  `json:"position"`
	Voltage_mV int32  `json:"voltage_mV"`
	Current_mA int32  `json:"current_mA"`
	Result     string `json:"result"` // ap33772s.NegotiationResult string
	Code       string `json:"code"`   // errcode short code
	TS         int64  `json:"ts_ms"`
}

// Controls

// RequestCommand asks for a new operating point. Position 0 lets the
// service pick the slot (tightest adjustable fit, fixed fallback).
// Verb topic: pdsink/<id>/request
type RequestCommand struct {
	Position   uint8 `json:"position,omitempty"`
	Voltage_mV int32 `json:"voltage_mV"`
	Current_mA int32 `json:"current_mA"`
}

// SetThresholds is a partial update. Nil means "leave as-is".
// Verb topic: pdsink/<id>/thresholds
type SetThresholds struct {
	UVP_pct    *int32 `json:"uvp_pct,omitempty"` // 80, 75 or 70 (% of VREQ)
	OVP_mV     *int32 `json:"ovp_mV,omitempty"`
	OCP_mA     *int32 `json:"ocp_mA,omitempty"`
	OTP_C      *int32 `json:"otp_C,omitempty"`
	Derating_C *int32 `json:"derating_C,omitempty"`
	SelMin_mV  *int32 `json:"selmin_mV,omitempty"`
}

// Reply is the generic command acknowledgement published on the caller's
// reply topic.
type Reply struct {
	OK   bool        `json:"ok"`
	Code string      `json:"code,omitempty"`
	Data interface{} `json:"data,omitempty"`
}
