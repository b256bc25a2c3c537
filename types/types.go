// Package types holds the bus-facing payload types of the sink service.
// Everything here marshals to JSON; field tags are the wire contract.
package types

// ---- Common service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // e.g. "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// Attach is the source attachment reported by the controller.
type Attach string

const (
	AttachNone   Attach = "none"
	AttachLegacy Attach = "legacy" // non-PD source, 5 V only
	AttachPD     Attach = "pd"
)

// Info envelope the service exposes (retained).
type Info struct {
	SchemaVersion int         `json:"schema_version"`
	Driver        string      `json:"driver"`
	Detail        interface{} `json:"detail,omitempty"`
}
