package errcode

import (
	"errors"

	"pdsink-go/drivers/ap33772s"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK               Code = "ok"
	Busy             Code = "busy"
	ConversionFailed Code = "conversion_failed"
	MissingArgument  Code = "missing_argument"
	OutOfRange       Code = "out_of_range"
	NotDetected      Code = "not_detected"
	Rejected         Code = "rejected"
	WrongDevice      Code = "wrong_device"
	MalformedData    Code = "malformed_data"
	InvalidPayload   Code = "invalid_payload"
	InvalidTopic     Code = "invalid_topic"
	Timeout          Code = "timeout"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return MapDriverErr(err)
}

// MapDriverErr maps sink-controller driver errors to a Code.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ap33772s.ErrConversionFailed):
		return ConversionFailed
	case errors.Is(err, ap33772s.ErrMissingArgument):
		return MissingArgument
	case errors.Is(err, ap33772s.ErrOutOfRange):
		return OutOfRange
	case errors.Is(err, ap33772s.ErrNotDetected):
		return NotDetected
	case errors.Is(err, ap33772s.ErrRejected):
		return Rejected
	case errors.Is(err, ap33772s.ErrWrongDevice):
		return WrongDevice
	case errors.Is(err, ap33772s.ErrMalformedData):
		return MalformedData
	case errors.Is(err, ap33772s.ErrBusy):
		return Busy
	}
	return Error
}
