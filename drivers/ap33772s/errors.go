package ap33772s

import "errors"

// Sentinel errors (TinyGo-safe; no fmt).
var (
	// ErrConversionFailed means a register bit pattern does not map to any
	// defined enumerated value. It is fatal to the single decode or resolve
	// call that produced it and is never silently defaulted.
	ErrConversionFailed = errors.New("ap33772s: conversion failed")

	// ErrMissingArgument means a field required for the operation is absent,
	// e.g. resolving a minimum voltage on a PDO type that has none. Distinct
	// from ErrConversionFailed so callers can tell "nothing to resolve" from
	// "resolution failed".
	ErrMissingArgument = errors.New("ap33772s: missing argument")

	// ErrOutOfRange means a caller-supplied voltage or current cannot be
	// satisfied by the resolved range after quantization.
	ErrOutOfRange = errors.New("ap33772s: out of range")

	// ErrNotDetected means the addressed PDO slot is not currently advertised
	// by the source.
	ErrNotDetected = errors.New("ap33772s: pdo not detected")

	// ErrMalformedData means the device returned bytes that do not fit the
	// expected register format.
	ErrMalformedData = errors.New("ap33772s: malformed data")

	// ErrWrongDevice means the probed address did not answer like an
	// AP33772S-class controller.
	ErrWrongDevice = errors.New("ap33772s: unexpected device")

	// ErrRejected means the source refused the negotiation request.
	ErrRejected = errors.New("ap33772s: request rejected")

	// ErrBusy means a negotiation is still in progress.
	ErrBusy = errors.New("ap33772s: negotiation busy")

	// ErrBusClosed is returned by a QueuedBus after its context is cancelled.
	ErrBusClosed = errors.New("ap33772s: bus closed")
)
