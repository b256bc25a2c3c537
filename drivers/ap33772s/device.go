package ap33772s

import (
	"context"
	"time"
)

// Config controls facade behaviour. All fields are optional.
type Config struct {
	// PollInterval is the delay between PD_MSGRLT polls in Negotiate.
	// Default 10 ms.
	PollInterval time.Duration
	// NegotiateTimeout bounds the total wait in Negotiate. Default 1 s.
	NegotiateTimeout time.Duration
}

// Device is the driver facade over a sink controller on a Bus. It owns no
// negotiation state beyond the registers it reads; capability decode, range
// resolution and request building are the pure functions of this package.
type Device struct {
	bus Bus
	cfg Config

	r [pdoTableBytes]byte
	w [2]byte
}

// New constructs a Device. It only creates the object; it does not touch the
// hardware.
func New(bus Bus, cfg Config) *Device {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = time.Second
	}
	return &Device{bus: bus, cfg: cfg}
}

// --- register primitives ---

func (d *Device) readByte(cmd byte) (byte, error) {
	if err := d.bus.ReadCommand(cmd, d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

func (d *Device) readWord(cmd byte) (uint16, error) {
	if err := d.bus.ReadCommand(cmd, d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0]) | uint16(d.r[1])<<8, nil
}

func (d *Device) writeByte(cmd byte, v byte) error {
	d.w[0] = v
	return d.bus.WriteCommand(cmd, d.w[:1])
}

func (d *Device) writeWord(cmd byte, v uint16) error {
	d.w[0] = byte(v)      // low
	d.w[1] = byte(v >> 8) // high
	return d.bus.WriteCommand(cmd, d.w[:2])
}

// --- status and mode ---

// Status mirrors the STATUS register. The hardware clears it on read, so one
// read consumes the flags.
type Status struct {
	Started bool
	Ready   bool
	NewPDO  bool

	UnderVoltage    bool
	OverVoltage     bool
	OverCurrent     bool
	OverTemperature bool
}

// Status reads and decodes the STATUS register.
func (d *Device) Status() (Status, error) {
	b, err := d.readByte(cmdStatus)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Started:         b&statusStarted != 0,
		Ready:           b&statusReady != 0,
		NewPDO:          b&statusNewPDO != 0,
		UnderVoltage:    b&statusUVP != 0,
		OverVoltage:     b&statusOVP != 0,
		OverCurrent:     b&statusOCP != 0,
		OverTemperature: b&statusOTP != 0,
	}, nil
}

// OperationMode mirrors the OPMODE register.
type OperationMode struct {
	LegacySource bool // non-PD source attached
	PDSource     bool // PD source attached
	Derating     bool
	CCFlip       bool // orientation: CC2 active
}

// OperationMode reads and decodes the OPMODE register.
func (d *Device) OperationMode() (OperationMode, error) {
	b, err := d.readByte(cmdOperationMode)
	if err != nil {
		return OperationMode{}, err
	}
	return OperationMode{
		LegacySource: b&opmodeLegacy != 0,
		PDSource:     b&opmodePD != 0,
		Derating:     b&opmodeDerating != 0,
		CCFlip:       b&opmodeCCFlip != 0,
	}, nil
}

// Probe checks that the probed address answers like a sink controller: the
// STATUS register keeps bit 7 reserved-zero, so an 0xFF (absent device on
// some bus implementations) or foreign register map fails.
func (d *Device) Probe() error {
	b, err := d.readByte(cmdStatus)
	if err != nil {
		return err
	}
	if b&0x80 != 0 {
		return ErrWrongDevice
	}
	return nil
}

// --- capability table ---

// ReadTable dumps the full source capability block and decodes it. Slots
// that fail to decode are skipped and reported in the SlotError list; the
// rest of the table is still usable.
func (d *Device) ReadTable() (Table, []SlotError, error) {
	if err := d.bus.ReadCommand(cmdSrcPDOAll, d.r[:pdoTableBytes]); err != nil {
		return Table{}, nil, err
	}
	t, errs := DecodeAll(d.r[:pdoTableBytes])
	return t, errs, nil
}

// --- negotiation ---

// NegotiationResult mirrors PD_MSGRLT.
type NegotiationResult uint8

const (
	ResultBusy         NegotiationResult = msgResultBusy
	ResultSuccess      NegotiationResult = msgResultSuccess
	ResultInvalid      NegotiationResult = msgResultInvalid
	ResultNotSupported NegotiationResult = msgResultNotSupported
	ResultTxFailed     NegotiationResult = msgResultTxFailed
)

// Terminal reports whether the negotiation has finished, either way.
func (r NegotiationResult) Terminal() bool { return r != ResultBusy }

// Accepted reports a successful negotiation.
func (r NegotiationResult) Accepted() bool { return r == ResultSuccess }

func (r NegotiationResult) String() string {
	switch r {
	case ResultBusy:
		return "busy"
	case ResultSuccess:
		return "success"
	case ResultInvalid:
		return "invalid"
	case ResultNotSupported:
		return "not_supported"
	case ResultTxFailed:
		return "transaction_failed"
	}
	return "unknown"
}

// SendRequest writes the encoded request to PD_REQMSG, which starts a
// negotiation. It does not wait for the outcome; poll Result, or use
// Negotiate. A request without a valid slot position (the zero value) is
// refused before it reaches the wire.
func (d *Device) SendRequest(r SinkRequest) error {
	if !r.Position.valid() {
		return ErrOutOfRange
	}
	return d.writeWord(cmdRequestMsg, r.Encode())
}

// HardReset issues a USB-PD hard reset through PD_CMDMSG. The contract
// restarts from vSafe5V; STATUS flags new capabilities once the source
// re-advertises, at which point the table should be re-read.
func (d *Device) HardReset() error {
	return d.writeByte(cmdCommandMsg, cmdMsgHardReset)
}

// Result reads PD_MSGRLT. Values outside the defined enumeration fail with
// ErrMalformedData rather than mapping to a default outcome.
func (d *Device) Result() (NegotiationResult, error) {
	b, err := d.readByte(cmdMsgResult)
	if err != nil {
		return ResultBusy, err
	}
	r := NegotiationResult(b & 0b111)
	if r > ResultTxFailed {
		return ResultBusy, ErrMalformedData
	}
	return r, nil
}

// Negotiate sends the request and polls until the source answers or the
// context/timeout expires. A rejected negotiation returns the terminal
// result together with ErrRejected; timeouts surface the context error.
func (d *Device) Negotiate(ctx context.Context, r SinkRequest) (NegotiationResult, error) {
	if err := d.SendRequest(r); err != nil {
		return ResultBusy, err
	}
	deadline := time.Now().Add(d.cfg.NegotiateTimeout)
	for {
		res, err := d.Result()
		if err != nil {
			return res, err
		}
		if res.Terminal() {
			if !res.Accepted() {
				return res, ErrRejected
			}
			return res, nil
		}
		if time.Now().After(deadline) {
			return ResultBusy, ErrBusy
		}
		select {
		case <-ctx.Done():
			return ResultBusy, ctx.Err()
		case <-time.After(d.cfg.PollInterval):
		}
	}
}
