package ap33772s

import (
	"context"

	"tinygo.org/x/drivers"
)

// Bus is the transport capability the driver needs: read or write one
// command register as a byte-level transaction. Implementations must make
// each call one atomic bus transaction; the driver issues at most one call
// at a time per Device, and never retries (retry policy belongs to the
// caller).
type Bus interface {
	// ReadCommand selects the command register and reads len(buf) bytes.
	ReadCommand(cmd byte, buf []byte) error
	// WriteCommand writes data to the command register.
	WriteCommand(cmd byte, data []byte) error
}

// I2CBus is the blocking transport over a configured I2C bus. The caller's
// goroutine blocks until the bus transaction completes.
//
// NOTE: the underlying I2C.Tx must perform a write followed by a
// repeated-start read when both buffers are given, without releasing the bus.
type I2CBus struct {
	bus  drivers.I2C
	addr uint16

	w [3]byte // fixed buffer; command writes are at most 2 data bytes
}

// NewI2CBus wraps an already-configured I2C bus. addr 0 selects the default
// device address.
func NewI2CBus(bus drivers.I2C, addr uint16) *I2CBus {
	if addr == 0 {
		addr = AddressDefault
	}
	return &I2CBus{bus: bus, addr: addr}
}

func (b *I2CBus) ReadCommand(cmd byte, buf []byte) error {
	b.w[0] = cmd
	return b.bus.Tx(b.addr, b.w[:1], buf)
}

func (b *I2CBus) WriteCommand(cmd byte, data []byte) error {
	if len(data) <= 2 {
		b.w[0] = cmd
		n := copy(b.w[1:], data)
		return b.bus.Tx(b.addr, b.w[:1+n], nil)
	}
	out := make([]byte, 1+len(data))
	out[0] = cmd
	copy(out[1:], data)
	return b.bus.Tx(b.addr, out, nil)
}

// QueuedBus serializes all transactions of an inner Bus through a single
// worker goroutine, for cooperative callers that share one physical bus
// across tasks. Calls still block the calling goroutine, but the worker
// enforces at most one outstanding transaction, and the whole bus shuts down
// with its context: calls after cancellation fail with ErrBusClosed.
type QueuedBus struct {
	ops  chan busOp
	done <-chan struct{}
}

type busOp struct {
	cmd   byte
	buf   []byte
	write bool
	errc  chan error
}

// NewQueuedBus starts the worker. It stops, and the bus closes, when ctx is
// cancelled.
func NewQueuedBus(ctx context.Context, inner Bus) *QueuedBus {
	q := &QueuedBus{ops: make(chan busOp), done: ctx.Done()}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case op := <-q.ops:
				if op.write {
					op.errc <- inner.WriteCommand(op.cmd, op.buf)
				} else {
					op.errc <- inner.ReadCommand(op.cmd, op.buf)
				}
			}
		}
	}()
	return q
}

func (q *QueuedBus) do(op busOp) error {
	select {
	case <-q.done:
		return ErrBusClosed
	default:
	}
	op.errc = make(chan error, 1)
	select {
	case q.ops <- op:
	case <-q.done:
		return ErrBusClosed
	}
	select {
	case err := <-op.errc:
		return err
	case <-q.done:
		return ErrBusClosed
	}
}

func (q *QueuedBus) ReadCommand(cmd byte, buf []byte) error {
	return q.do(busOp{cmd: cmd, buf: buf})
}

func (q *QueuedBus) WriteCommand(cmd byte, data []byte) error {
	return q.do(busOp{cmd: cmd, buf: data, write: true})
}
