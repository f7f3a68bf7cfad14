package qf

import "sync"

// Trace wire format constants, per §6: little-endian byte stream, each
// record type_u8 | timestamp_varint | fields... | checksum_u8, with a
// byte-stuffing escape scheme and a fixed terminator.
const (
	traceEscape     byte = 0x7D
	traceTerminator byte = 0x7E
	traceXorMask    byte = 0x20
)

// Trace record type bytes. Applications may define their own above
// traceRecTypeUser.
const (
	TraceRecAOStart uint8 = iota
	TraceRecDispatch
	TraceRecTran
	TraceRecPublish
	TraceRecTimerArm
	TraceRecTimerDisarm
	traceRecTypeUser
)

// Trace is the binary trace channel, per §4.I: a non-blocking producer
// writing framed, byte-stuffed records into a ring buffer, gated by a
// global filter (record type bitset) and per-object local filters, with
// the transport draining the ring buffer asynchronously. Never allocates
// an Event.
type Trace struct {
	mu sync.Mutex

	ring []byte
	head int
	tail int
	size int

	global [256 / 8]byte
	local  map[uint32]bool

	transport TraceTransport
	sym       *symtab

	dropped uint64
}

// NewTrace creates a trace channel with the given ring buffer capacity (in
// bytes) and optional transport (may be nil; bytes simply accumulate and
// must be drained via Flush).
func NewTrace(capacity int, transport TraceTransport) *Trace {
	return &Trace{
		ring:      make([]byte, capacity),
		local:     make(map[uint32]bool),
		transport: transport,
		sym:       newSymtab(),
	}
}

// SetGlobalFilter enables or disables emission of recType records.
func (t *Trace) SetGlobalFilter(recType uint8, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if enabled {
		t.global[recType/8] |= 1 << (recType % 8)
	} else {
		t.global[recType/8] &^= 1 << (recType % 8)
	}
}

func (t *Trace) globalFilterEnabled(recType uint8) bool {
	return t.global[recType/8]&(1<<(recType%8)) != 0
}

// SetLocalFilter gates emission of records tagged with objID. Absent from
// the table, an object is not locally filtered (global filter alone
// governs it).
func (t *Trace) SetLocalFilter(objID uint32, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.local[objID] = enabled
}

// RegisterObject assigns obj a dictionary object-ID for use as a trace
// field, per §4.I's "object-ID" field kind.
func (t *Trace) RegisterObject(obj traceObject) uint32 {
	return t.sym.register(obj)
}

// traceFields accumulates one record's field bytes in wire order.
type traceFields struct {
	buf []byte
}

func (f *traceFields) U8(v uint8) *traceFields {
	f.buf = append(f.buf, v)
	return f
}

func (f *traceFields) U16(v uint16) *traceFields {
	f.buf = append(f.buf, byte(v), byte(v>>8))
	return f
}

func (f *traceFields) U32(v uint32) *traceFields {
	f.buf = append(f.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	return f
}

func (f *traceFields) ObjID(id uint32) *traceFields { return f.U32(id) }

func (f *traceFields) Str(s string) *traceFields {
	f.buf = append(f.buf, s...)
	f.buf = append(f.buf, 0)
	return f
}

// Emit writes one trace record if recType passes the global filter and
// objID (0 if not object-scoped) passes any local filter, per §4.I. build
// appends the record's fields in wire order; non-blocking — if the ring
// buffer has no room, the record is dropped and counted (see Dropped).
func (t *Trace) Emit(recType uint8, objID uint32, build func(*traceFields)) {
	t.mu.Lock()
	if !t.globalFilterEnabled(recType) {
		t.mu.Unlock()
		return
	}
	if enabled, ok := t.local[objID]; ok && !enabled {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	var ts uint32
	if t.transport != nil {
		ts = t.transport.QSOnGetTime()
	}

	raw := make([]byte, 0, 16)
	raw = append(raw, recType)
	raw = appendVarint(raw, ts)
	if build != nil {
		fields := &traceFields{}
		build(fields)
		raw = append(raw, fields.buf...)
	}

	var checksum byte
	for _, b := range raw {
		checksum += b
	}
	raw = append(raw, checksum)

	t.writeFramed(raw)
}

// appendVarint appends v as an unsigned LEB128 varint.
func appendVarint(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// writeFramed byte-stuffs raw (escaping traceEscape and traceTerminator)
// and appends the terminator, writing the result into the ring buffer.
func (t *Trace) writeFramed(raw []byte) {
	stuffed := make([]byte, 0, len(raw)+2)
	for _, b := range raw {
		if b == traceEscape || b == traceTerminator {
			stuffed = append(stuffed, traceEscape, b^traceXorMask)
		} else {
			stuffed = append(stuffed, b)
		}
	}
	stuffed = append(stuffed, traceTerminator)

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ring)-t.size < len(stuffed) {
		t.dropped++
		logRecoverable("trace", 0, "trace record dropped: ring buffer full", nil, nil)
		return
	}
	for _, b := range stuffed {
		t.ring[t.tail] = b
		t.tail = (t.tail + 1) % len(t.ring)
	}
	t.size += len(stuffed)
}

// Dropped returns the number of records dropped for lack of ring space.
func (t *Trace) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Flush drains all currently-buffered bytes to the transport, if one was
// supplied. Safe to call from any goroutine; typically the BSP calls it
// from its own drain task (qs_on_flush), outside the dispatch path.
func (t *Trace) Flush() error {
	t.mu.Lock()
	if t.size == 0 {
		t.mu.Unlock()
		return nil
	}
	data := make([]byte, t.size)
	for i := range data {
		data[i] = t.ring[t.head]
		t.head = (t.head + 1) % len(t.ring)
	}
	t.size = 0
	transport := t.transport
	t.mu.Unlock()

	if transport == nil {
		return nil
	}
	return transport.QSOnFlush(data)
}

// Reset discards buffered bytes without flushing and notifies the
// transport, per the receive-side RESET command in §4.I.
func (t *Trace) Reset() {
	t.mu.Lock()
	t.head, t.tail, t.size = 0, 0, 0
	transport := t.transport
	t.mu.Unlock()
	if transport != nil {
		transport.QSOnReset()
	}
}
