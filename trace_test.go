package qf

import "testing"

type captureTransport struct {
	flushed [][]byte
	reset   int
}

func (c *captureTransport) QSOnStartup() error { return nil }
func (c *captureTransport) QSOnFlush(data []byte) error {
	c.flushed = append(c.flushed, append([]byte(nil), data...))
	return nil
}
func (c *captureTransport) QSOnReset()        { c.reset++ }
func (c *captureTransport) QSOnGetTime() uint32 { return 42 }

func TestTraceEmitRespectsGlobalFilter(t *testing.T) {
	tr := NewTrace(256, nil)
	tr.Emit(TraceRecDispatch, 0, func(f *traceFields) { f.U8(1) })
	if tr.size != 0 {
		t.Fatalf("expected record to be dropped by default (no global filter enabled)")
	}

	tr.SetGlobalFilter(TraceRecDispatch, true)
	tr.Emit(TraceRecDispatch, 0, func(f *traceFields) { f.U8(1) })
	if tr.size == 0 {
		t.Fatalf("expected record to be buffered once its type is enabled")
	}
}

func TestTraceLocalFilterSuppressesObject(t *testing.T) {
	tr := NewTrace(256, nil)
	tr.SetGlobalFilter(TraceRecAOStart, true)

	tr.SetLocalFilter(7, false)
	tr.Emit(TraceRecAOStart, 7, nil)
	if tr.size != 0 {
		t.Fatalf("expected locally-filtered object id to be suppressed")
	}

	tr.Emit(TraceRecAOStart, 8, nil)
	if tr.size == 0 {
		t.Fatalf("expected an object id without a local filter to pass through")
	}
}

func TestTraceFlushDrainsToTransport(t *testing.T) {
	ct := &captureTransport{}
	tr := NewTrace(256, ct)
	tr.SetGlobalFilter(TraceRecPublish, true)
	tr.Emit(TraceRecPublish, 0, func(f *traceFields) { f.U16(sigA) })

	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(ct.flushed) != 1 {
		t.Fatalf("expected exactly one flush batch, got %d", len(ct.flushed))
	}
	last := ct.flushed[0]
	if last[len(last)-1] != traceTerminator {
		t.Fatalf("expected the flushed bytes to end with the record terminator")
	}
}

func TestTraceByteStuffingEscapesReservedBytes(t *testing.T) {
	tr := NewTrace(256, nil)
	tr.SetGlobalFilter(TraceRecDispatch, true)
	// A field byte equal to the terminator must be escaped so it can never
	// be mistaken for a frame boundary.
	tr.Emit(TraceRecDispatch, 0, func(f *traceFields) { f.U8(traceTerminator) })

	raw := make([]byte, tr.size)
	for i := range raw {
		raw[i] = tr.ring[(tr.head+i)%len(tr.ring)]
	}

	terminators := 0
	for _, b := range raw {
		if b == traceTerminator {
			terminators++
		}
	}
	if terminators != 1 {
		t.Fatalf("expected exactly one unescaped terminator (the frame end), got %d", terminators)
	}
}

func TestTraceResetNotifiesTransport(t *testing.T) {
	ct := &captureTransport{}
	tr := NewTrace(256, ct)
	tr.SetGlobalFilter(TraceRecDispatch, true)
	tr.Emit(TraceRecDispatch, 0, nil)

	tr.Reset()
	if ct.reset != 1 {
		t.Fatalf("expected QSOnReset to be called once")
	}
	if tr.size != 0 {
		t.Fatalf("expected Reset to discard buffered bytes")
	}
}

func TestTraceDropsWhenRingFull(t *testing.T) {
	tr := NewTrace(4, nil) // too small for even one framed record
	tr.SetGlobalFilter(TraceRecDispatch, true)
	tr.Emit(TraceRecDispatch, 0, func(f *traceFields) { f.U32(0xdeadbeef) })

	if tr.Dropped() != 1 {
		t.Fatalf("expected the oversized record to be dropped, got Dropped()=%d", tr.Dropped())
	}
}
