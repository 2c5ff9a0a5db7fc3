package canbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction tags a trace record.
type Direction uint8

const (
	DirRx Direction = iota + 1
	DirTx
)

func (d Direction) String() string {
	switch d {
	case DirRx:
		return "rx"
	case DirTx:
		return "tx"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

// TraceRecord is one frame as stored in a trace. Records are written as a
// stream of CBOR maps with integer keys.
type TraceRecord struct {
	Time     time.Time `cbor:"1,keyasint"`
	Dir      Direction `cbor:"2,keyasint"`
	ID       uint32    `cbor:"3,keyasint"`
	Extended bool      `cbor:"4,keyasint,omitempty"`
	RTR      bool      `cbor:"5,keyasint,omitempty"`
	Data     []byte    `cbor:"6,keyasint"`
}

// Frame converts the record back to a frame. Data beyond 8 bytes is dropped.
func (r TraceRecord) Frame() Frame {
	f := Frame{ID: r.ID, Extended: r.Extended, RTR: r.RTR}
	f.Len = uint8(copy(f.Data[:], r.Data))
	return f
}

var traceEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// TraceWriter appends TraceRecords to an io.Writer.
type TraceWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	now func() time.Time
}

// NewTraceWriter returns a writer that encodes records onto w.
func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{enc: traceEncMode.NewEncoder(w), now: time.Now}
}

// Write records one frame with the current time.
func (t *TraceWriter) Write(dir Direction, f Frame) error {
	rec := TraceRecord{
		Time:     t.now().UTC(),
		Dir:      dir,
		ID:       f.ID,
		Extended: f.Extended,
		RTR:      f.RTR,
		Data:     append([]byte(nil), f.Payload()...),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(rec)
}

// TraceReader decodes records written by TraceWriter.
type TraceReader struct {
	dec *cbor.Decoder
}

// NewTraceReader reads a record stream from r.
func NewTraceReader(r io.Reader) *TraceReader {
	return &TraceReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (t *TraceReader) Next() (TraceRecord, error) {
	var rec TraceRecord
	if err := t.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return TraceRecord{}, io.EOF
		}
		return TraceRecord{}, fmt.Errorf("canbus: decode trace: %w", err)
	}
	return rec, nil
}

// NewRecordingBus wraps inner and writes every successfully sent and received
// frame to tw. Trace write failures are not propagated to the caller; the
// first one is kept and available from TraceErr on the returned bus.
func NewRecordingBus(inner Bus, tw *TraceWriter) *RecordingBus {
	return &RecordingBus{inner: inner, tw: tw}
}

// RecordingBus is the Bus returned by NewRecordingBus.
type RecordingBus struct {
	inner Bus
	tw    *TraceWriter

	mu  sync.Mutex
	err error
}

func (r *RecordingBus) record(dir Direction, f Frame) {
	if err := r.tw.Write(dir, f); err != nil {
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}

// TraceErr returns the first trace write failure, if any.
func (r *RecordingBus) TraceErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *RecordingBus) Send(frame Frame) error {
	if err := r.inner.Send(frame); err != nil {
		return err
	}
	r.record(DirTx, frame)
	return nil
}

func (r *RecordingBus) TryReceive() (Frame, bool, error) {
	f, ok, err := r.inner.TryReceive()
	if ok {
		r.record(DirRx, f)
	}
	return f, ok, err
}

func (r *RecordingBus) Close() error {
	return r.inner.Close()
}
