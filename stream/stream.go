// Package stream implements the buffered, filter-chainable byte stream
// that is the narrow waist of the filter pipeline (spec.md component A),
// together with the Descriptor vtable that binds a concrete codec onto
// one (component B).
//
// A Stream is never safe for concurrent use: spec.md §5 mandates a
// single-threaded cooperative scheduling model, and this package does
// not add locking to paper over that.
package stream

import (
	"io"
)

// State is the monotonic lifecycle of a Stream (spec.md §3). Transitions
// only run forward except through an explicit Reset.
type State uint8

const (
	StateInit State = iota
	StateOpen
	StateClosing
	StateEOF
	StateIOError
)

// Direction distinguishes an input (decoding) stream from an output
// (encoding) one. A Stream never switches direction after creation.
type Direction uint8

const (
	Input Direction = iota
	Output
)

var genCounter uint64

func nextGen() uint64 {
	genCounter++
	return genCounter
}

// Stream is the buffered file-like object of spec.md §3. It is produced
// either directly over raw bytes (see NewInputBytes/NewOutputWriter) or
// by wiring a Descriptor onto an existing Stream (see Descriptor.Open).
type Stream struct {
	buf     []byte // buf[0] is the reserved push-back slot; data lives in buf[1:]
	ptr     int    // index into buf of the next byte to read/write
	count   int    // input: bytes available from ptr; output: remaining capacity
	bufSize int
	dir     Direction
	state   State

	// FilterState is a codec-private integer counter. The codecs in
	// this module do not use it; they keep column positions, cipher
	// state and record counters in Private.
	FilterState int64

	// Private holds codec-private state that doesn't fit in a single
	// integer, e.g. the ASCII85 decoder's partially accumulated group.
	Private interface{}

	underlying    *Stream
	underlyingGen uint64

	vtable *Descriptor

	gen uint64

	pending *Error // deferred error: surfaces on the *next* Fill call

	sink io.Writer // only set for a root output stream with no codec above a raw sink
	src  io.Reader // only set for a root input stream with no codec below
}

// NewInputBytes wraps a byte slice as a leaf input Stream: Fill never
// runs out except to report io.EOF once src is exhausted.
func NewInputBytes(b []byte) *Stream {
	return NewInputReader(newByteReader(b))
}

// NewInputReader wraps an io.Reader as a leaf input Stream.
func NewInputReader(r io.Reader) *Stream {
	const size = 1024
	s := &Stream{
		buf:     make([]byte, size+1),
		ptr:     1,
		bufSize: size,
		dir:     Input,
		state:   StateOpen,
		gen:     nextGen(),
		src:     r,
	}
	return s
}

// NewOutputWriter wraps an io.Writer as a leaf output Stream: Flush
// writes the buffered bytes straight through.
func NewOutputWriter(w io.Writer) *Stream {
	const size = 1024
	s := &Stream{
		buf:     make([]byte, size),
		ptr:     0,
		count:   size,
		bufSize: size,
		dir:     Output,
		state:   StateOpen,
		gen:     nextGen(),
		sink:    w,
	}
	return s
}

// Direction reports whether this Stream is an input (decoding) or output
// (encoding) stream.
func (s *Stream) Direction() Direction { return s.dir }

// State reports the current lifecycle state.
func (s *Stream) State() State { return s.state }

// Generation is the handle generation used to detect use of a Stream
// after its owner closed it out of order (spec.md's "Design Notes:
// Stacked streams and generation counts").
func (s *Stream) Generation() uint64 { return s.gen }

// Underlying is the Stream this one reads from / writes to, or nil at
// the bottom of the stack.
func (s *Stream) Underlying() *Stream { return s.underlying }

func newByteReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

type sliceReader struct {
	b []byte
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}

// GetByte implements getc(s) from spec.md §4.1: if buffered bytes
// remain, return one; otherwise call the vtable's Fill to replenish.
// Once EOF has been observed, further calls keep returning io.EOF
// without invoking Fill again (invariant I3).
func (s *Stream) GetByte() (byte, error) {
	if s.dir != Input {
		return 0, NewError(IOError, "GetByte on an output stream")
	}
	if s.count == 0 {
		if err := s.fill(); err != nil {
			return 0, err
		}
		if s.count == 0 {
			return 0, io.EOF
		}
	}
	b := s.buf[s.ptr]
	s.ptr++
	s.count--
	return b, nil
}

// fill is the shared underflow path for GetByte and Read.
func (s *Stream) fill() error {
	if s.state == StateEOF {
		return io.EOF
	}
	if s.state == StateIOError {
		return s.lastErr()
	}
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		s.state = StateIOError
		return err
	}

	if s.vtable != nil && s.vtable.Fill != nil {
		n, err := s.vtable.Fill(s)
		if n > 0 {
			s.ptr = 1
			s.count = n
		}
		if err == io.EOF {
			s.state = StateEOF
			if n > 0 {
				return nil
			}
			return io.EOF
		}
		if err != nil {
			s.state = StateIOError
			return err
		}
		return nil
	}

	// Leaf stream: read straight from src.
	if s.src == nil {
		s.state = StateEOF
		return io.EOF
	}
	n, err := s.src.Read(s.buf[1:])
	if n > 0 {
		s.ptr = 1
		s.count = n
	}
	if err == io.EOF {
		if n > 0 {
			// Deliver the bytes now; the next call reports EOF.
			return nil
		}
		s.state = StateEOF
		return io.EOF
	}
	if err != nil {
		s.state = StateIOError
		return NewError(IOError, "%s", err)
	}
	return nil
}

func (s *Stream) lastErr() error {
	if s.pending != nil {
		return s.pending
	}
	return NewError(IOError, "stream %s is in error state", s.vtableName())
}

func (s *Stream) vtableName() string {
	if s.vtable == nil {
		return "<raw>"
	}
	return s.vtable.Name
}

// deferError stashes err to be returned on the *next* Fill call, letting
// the caller see bytes already produced this call first (spec.md's
// "Deferred error" design for ASCII85/ASCIIHex).
func (s *Stream) deferError(err *Error) {
	s.pending = err
}

// DeferError is the FillFunc-facing counterpart of deferError: a codec
// that has already produced some output bytes this call stashes its
// error here instead of returning it directly, so the caller sees the
// good bytes now and the error on the next Fill (P3).
func (s *Stream) DeferError(err *Error) {
	s.pending = err
}

// UngetByte pushes one byte back onto the stream (spec.md's guaranteed
// one-byte push-back). It must only be called immediately after a
// successful GetByte with that same byte.
func (s *Stream) UngetByte(b byte) {
	if s.ptr > 0 {
		s.ptr--
		s.count++
		s.buf[s.ptr] = b
	}
}

// Read implements io.Reader by repeatedly draining the internal buffer
// and refilling it, for callers that want bulk transfer instead of
// byte-at-a-time GetByte.
func (s *Stream) Read(p []byte) (int, error) {
	if s.dir != Input {
		return 0, NewError(IOError, "Read on an output stream")
	}
	total := 0
	for total < len(p) {
		if s.count == 0 {
			if err := s.fill(); err != nil {
				if total > 0 {
					return total, nil
				}
				return 0, err
			}
			if s.count == 0 {
				return total, io.EOF
			}
		}
		n := copy(p[total:], s.buf[s.ptr:s.ptr+s.count])
		s.ptr += n
		s.count -= n
		total += n
	}
	return total, nil
}

// PutByte implements putc(c, s) from spec.md §4.1: if capacity remains
// in the buffer, store the byte; otherwise flush downward first.
func (s *Stream) PutByte(b byte) error {
	if s.dir != Output {
		return NewError(IOError, "PutByte on an input stream")
	}
	if s.count == 0 {
		if err := s.flush(); err != nil {
			return err
		}
	}
	s.buf[s.ptr] = b
	s.ptr++
	s.count--
	return nil
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	for _, b := range p {
		if err := s.PutByte(b); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (s *Stream) flush() error {
	if s.vtable != nil && s.vtable.Flush != nil {
		if err := s.vtable.Flush(s); err != nil {
			s.state = StateIOError
			return err
		}
		return nil
	}
	// Leaf stream: write straight to sink.
	if s.sink == nil {
		return NewError(IOError, "output stream has no sink")
	}
	if _, err := s.sink.Write(s.buf[:s.ptr]); err != nil {
		s.state = StateIOError
		return NewError(IOError, "%s", err)
	}
	s.ptr = 0
	s.count = s.bufSize
	return nil
}

// Close finalizes a Stream. explicit must be true for an
// operator-initiated close (it triggers encoder trailers); false for an
// implicit teardown (chain unwind, garbage collection), which must not
// emit trailing markers (spec.md I4).
func (s *Stream) Close(explicit bool) error {
	if s.state == StateClosing {
		return nil // already closing further down a recursive Close
	}
	if s.dir == Output {
		if explicit {
			// Visible to the Flush hook via IsClosing so it can emit its
			// trailing EOD marker (I4); an implicit close never sets
			// this, so the same Flush call drains buffered bytes
			// without a trailer.
			s.state = StateClosing
		}
		if err := s.flush(); err != nil {
			return err
		}
	}
	var closeErr error
	if s.vtable != nil && s.vtable.Close != nil {
		// Close runs after the flush above, never in place of it: it is
		// for additional device-level teardown (closing a Generic
		// filter's underlying device file), not a second flush.
		closeErr = s.vtable.Close(s, explicit)
	}
	if s.vtable != nil && s.vtable.Dispose != nil {
		s.vtable.Dispose(s)
	}
	s.state = StateEOF
	s.gen = 0 // invalidate: any stream still holding us as `underlying` must fault
	if s.underlying != nil && s.dir == Output {
		// Encoder chains always propagate an explicit close downward so
		// the trailing stream gets its own EOD marker (spec.md §3
		// "Lifetimes & ownership").
		_ = s.underlying.Close(explicit)
	}
	return closeErr
}

// checkUnderlying verifies the underlying stream hasn't been closed out
// from under this one (generation mismatch => IOError, spec.md's
// "Design Notes: Stacked streams and generation counts").
func (s *Stream) checkUnderlying() (*Stream, error) {
	if s.underlying == nil {
		return nil, NewError(IOError, "no underlying stream")
	}
	if s.underlying.gen != s.underlyingGen {
		return nil, NewError(IOError, "underlying stream closed out of order")
	}
	return s.underlying, nil
}

// Reset repositions a rewindable Stream to its origin.
func (s *Stream) Reset() error {
	if s.vtable == nil || s.vtable.Reset == nil {
		return ErrUnsupported
	}
	if err := s.vtable.Reset(s); err != nil {
		return err
	}
	s.state = StateOpen
	s.ptr, s.count = 1, 0
	if s.dir == Output {
		s.ptr, s.count = 0, s.bufSize
	}
	return nil
}

// Position reports the current byte offset for disk-backed streams.
func (s *Stream) Position() (int64, error) {
	if s.vtable == nil || s.vtable.Position == nil {
		return 0, ErrUnsupported
	}
	return s.vtable.Position(s)
}

// SetPosition repositions a disk-backed stream.
func (s *Stream) SetPosition(pos int64) error {
	if s.vtable == nil || s.vtable.SetPosition == nil {
		return ErrUnsupported
	}
	return s.vtable.SetPosition(s, pos)
}

// IsClosing reports whether the final flush of an encoder is underway,
// so a FlushFunc can tell it must emit its trailing EOD marker now.
func (s *Stream) IsClosing() bool { return s.state == StateClosing }

// Buffered exposes the window of not-yet-consumed/not-yet-flushed bytes
// at the current cursor position (used by decoders peeking ahead for a
// bulk fast path, like ASCII85's decodeFastTuple).
func (s *Stream) Buffered() []byte { return s.buf[s.ptr : s.ptr+s.count] }

// SetFilled tells an input Stream that n bytes starting at buf[1] are
// now valid input. The Fill path does the same thing itself with the
// count a FillFunc returns.
func (s *Stream) SetFilled(n int) {
	s.ptr = 1
	s.count = n
}

// RawBuffer exposes the full backing array (including the push-back
// slot at index 0) for codecs that need to transform in place, mirroring
// the C implementation's direct pointer arithmetic on filter->buffer.
func (s *Stream) RawBuffer() []byte { return s.buf }

// BufSize is the configured capacity of the internal buffer.
func (s *Stream) BufSize() int { return s.bufSize }

// Count is the number of buffered bytes available to read (input) or
// the remaining write capacity (output).
func (s *Stream) Count() int { return s.count }

// SetCount directly sets the buffered-byte count; encoders use it to
// restore full write capacity after a Flush, and ASCII85's decoder fast
// path uses it to consume bytes from its underlying stream.
func (s *Stream) SetCount(n int) { s.count = n }

// Ptr is the buffer index of the next byte to read or write.
func (s *Stream) Ptr() int { return s.ptr }

// SetPtr repositions the write cursor, used when an encoder compacts its
// buffer after a partial flush.
func (s *Stream) SetPtr(p int) { s.ptr = p }
