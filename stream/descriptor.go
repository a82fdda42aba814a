package stream

// Flags records the capabilities of a Descriptor, matching the
// READ_FLAG/WRITE_FLAG/EXPANDS_FLAG/FILTER_FLAG bits of spec.md §4.2.
type Flags uint8

const (
	Readable Flags = 1 << iota // the filter can be wired as a decoder
	Writable                   // the filter can be wired as an encoder
	Expands                    // output may be larger than input (RunLengthDecode)
	IsFilter                   // this descriptor sits above another Stream, not a raw device
)

// FillFunc replenishes a Stream's read buffer. It returns the number of
// bytes now available starting at buf[1], or 0 with err == io.EOF
// once the underlying source is exhausted. A non-EOF error transitions
// the Stream to StateIOError.
type FillFunc func(s *Stream) (n int, err error)

// FlushFunc drains a Stream's write buffer downward to s.underlying. It
// is also the hook through which an encoder emits a trailing EOD marker
// when s.state == StateClosing (spec.md I4).
type FlushFunc func(s *Stream) error

// InitFunc wires a freshly allocated Stream onto its underlying stream
// and allocates the codec's buffer and any private state. params is the
// parameter dictionary described in spec.md §4.2 (codec-specific keys).
type InitFunc func(s *Stream, underlying *Stream, params map[string]int) error

// CloseFunc is called once per Stream, explicit distinguishing an
// operator-driven close (which must flush and emit trailers) from an
// implicit one (garbage collection / chain teardown, spec.md §4.1).
type CloseFunc func(s *Stream, explicit bool) error

// DisposeFunc releases the Stream's buffer and any private state. It
// runs after Close and is never expected to fail.
type DisposeFunc func(s *Stream)

// ResetFunc repositions a rewindable Stream to its origin.
type ResetFunc func(s *Stream) error

// PositionFunc and SetPositionFunc are only meaningful for disk-backed
// streams; filters return ErrUnsupported (spec.md §4.1).
type PositionFunc func(s *Stream) (int64, error)
type SetPositionFunc func(s *Stream, pos int64) error

// Descriptor is the immutable per-codec vtable of spec.md §4.2. Exactly
// one of the direction-specific hooks (Fill for a decoder, Flush for an
// encoder) does real work; the other is left nil and Stream rejects use
// in that direction with a TypeCheck error.
type Descriptor struct {
	Name  string
	Flags Flags

	Fill  FillFunc
	Flush FlushFunc

	Init    InitFunc
	Close   CloseFunc
	Dispose DisposeFunc
	Reset   ResetFunc

	Position    PositionFunc
	SetPosition SetPositionFunc
}

func (d *Descriptor) readable() bool { return d.Flags&Readable != 0 }
func (d *Descriptor) writable() bool { return d.Flags&Writable != 0 }
