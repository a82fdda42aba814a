package filters

import (
	"io"

	"github.com/benoitkugler/filterio/stream"
)

// ascii85DecodeState carries the partially accumulated base-85 group
// across Fill calls: the underlying reader is drained one character at
// a time and a group only turns into output bytes once 5 characters (or
// an EOD/EOF) have been seen, so the 0-4 accumulated digits must survive
// between calls.
type ascii85DecodeState struct {
	group [5]byte
	gi    int
	eof   bool
}

func ascii85DecodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	s.AllocateBuffer(1024, 0)
	s.Private = &ascii85DecodeState{}
	return nil
}

func isASCII85Whitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

// decodeTuple converts gi accumulated digits (2-5; gi==5 is a full
// group) into the leading gi-1 bytes of a 4-byte word. Missing trailing
// digits of a partial final group are padded with 84 ('u'-'!'), the
// maximum digit value, matching the carry-correction the format's
// decoder applies to a truncated last tuple.
func decodeTuple(group [5]byte, gi int) ([4]byte, *stream.Error) {
	full := group
	for i := gi; i < 5; i++ {
		full[i] = 84
	}
	var val uint64
	for i := 0; i < 5; i++ {
		val = val*85 + uint64(full[i])
	}
	if val > 0xFFFFFFFF {
		return [4]byte{}, stream.NewError(stream.RangeCheck, "ASCII85Decode: tuple value exceeds 2^32-1")
	}
	return [4]byte{byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)}, nil
}

// decodeFastTuple bulk-decodes a full 5-character group directly out of
// buf (which must have at least 5 bytes) without going through the
// per-byte accumulator, matching ascii85.c's ascii85DecodeBuffer fast
// path (spec.md:90, SPEC_FULL.md supplemented feature 1). It only
// applies when every one of the 5 bytes is a plain base-85 digit
// ('!'..'u', which already excludes whitespace, 'z' and '~') and the
// leading digit is below 's', the threshold below which the accumulated
// value cannot exceed 2^32-1 (MAXHIGH4BYTES), so the overflow check
// decodeTuple otherwise performs is unnecessary here.
func decodeFastTuple(buf []byte) ([4]byte, bool) {
	if buf[0] < '!' || buf[0] >= 's' {
		return [4]byte{}, false
	}
	for _, c := range buf[1:5] {
		if c < '!' || c > 'u' {
			return [4]byte{}, false
		}
	}
	var val uint32
	for _, c := range buf[:5] {
		val = val*85 + uint32(c-'!')
	}
	return [4]byte{byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)}, true
}

// ascii85Fill implements the decoder half of spec.md's ASCII85 codec:
// it drains the underlying stream character by character, expanding
// full 5-character groups (and the 'z' shorthand for an all-zero group)
// into 4 decoded bytes, until the output buffer is full or an EOD/EOF is
// reached. Whenever the underlying stream's own read-ahead already holds
// a full group, decodeFastTuple decodes it in one shot instead of
// falling through to the per-byte accumulator below. A malformed
// character or a 1-character final group reports its error only after
// any already-decoded bytes have been delivered (P3: deferred error on a
// 1-byte partial tuple).
func ascii85Fill(s *stream.Stream) (int, error) {
	st, _ := s.Private.(*ascii85DecodeState)
	under := s.Underlying()
	if under == nil {
		return 0, stream.NewError(stream.IOError, "ASCII85Decode has no underlying stream")
	}
	raw := s.RawBuffer()
	n := 0
	capBytes := s.BufSize()

	finalize := func() (int, error) {
		if st.gi == 1 {
			// P3 / spec.md scenario 3: even with zero bytes produced so
			// far, the error is deferred to the *next* call rather than
			// surfaced immediately, so a caller never sees IOERROR on
			// the very call that first notices the short tuple.
			e := stream.NewError(stream.IllegalDataLength, "ASCII85Decode: final tuple has only one byte")
			s.DeferError(e)
			return n, nil
		}
		if st.gi > 1 {
			tb, derr := decodeTuple(st.group, st.gi)
			if derr != nil {
				if n > 0 {
					s.DeferError(derr)
					return n, nil
				}
				return 0, derr
			}
			copy(raw[1+n:], tb[:st.gi-1])
			n += st.gi - 1
			st.gi = 0
		}
		st.eof = true
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}

	for n+4 <= capBytes {
		if st.eof {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		if st.gi == 0 {
			if avail := under.Buffered(); len(avail) >= 5 {
				if tb, ok := decodeFastTuple(avail[:5]); ok {
					under.SetPtr(under.Ptr() + 5)
					under.SetCount(under.Count() - 5)
					copy(raw[1+n:], tb[:4])
					n += 4
					continue
				}
			}
		}
		b, err := under.GetByte()
		if err != nil {
			if err == io.EOF {
				return finalize()
			}
			se, ok := err.(*stream.Error)
			if !ok {
				se = stream.NewError(stream.IOError, "%s", err)
			}
			if n > 0 {
				s.DeferError(se)
				return n, nil
			}
			return 0, se
		}
		switch {
		case isASCII85Whitespace(b):
			continue
		case b == 'z':
			if st.gi != 0 {
				e := stream.NewError(stream.RangeCheck, "ASCII85Decode: 'z' inside a tuple")
				if n > 0 {
					s.DeferError(e)
					return n, nil
				}
				return 0, e
			}
			raw[1+n], raw[2+n], raw[3+n], raw[4+n] = 0, 0, 0, 0
			n += 4
		case b == '~':
			// The EOD marker is "~>"; the '>' is consumed but not
			// otherwise validated, matching the lenient original reader.
			_, _ = under.GetByte()
			return finalize()
		case b < '!' || b > 'u':
			e := stream.NewError(stream.RangeCheck, "ASCII85Decode: invalid character %q", b)
			if n > 0 {
				s.DeferError(e)
				return n, nil
			}
			return 0, e
		default:
			st.group[st.gi] = b - '!'
			st.gi++
			if st.gi == 5 {
				tb, derr := decodeTuple(st.group, 5)
				if derr != nil {
					if n > 0 {
						s.DeferError(derr)
						return n, nil
					}
					return 0, derr
				}
				copy(raw[1+n:], tb[:4])
				n += 4
				st.gi = 0
			}
		}
	}
	return n, nil
}

func ascii85DecodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  ASCII85,
		Flags: stream.Readable,
		Fill:  ascii85Fill,
		Init:  ascii85DecodeInit,
	}
}

// ascii85EncodeState carries the 0-3 leftover input bytes that didn't
// fill a complete 4-byte group at the last Flush, plus the output
// column used for the 65-character line wrap.
type ascii85EncodeState struct {
	pending [4]byte
	pn      int
	col     int
}

func ascii85EncodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	s.AllocateBuffer(1024, 0)
	s.Private = &ascii85EncodeState{}
	return nil
}

func ascii85WriteBytes(under *stream.Stream, bs []byte, st *ascii85EncodeState) error {
	for _, b := range bs {
		if st.col >= 65 {
			if err := under.PutByte('\n'); err != nil {
				return err
			}
			st.col = 0
		}
		if err := under.PutByte(b); err != nil {
			return err
		}
		st.col++
	}
	return nil
}

// ascii85WriteGroup encodes the leading n (1-4) bytes of group into n+1
// base-85 characters, using the single-character 'z' shorthand only for
// a full all-zero 4-byte group.
func ascii85WriteGroup(under *stream.Stream, group [4]byte, n int, st *ascii85EncodeState) error {
	var val uint32
	for i := 0; i < 4; i++ {
		val = val<<8 | uint32(group[i])
	}
	if n == 4 && val == 0 {
		return ascii85WriteBytes(under, []byte{'z'}, st)
	}
	var enc [5]byte
	for i := 4; i >= 0; i-- {
		enc[i] = byte(val%85) + '!'
		val /= 85
	}
	return ascii85WriteBytes(under, enc[:n+1], st)
}

// ascii85Flush implements the encoder half: it drains the raw bytes
// buffered by PutByte/Write, combines them with any leftover bytes from
// the previous Flush, and writes out complete 5-character groups. On
// the closing flush (s.IsClosing()) it also emits the final partial
// group, if any, and the "~>" trailer.
func ascii85Flush(s *stream.Stream) error {
	st, _ := s.Private.(*ascii85EncodeState)
	under := s.Underlying()
	if under == nil {
		return stream.NewError(stream.IOError, "ASCII85Encode has no underlying stream")
	}
	data := s.RawBuffer()[:s.Ptr()]
	full := make([]byte, 0, st.pn+len(data))
	full = append(full, st.pending[:st.pn]...)
	full = append(full, data...)

	i := 0
	for ; i+4 <= len(full); i += 4 {
		var group [4]byte
		copy(group[:], full[i:i+4])
		if err := ascii85WriteGroup(under, group, 4, st); err != nil {
			return err
		}
	}
	st.pn = copy(st.pending[:], full[i:])
	s.SetPtr(0)
	s.SetCount(s.BufSize())

	if s.IsClosing() {
		if st.pn > 0 {
			var group [4]byte
			copy(group[:], st.pending[:st.pn])
			if err := ascii85WriteGroup(under, group, st.pn, st); err != nil {
				return err
			}
			st.pn = 0
		}
		if err := ascii85WriteBytes(under, []byte("~>"), st); err != nil {
			return err
		}
	}
	return nil
}

func ascii85EncodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  "ASCII85Encode",
		Flags: stream.Writable,
		Flush: ascii85Flush,
		Init:  ascii85EncodeInit,
	}
}
