package filters

import (
	"io"

	"github.com/benoitkugler/filterio/stream"
)

// asciiHexDecodeState carries a lone high nibble across Fill calls: two
// hex digits are needed to produce one byte, and the digits can straddle
// a Fill boundary.
type asciiHexDecodeState struct {
	hi     byte
	haveHi bool
	eof    bool
}

func asciiHexDecodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	s.AllocateBuffer(1024, 0)
	s.Private = &asciiHexDecodeState{}
	return nil
}

func hexDigit(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	}
	return 0, false
}

// asciiHexFill decodes pairs of hex digits into bytes, skipping
// whitespace, until the buffer is full, the ">" EOD is seen, or the
// underlying stream reports EOF. A bad digit reports RangeCheck only
// after any bytes already decoded this call have been delivered,
// matching ASCII85's deferred-error discipline. A trailing lone digit
// at EOD is padded with a low nibble of 0, per the original reader.
func asciiHexFill(s *stream.Stream) (int, error) {
	st, _ := s.Private.(*asciiHexDecodeState)
	under := s.Underlying()
	if under == nil {
		return 0, stream.NewError(stream.IOError, "ASCIIHexDecode has no underlying stream")
	}
	raw := s.RawBuffer()
	n := 0
	capBytes := s.BufSize()

	finalize := func() (int, error) {
		if st.haveHi {
			raw[1+n] = st.hi << 4
			n++
			st.haveHi = false
		}
		st.eof = true
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}

	for n < capBytes {
		if st.eof {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
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
		if b == '>' {
			return finalize()
		}
		if isASCII85Whitespace(b) {
			continue
		}
		d, ok := hexDigit(b)
		if !ok {
			e := stream.NewError(stream.RangeCheck, "ASCIIHexDecode: invalid character %q", b)
			if n > 0 {
				s.DeferError(e)
				return n, nil
			}
			return 0, e
		}
		if !st.haveHi {
			st.hi = d
			st.haveHi = true
			continue
		}
		raw[1+n] = st.hi<<4 | d
		n++
		st.haveHi = false
	}
	return n, nil
}

func asciiHexDecodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  ASCIIHex,
		Flags: stream.Readable,
		Fill:  asciiHexFill,
		Init:  asciiHexDecodeInit,
	}
}

// asciiHexEncodeState tracks the output column for the 64-character
// line wrap.
type asciiHexEncodeState struct {
	col int
}

func asciiHexEncodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	s.AllocateBuffer(1024, 0)
	s.Private = &asciiHexEncodeState{}
	return nil
}

const hexDigits = "0123456789ABCDEF"

func asciiHexPutByte(under *stream.Stream, b byte, st *asciiHexEncodeState) error {
	for _, c := range [2]byte{hexDigits[b>>4], hexDigits[b&0xF]} {
		if st.col >= 64 {
			if err := under.PutByte('\n'); err != nil {
				return err
			}
			st.col = 0
		}
		if err := under.PutByte(c); err != nil {
			return err
		}
		st.col++
	}
	return nil
}

func asciiHexFlush(s *stream.Stream) error {
	st, _ := s.Private.(*asciiHexEncodeState)
	under := s.Underlying()
	if under == nil {
		return stream.NewError(stream.IOError, "ASCIIHexEncode has no underlying stream")
	}
	data := s.RawBuffer()[:s.Ptr()]
	for _, b := range data {
		if err := asciiHexPutByte(under, b, st); err != nil {
			return err
		}
	}
	s.SetPtr(0)
	s.SetCount(s.BufSize())
	if s.IsClosing() {
		if err := under.PutByte('>'); err != nil {
			return err
		}
	}
	return nil
}

func asciiHexEncodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  "ASCIIHexEncode",
		Flags: stream.Writable,
		Flush: asciiHexFlush,
		Init:  asciiHexEncodeInit,
	}
}
