package tagstream

import (
	"bufio"

	"github.com/benoitkugler/filterio/stream"
)

// TagKind classifies a single byte read from the tag stream, mirroring
// spec.md §4.8's closed tag classification (datatype, attribute,
// operator, embedded-data introducer, whitespace, the stream-header
// introducer, and the escape byte).
type TagKind uint8

const (
	TagWhitespace TagKind = iota
	TagDataType
	TagAttribute
	TagOperator
	TagEmbeddedData
	TagEmbeddedDataLong
	TagStreamHeader // '(' or ')': an embedded stream header; NextTag reparses it inline
	TagEscape       // possible UEL; resolved by Stream.NextTag
)

// classify assigns a TagKind to b using the PCL-XL tag ranges of
// spec.md §4.8: 0x9-0xD and 0x20 are whitespace, '(' and ')' (0x28/0x29)
// introduce an embedded stream header, 0xFA/0xFB introduce embedded
// data, bytes >= 0x80 (other than the embedded-data introducers) are
// attribute bytes, 0x30 and up are operators, and everything else is a
// datatype byte.
func classify(b byte) TagKind {
	switch {
	case b == esc:
		return TagEscape
	case b == '(' || b == ')':
		return TagStreamHeader
	case b == 0xFA:
		return TagEmbeddedData
	case b == 0xFB:
		return TagEmbeddedDataLong
	case b >= 0x80:
		return TagAttribute
	case b == 0x20 || (b >= 0x09 && b <= 0x0D):
		return TagWhitespace
	case b >= 0x30:
		return TagOperator
	default:
		return TagDataType
	}
}

// uelBody is the fixed 8-byte tail that follows ESC in a Universal Exit
// Language sequence: "%-12345X".
var uelBody = []byte("%-12345X")

// Stream wraps a bufio.Reader with the tag-level next_tag loop: byte by
// byte classification, with UEL detection whenever an ESC is seen
// outside a stream header (inside the header, ESC is always
// IllegalStreamHeader instead, see ParseHeader).
type Stream struct {
	r      *bufio.Reader
	Header Header
}

// Open parses the stream's binding+header line and returns a Stream
// ready for NextTag.
func Open(r *bufio.Reader) (*Stream, error) {
	h, err := ParseHeader(r)
	if err != nil {
		return nil, err
	}
	return &Stream{r: r, Header: h}, nil
}

// NextTag returns the next classified tag byte, skipping whitespace and
// transparently reparsing an embedded stream header without surfacing
// either to the caller (spec.md §4.8's next_tag loop: "on whitespace it
// continues; on an embedded stream header it parses the header and
// updates endianness + protocol version"). If the byte is ESC, it peeks
// ahead for the UEL body; a full match consumes the UEL and returns
// ok==false with a nil error, the same as real EOF, while an ESC not
// followed by the full UEL body returns an IllegalTag error. The Stream
// keeps no closed state: a later NextTag call reads whatever bytes
// follow the UEL.
func (s *Stream) NextTag() (kind TagKind, b byte, ok bool, err error) {
	for {
		raw, rerr := s.r.ReadByte()
		if rerr != nil {
			return 0, 0, false, nil // real EOF: not an error, just end of stream
		}
		k := classify(raw)
		switch k {
		case TagWhitespace:
			continue
		case TagStreamHeader:
			if uerr := s.r.UnreadByte(); uerr != nil {
				return 0, 0, false, stream.NewError(stream.IOError, "%s", uerr)
			}
			h, herr := ParseHeader(s.r)
			if herr != nil {
				return 0, 0, false, herr
			}
			s.Header = h
			continue
		case TagEscape:
			peeked, perr := s.r.Peek(len(uelBody))
			if perr == nil && string(peeked) == string(uelBody) {
				_, _ = s.r.Discard(len(uelBody))
				return 0, 0, false, nil // UEL: stream ends here
			}
			// Not a UEL: ESC outside a header is simply an illegal tag byte.
			return 0, 0, false, stream.NewError(stream.IllegalTag, "unexpected ESC byte outside a UEL sequence")
		default:
			return k, raw, true, nil
		}
	}
}
