// Package tagstream implements components G and H: a tag-structured
// binary stream reader modeled on PCL-XL's framing (a binding byte, a
// textual header naming the protocol class/revision, then a sequence of
// datatype/attribute/operator/embedded-data tags), its Embedded Reader
// sub-protocol, and the bounded stack that lets ExecStream switch the
// reader onto a replayed byte sequence and back.
package tagstream

import (
	"bufio"

	"github.com/benoitkugler/filterio/stream"
)

// Endianness is set by a stream header's binding byte; an embedded
// stream header met by Stream.NextTag replaces it. The Embedded Reader
// is given its own independent endianness per spec.md §4.7.
type Endianness uint8

const (
	BigEndian Endianness = iota
	LittleEndian
)

// knownVersions is the closed set of protocol_class.protocol_revision
// pairs parse_stream_header accepts, supplementing spec.md §4.9 with the
// original's exact version table.
var knownVersions = map[[2]int]bool{
	{1, 0}: true,
	{1, 1}: true,
	{2, 0}: true,
	{2, 1}: true,
	{3, 0}: true,
}

// Header is the parsed result of a stream's binding+header line.
type Header struct {
	Endianness       Endianness
	ProtocolClass    int
	ProtocolRevision int
}

const (
	esc byte = 0x1B
	cr  byte = '\r'
	lf  byte = '\n'
)

// ParseHeader reads the binding byte, the fixed "HP-PCL XL" class name,
// and the "class;revision[CR]LF" tail from r, per spec.md §4.9's
// "binding SP classname ';' class ';' revision [CR] LF" grammar.
//
// ESC encountered anywhere inside the header (including in place of the
// class name) is reported as IllegalStreamHeader, never mistaken for
// the start of a UEL the way ESC is everywhere else in the tag stream
// (supplemented feature 5, grounded in header_field_match_classname).
func ParseHeader(r *bufio.Reader) (Header, error) {
	var h Header

	binding, err := r.ReadByte()
	if err != nil {
		return h, stream.NewError(stream.IOError, "reading stream binding byte: %s", err)
	}
	switch binding {
	case '(':
		h.Endianness = BigEndian
	case ')':
		h.Endianness = LittleEndian
	default:
		return h, stream.NewError(stream.UnsupportedBinding, "stream encoding 0x%02x not supported", binding)
	}

	sp, err := r.ReadByte()
	if err != nil || sp != ' ' {
		return h, stream.NewError(stream.IllegalStreamHeader, "expected a space after the binding byte")
	}

	if err := matchClassName(r, "HP-PCL XL"); err != nil {
		return h, err
	}

	class, seenLF, err := parseHeaderNumber(r)
	if err != nil {
		return h, err
	}
	if seenLF {
		return h, stream.NewError(stream.IllegalStreamHeader, "header ended while reading the protocol class")
	}
	revision, seenLF, err := parseHeaderNumber(r)
	if err != nil {
		return h, err
	}
	h.ProtocolClass, h.ProtocolRevision = class, revision

	if class > 3 || revision > 1 || !knownVersions[[2]int{class, revision}] {
		return h, stream.NewError(stream.UnsupportedProtocolVersion, "invalid protocol class %d revision %d", class, revision)
	}

	if !seenLF {
		if err := headerFlush(r); err != nil {
			return h, err
		}
	}
	return h, nil
}

// matchClassName consumes exactly name followed by a ';' field
// terminator, failing with IllegalStreamHeader on an ESC byte and also
// on anything else that doesn't match (there is no "unsupported class
// name" kind in spec.md's closed error set, so a class-name mismatch
// reuses IllegalStreamHeader).
func matchClassName(r *bufio.Reader, name string) error {
	for i := 0; i < len(name); i++ {
		b, err := r.ReadByte()
		if err != nil {
			return stream.NewError(stream.IllegalStreamHeader, "EOF reading stream class name")
		}
		if b != name[i] {
			if b == esc {
				return stream.NewError(stream.IllegalStreamHeader, "ESC inside stream header")
			}
			return stream.NewError(stream.IllegalStreamHeader, "unexpected class name")
		}
	}
	b, err := r.ReadByte()
	if err != nil || b != ';' {
		return stream.NewError(stream.IllegalStreamHeader, "expected ';' after class name")
	}
	return nil
}

// parseHeaderNumber parses a decimal integer field terminated by ';' or
// by the header's closing [CR]LF, reporting via seenLF which terminator
// was found.
func parseHeaderNumber(r *bufio.Reader) (number int, seenLF bool, err error) {
	b, rerr := r.ReadByte()
	if rerr != nil {
		return 0, false, stream.NewError(stream.IllegalStreamHeader, "EOF reading a stream header number")
	}
	if b < '0' || b > '9' {
		return 0, false, stream.NewError(stream.IllegalStreamHeader, "expected a digit")
	}
	for b >= '0' && b <= '9' {
		number = number*10 + int(b-'0')
		b, rerr = r.ReadByte()
		if rerr != nil {
			return 0, false, stream.NewError(stream.IllegalStreamHeader, "EOF reading a stream header number")
		}
	}
	if b == ';' {
		return number, false, nil
	}
	if b == cr {
		b, rerr = r.ReadByte()
		if rerr != nil {
			return 0, false, stream.NewError(stream.IllegalStreamHeader, "EOF after CR in stream header")
		}
	}
	if b != lf {
		return 0, false, stream.NewError(stream.IllegalStreamHeader, "expected LF to end the stream header")
	}
	return number, true, nil
}

// headerFlush discards bytes up to and including the header-terminating
// LF, used when a numeric field was itself terminated by ';' rather
// than directly ending the header.
func headerFlush(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return stream.NewError(stream.IllegalStreamHeader, "EOF flushing to end of stream header")
		}
		if b == esc {
			return stream.NewError(stream.IllegalStreamHeader, "ESC inside stream header")
		}
		if b == lf {
			return nil
		}
	}
}
