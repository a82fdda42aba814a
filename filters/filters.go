// Package filters implements the six concrete codecs of spec.md §4.3
// (ASCII85, ASCIIHex, eexec, RunLength, Null, Generic), the process-wide
// Filter Registry of spec.md §4.4, and the Device plugin point Generic
// delegates to (spec.md §4.3.6).
package filters

import (
	"io"

	"github.com/benoitkugler/filterio/stream"
)

// Filter names, as they appear in a PDF/PostScript filter chain. See
// spec.md §2 component table and §4.4.
const (
	ASCII85   = "ASCII85Decode"
	ASCIIHex  = "ASCIIHexDecode"
	RunLength = "RunLengthDecode"
	EExec     = "EExecDecode"
	Null      = "NullEncode"
	LZW       = "LZWDecode"
	Flate     = "FlateDecode"
	DCT       = "DCTDecode"
	CCITTFax  = "CCITTFaxDecode"
	RC4       = "RC4Decode"
	AES       = "AESDecode"
	StreamF   = "Stream" // the user-defined-stream replay "filter" (component F)
)

// encodeSuffix/decodeSuffix let InverseName derive the matching
// encoder name for a decoder name and vice versa for the codecs that
// follow the Encode/Decode naming convention.
const (
	encodeSuffix = "Encode"
	decodeSuffix = "Decode"
)

// pairBase lists the closed set of filter pairs spec.md §3/§4.4 requires
// InverseName to cover, independent of whether this core implements
// both halves of a given pair.
var pairBase = []string{
	"ASCII85", "ASCIIHex", "CCITTFax", "DCT", "Flate", "LZW",
	"RunLength", "Stream", "RC4", "AES",
}

// InverseName maps an Encode name to its Decode name and back, over the
// closed enumeration spec.md §4.4 requires (P5: InverseName is its own
// inverse). Names outside the enumeration return ("", false).
func InverseName(name string) (string, bool) {
	for _, base := range pairBase {
		if name == base+encodeSuffix {
			return base + decodeSuffix, true
		}
		if name == base+decodeSuffix {
			return base + encodeSuffix, true
		}
	}
	// EExec is not in the pairBase list (eexec doesn't name itself
	// "EExec" + Encode/Decode in the pairing table of spec.md §3), but it
	// still obeys the Encode/Decode naming symmetry for consistency with
	// the rest of the registry. Null is write-only and has no decoder, so
	// NullEncode has no inverse and returns ("", false).
	if name == "EExecEncode" {
		return "EExecDecode", true
	}
	if name == "EExecDecode" {
		return "EExecEncode", true
	}
	return "", false
}

// Skipper reads the input data and stops exactly after the EOD marker,
// returning the number of bytes consumed (including the EOD). This is
// the convenience surface consumers without a full Stream stack use to
// locate the end of an inline-image's encoded data (spec.md §6 "File
// format" paragraph, and the teacher's own filters.Skipper).
type Skipper interface {
	Skip(encoded []byte) (int, error)
}

// DecodeAll applies name's decoder to raw, returning the fully decoded
// bytes. It is a convenience wrapper around the Registry for one-shot
// use; pipelines that need push-back, deferred errors, or chaining
// should wire a *stream.Stream directly through the Registry instead.
func DecodeAll(reg *Registry, name string, raw []byte, params map[string]int) ([]byte, error) {
	d, err := reg.Find(name)
	if err != nil {
		return nil, err
	}
	in := stream.NewInputBytes(raw)
	s, err := d.Open(stream.Input, in, params)
	if err != nil {
		return nil, err
	}
	defer s.Close(false)
	out := make([]byte, 0, len(raw))
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
	}
}
