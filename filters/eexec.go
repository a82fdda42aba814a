package filters

import (
	"io"

	"github.com/benoitkugler/filterio/stream"
)

// eexec is a symmetric byte-stream cipher (not a block cipher): each
// plaintext/ciphertext byte advances a 16-bit state that folds in the
// ciphertext byte just produced or consumed.
const (
	eexecSeed = 55665
	eexecAdd  = 22719
	eexecMult = 52845
)

// eexecState carries the running cipher state plus the 4 leading
// "discard" bytes PostScript's eexec convention drops from the start of
// every decrypted run.
type eexecState struct {
	r        uint16
	discard  int // bytes still to discard (starts at 4)
	hexMode  bool
	probed   bool // have we looked at the first bytes to decide hexMode?
	probeBuf [4]byte
	probeN   int
	hx       asciiHexDecodeState // reused hex-pair accumulator when hexMode
	eof      bool
}

func eexecDecrypt(st *eexecState, cipher byte) byte {
	plain := cipher ^ byte(st.r>>8)
	st.r = (uint16(cipher)+st.r)*eexecMult + eexecAdd
	return plain
}

func eexecEncrypt(st *eexecState, plain byte) byte {
	cipher := plain ^ byte(st.r>>8)
	st.r = (uint16(cipher)+st.r)*eexecMult + eexecAdd
	return cipher
}

func eexecDecodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	// A 1-byte output buffer: each Fill consumes only the ciphertext
	// needed for one plaintext byte, since eexec has no EOD marker to
	// stop a larger read-ahead at.
	s.AllocateBuffer(1, 0)
	s.Private = &eexecState{r: eexecSeed, discard: 4}
	return nil
}

// isHexByte reports whether b could plausibly be part of a hex-encoded
// eexec section: a hex digit or ASCII whitespace. Four such bytes in a
// row is the heuristic the original filter uses to decide the section
// is hex rather than raw binary ciphertext.
func isHexByte(b byte) bool {
	if isASCII85Whitespace(b) {
		return true
	}
	_, ok := hexDigit(b)
	return ok
}

// eexecNextCipherByte returns the next raw ciphertext byte, transparently
// decoding hex pairs if the stream turned out to be hex-encoded. The
// encoding is decided once, from the first 4 bytes read.
func eexecNextCipherByte(st *eexecState, under *stream.Stream) (byte, error) {
	if !st.probed {
		for st.probeN < 4 {
			b, err := under.GetByte()
			if err != nil {
				st.probed = true
				break
			}
			st.probeBuf[st.probeN] = b
			st.probeN++
			if !isHexByte(b) {
				st.probed = true
				break
			}
		}
		if st.probeN == 4 {
			st.hexMode = true
		}
		st.probed = true
	}
	if st.hexMode {
		for {
			if st.probeN > 0 {
				b := st.probeBuf[0]
				copy(st.probeBuf[:], st.probeBuf[1:])
				st.probeN--
				if isASCII85Whitespace(b) {
					continue
				}
				d, ok := hexDigit(b)
				if !ok {
					return 0, stream.NewError(stream.RangeCheck, "EExecDecode: invalid hex character %q", b)
				}
				if !st.hx.haveHi {
					st.hx.hi = d
					st.hx.haveHi = true
					continue
				}
				st.hx.haveHi = false
				return st.hx.hi<<4 | d, nil
			}
			b, err := under.GetByte()
			if err != nil {
				return 0, err
			}
			if isASCII85Whitespace(b) {
				continue
			}
			d, ok := hexDigit(b)
			if !ok {
				return 0, stream.NewError(stream.RangeCheck, "EExecDecode: invalid hex character %q", b)
			}
			if !st.hx.haveHi {
				st.hx.hi = d
				st.hx.haveHi = true
				continue
			}
			st.hx.haveHi = false
			return st.hx.hi<<4 | d, nil
		}
	}
	if st.probeN > 0 {
		b := st.probeBuf[0]
		copy(st.probeBuf[:], st.probeBuf[1:])
		st.probeN--
		return b, nil
	}
	return under.GetByte()
}

// eexecFill decrypts one byte at a time into the output buffer, first
// silently discarding the 4 leading decrypted bytes PostScript's eexec
// convention always drops.
func eexecFill(s *stream.Stream) (int, error) {
	st, _ := s.Private.(*eexecState)
	under := s.Underlying()
	if under == nil {
		return 0, stream.NewError(stream.IOError, "EExecDecode has no underlying stream")
	}
	if st.eof {
		return 0, io.EOF
	}
	raw := s.RawBuffer()
	n := 0
	capBytes := s.BufSize()
	for n < capBytes {
		c, err := eexecNextCipherByte(st, under)
		if err != nil {
			if err == io.EOF {
				st.eof = true
				if n > 0 {
					return n, nil
				}
				return 0, io.EOF
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
		p := eexecDecrypt(st, c)
		if st.discard > 0 {
			st.discard--
			continue
		}
		raw[1+n] = p
		n++
	}
	return n, nil
}

func eexecDecodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  EExec,
		Flags: stream.Readable,
		Fill:  eexecFill,
		Init:  eexecDecodeInit,
	}
}

// eexecEncodeState is the encoder's mirror of eexecState: it must emit
// 4 arbitrary (the original uses zero) lead bytes before the real
// payload so the matching decoder's 4-byte discard lines up.
type eexecEncodeState struct {
	r         uint16
	wroteLead bool
}

func eexecEncodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	s.AllocateBuffer(1024, 0)
	s.Private = &eexecEncodeState{r: eexecSeed}
	return nil
}

func eexecFlush(s *stream.Stream) error {
	st, _ := s.Private.(*eexecEncodeState)
	under := s.Underlying()
	if under == nil {
		return stream.NewError(stream.IOError, "EExecEncode has no underlying stream")
	}
	shared := &eexecState{r: st.r}
	if !st.wroteLead {
		for i := 0; i < 4; i++ {
			if err := under.PutByte(eexecEncrypt(shared, 0)); err != nil {
				st.r = shared.r
				return err
			}
		}
		st.wroteLead = true
	}
	data := s.RawBuffer()[:s.Ptr()]
	for _, b := range data {
		if err := under.PutByte(eexecEncrypt(shared, b)); err != nil {
			st.r = shared.r
			return err
		}
	}
	st.r = shared.r
	s.SetPtr(0)
	s.SetCount(s.BufSize())
	return nil
}

func eexecEncodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  "EExecEncode",
		Flags: stream.Writable,
		Flush: eexecFlush,
		Init:  eexecEncodeInit,
	}
}
