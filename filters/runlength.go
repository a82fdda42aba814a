package filters

import (
	"io"

	"github.com/benoitkugler/filterio/stream"
)

// runLengthDecodeState tracks a replicated run still being expanded
// across Fill calls (the run can be longer than the space left in the
// caller's buffer).
type runLengthDecodeState struct {
	repeatByte  byte
	repeatLeft  int
	literalLeft int
	eof         bool
}

func runLengthDecodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	s.AllocateBuffer(1024, 0)
	s.Private = &runLengthDecodeState{}
	return nil
}

// runLengthFill implements the control-byte decoder: a control byte
// 0-127 introduces a literal run of (control+1) verbatim bytes, 129-255
// introduces a single byte repeated (257-control) times, and 128 is the
// EOD marker.
func runLengthFill(s *stream.Stream) (int, error) {
	st, _ := s.Private.(*runLengthDecodeState)
	under := s.Underlying()
	if under == nil {
		return 0, stream.NewError(stream.IOError, "RunLengthDecode has no underlying stream")
	}
	if st.eof {
		return 0, io.EOF
	}
	raw := s.RawBuffer()
	n := 0
	capBytes := s.BufSize()

	readByte := func() (byte, error) {
		b, err := under.GetByte()
		if err != nil {
			return 0, err
		}
		return b, nil
	}

	for n < capBytes {
		if st.repeatLeft > 0 {
			for st.repeatLeft > 0 && n < capBytes {
				raw[1+n] = st.repeatByte
				n++
				st.repeatLeft--
			}
			continue
		}
		if st.literalLeft > 0 {
			for st.literalLeft > 0 && n < capBytes {
				b, err := readByte()
				if err != nil {
					se, ok := err.(*stream.Error)
					if err == io.EOF {
						se = stream.NewError(stream.IllegalDataLength, "RunLengthDecode: truncated literal run")
					} else if !ok {
						se = stream.NewError(stream.IOError, "%s", err)
					}
					if n > 0 {
						s.DeferError(se)
						return n, nil
					}
					return 0, se
				}
				raw[1+n] = b
				n++
				st.literalLeft--
			}
			continue
		}
		ctrl, err := readByte()
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
		switch {
		case ctrl == 128:
			st.eof = true
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		case ctrl < 128:
			st.literalLeft = int(ctrl) + 1
		default:
			b, err := readByte()
			if err != nil {
				se := stream.NewError(stream.IllegalDataLength, "RunLengthDecode: truncated replicated run")
				if n > 0 {
					s.DeferError(se)
					return n, nil
				}
				return 0, se
			}
			st.repeatByte = b
			st.repeatLeft = 257 - int(ctrl)
		}
	}
	return n, nil
}

func runLengthDecodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  RunLength,
		Flags: stream.Readable | stream.Expands,
		Fill:  runLengthFill,
		Init:  runLengthDecodeInit,
	}
}

// runLengthEncodeState carries the record-size configuration (spec.md
// §4.3.4's "fixed record size supplied as an integer argument") and how
// far into the current record the encoder has written so far, since a
// run or literal block may never cross a record boundary and that
// position must survive across Flush calls.
type runLengthEncodeState struct {
	recordSize int // 0 means "whole buffer is one record" (unbounded)
	posInRec   int
}

// runLengthRecordSizeKey is the parameter-dictionary key consulted for
// the encoder's record size, following the PDF-style PascalCase keys
// the rest of this package's parameter dictionaries use (FlateDevice's
// "Predictor"/"Columns").
const runLengthRecordSizeKey = "RecordSize"

func runLengthEncodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	s.AllocateBuffer(1024, 0)
	r := 0
	if v, ok := params[runLengthRecordSizeKey]; ok {
		r = v
	}
	if r < 0 || r > 65536 {
		return stream.NewError(stream.RangeCheck, "RunLengthEncode: record size %d out of range [0,65536]", r)
	}
	s.Private = &runLengthEncodeState{recordSize: r}
	return nil
}

// recordRoom reports how many more bytes may be placed in the current
// record before a new one must start, rolling over to a fresh record
// when the prior one just filled. recordSize == 0 means unbounded.
func (st *runLengthEncodeState) recordRoom() int {
	if st.recordSize == 0 {
		return 128
	}
	if st.posInRec >= st.recordSize {
		st.posInRec = 0
	}
	room := st.recordSize - st.posInRec
	if room > 128 {
		room = 128
	}
	return room
}

func (st *runLengthEncodeState) advance(n int) {
	if st.recordSize == 0 {
		return
	}
	st.posInRec += n
	if st.posInRec >= st.recordSize {
		st.posInRec = 0
	}
}

// runLengthWriteRecords scans data for runs and emits control-byte
// records for each, splitting literal and replicated runs both at the
// 128-byte limit the control byte can express for either kind and at the
// configured record-size boundary (spec.md §4.3.4: "within each record,
// emit runs").
func runLengthWriteRecords(under *stream.Stream, data []byte, st *runLengthEncodeState) error {
	i := 0
	for i < len(data) {
		limit := st.recordRoom()

		// A replicated run needs at least 3 repeats to be worth a
		// 2-byte record instead of 3 literal bytes.
		runLen := 1
		for i+runLen < len(data) && data[i+runLen] == data[i] && runLen < limit {
			runLen++
		}
		if runLen >= 3 {
			if err := under.PutByte(byte(257 - runLen)); err != nil {
				return err
			}
			if err := under.PutByte(data[i]); err != nil {
				return err
			}
			i += runLen
			st.advance(runLen)
			continue
		}
		// Literal run: accumulate bytes until a run of >=3 identical
		// bytes starts, or the record/128-byte limit is reached.
		litStart := i
		for i < len(data) && i-litStart < limit {
			rep := 1
			for i+rep < len(data) && data[i+rep] == data[i] && rep < limit-(i-litStart) {
				rep++
			}
			if rep >= 3 {
				break
			}
			i++
		}
		lit := data[litStart:i]
		if err := under.PutByte(byte(len(lit) - 1)); err != nil {
			return err
		}
		for _, b := range lit {
			if err := under.PutByte(b); err != nil {
				return err
			}
		}
		st.advance(len(lit))
	}
	return nil
}

// runLengthFlush writes out every complete record this Flush's buffered
// bytes form. On the closing flush it writes the trailing partial
// record (if any, through the same runLengthWriteRecords path, mirroring
// the original encoder's recursive self-call) followed by the EOD
// sentinel byte 128.
func runLengthFlush(s *stream.Stream) error {
	st, _ := s.Private.(*runLengthEncodeState)
	under := s.Underlying()
	if under == nil {
		return stream.NewError(stream.IOError, "RunLengthEncode has no underlying stream")
	}
	data := s.RawBuffer()[:s.Ptr()]
	if len(data) > 0 {
		if err := runLengthWriteRecords(under, data, st); err != nil {
			return err
		}
	}
	s.SetPtr(0)
	s.SetCount(s.BufSize())
	if s.IsClosing() {
		if err := under.PutByte(128); err != nil {
			return err
		}
	}
	return nil
}

func runLengthEncodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  "RunLengthEncode",
		Flags: stream.Writable,
		Flush: runLengthFlush,
		Init:  runLengthEncodeInit,
	}
}
