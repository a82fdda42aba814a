package filters

import "github.com/benoitkugler/filterio/stream"

// nullFlush is a pure passthrough: every buffered byte goes straight to
// the underlying stream unchanged. NullEncode has no decoder; spec.md
// §4.3.5 declares it write-only, used to terminate a filter chain with
// no further transformation.
func nullFlush(s *stream.Stream) error {
	under := s.Underlying()
	if under == nil {
		return stream.NewError(stream.IOError, "NullEncode has no underlying stream")
	}
	data := s.RawBuffer()[:s.Ptr()]
	if len(data) > 0 {
		if _, err := under.Write(data); err != nil {
			return err
		}
	}
	s.SetPtr(0)
	s.SetCount(s.BufSize())
	return nil
}

func nullEncodeInit(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
	s.AllocateBuffer(1024, 0)
	return nil
}

func nullEncodeDescriptor() *stream.Descriptor {
	return &stream.Descriptor{
		Name:  Null,
		Flags: stream.Writable,
		Flush: nullFlush,
		Init:  nullEncodeInit,
	}
}
