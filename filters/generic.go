package filters

import (
	"io"

	"github.com/benoitkugler/filterio/stream"
)

// genericDecodeState buffers the device's output between Fill calls:
// a single Transform call can produce more bytes than fit in one
// caller-sized buffer.
type genericDecodeState struct {
	dev Device
	buf []byte
	eof bool
}

func genericDecodeInit(factory func() Device) stream.InitFunc {
	return func(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
		s.AllocateBuffer(4096, 0)
		d := factory()
		if err := d.Open(stream.Input, params); err != nil {
			return err
		}
		s.Private = &genericDecodeState{dev: d}
		return nil
	}
}

func genericFill(s *stream.Stream) (int, error) {
	st, _ := s.Private.(*genericDecodeState)
	under := s.Underlying()
	if under == nil {
		return 0, stream.NewError(stream.IOError, "generic filter has no underlying stream")
	}
	for len(st.buf) == 0 {
		if st.eof {
			return 0, io.EOF
		}
		chunk := make([]byte, 4096)
		n, err := under.Read(chunk)
		final := false
		if err != nil {
			if err == io.EOF {
				final = true
				st.eof = true
			} else {
				return 0, err
			}
		}
		out, terr := st.dev.Transform(chunk[:n], final)
		if terr != nil {
			return 0, terr
		}
		st.buf = out
		if final && len(st.buf) == 0 {
			return 0, io.EOF
		}
	}
	raw := s.RawBuffer()
	n := copy(raw[1:], st.buf)
	st.buf = st.buf[n:]
	return n, nil
}

func genericClose(s *stream.Stream, explicit bool) error {
	switch st := s.Private.(type) {
	case *genericDecodeState:
		return st.dev.Close()
	case *genericEncodeState:
		return st.dev.Close()
	}
	return nil
}

// genericDecodeDescriptor wires a device factory into a decoder
// Descriptor. factory is called once per Open, not once per process, so
// a stateful device (a zlib reader, a cipher's running counter) never
// leaks between unrelated streams.
func genericDecodeDescriptor(name string, factory func() Device) *stream.Descriptor {
	return &stream.Descriptor{
		Name:  name,
		Flags: stream.Readable,
		Fill:  genericFill,
		Init:  genericDecodeInit(factory),
		Close: genericClose,
	}
}

type genericEncodeState struct {
	dev Device
}

func genericEncodeInit(factory func() Device) stream.InitFunc {
	return func(s *stream.Stream, underlying *stream.Stream, params map[string]int) error {
		s.AllocateBuffer(4096, 0)
		d := factory()
		if err := d.Open(stream.Output, params); err != nil {
			return err
		}
		s.Private = &genericEncodeState{dev: d}
		return nil
	}
}

func genericFlush(s *stream.Stream) error {
	st, _ := s.Private.(*genericEncodeState)
	under := s.Underlying()
	if under == nil {
		return stream.NewError(stream.IOError, "generic filter has no underlying stream")
	}
	data := s.RawBuffer()[:s.Ptr()]
	out, err := st.dev.Transform(data, s.IsClosing())
	if err != nil {
		return err
	}
	if len(out) > 0 {
		if _, err := under.Write(out); err != nil {
			return err
		}
	}
	s.SetPtr(0)
	s.SetCount(s.BufSize())
	return nil
}

// genericEncodeDescriptor is the encoder counterpart of
// genericDecodeDescriptor.
func genericEncodeDescriptor(name string, factory func() Device) *stream.Descriptor {
	return &stream.Descriptor{
		Name:  name,
		Flags: stream.Writable,
		Flush: genericFlush,
		Init:  genericEncodeInit(factory),
		Close: genericClose,
	}
}
